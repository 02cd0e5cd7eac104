package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

type AnswerLogRepository struct {
	db *sql.DB
}

func NewAnswerLogRepository(db *sql.DB) *AnswerLogRepository {
	return &AnswerLogRepository{db: db}
}

func (r *AnswerLogRepository) Record(ctx context.Context, entry domain.AnswerLogEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	var verdict any
	if entry.Verdict != nil {
		raw, err := json.Marshal(entry.Verdict)
		if err != nil {
			return fmt.Errorf("marshal verdict: %w", err)
		}
		verdict = raw
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO answer_log (
	id, request_id, question, query_used, outcome, fallback, best_score, source_count, verdict, duration_ms, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		entry.ID, entry.RequestID, entry.Question, entry.QueryUsed, string(entry.Outcome), entry.Fallback,
		entry.BestScore, entry.SourceCount, verdict, entry.Duration.Milliseconds(), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert answer log: %w", err)
	}
	return nil
}
