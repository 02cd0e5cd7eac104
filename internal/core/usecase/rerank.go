package usecase

import (
	"context"
	"fmt"
	"sort"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

// Reranker orders retrieved candidates by cross-encoder relevance.
type Reranker struct {
	scorer ports.RelevanceScorer
}

func NewReranker(scorer ports.RelevanceScorer) *Reranker {
	return &Reranker{scorer: scorer}
}

// Rerank scores every candidate against query and returns them sorted by score
// descending. Equal scores keep retrieval order.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RetrievedCandidate) ([]domain.RankedCandidate, error) {
	if len(candidates) == 0 {
		return []domain.RankedCandidate{}, nil
	}

	passages := make([]string, len(candidates))
	for i, candidate := range candidates {
		passages[i] = candidate.Text
	}

	scores, err := r.scorer.Score(ctx, query, passages)
	if err != nil {
		return nil, wrapCollaboratorError("score passages", err)
	}
	if len(scores) != len(candidates) {
		return nil, domain.WrapError(
			domain.ErrCollaborator,
			"score passages",
			fmt.Errorf("scores/passages mismatch: %d/%d", len(scores), len(candidates)),
		)
	}

	ranked := make([]domain.RankedCandidate, len(candidates))
	for i, candidate := range candidates {
		ranked[i] = domain.RankedCandidate{
			RetrievedCandidate: candidate,
			Score:              scores[i],
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked, nil
}

// keepTopScored slices to the first topK entries of a score-sorted list and only
// then drops entries below threshold. A candidate past topK is never recovered.
func keepTopScored(ranked []domain.RankedCandidate, topK int, threshold float64) []domain.RankedCandidate {
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	kept := make([]domain.RankedCandidate, 0, len(ranked))
	for _, candidate := range ranked {
		if candidate.Score >= threshold {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func wrapCollaboratorError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrCollaborator) {
		return err
	}
	return domain.WrapError(domain.ErrCollaborator, operation, err)
}
