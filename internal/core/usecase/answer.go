package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

// ExpansionFailurePolicy decides what happens when the expander fails.
type ExpansionFailurePolicy string

const (
	ExpansionFailureAbort        ExpansionFailurePolicy = "abort"
	ExpansionFailureOriginalOnly ExpansionFailurePolicy = "original_only"
)

// VerifierPolicy decides which verdicts keep a generated answer.
type VerifierPolicy string

const (
	VerifierPolicyIsValid VerifierPolicy = "is_valid"
	VerifierPolicyStrict  VerifierPolicy = "strict"
)

type AnswerOptions struct {
	ExpansionEnabled      bool
	ExpansionVariants     int
	ExpansionFailure      ExpansionFailurePolicy
	VerificationThreshold float64
	VerifierPolicy        VerifierPolicy
	RequestTimeout        time.Duration
}

type variantSelector interface {
	Select(ctx context.Context, variants []string) (*domain.SelectionResult, error)
}

// AnswerUseCase implements answer_question: expand, select, build context,
// generate and gate the answer.
type AnswerUseCase struct {
	expander  ports.QueryExpander
	selector  variantSelector
	contexts  *ContextBuilder
	generator ports.AnswerGenerator
	verifier  ports.Verifier
	answerLog ports.AnswerLog
	opts      AnswerOptions
}

func NewAnswerUseCase(
	expander ports.QueryExpander,
	selector variantSelector,
	contexts *ContextBuilder,
	generator ports.AnswerGenerator,
	verifier ports.Verifier,
	opts AnswerOptions,
) *AnswerUseCase {
	if contexts == nil {
		contexts = NewContextBuilder(0)
	}
	if opts.ExpansionFailure == "" {
		opts.ExpansionFailure = ExpansionFailureAbort
	}
	if opts.VerifierPolicy == "" {
		opts.VerifierPolicy = VerifierPolicyIsValid
	}
	if opts.ExpansionVariants < 0 {
		opts.ExpansionVariants = 0
	}
	return &AnswerUseCase{
		expander:  expander,
		selector:  selector,
		contexts:  contexts,
		generator: generator,
		verifier:  verifier,
		opts:      opts,
	}
}

// WithAnswerLog attaches an audit sink. Audit failures never fail a request.
func (uc *AnswerUseCase) WithAnswerLog(answerLog ports.AnswerLog) *AnswerUseCase {
	uc.answerLog = answerLog
	return uc
}

func (uc *AnswerUseCase) Answer(ctx context.Context, question string) (*domain.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "answer question", errors.New("question is required"))
	}
	if uc.opts.RequestTimeout <= 0 {
		return uc.answer(ctx, question)
	}

	requestCtx, cancel := context.WithTimeout(ctx, uc.opts.RequestTimeout)
	defer cancel()
	result, err := uc.answer(requestCtx, question)
	// The request's own deadline is temporary (503); a caller cancellation keeps its kind.
	if err != nil && ctx.Err() == nil && errors.Is(requestCtx.Err(), context.DeadlineExceeded) {
		return nil, domain.WrapError(domain.ErrTemporary, "answer question",
			fmt.Errorf("request exceeded %s: %w", uc.opts.RequestTimeout, err))
	}
	return result, err
}

func (uc *AnswerUseCase) answer(ctx context.Context, question string) (*domain.AnswerResult, error) {
	start := time.Now()

	query, err := uc.expand(ctx, question)
	if err != nil {
		return nil, err
	}

	selection, err := uc.selector.Select(ctx, query.Variants)
	if err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	if needsFallback(selection) {
		result := fallbackResult(question, query, domain.OutcomeNoContext)
		if selection != nil {
			result.QueryUsed = selection.Query
			result.BestScore = selection.BestScore
			result.VariantIndex = selection.VariantIndex
		}
		uc.finish(ctx, result, start)
		return result, nil
	}

	contextText, included := uc.contexts.Build(selection.Candidates)
	used := selection.Candidates[:included]

	answer, err := uc.generator.Generate(ctx, question, contextText)
	if err != nil {
		return nil, wrapCollaboratorError("generate answer", err)
	}

	result := &domain.AnswerResult{
		Question:     question,
		QueryUsed:    selection.Query,
		Answer:       answer,
		Context:      contextText,
		Sources:      sourceScores(used),
		Scores:       scoreList(used),
		BestScore:    selection.BestScore,
		Outcome:      domain.OutcomeAccepted,
		VariantIndex: selection.VariantIndex,
		Variants:     query.Variants,
	}

	if selection.BestScore < uc.opts.VerificationThreshold {
		verdict, err := uc.verifier.Verify(ctx, question, answer)
		if err != nil {
			return nil, wrapCollaboratorError("verify answer", err)
		}
		if uc.keeps(verdict) {
			result.Outcome = domain.OutcomeVerified
			result.Verification = &verdict
		} else {
			vetoed := fallbackResult(question, query, domain.OutcomeVetoed)
			vetoed.QueryUsed = selection.Query
			vetoed.BestScore = selection.BestScore
			vetoed.VariantIndex = selection.VariantIndex
			vetoed.Verification = &verdict
			result = vetoed
		}
	}

	uc.finish(ctx, result, start)
	return result, nil
}

func (uc *AnswerUseCase) expand(ctx context.Context, question string) (domain.Query, error) {
	originalOnly := domain.Query{Original: question, Variants: []string{question}}
	if !uc.opts.ExpansionEnabled || uc.expander == nil {
		return originalOnly, nil
	}

	variants, err := uc.expander.Expand(ctx, question)
	if err == nil {
		err = checkExpansion(question, variants, uc.opts.ExpansionVariants)
	}
	if err != nil {
		if uc.opts.ExpansionFailure == ExpansionFailureOriginalOnly && ctx.Err() == nil {
			slog.WarnContext(ctx, "query_expansion_degraded", "error", err)
			return originalOnly, nil
		}
		return domain.Query{}, wrapRetrievalError("expand query", err)
	}
	return domain.Query{Original: question, Variants: variants}, nil
}

// checkExpansion enforces the fixed arity contract: original first, then exactly n variants.
func checkExpansion(original string, variants []string, n int) error {
	if len(variants) != n+1 {
		return domain.WrapError(
			domain.ErrCollaborator,
			"expand query",
			fmt.Errorf("expected %d queries, got %d", n+1, len(variants)),
		)
	}
	if variants[0] != original {
		return domain.WrapError(domain.ErrCollaborator, "expand query", errors.New("original query must come first"))
	}
	return nil
}

func (uc *AnswerUseCase) keeps(verdict domain.VerificationVerdict) bool {
	if !verdict.IsValid {
		return false
	}
	if uc.opts.VerifierPolicy == VerifierPolicyStrict {
		return verdict.Recommendation == domain.RecommendationAccept
	}
	return true
}

func (uc *AnswerUseCase) finish(ctx context.Context, result *domain.AnswerResult, start time.Time) {
	duration := time.Since(start)
	slog.InfoContext(ctx, "answer_completed",
		"outcome", string(result.Outcome),
		"fallback", result.Fallback,
		"best_score", result.BestScore,
		"variant", result.VariantIndex,
		"sources", len(result.Sources),
		"duration_ms", float64(duration.Microseconds())/1000.0,
	)

	if uc.answerLog == nil {
		return
	}
	entry := domain.AnswerLogEntry{
		ID:          uuid.NewString(),
		RequestID:   domain.RequestIDFromContext(ctx),
		Question:    result.Question,
		QueryUsed:   result.QueryUsed,
		Outcome:     result.Outcome,
		Fallback:    result.Fallback,
		BestScore:   result.BestScore,
		SourceCount: len(result.Sources),
		Verdict:     result.Verification,
		Duration:    duration,
		CreatedAt:   time.Now().UTC(),
	}
	if err := uc.answerLog.Record(context.WithoutCancel(ctx), entry); err != nil {
		slog.WarnContext(ctx, "answer_log_failed", "error", err)
	}
}

func fallbackResult(question string, query domain.Query, outcome domain.AnswerOutcome) *domain.AnswerResult {
	return &domain.AnswerResult{
		Question:     question,
		QueryUsed:    question,
		Answer:       domain.FallbackAnswer,
		Context:      "",
		Sources:      []domain.SourceScore{},
		Scores:       []float64{},
		BestScore:    0,
		Fallback:     true,
		Outcome:      outcome,
		VariantIndex: -1,
		Variants:     query.Variants,
	}
}

func sourceScores(candidates []domain.RankedCandidate) []domain.SourceScore {
	out := make([]domain.SourceScore, len(candidates))
	for i, candidate := range candidates {
		out[i] = domain.SourceScore{
			File:  candidate.Source,
			Chunk: candidate.ChunkIndex,
			Score: candidate.Score,
		}
	}
	return out
}

func scoreList(candidates []domain.RankedCandidate) []float64 {
	out := make([]float64, len(candidates))
	for i, candidate := range candidates {
		out[i] = candidate.Score
	}
	return out
}
