package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

type candidateRetriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedCandidate, error)
}

type candidateReranker interface {
	Rerank(ctx context.Context, query string, candidates []domain.RetrievedCandidate) ([]domain.RankedCandidate, error)
}

type SelectionOptions struct {
	InitialK       int
	RerankTopK     int
	ScoreThreshold float64
	// Parallel fans out retrieve+rerank per variant. The reduction stays sequential.
	Parallel bool
}

func (o SelectionOptions) normalize() SelectionOptions {
	out := o
	if out.InitialK <= 0 {
		out.InitialK = 10
	}
	if out.RerankTopK <= 0 {
		out.RerankTopK = 3
	}
	return out
}

// SelectionEngine evaluates every query variant and keeps the best-scoring one.
type SelectionEngine struct {
	retriever candidateRetriever
	reranker  candidateReranker
	opts      SelectionOptions
}

func NewSelectionEngine(retriever candidateRetriever, reranker candidateReranker, opts SelectionOptions) *SelectionEngine {
	return &SelectionEngine{
		retriever: retriever,
		reranker:  reranker,
		opts:      opts.normalize(),
	}
}

type variantOutcome struct {
	index    int
	query    string
	kept     []domain.RankedCandidate
	maxScore float64
}

// Select returns nil without error when no variant kept a candidate. A result
// whose BestScore is not positive still ends in the fallback; see needsFallback.
func (e *SelectionEngine) Select(ctx context.Context, variants []string) (*domain.SelectionResult, error) {
	if len(variants) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "select", errors.New("no query variants"))
	}

	var (
		outcomes []variantOutcome
		err      error
	)
	if e.opts.Parallel && len(variants) > 1 {
		outcomes, err = e.evaluateConcurrently(ctx, variants)
	} else {
		outcomes, err = e.evaluateSequentially(ctx, variants)
	}
	if err != nil {
		return nil, err
	}

	return foldVariants(outcomes), nil
}

func (e *SelectionEngine) evaluateSequentially(ctx context.Context, variants []string) ([]variantOutcome, error) {
	outcomes := make([]variantOutcome, 0, len(variants))
	for i, query := range variants {
		outcome, err := e.evaluateVariant(ctx, i, query)
		if err != nil {
			return nil, err
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (e *SelectionEngine) evaluateConcurrently(ctx context.Context, variants []string) ([]variantOutcome, error) {
	outcomes := make([]variantOutcome, len(variants))
	g, gctx := errgroup.WithContext(ctx)
	for i, query := range variants {
		g.Go(func() error {
			outcome, err := e.evaluateVariant(gctx, i, query)
			if err != nil {
				return err
			}
			outcomes[i] = outcome
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outcomes, nil
}

func (e *SelectionEngine) evaluateVariant(ctx context.Context, index int, query string) (variantOutcome, error) {
	candidates, err := e.retriever.Retrieve(ctx, query, e.opts.InitialK)
	if err != nil {
		return variantOutcome{}, fmt.Errorf("retrieve variant %d: %w", index, err)
	}

	ranked, err := e.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return variantOutcome{}, fmt.Errorf("rerank variant %d: %w", index, err)
	}

	kept := keepTopScored(ranked, e.opts.RerankTopK, e.opts.ScoreThreshold)
	outcome := variantOutcome{
		index:    index,
		query:    query,
		kept:     kept,
		maxScore: maxScore(kept),
	}
	slog.DebugContext(ctx, "variant_scored",
		"variant", index,
		"retrieved", len(candidates),
		"kept", len(kept),
		"max_score", outcome.maxScore,
	)
	return outcome, nil
}

// foldVariants reduces per-variant outcomes in expansion order.
func foldVariants(outcomes []variantOutcome) *domain.SelectionResult {
	var best *domain.SelectionResult
	bestScore := -1.0

	for _, outcome := range outcomes {
		if len(outcome.kept) == 0 {
			continue
		}
		if !firstMaximumWins(outcome.maxScore, bestScore) {
			continue
		}
		bestScore = outcome.maxScore
		best = &domain.SelectionResult{
			VariantIndex: outcome.index,
			Query:        outcome.query,
			Candidates:   outcome.kept,
			BestScore:    outcome.maxScore,
		}
	}

	return best
}

// needsFallback reports the FALLBACK state: nothing kept, or the best score is not positive.
func needsFallback(selection *domain.SelectionResult) bool {
	return selection == nil || selection.BestScore <= 0
}

// firstMaximumWins is the tie-break rule: a candidate replaces the running best
// only when strictly greater, so the lowest variant index keeps a shared maximum.
func firstMaximumWins(candidate, best float64) bool {
	return candidate > best
}

func maxScore(kept []domain.RankedCandidate) float64 {
	if len(kept) == 0 {
		return 0
	}
	best := kept[0].Score
	for _, candidate := range kept[1:] {
		if candidate.Score > best {
			best = candidate.Score
		}
	}
	return best
}
