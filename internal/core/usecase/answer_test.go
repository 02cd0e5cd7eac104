package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

type expanderFake struct {
	variants []string
	err      error
	calls    int
}

func (f *expanderFake) Expand(_ context.Context, original string) ([]string, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.variants != nil {
		return f.variants, nil
	}
	return []string{original, original + " v1", original + " v2", original + " v3"}, nil
}

type selectorFake struct {
	result   *domain.SelectionResult
	err      error
	variants []string
}

func (f *selectorFake) Select(_ context.Context, variants []string) (*domain.SelectionResult, error) {
	f.variants = variants
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type generatorFake struct {
	answer   string
	err      error
	calls    int
	question string
	context  string
}

func (f *generatorFake) Generate(_ context.Context, question, contextText string) (string, error) {
	f.calls++
	f.question = question
	f.context = contextText
	if f.err != nil {
		return "", f.err
	}
	return f.answer, nil
}

type verifierFake struct {
	verdict domain.VerificationVerdict
	err     error
	calls   int
}

func (f *verifierFake) Verify(context.Context, string, string) (domain.VerificationVerdict, error) {
	f.calls++
	if f.err != nil {
		return domain.VerificationVerdict{}, f.err
	}
	return f.verdict, nil
}

type answerLogFake struct {
	entries []domain.AnswerLogEntry
	err     error
}

func (f *answerLogFake) Record(_ context.Context, entry domain.AnswerLogEntry) error {
	f.entries = append(f.entries, entry)
	return f.err
}

// blockingSelector waits for cancellation the way a stalled vector store would.
type blockingSelector struct{}

func (blockingSelector) Select(ctx context.Context, _ []string) (*domain.SelectionResult, error) {
	<-ctx.Done()
	return nil, domain.WrapError(domain.ErrRetrieval, "query", ctx.Err())
}

type blockingGenerator struct{}

func (blockingGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func selectionWithScores(variant int, query string, scores ...float64) *domain.SelectionResult {
	candidates := make([]domain.RankedCandidate, len(scores))
	for i, score := range scores {
		candidates[i] = rankedCandidate("guide.pdf", i, "passage", score)
	}
	return &domain.SelectionResult{
		VariantIndex: variant,
		Query:        query,
		Candidates:   candidates,
		BestScore:    maxScore(candidates),
	}
}

func defaultAnswerOptions() AnswerOptions {
	return AnswerOptions{
		ExpansionEnabled:      true,
		ExpansionVariants:     3,
		VerificationThreshold: 0.25,
	}
}

func TestAnswerSkipsVerifierAboveThreshold(t *testing.T) {
	selector := &selectorFake{result: selectionWithScores(1, "q v1", 0.9, 0.4)}
	generator := &generatorFake{answer: "Reset the router."}
	verifier := &verifierFake{}
	uc := NewAnswerUseCase(&expanderFake{}, selector, NewContextBuilder(0), generator, verifier, defaultAnswerOptions())

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if verifier.calls != 0 {
		t.Fatalf("expected verifier not to be called, got %d calls", verifier.calls)
	}
	if result.Answer != "Reset the router." || result.Fallback {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.Outcome != domain.OutcomeAccepted || result.QueryUsed != "q v1" || result.VariantIndex != 1 {
		t.Fatalf("unexpected selection fields: %+v", result)
	}
	if len(result.Sources) != 2 || len(result.Scores) != 2 || result.BestScore != 0.9 {
		t.Fatalf("unexpected sources/scores: %+v", result)
	}
	if generator.question != "q" || !strings.Contains(generator.context, "[Source 1: guide.pdf, Chunk 0, Relevance: 0.90]") {
		t.Fatalf("generator got question=%q context=%q", generator.question, generator.context)
	}
}

func TestAnswerVerifierIsNotCalledAtExactThreshold(t *testing.T) {
	verifier := &verifierFake{}
	uc := NewAnswerUseCase(nil, &selectorFake{result: selectionWithScores(0, "q", 0.25)},
		nil, &generatorFake{answer: "a"}, verifier, AnswerOptions{VerificationThreshold: 0.25})

	if _, err := uc.Answer(context.Background(), "q"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if verifier.calls != 0 {
		t.Fatalf("expected no verifier call at best_score == threshold, got %d", verifier.calls)
	}
}

func TestAnswerVetoReturnsFallback(t *testing.T) {
	verifier := &verifierFake{verdict: domain.VerificationVerdict{
		IsValid:        false,
		Recommendation: domain.RecommendationReject,
		Reasoning:      "off topic",
	}}
	uc := NewAnswerUseCase(&expanderFake{}, &selectorFake{result: selectionWithScores(2, "q v2", 0.1)},
		NewContextBuilder(0), &generatorFake{answer: "made-up answer"}, verifier, defaultAnswerOptions())

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if verifier.calls != 1 {
		t.Fatalf("expected one verifier call, got %d", verifier.calls)
	}
	if result.Answer != domain.FallbackAnswer || !result.Fallback {
		t.Fatalf("expected fallback answer, got %+v", result)
	}
	if result.Context != "" || len(result.Sources) != 0 || len(result.Scores) != 0 {
		t.Fatalf("expected context and sources to be discarded, got %+v", result)
	}
	if result.Outcome != domain.OutcomeVetoed || result.Verification == nil {
		t.Fatalf("expected vetoed outcome with verdict, got %+v", result)
	}
}

func TestAnswerValidVerdictKeepsAnswerUnmodified(t *testing.T) {
	verifier := &verifierFake{verdict: domain.VerificationVerdict{
		IsValid:         true,
		ConfidenceScore: 0.45,
		Recommendation:  domain.RecommendationClarify,
	}}
	uc := NewAnswerUseCase(nil, &selectorFake{result: selectionWithScores(0, "q", 0.2)},
		nil, &generatorFake{answer: "answer text"}, verifier, AnswerOptions{VerificationThreshold: 0.25})

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Answer != "answer text" || result.Fallback || result.Outcome != domain.OutcomeVerified {
		t.Fatalf("expected verified answer, got %+v", result)
	}
	if result.Verification == nil || result.Verification.Recommendation != domain.RecommendationClarify {
		t.Fatalf("expected verdict attached, got %+v", result.Verification)
	}
}

func TestAnswerStrictPolicyVetoesClarify(t *testing.T) {
	verifier := &verifierFake{verdict: domain.VerificationVerdict{IsValid: true, Recommendation: domain.RecommendationClarify}}
	opts := AnswerOptions{VerificationThreshold: 0.25, VerifierPolicy: VerifierPolicyStrict}
	uc := NewAnswerUseCase(nil, &selectorFake{result: selectionWithScores(0, "q", 0.2)},
		nil, &generatorFake{answer: "answer"}, verifier, opts)

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !result.Fallback || result.Outcome != domain.OutcomeVetoed {
		t.Fatalf("expected strict policy veto, got %+v", result)
	}
}

func TestAnswerNoSelectionReturnsFallbackWithoutGenerating(t *testing.T) {
	generator := &generatorFake{answer: "unused"}
	verifier := &verifierFake{}
	uc := NewAnswerUseCase(&expanderFake{}, &selectorFake{}, nil, generator, verifier, defaultAnswerOptions())

	result, err := uc.Answer(context.Background(), "unknown topic")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if result.Answer != domain.FallbackAnswer || result.Outcome != domain.OutcomeNoContext {
		t.Fatalf("expected no_context fallback, got %+v", result)
	}
	if result.Sources == nil || result.Scores == nil || len(result.Sources) != 0 || len(result.Scores) != 0 {
		t.Fatalf("expected empty non-nil sources and scores, got %+v", result)
	}
	if generator.calls != 0 || verifier.calls != 0 {
		t.Fatalf("expected no collaborator calls, got generator=%d verifier=%d", generator.calls, verifier.calls)
	}
}

func TestAnswerPassesExpansionToSelector(t *testing.T) {
	expander := &expanderFake{}
	selector := &selectorFake{}
	uc := NewAnswerUseCase(expander, selector, nil, &generatorFake{}, &verifierFake{}, defaultAnswerOptions())

	if _, err := uc.Answer(context.Background(), "q"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(selector.variants) != 4 || selector.variants[0] != "q" {
		t.Fatalf("expected original plus 3 variants, got %v", selector.variants)
	}
}

func TestAnswerExpansionDisabledUsesOriginalOnly(t *testing.T) {
	expander := &expanderFake{}
	selector := &selectorFake{}
	opts := defaultAnswerOptions()
	opts.ExpansionEnabled = false
	uc := NewAnswerUseCase(expander, selector, nil, &generatorFake{}, &verifierFake{}, opts)

	if _, err := uc.Answer(context.Background(), "q"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if expander.calls != 0 || len(selector.variants) != 1 {
		t.Fatalf("expected no expansion, got calls=%d variants=%v", expander.calls, selector.variants)
	}
}

func TestAnswerRejectsWrongExpansionArity(t *testing.T) {
	expander := &expanderFake{variants: []string{"q", "only one"}}
	uc := NewAnswerUseCase(expander, &selectorFake{}, nil, &generatorFake{}, &verifierFake{}, defaultAnswerOptions())

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrCollaborator) || !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected arity violation as retrieval-layer collaborator error, got %v", err)
	}
}

func TestAnswerRejectsReplacedOriginal(t *testing.T) {
	expander := &expanderFake{variants: []string{"rewritten", "a", "b", "c"}}
	uc := NewAnswerUseCase(expander, &selectorFake{}, nil, &generatorFake{}, &verifierFake{}, defaultAnswerOptions())

	if _, err := uc.Answer(context.Background(), "q"); err == nil {
		t.Fatalf("expected error when the original query is not first")
	}
}

func TestAnswerExpansionFailureAbortsByDefault(t *testing.T) {
	selector := &selectorFake{}
	uc := NewAnswerUseCase(&expanderFake{err: errors.New("llm down")}, selector, nil,
		&generatorFake{}, &verifierFake{}, defaultAnswerOptions())

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
	if selector.variants != nil {
		t.Fatalf("selector must not run after expansion failure")
	}
}

func TestAnswerExpansionFailureOriginalOnlyPolicy(t *testing.T) {
	selector := &selectorFake{}
	opts := defaultAnswerOptions()
	opts.ExpansionFailure = ExpansionFailureOriginalOnly
	uc := NewAnswerUseCase(&expanderFake{err: errors.New("llm down")}, selector, nil,
		&generatorFake{}, &verifierFake{}, opts)

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(selector.variants) != 1 || selector.variants[0] != "q" || !result.Fallback {
		t.Fatalf("expected degraded original-only run, got variants=%v result=%+v", selector.variants, result)
	}
}

func TestAnswerGeneratorFailureIsCollaboratorError(t *testing.T) {
	uc := NewAnswerUseCase(nil, &selectorFake{result: selectionWithScores(0, "q", 0.9)}, nil,
		&generatorFake{err: errors.New("bad request")}, &verifierFake{}, AnswerOptions{})

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrCollaborator) {
		t.Fatalf("expected ErrCollaborator, got %v", err)
	}
}

func TestAnswerVerifierTemporaryFailureKeepsKind(t *testing.T) {
	verifier := &verifierFake{err: domain.WrapError(domain.ErrTemporary, "chat", errors.New("503"))}
	uc := NewAnswerUseCase(nil, &selectorFake{result: selectionWithScores(0, "q", 0.1)}, nil,
		&generatorFake{answer: "a"}, verifier, AnswerOptions{VerificationThreshold: 0.25})

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestAnswerRejectsEmptyQuestion(t *testing.T) {
	uc := NewAnswerUseCase(nil, &selectorFake{}, nil, &generatorFake{}, &verifierFake{}, AnswerOptions{})
	_, err := uc.Answer(context.Background(), "   ")
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAnswerTrimsSourcesToContextCap(t *testing.T) {
	selection := &domain.SelectionResult{
		Query: "q",
		Candidates: []domain.RankedCandidate{
			rankedCandidate("a.txt", 0, strings.Repeat("a", 40), 0.9),
			rankedCandidate("b.txt", 1, strings.Repeat("b", 40), 0.8),
		},
		BestScore: 0.9,
	}
	uc := NewAnswerUseCase(nil, &selectorFake{result: selection}, NewContextBuilder(50),
		&generatorFake{answer: "a"}, &verifierFake{}, AnswerOptions{})

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if len(result.Sources) != 1 || result.Sources[0].File != "a.txt" {
		t.Fatalf("expected sources trimmed to rendered blocks, got %+v", result.Sources)
	}
}

func TestAnswerRecordsAuditEntry(t *testing.T) {
	answerLog := &answerLogFake{err: errors.New("db down")}
	uc := NewAnswerUseCase(nil, &selectorFake{result: selectionWithScores(0, "q", 0.9)}, nil,
		&generatorFake{answer: "a"}, &verifierFake{}, AnswerOptions{}).WithAnswerLog(answerLog)

	ctx := domain.WithRequestID(context.Background(), "req-1")
	if _, err := uc.Answer(ctx, "q"); err != nil {
		t.Fatalf("audit failure must not fail the request: %v", err)
	}
	if len(answerLog.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(answerLog.entries))
	}
	entry := answerLog.entries[0]
	if entry.RequestID != "req-1" || entry.Outcome != domain.OutcomeAccepted || entry.SourceCount != 1 {
		t.Fatalf("unexpected audit entry: %+v", entry)
	}
}

func TestAnswerNonPositiveBestScoreFallsBackWithScore(t *testing.T) {
	generator := &generatorFake{answer: "unused"}
	selector := &selectorFake{result: selectionWithScores(2, "q v2", -0.3, -0.7)}
	uc := NewAnswerUseCase(&expanderFake{}, selector, nil, generator, &verifierFake{}, defaultAnswerOptions())

	result, err := uc.Answer(context.Background(), "q")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if !result.Fallback || result.Outcome != domain.OutcomeNoContext || result.Answer != domain.FallbackAnswer {
		t.Fatalf("expected no_context fallback, got %+v", result)
	}
	if result.BestScore != -0.3 || result.VariantIndex != 2 || result.QueryUsed != "q v2" {
		t.Fatalf("expected selection score and variant carried through, got %+v", result)
	}
	if len(result.Sources) != 0 || generator.calls != 0 {
		t.Fatalf("fallback must not cite sources or generate, got %+v (calls=%d)", result, generator.calls)
	}
}

func TestAnswerRequestTimeoutBoundsSelection(t *testing.T) {
	opts := defaultAnswerOptions()
	opts.RequestTimeout = 30 * time.Millisecond
	uc := NewAnswerUseCase(&expanderFake{}, blockingSelector{}, nil, &generatorFake{}, &verifierFake{}, opts)

	start := time.Now()
	_, err := uc.Answer(context.Background(), "q")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Answer() took %s, expected the request timeout to stop it", elapsed)
	}
	if !domain.IsKind(err, domain.ErrTemporary) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ErrTemporary wrapping the deadline, got %v", err)
	}
}

func TestAnswerRequestTimeoutBoundsGeneration(t *testing.T) {
	opts := defaultAnswerOptions()
	opts.RequestTimeout = 30 * time.Millisecond
	selector := &selectorFake{result: selectionWithScores(0, "q", 0.9)}
	uc := NewAnswerUseCase(&expanderFake{}, selector, nil, blockingGenerator{}, &verifierFake{}, opts)

	_, err := uc.Answer(context.Background(), "q")
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestAnswerCallerCancellationIsNotTemporary(t *testing.T) {
	opts := defaultAnswerOptions()
	opts.RequestTimeout = time.Minute
	uc := NewAnswerUseCase(&expanderFake{}, blockingSelector{}, nil, &generatorFake{}, &verifierFake{}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := uc.Answer(ctx, "q")
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected a non-temporary cancellation error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
