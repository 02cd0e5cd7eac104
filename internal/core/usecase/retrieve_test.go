package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

type queryEmbedderFake struct {
	query string
	err   error
}

func (f *queryEmbedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(i), 1}
	}
	return out, nil
}

func (f *queryEmbedderFake) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.query = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type queryVectorFake struct {
	limit    int
	found    []domain.RetrievedCandidate
	err      error
	upserted []domain.IndexedChunk
}

func (f *queryVectorFake) Query(_ context.Context, _ []float32, limit int) ([]domain.RetrievedCandidate, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.found, nil
}

func (f *queryVectorFake) Upsert(_ context.Context, chunks []domain.IndexedChunk) error {
	if f.err != nil {
		return f.err
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *queryVectorFake) EnsureCollection(context.Context, int) error { return nil }

func TestRetrieveAssignsRanksInStoreOrder(t *testing.T) {
	embedder := &queryEmbedderFake{}
	vector := &queryVectorFake{found: []domain.RetrievedCandidate{
		{Text: "first", Rank: 7},
		{Text: "second", Rank: 3},
	}}

	got, err := NewRetriever(embedder, vector).Retrieve(context.Background(), "how to reset", 10)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if embedder.query != "how to reset" {
		t.Fatalf("expected query to be embedded, got %q", embedder.query)
	}
	if vector.limit != 10 {
		t.Fatalf("expected limit=10, got %d", vector.limit)
	}
	if got[0].Rank != 0 || got[1].Rank != 1 || got[0].Text != "first" {
		t.Fatalf("unexpected candidates: %+v", got)
	}
}

func TestRetrieveTruncatesToK(t *testing.T) {
	vector := &queryVectorFake{found: retrieved("a", "b", "c")}
	got, err := NewRetriever(&queryEmbedderFake{}, vector).Retrieve(context.Background(), "q", 2)
	if err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(got))
	}
}

func TestRetrieveWrapsStoreErrorAsRetrieval(t *testing.T) {
	vector := &queryVectorFake{err: errors.New("connection refused")}
	_, err := NewRetriever(&queryEmbedderFake{}, vector).Retrieve(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrRetrieval) {
		t.Fatalf("expected ErrRetrieval, got %v", err)
	}
}

func TestRetrieveKeepsTemporaryEmbedError(t *testing.T) {
	embedder := &queryEmbedderFake{err: domain.WrapError(domain.ErrTemporary, "embed", errors.New("429"))}
	_, err := NewRetriever(embedder, &queryVectorFake{}).Retrieve(context.Background(), "q", 3)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
}

func TestRetrieveRejectsNonPositiveK(t *testing.T) {
	_, err := NewRetriever(&queryEmbedderFake{}, &queryVectorFake{}).Retrieve(context.Background(), "q", 0)
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
