package usecase

import (
	"context"
	"errors"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

// Retriever runs a nearest-neighbour lookup for one query string.
type Retriever struct {
	embedder ports.Embedder
	vectorDB ports.VectorStore
}

func NewRetriever(embedder ports.Embedder, vectorDB ports.VectorStore) *Retriever {
	return &Retriever{
		embedder: embedder,
		vectorDB: vectorDB,
	}
}

// Retrieve returns at most k candidates in descending similarity order.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.RetrievedCandidate, error) {
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("k must be positive"))
	}

	vector, err := r.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, wrapRetrievalError("embed query", err)
	}

	found, err := r.vectorDB.Query(ctx, vector, k)
	if err != nil {
		return nil, wrapRetrievalError("query vector store", err)
	}
	if len(found) > k {
		found = found[:k]
	}

	out := make([]domain.RetrievedCandidate, len(found))
	for i, candidate := range found {
		candidate.Rank = i
		out[i] = candidate
	}
	return out, nil
}

// wrapRetrievalError keeps temporary failures distinguishable at the boundary.
func wrapRetrievalError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrTemporary) || domain.IsKind(err, domain.ErrRetrieval) {
		return err
	}
	return domain.WrapError(domain.ErrRetrieval, operation, err)
}
