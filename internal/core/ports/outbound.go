package ports

import (
	"context"
	"io"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

// ChatCompleter is the single chat-completion capability shared by every agent.
type ChatCompleter interface {
	Complete(ctx context.Context, req domain.ChatRequest) (string, error)
}

// QueryExpander returns the original query followed by its expansion variants.
type QueryExpander interface {
	Expand(ctx context.Context, original string) ([]string, error)
}

// AnswerGenerator answers a question from the supplied context only.
type AnswerGenerator interface {
	Generate(ctx context.Context, question, context string) (string, error)
}

// Verifier judges whether a generated answer legitimately addresses the question.
type Verifier interface {
	Verify(ctx context.Context, question, answer string) (domain.VerificationVerdict, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// RelevanceScorer scores (query, passage) pairs. The result is aligned with passages.
type RelevanceScorer interface {
	Score(ctx context.Context, query string, passages []string) ([]float64, error)
}

// VectorStore performs nearest-neighbour lookup against one collection.
type VectorStore interface {
	Query(ctx context.Context, vector []float32, limit int) ([]domain.RetrievedCandidate, error)
	Upsert(ctx context.Context, chunks []domain.IndexedChunk) error
	EnsureCollection(ctx context.Context, dimensions int) error
}

// AnswerLog persists answered questions for audit.
type AnswerLog interface {
	Record(ctx context.Context, entry domain.AnswerLogEntry) error
}

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveChunkCount(ctx context.Context, id string, chunkCount int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.Document) (string, error)
}

// Chunker splits text into passages.
type Chunker interface {
	Split(text string) []string
}
