package ports

import (
	"context"
	"io"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

// QuestionAnswerer is the boundary operation answer_question.
type QuestionAnswerer interface {
	Answer(ctx context.Context, question string) (*domain.AnswerResult, error)
}

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
