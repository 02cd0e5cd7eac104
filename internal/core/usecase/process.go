package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
)

// chunkNamespace seeds deterministic point ids, so re-indexing a document
// overwrites its previous points instead of duplicating them.
var chunkNamespace = uuid.MustParse("6f1c9a52-3c1e-4d8e-9a4b-2b7f0f3f8d11")

// ProcessDocumentUseCase turns a stored document into indexed passages.
//
// Failure policy: a document whose processing fails is marked failed with the
// error text and is never picked up again automatically (FailurePolicyTerminal).
// Transient collaborator errors are retried inside the adapters before that.
type ProcessDocumentUseCase struct {
	repo      ports.DocumentRepository
	extractor ports.TextExtractor
	chunker   ports.Chunker
	embedder  ports.Embedder
	vectorDB  ports.VectorStore
}

const FailurePolicyTerminal = "terminal"

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	extractor ports.TextExtractor,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:      repo,
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		vectorDB:  vectorDB,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return fmt.Errorf("fetch document by id: %w", err)
	}
	if doc.Status == domain.StatusReady || doc.Status == domain.StatusFailed {
		slog.InfoContext(ctx, "document_already_processed", "document_id", documentID, "status", string(doc.Status))
		return nil
	}

	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	chunkCount, err := uc.index(ctx, doc)
	if err != nil {
		if failErr := uc.repo.UpdateStatus(ctx, documentID, domain.StatusFailed, err.Error()); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		slog.WarnContext(ctx, "document_failed",
			"document_id", documentID,
			"policy", FailurePolicyTerminal,
			"error", err,
		)
		return err
	}

	if err := uc.repo.SaveChunkCount(ctx, documentID, chunkCount); err != nil {
		return fmt.Errorf("save chunk count: %w", err)
	}
	if err := uc.repo.UpdateStatus(ctx, documentID, domain.StatusReady, ""); err != nil {
		return fmt.Errorf("set status=ready: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.Document) (int, error) {
	text, err := uc.extractor.Extract(ctx, doc)
	if err != nil {
		return 0, fmt.Errorf("extract text: %w", err)
	}
	if text == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "extract text", errors.New("empty extracted text"))
	}

	chunks := uc.chunker.Split(text)
	if len(chunks) == 0 {
		return 0, domain.WrapError(domain.ErrInvalidInput, "chunk document", errors.New("chunking produced zero chunks"))
	}

	vectors, err := uc.embedder.Embed(ctx, chunks)
	if err != nil {
		return 0, fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return 0, domain.WrapError(
			domain.ErrCollaborator,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	if err := uc.vectorDB.Upsert(ctx, indexedChunks(doc, chunks, vectors)); err != nil {
		return 0, fmt.Errorf("upsert chunks in vector db: %w", err)
	}
	return len(chunks), nil
}

func indexedChunks(doc *domain.Document, chunks []string, vectors [][]float32) []domain.IndexedChunk {
	out := make([]domain.IndexedChunk, len(chunks))
	for i, text := range chunks {
		out[i] = domain.IndexedChunk{
			ID:         chunkPointID(doc.ID, i),
			DocumentID: doc.ID,
			Source:     doc.Filename,
			ChunkIndex: i,
			Text:       text,
			Vector:     vectors[i],
		}
	}
	return out
}

func chunkPointID(documentID string, chunk int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s_%d", documentID, chunk))).String()
}
