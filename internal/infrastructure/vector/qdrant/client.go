package qdrant

import (
	"context"
	"fmt"
	"sync"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
)

const (
	payloadFile       = "file"
	payloadChunk      = "chunk"
	payloadDocumentID = "document_id"
	payloadText       = "text"
)

type Config struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// pointsAPI is the part of *qdrant.Client the store uses.
type pointsAPI interface {
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	CollectionExists(ctx context.Context, collectionName string) (bool, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	GetCollectionInfo(ctx context.Context, collectionName string) (*qdrant.CollectionInfo, error)
	Close() error
}

type Store struct {
	api        pointsAPI
	collection string
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredVectorSize int
}

func New(cfg Config, executor *resilience.Executor) (*Store, error) {
	port := cfg.Port
	if port <= 0 {
		port = 6334
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return newStore(client, cfg.Collection, executor), nil
}

func newStore(api pointsAPI, collection string, executor *resilience.Executor) *Store {
	return &Store{api: api, collection: collection, executor: executor}
}

func (s *Store) Close() error {
	return s.api.Close()
}

// Query returns the nearest chunks in descending similarity order.
func (s *Store) Query(ctx context.Context, vector []float32, limit int) ([]domain.RetrievedCandidate, error) {
	if limit <= 0 {
		return []domain.RetrievedCandidate{}, nil
	}
	points, err := resilience.Do(ctx, s.executor, "qdrant.query", func(callCtx context.Context) ([]*qdrant.ScoredPoint, error) {
		return s.api.Query(callCtx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(vector...),
			Limit:          qdrant.PtrOf(uint64(limit)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
	}, classifyQdrantError)
	if err != nil {
		return nil, resilience.WrapTemporary("qdrant query", fmt.Errorf("qdrant query %s: %w", s.collection, err), classifyQdrantError)
	}

	out := make([]domain.RetrievedCandidate, 0, len(points))
	for i, point := range points {
		out = append(out, candidateFromPoint(point, i))
	}
	return out, nil
}

func (s *Store) Upsert(ctx context.Context, chunks []domain.IndexedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := s.EnsureCollection(ctx, len(chunks[0].Vector)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, chunk := range chunks {
		if len(chunk.Vector) != len(chunks[0].Vector) {
			return fmt.Errorf("chunk %s has %d dimensions, expected %d", chunk.ID, len(chunk.Vector), len(chunks[0].Vector))
		}
		points = append(points, pointFromChunk(chunk))
	}

	err := s.executor.Execute(ctx, "qdrant.upsert", func(callCtx context.Context) error {
		_, err := s.api.Upsert(callCtx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		})
		return err
	}, classifyQdrantError)
	if err != nil {
		return resilience.WrapTemporary("qdrant upsert", fmt.Errorf("qdrant upsert %s: %w", s.collection, err), classifyQdrantError)
	}
	return nil
}

// EnsureCollection creates the cosine collection if missing and checks the vector size of an existing one.
func (s *Store) EnsureCollection(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		return domain.WrapError(domain.ErrConfiguration, "ensure collection", fmt.Errorf("invalid vector size %d", dimensions))
	}

	s.ensureMu.Lock()
	defer s.ensureMu.Unlock()
	if s.ensuredVectorSize == dimensions {
		return nil
	}

	exists, err := s.api.CollectionExists(ctx, s.collection)
	if err != nil {
		return resilience.WrapTemporary("qdrant collection exists", fmt.Errorf("check collection %s: %w", s.collection, err), classifyQdrantError)
	}

	if !exists {
		err := s.api.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: s.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return resilience.WrapTemporary("qdrant create collection", fmt.Errorf("create collection %s: %w", s.collection, err), classifyQdrantError)
		}
		s.ensuredVectorSize = dimensions
		return nil
	}

	info, err := s.api.GetCollectionInfo(ctx, s.collection)
	if err != nil {
		return resilience.WrapTemporary("qdrant collection info", fmt.Errorf("get collection %s: %w", s.collection, err), classifyQdrantError)
	}
	if size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize(); size != 0 && size != uint64(dimensions) {
		return domain.WrapError(domain.ErrConfiguration, "ensure collection",
			fmt.Errorf("collection %s has vector size %d, embedder produces %d", s.collection, size, dimensions))
	}
	s.ensuredVectorSize = dimensions
	return nil
}

func pointFromChunk(chunk domain.IndexedChunk) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(chunk.ID),
		Vectors: qdrant.NewVectors(chunk.Vector...),
		Payload: map[string]*qdrant.Value{
			payloadFile:       qdrant.NewValueString(chunk.Source),
			payloadChunk:      qdrant.NewValueInt(int64(chunk.ChunkIndex)),
			payloadDocumentID: qdrant.NewValueString(chunk.DocumentID),
			payloadText:       qdrant.NewValueString(chunk.Text),
		},
	}
}

// candidateFromPoint tolerates points written by other indexers: missing provenance stays empty.
func candidateFromPoint(point *qdrant.ScoredPoint, rank int) domain.RetrievedCandidate {
	payload := point.GetPayload()
	return domain.RetrievedCandidate{
		DocumentID:     payload[payloadDocumentID].GetStringValue(),
		Source:         payload[payloadFile].GetStringValue(),
		ChunkIndex:     chunkIndex(payload[payloadChunk]),
		Text:           payload[payloadText].GetStringValue(),
		Rank:           rank,
		RetrievalScore: float64(point.GetScore()),
	}
}

func chunkIndex(v *qdrant.Value) int {
	switch kind := v.GetKind().(type) {
	case *qdrant.Value_IntegerValue:
		return int(kind.IntegerValue)
	case *qdrant.Value_DoubleValue:
		return int(kind.DoubleValue)
	default:
		return domain.NoChunkIndex
	}
}

func classifyQdrantError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyCommon(err); ok {
		return class
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted, codes.Aborted:
		return resilience.Transient
	case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.FailedPrecondition:
		return resilience.Ignored
	}
	return resilience.Permanent
}
