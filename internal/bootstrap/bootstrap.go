package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/agentic-rag/internal/config"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
	"github.com/kirillkom/agentic-rag/internal/core/usecase"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/chunking"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/extractor/document"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/llm/agents"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/llm/openai"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/queue/nats"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/rerank/cohere"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/rerank/tei"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/resilience"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/agentic-rag/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/agentic-rag/internal/observability/metrics"
)

type Options struct {
	Service string
	// Ingestion connects postgres, NATS and object storage. Without it only
	// the question-answering pipeline is built and answers are not logged.
	Ingestion bool
	// Registerer receives resilience metrics. Nil disables them.
	Registerer prometheus.Registerer
}

type App struct {
	Config config.Config

	AnswerUC ports.QuestionAnswerer

	Queue     ports.MessageQueue
	Repo      ports.DocumentRepository
	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor

	closers []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	executor := resilience.NewExecutor(cfg.Resilience.Executor())
	if opts.Registerer != nil {
		executor = executor.WithHooks(metrics.NewResilienceHooks(opts.Registerer, opts.Service))
	}

	app := &App{Config: cfg}

	chat := openai.New(openai.Config{
		BaseURL:    cfg.ChatBaseURL,
		APIKey:     cfg.ChatAPIKey,
		Model:      cfg.ChatModel,
		APIType:    cfg.ChatAPIType,
		APIVersion: cfg.ChatAPIVersion,
		Timeout:    cfg.ChatTimeout,
	}, executor)
	embedder := openai.NewEmbedder(openai.EmbedderConfig{
		BaseURL:    cfg.EmbedBaseURL,
		APIKey:     cfg.EmbedAPIKey,
		Model:      cfg.EmbedModel,
		Dimensions: cfg.EmbedDimensions,
		Timeout:    cfg.ChatTimeout,
	}, executor)

	store, err := qdrant.New(qdrant.Config{
		Host:       cfg.QdrantHost,
		Port:       cfg.QdrantPort,
		APIKey:     cfg.QdrantAPIKey,
		UseTLS:     cfg.QdrantUseTLS,
		Collection: cfg.RAGCollection,
	}, executor)
	if err != nil {
		return nil, fmt.Errorf("init vector store: %w", err)
	}
	app.onClose(func() { _ = store.Close() })
	if err := store.EnsureCollection(ctx, cfg.EmbedDimensions); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	prompts, err := agents.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	answerUC := usecase.NewAnswerUseCase(
		agents.NewExpander(chat, prompts, cfg.RAGExpansionVariants, cfg.ExpanderTemperature),
		usecase.NewSelectionEngine(
			usecase.NewRetriever(embedder, store),
			usecase.NewReranker(newScorer(cfg, executor)),
			usecase.SelectionOptions{
				InitialK:       cfg.RAGInitialK,
				RerankTopK:     cfg.RAGRerankTopK,
				ScoreThreshold: cfg.RAGScoreThreshold,
				Parallel:       cfg.RAGParallelVariants,
			},
		),
		usecase.NewContextBuilder(cfg.RAGMaxContextChars),
		agents.NewGenerator(chat, prompts, cfg.GeneratorTemperature, cfg.GeneratorMaxTokens),
		agents.NewVerifier(chat, prompts, cfg.VerifierTemperature),
		usecase.AnswerOptions{
			ExpansionEnabled:      cfg.RAGUseQueryExpansion,
			ExpansionVariants:     cfg.RAGExpansionVariants,
			ExpansionFailure:      usecase.ExpansionFailurePolicy(cfg.RAGExpansionFailurePolicy),
			VerificationThreshold: cfg.RAGVerificationThreshold,
			VerifierPolicy:        usecase.VerifierPolicy(cfg.RAGVerifierPolicy),
			RequestTimeout:        cfg.RAGRequestTimeout,
		},
	)
	app.AnswerUC = answerUC

	if !opts.Ingestion {
		return app, nil
	}

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	app.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		app.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	answerUC.WithAnswerLog(postgres.NewAnswerLogRepository(db))

	if err := app.wireIngestion(cfg, db, embedder, store, executor); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) wireIngestion(
	cfg config.Config,
	db *sql.DB,
	embedder ports.Embedder,
	store ports.VectorStore,
	executor *resilience.Executor,
) error {
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{ResilienceExecutor: executor})
	if err != nil {
		return fmt.Errorf("init message queue: %w", err)
	}
	a.onClose(queue.Close)

	repo := postgres.NewDocumentRepository(db)
	a.Queue = queue
	a.Repo = repo
	a.IngestUC = usecase.NewIngestDocumentUseCase(repo, storage, queue)
	a.ProcessUC = usecase.NewProcessDocumentUseCase(
		repo,
		document.NewExtractor(storage),
		chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
		embedder,
		store,
	)
	return nil
}

func newScorer(cfg config.Config, executor *resilience.Executor) ports.RelevanceScorer {
	if cfg.RerankProvider == "cohere" {
		return cohere.New(cohere.Config{
			APIKey:  cfg.CohereAPIKey,
			Model:   cfg.CohereModel,
			Timeout: cfg.RerankTimeout,
		}, executor)
	}
	return tei.New(cfg.RerankURL, cfg.RerankTimeout, executor)
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
