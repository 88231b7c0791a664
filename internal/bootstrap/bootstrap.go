package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/lessons-learned/internal/config"
	"github.com/kirillkom/lessons-learned/internal/core/domain"
	"github.com/kirillkom/lessons-learned/internal/core/ports"
	"github.com/kirillkom/lessons-learned/internal/core/sources"
	"github.com/kirillkom/lessons-learned/internal/core/usecase"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/chunking"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/extractor"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/lexical"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/llm/embedcache"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/llm/ollama"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/llm/openai"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/queue/nats"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/resilience"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/vector/qdrant"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/websearch/html"
	"github.com/kirillkom/lessons-learned/internal/observability/metrics"
)

// Summary modes.
const (
	SummaryTemplate = "template"
	SummaryOllama   = "ollama"
	SummaryOpenAI   = "openai"
)

// Web providers.
const (
	WebProviderNone   = "none"
	WebProviderOpenAI = "openai"
	WebProviderHTML   = "html"
)

type Options struct {
	// Registerer receives the search lifecycle metrics. Nil disables them.
	Registerer prometheus.Registerer
	// DispatchMode overrides cfg.DispatchMode when set.
	DispatchMode string
	// Worker marks the process that consumes queued searches and documents.
	Worker bool
}

type App struct {
	Config config.Config

	Searches  *usecase.SolutionSearchUseCase
	Ingest    *usecase.IngestKnowledgeUseCase
	Process   *usecase.ProcessKnowledgeUseCase
	Knowledge *sources.KnowledgeSource

	// Queue is set in nats dispatch mode, Tasks in inprocess mode.
	Queue *nats.Queue
	Tasks *usecase.TaskSet

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	app := &App{Config: cfg}
	if err := app.init(ctx, opts); err != nil {
		app.Close()
		return nil, err
	}
	return app, nil
}

func (a *App) init(ctx context.Context, opts Options) error {
	cfg := a.Config

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	a.onClose(func() { _ = db.Close() })
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return fmt.Errorf("init object storage: %w", err)
	}

	mode := cfg.DispatchMode
	if opts.DispatchMode != "" {
		mode = opts.DispatchMode
	}

	// The on-disk text index admits one process. In nats mode only the worker opens it.
	var textIndex ports.KnowledgeTextIndex
	if mode == config.DispatchInProcess || opts.Worker {
		index, err := lexical.Open(cfg.TextIndexPath)
		if err != nil {
			return fmt.Errorf("open text index: %w", err)
		}
		a.onClose(func() { _ = index.Close() })
		textIndex = index
	}

	executor := resilience.NewExecutor(ResilienceConfig(cfg))
	ollamaClient := ollama.NewWithResilience(cfg.OllamaURL, cfg.OllamaGenModel, cfg.OllamaEmbedModel, executor)

	var (
		embedder ports.Embedder
		vectors  ports.KnowledgeVectorStore
	)
	if cfg.EmbeddingsEnabled {
		embedder = embedcache.New(ollama.NewEmbedder(ollamaClient), cfg.OllamaEmbedModel, cfg.EmbeddingCacheSize)
		vectors = qdrant.NewWithResilience(cfg.QdrantURL, cfg.QdrantCollection, executor)
	}

	webProvider, err := newWebProvider(cfg, executor)
	if err != nil {
		return err
	}
	summaries, err := newSummaryWriter(cfg, ollamaClient, executor)
	if err != nil {
		return err
	}

	var observer ports.SearchObserver
	if opts.Registerer != nil {
		observer = metrics.NewSearchMetrics(opts.Registerer)
		if err := opts.Registerer.Register(metrics.NewBreakerCollector(executor)); err != nil {
			return fmt.Errorf("register breaker metrics: %w", err)
		}
	}

	lessons := postgres.NewLessonRepository(db)
	a.Knowledge = sources.NewKnowledgeSource(embedder, vectors, textIndex)
	adapters := []ports.SourceAdapter{
		sources.NewDatabaseSource(lessons, embedder),
		a.Knowledge,
		sources.NewWebSource(webProvider, cfg.WebRateInterval),
	}

	a.Searches = usecase.NewSolutionSearchUseCase(
		postgres.NewSearchRepository(db),
		nil,
		adapters,
		summaries,
		observer,
		domain.SearchLimits{
			SourceTimeout:  cfg.SearchSourceTimeout,
			WebTimeout:     cfg.SearchWebTimeout,
			SummaryTimeout: cfg.SearchSummaryTimeout,
		},
	)

	documents := postgres.NewKnowledgeDocumentRepository(db)
	loader := extractor.NewLoader(storage, chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap))
	a.Process = usecase.NewProcessKnowledgeUseCase(documents, loader, embedder, vectors, textIndex)
	a.Ingest = usecase.NewIngestKnowledgeUseCase(documents, storage, nil, vectors != nil)

	if err := a.wireDispatch(mode, executor); err != nil {
		return err
	}

	slog.Info("bootstrap_ready",
		"dispatch_mode", mode,
		"embeddings", cfg.EmbeddingsEnabled,
		"web_provider", cfg.WebProvider,
		"summary_mode", cfg.SummaryMode,
	)
	return nil
}

func (a *App) wireDispatch(mode string, executor *resilience.Executor) error {
	switch mode {
	case config.DispatchInProcess:
		tasks := usecase.NewTaskSet(a.Searches, a.Process, a.Config.SearchTaskTimeout)
		a.Tasks = tasks
		a.Searches.SetDispatcher(tasks)
		a.Ingest.SetDispatcher(tasks)
		return nil
	case config.DispatchNATS:
		queue, err := nats.NewWithOptions(a.Config.NATSURL, nats.Options{
			SearchSubject:      a.Config.NATSSearchSubject,
			KnowledgeSubject:   a.Config.NATSKnowledgeSubject,
			ResilienceExecutor: executor,
		})
		if err != nil {
			return fmt.Errorf("init message queue: %w", err)
		}
		a.onClose(queue.Close)
		a.Queue = queue
		a.Searches.SetDispatcher(queue)
		a.Ingest.SetDispatcher(queue)
		return nil
	default:
		return fmt.Errorf("unknown dispatch mode %q", mode)
	}
}

func newWebProvider(cfg config.Config, executor *resilience.Executor) (ports.WebSearchProvider, error) {
	switch cfg.WebProvider {
	case WebProviderNone, "":
		return nil, nil
	case WebProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("web provider %q requires OPENAI_API_KEY", cfg.WebProvider)
		}
		return openai.NewWebProvider(newOpenAIClient(cfg, executor)), nil
	case WebProviderHTML:
		return html.New(cfg.HTMLSearchEndpoint, executor), nil
	default:
		return nil, fmt.Errorf("unknown web provider %q", cfg.WebProvider)
	}
}

func newSummaryWriter(cfg config.Config, ollamaClient *ollama.Client, executor *resilience.Executor) (ports.SummaryWriter, error) {
	switch cfg.SummaryMode {
	case SummaryTemplate, "":
		return nil, nil
	case SummaryOllama:
		return ollama.NewSummaryWriter(ollamaClient), nil
	case SummaryOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("summary mode %q requires OPENAI_API_KEY", cfg.SummaryMode)
		}
		return openai.NewSummaryWriter(newOpenAIClient(cfg, executor)), nil
	default:
		return nil, fmt.Errorf("unknown summary mode %q", cfg.SummaryMode)
	}
}

func newOpenAIClient(cfg config.Config, executor *resilience.Executor) *openai.Client {
	return openai.New(openai.Config{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	}, executor)
}

// ResilienceConfig maps the RESILIENCE_* settings onto the executor policy.
func ResilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         cfg.RetryMultiplier,
		AttemptTimeout:          cfg.AttemptTimeout,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

func (a *App) onClose(fn func()) {
	a.closeFns = append(a.closeFns, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
