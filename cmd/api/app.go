package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"golang.org/x/time/rate"

	"github.com/ledgerlens/ledgerlens/internal/api/handlers"
	"github.com/ledgerlens/ledgerlens/internal/api/middleware"
	"github.com/ledgerlens/ledgerlens/internal/config"
	"github.com/ledgerlens/ledgerlens/internal/jobs"
	"github.com/ledgerlens/ledgerlens/internal/observability"
	"github.com/ledgerlens/ledgerlens/internal/openai"
	"github.com/ledgerlens/ledgerlens/internal/repository"
	"github.com/ledgerlens/ledgerlens/internal/service"
)

// appMetrics groups the optional metric recorders. All fields are nil when
// metrics are disabled.
type appMetrics struct {
	cache      observability.CacheMetrics
	embeddings observability.EmbeddingMetrics
	analysis   observability.AnalysisMetrics
}

// App holds all server dependencies and coordinates startup and shutdown.
type App struct {
	cfg           *config.Config
	db            *pgxpool.Pool
	server        *http.Server
	river         *river.Client[pgx.Tx]
	meterProvider *sdkmetric.MeterProvider
}

// setupMetrics creates the meter provider and recorders when metrics are
// enabled. When NewMeterProvider returns nil (disabled exporter), all results
// are nil.
func setupMetrics(cfg *config.Config) (*sdkmetric.MeterProvider, *appMetrics, error) {
	mp, err := observability.NewMeterProvider(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create meter provider: %w", err)
	}

	if mp == nil {
		return nil, nil, nil
	}

	meter := mp.Meter("ledgerlens")

	metrics := &appMetrics{}

	metrics.cache, err = observability.NewCacheMetrics(meter)
	if err == nil {
		metrics.embeddings, err = observability.NewEmbeddingMetrics(meter)
	}

	if err == nil {
		metrics.analysis, err = observability.NewAnalysisMetrics(meter)
	}

	if err != nil {
		if err2 := observability.ShutdownMeterProvider(context.Background(), mp); err2 != nil {
			slog.Error("shutdown meter provider after metrics error", "error", err2)
		}

		return nil, nil, fmt.Errorf("create metrics: %w", err)
	}

	return mp, metrics, nil
}

// NewApp builds and wires all components. It does not start the HTTP server or
// River; call Run to start and block until shutdown or failure.
func NewApp(cfg *config.Config, db *pgxpool.Pool) (*App, error) {
	var (
		err           error
		meterProvider *sdkmetric.MeterProvider
		metrics       *appMetrics
	)

	if cfg.OtelMetricsExporter == "" {
		slog.Warn("metrics not enabled (OTEL_METRICS_EXPORTER empty or unset)")
	} else {
		meterProvider, metrics, err = setupMetrics(cfg)
		if err != nil {
			return nil, err
		}
	}

	if metrics == nil {
		metrics = &appMetrics{}
	}

	// Install TraceContextHandler unconditionally so request_id appears in logs.
	defaultHandler := slog.Default().Handler()
	slog.SetDefault(slog.New(observability.NewTraceContextHandler(defaultHandler)))

	if meterProvider != nil {
		otel.SetMeterProvider(meterProvider)
	}

	embeddingClient := openai.NewClient(cfg.OpenAIAPIKey,
		openai.WithModel(cfg.EmbeddingModel),
		openai.WithDimensions(cfg.EmbeddingDimensions),
	)

	transactionsRepo := repository.NewTransactionsRepository(db)

	rateLimiter := rate.NewLimiter(rate.Limit(cfg.EmbeddingRateLimit), 1)

	embeddingWorker := jobs.NewTransactionEmbeddingWorker(jobs.EmbeddingWorkerDeps{
		EmbeddingClient: embeddingClient,
		Store:           transactionsRepo,
		RateLimiter:     rateLimiter,
		Metrics:         metrics.embeddings,
	})

	riverWorkers := river.NewWorkers()
	river.AddWorker(riverWorkers, embeddingWorker)

	riverClient, err := river.NewClient(riverpgxv5.New(db), &river.Config{
		Queues: map[string]river.QueueConfig{
			// The queue bound is the in-flight embedding job limit.
			jobs.QueueTransactionEmbedding: {MaxWorkers: cfg.EmbeddingMaxInFlight},
		},
		Workers:      riverWorkers,
		ErrorHandler: &jobs.ErrorHandler{},
		MaxAttempts:  cfg.EmbeddingMaxAttempts,
	})
	if err != nil {
		if meterProvider != nil {
			if err2 := observability.ShutdownMeterProvider(context.Background(), meterProvider); err2 != nil {
				slog.Error("shutdown meter provider after River client error", "error", err2)
			}
		}

		return nil, fmt.Errorf("create River client: %w", err)
	}

	queryCache, err := lru.New[string, []float32](cfg.QueryCacheSize)
	if err != nil {
		return nil, fmt.Errorf("create query embedding cache: %w", err)
	}

	retrievalService := service.NewRetrievalService(service.RetrievalServiceParams{
		EmbeddingClient: embeddingClient,
		Repo:            transactionsRepo,
		Model:           cfg.EmbeddingModel,
		DefaultTopN:     cfg.RetrievalTopN,
		QueryCache:      queryCache,
		CacheMetrics:    metrics.cache,
		Logger:          slog.Default(),
	})

	labelingService := service.NewLabelingService(
		embeddingClient, transactionsRepo, cfg.EmbeddingModel,
		service.LabelingThresholds{
			TopK:         cfg.LabelTopK,
			PrimaryMin:   cfg.LabelPrimaryMin,
			CandidateMin: cfg.LabelCandidateMin,
			FallbackMin:  cfg.LabelFallbackMin,
		},
		slog.Default(),
	)

	driftService := service.NewDriftService(transactionsRepo, nil, slog.Default())
	anomalyService := service.NewAnomalyService(transactionsRepo, cfg.AnomalyMultiplier, nil, slog.Default())

	searchHandler := handlers.NewSearchHandler(retrievalService, metrics.analysis)
	transactionsHandler := handlers.NewTransactionsHandler(labelingService, transactionsRepo, metrics.analysis)
	analysisHandler := handlers.NewAnalysisHandler(driftService, anomalyService, metrics.analysis)
	healthHandler := handlers.NewHealthHandler()

	server := newHTTPServer(cfg, healthHandler, transactionsHandler, searchHandler, analysisHandler)

	return &App{
		cfg:           cfg,
		db:            db,
		server:        server,
		river:         riverClient,
		meterProvider: meterProvider,
	}, nil
}

// newHTTPServer builds the HTTP server and muxes (no auth on /health, API key on /v1/).
func newHTTPServer(
	cfg *config.Config,
	health *handlers.HealthHandler,
	transactions *handlers.TransactionsHandler,
	search *handlers.SearchHandler,
	analysis *handlers.AnalysisHandler,
) *http.Server {
	public := http.NewServeMux()
	public.HandleFunc("GET /health", health.Check)

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/transactions", transactions.Create)
	protected.HandleFunc("GET /v1/transactions/{id}", transactions.Get)
	protected.HandleFunc("GET /v1/transactions/{id}/similar", search.SimilarTransactions)
	protected.HandleFunc("POST /v1/transactions/search/semantic", search.SemanticSearch)
	protected.HandleFunc("POST /v1/analysis/new-counterparties", analysis.NewCounterparties)
	protected.HandleFunc("POST /v1/analysis/amount-anomalies", analysis.AmountAnomalies)

	protectedWithAuth := middleware.Auth(cfg.APIKey)(protected)
	mux := http.NewServeMux()
	mux.Handle("/v1/", protectedWithAuth)
	mux.Handle("/", public)

	handler := middleware.MaxBody(cfg.MaxRequestBodyBytes)(mux)
	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)

	const (
		readTimeout  = 15 * time.Second
		writeTimeout = 15 * time.Second
		idleTimeout  = 60 * time.Second
	)

	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
}

// Run starts the HTTP server and River, then blocks until ctx is cancelled
// (e.g. signal) or a component fails. Caller should then call Shutdown.
func (a *App) Run(ctx context.Context) error {
	runErr := make(chan error, 1)

	riverCtx, cancelRiver := context.WithCancel(ctx)
	defer cancelRiver()

	go func() {
		if err := a.river.Start(riverCtx); err != nil && !errors.Is(err, context.Canceled) {
			select {
			case runErr <- fmt.Errorf("river: %w", err):
			default:
			}
		}
	}()

	go func() {
		slog.Info("Starting server", "port", a.cfg.Port)

		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case runErr <- fmt.Errorf("server: %w", err):
			default:
			}
		}
	}()

	select {
	case err := <-runErr:
		cancelRiver()

		return err
	case <-ctx.Done():
		cancelRiver()

		return nil
	}
}

// Shutdown stops the server and River in order, then flushes metrics. Call after Run returns.
func (a *App) Shutdown(ctx context.Context) (err error) {
	defer func() {
		obsErr := observability.ShutdownMeterProvider(ctx, a.meterProvider)
		if err == nil {
			err = obsErr
		} else if obsErr != nil {
			slog.Error("shutdown meter provider", "error", obsErr)
		}
	}()

	if err = a.server.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		if stopErr := a.river.Stop(ctx); stopErr != nil {
			slog.Error("river stop during server shutdown", "error", stopErr)
		}

		return fmt.Errorf("server shutdown: %w", err)
	}

	if err = a.river.Stop(ctx); err != nil {
		return fmt.Errorf("river stop: %w", err)
	}

	return nil
}
