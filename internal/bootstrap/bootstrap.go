package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/compliance-pipeline-client/internal/config"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/domain"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/ports"
	"github.com/kirillkom/compliance-pipeline-client/internal/core/usecase"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/backend/complianceapi"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/extractor/preflight"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/queue/nats"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/report/xlsx"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/resilience"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/storage/memory"
	"github.com/kirillkom/compliance-pipeline-client/internal/infrastructure/storage/redis"
	"github.com/kirillkom/compliance-pipeline-client/internal/observability/metrics"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Registry *prometheus.Registry
	Pipeline *metrics.PipelineMetrics

	Backend  ports.ComplianceBackend
	Sessions ports.SessionBackend
	// Events is nil when NATS_URL is empty.
	Events *nats.EventBus

	Outcomes *usecase.OutcomeService
	ExportUC *usecase.ExportOutcomesUseCase

	publisher ports.EventPublisher
	inspector ports.FileInspector
	clock     ports.Clock
	closeFns  []func()
}

func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  prometheus.NewRegistry(),
		inspector: preflight.NewInspector(cfg.MaxUploadBytes),
		clock:     usecase.SystemClock(),
	}
	app.Pipeline = metrics.NewPipelineMetrics(service, app.Registry)

	executor := resilience.NewExecutor(resilienceConfig(cfg), logger)
	app.Backend = complianceapi.New(complianceapi.Config{
		BaseURL:       cfg.BackendURL,
		DocumentsPath: cfg.DocumentsPath,
		AnalysisPath:  cfg.AnalysisPath,
		Timeout:       time.Duration(cfg.HTTPTimeoutSeconds) * time.Second,
	}, executor, app.Pipeline, logger)

	sessions, closeSessions, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	app.Sessions = sessions
	app.onClose(closeSessions)

	if cfg.NATSURL != "" {
		busCfg := resilienceConfig(cfg)
		busCfg.RateLimitRPS = 0
		bus, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			ResilienceExecutor: resilience.NewExecutor(busCfg, logger),
			Logger:             logger,
		})
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		app.Events = bus
		app.publisher = bus
		app.onClose(bus.Close)
	}

	app.Outcomes = usecase.NewOutcomeService(app.Backend, app.Pipeline, cfg.PageSize, logger)
	app.ExportUC = usecase.NewExportOutcomesUseCase(app.Outcomes, xlsx.NewExporter())
	return app, nil
}

// NewLifecycle builds a lifecycle bound to one session id. The identity
// store is not hydrated yet.
func (a *App) NewLifecycle(sessionID string) (*usecase.Lifecycle, error) {
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrConfiguration, "new lifecycle", fmt.Errorf("session id is required"))
	}
	cfg := a.Config
	identity := usecase.NewIdentityStore(sessionID, a.Sessions)
	timeout := time.Duration(cfg.PollTimeoutSeconds) * time.Second

	uploader := usecase.NewUploadDocumentUseCase(a.Backend, a.inspector, identity, a.publisher, a.clock, a.Logger)
	analysis := usecase.NewStartAnalysisUseCase(a.Backend, identity, a.publisher, usecase.AnalysisSettings{
		RegulationID:      cfg.DefaultRegulationID,
		RegulationVersion: cfg.RegulationVersion,
		AutoSelect:        cfg.RegulationAutoSelect,
	}, a.clock, a.Logger)
	poller := usecase.NewStatusPoller(a.Backend, a.clock, a.Pipeline, usecase.StatusPollerConfig{
		Interval:             time.Duration(cfg.StatusPollIntervalMS) * time.Millisecond,
		Timeout:              timeout,
		MaxConsecutiveErrors: cfg.StatusMaxConsecutiveErrors,
		PlaceholderStep:      cfg.PlaceholderStep,
		PlaceholderInterval:  time.Duration(cfg.PlaceholderIntervalMS) * time.Millisecond,
	}, a.Logger)
	readiness := usecase.NewReadinessDetector(a.Backend, a.clock, a.Pipeline, usecase.ReadinessConfig{
		Interval:    time.Duration(cfg.ReportPollIntervalMS) * time.Millisecond,
		Timeout:     timeout,
		MaxAttempts: cfg.ReportMaxAttempts,
	}, a.Logger)

	return usecase.NewLifecycle(usecase.LifecycleDeps{
		Identity:  identity,
		Uploader:  uploader,
		Analysis:  analysis,
		Poller:    poller,
		Readiness: readiness,
		Events:    a.publisher,
		Clock:     a.clock,
		Logger:    a.Logger,
	}), nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) onClose(fn func()) {
	if fn != nil {
		a.closeFns = append(a.closeFns, fn)
	}
}

func openSessionBackend(ctx context.Context, cfg config.Config) (ports.SessionBackend, func(), error) {
	ttl := time.Duration(cfg.SessionTTLSeconds) * time.Second

	switch cfg.SessionBackend {
	case "memory":
		return memory.New(), nil, nil
	case "", "file":
		store, err := localfs.New(cfg.SessionPath)
		if err != nil {
			return nil, nil, fmt.Errorf("init file session store: %w", err)
		}
		return store, nil, nil
	case "redis":
		store, err := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, ttl)
		if err != nil {
			return nil, nil, domain.WrapError(domain.ErrConfiguration, "init redis session store", err)
		}
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil
	case "postgres":
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := postgres.NewSessionRepository(db, ttl)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repo, func() { _ = db.Close() }, nil
	default:
		return nil, nil, domain.WrapError(
			domain.ErrConfiguration,
			"open session backend",
			fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend),
		)
	}
}

func resilienceConfig(cfg config.Config) resilience.Config {
	out := resilience.DefaultConfig()
	out.RetryMaxAttempts = cfg.RetryMaxAttempts
	out.RetryInitialBackoff = time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond
	out.RetryMaxBackoff = time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond
	out.BreakerEnabled = cfg.BreakerEnabled
	out.BreakerOpenTimeout = time.Duration(cfg.BreakerOpenTimeoutMS) * time.Millisecond
	out.RateLimitRPS = cfg.ClientRateLimitRPS
	out.RateLimitBurst = cfg.ClientRateLimitBurst
	return out
}
