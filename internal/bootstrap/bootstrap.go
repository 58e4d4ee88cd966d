package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kirillkom/termination-portal/internal/config"
	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/core/usecase"
	"github.com/kirillkom/termination-portal/internal/infrastructure/awsconf"
	"github.com/kirillkom/termination-portal/internal/infrastructure/inspect"
	"github.com/kirillkom/termination-portal/internal/infrastructure/mail/logmail"
	"github.com/kirillkom/termination-portal/internal/infrastructure/mail/ses"
	natsbus "github.com/kirillkom/termination-portal/internal/infrastructure/queue/nats"
	"github.com/kirillkom/termination-portal/internal/infrastructure/render/pdf"
	"github.com/kirillkom/termination-portal/internal/infrastructure/render/remote"
	"github.com/kirillkom/termination-portal/internal/infrastructure/repository/memory"
	"github.com/kirillkom/termination-portal/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/termination-portal/internal/infrastructure/resilience"
	"github.com/kirillkom/termination-portal/internal/infrastructure/storage/localfs"
	s3storage "github.com/kirillkom/termination-portal/internal/infrastructure/storage/s3"
	"github.com/kirillkom/termination-portal/internal/observability/metrics"
)

// DemoClientID is seeded into the in-memory store so a local stack can
// create cases without an external client registry.
const DemoClientID = "demo-client"

type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry

	Bus       *natsbus.Bus
	Catalogue *config.Catalogue

	Cases            *usecase.CaseService
	Intake           *usecase.IntakeService
	Signatures       *usecase.SignatureService
	Generator        *usecase.GenerationService
	Portal           *usecase.PortalService
	Reminders        *usecase.ReminderSweep
	SignedRenditions *usecase.SignedRenditionHandler

	closeFns []func()
}

// New wires the lifecycle core onto the configured drivers. service names the
// process (api or worker) in logs and metric labels.
func New(ctx context.Context, cfg config.Config, service string, logger *slog.Logger, registry *prometheus.Registry) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	app := &App{Config: cfg, Logger: logger, Registry: registry}

	lifecycle := metrics.NewLifecycleMetrics(service, registry)
	executor := resilience.NewExecutor(resilienceConfig(cfg),
		resilience.WithLogger(logger),
		resilience.WithObserver(lifecycle),
	)

	catalogue, err := config.LoadCatalogue(cfg.CataloguePath)
	if err != nil {
		return nil, fmt.Errorf("load catalogue: %w", err)
	}
	app.Catalogue = catalogue

	store, err := app.openStore(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}

	storage, err := newObjectStorage(ctx, cfg, executor)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	mailer, err := newMailer(ctx, cfg, executor, logger)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init mailer: %w", err)
	}

	bus, err := natsbus.New(cfg.NATSURL, cfg.NATSSubjectPrefix, natsbus.Options{
		Name:               "termination-" + service,
		HandlerTimeout:     cfg.NATSHandlerTimeout(),
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("init event bus: %w", err)
	}
	app.Bus = bus
	app.closeFns = append(app.closeFns, bus.Close)

	machine := usecase.NewCaseMachine(bus, lifecycle, logger)
	tokens := usecase.NewTokenService(store, cfg.TokenTTL())
	app.Intake = usecase.NewIntakeService(store, storage, inspect.New(), catalogue.Documents, int64(cfg.MaxUploadBytes), lifecycle)
	app.Signatures = usecase.NewSignatureService(store, machine, lifecycle)
	app.Generator = usecase.NewGenerationService(store, storage, newRenderer(cfg, executor), catalogue.Templates, lifecycle, logger, cfg.RenderConcurrency)
	app.SignedRenditions = usecase.NewSignedRenditionHandler(app.Generator, logger)
	app.Cases = usecase.NewCaseService(store, tokens, machine, mailer, catalogue.Documents, cfg.PortalBaseURL, logger)
	app.Portal = usecase.NewPortalService(store, tokens, app.Intake, app.Signatures, machine, catalogue.Documents, cfg.CompleteOnClientSign)
	app.Reminders = usecase.NewReminderSweep(store, app.Cases, cfg.ReminderInterval(), cfg.ReminderBatchSize, logger)

	return app, nil
}

func (a *App) openStore(ctx context.Context) (ports.Store, error) {
	switch a.Config.StoreDriver {
	case "memory":
		store := memory.NewStore()
		store.SeedClient(domain.Client{
			ID:        DemoClientID,
			FullName:  "Demo Client",
			Email:     "demo.client@example.com",
			CreatedAt: time.Now().UTC(),
		})
		a.Logger.Warn("memory_store_enabled", "demo_client_id", DemoClientID)
		return store, nil
	default:
		db, err := postgres.OpenDB(a.Config.PostgresDSN, a.Config.PostgresMaxConns)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		a.closeFns = append(a.closeFns, func() { closeDB(db) })
		store := postgres.NewStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, nil
	}
}

func newObjectStorage(ctx context.Context, cfg config.Config, executor *resilience.Executor) (ports.ObjectStorage, error) {
	if cfg.StorageDriver != "s3" {
		return localfs.New(cfg.StoragePath)
	}
	awsCfg, err := awsconf.Load(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
	if err != nil {
		return nil, err
	}
	return s3storage.New(s3storage.NewClient(awsCfg, cfg.S3UsePathStyle), cfg.S3Bucket, s3storage.Options{
		Prefix:             cfg.S3Prefix,
		ServerSideEncrypt:  cfg.S3ServerSideEncrypt,
		ResilienceExecutor: executor,
	})
}

func newMailer(ctx context.Context, cfg config.Config, executor *resilience.Executor, logger *slog.Logger) (ports.Mailer, error) {
	if cfg.MailDriver != "ses" {
		return logmail.New(logger), nil
	}
	awsCfg, err := awsconf.Load(ctx, cfg.AWSRegion, cfg.AWSEndpointURL)
	if err != nil {
		return nil, err
	}
	return ses.New(ses.NewClient(awsCfg), cfg.SESFromAddress, cfg.SESConfigurationSet, executor)
}

func newRenderer(cfg config.Config, executor *resilience.Executor) ports.Renderer {
	if cfg.RenderDriver == "remote" {
		return remote.New(cfg.RenderServiceURL, remote.Options{
			APIKey:             cfg.RenderServiceToken,
			ResilienceExecutor: executor,
		})
	}
	return pdf.New(pdf.DefaultOptions())
}

func resilienceConfig(cfg config.Config) resilience.Config {
	return resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     time.Duration(cfg.RetryInitialBackoffMS) * time.Millisecond,
		RetryMaxBackoff:         time.Duration(cfg.RetryMaxBackoffMS) * time.Millisecond,
		RetryMultiplier:         cfg.RetryMultiplier,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      time.Duration(cfg.BreakerOpenTimeoutSeconds) * time.Second,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
	}
}

func closeDB(db *sql.DB) {
	_ = db.Close()
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}
