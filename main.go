package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ekaya-inc/ekaya-renewals/pkg/audit"
	"github.com/ekaya-inc/ekaya-renewals/pkg/config"
	"github.com/ekaya-inc/ekaya-renewals/pkg/consolidation"
	"github.com/ekaya-inc/ekaya-renewals/pkg/database"
	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction"
	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction/documentai"
	"github.com/ekaya-inc/ekaya-renewals/pkg/extraction/tesseract"
	"github.com/ekaya-inc/ekaya-renewals/pkg/handlers"
	"github.com/ekaya-inc/ekaya-renewals/pkg/inbox"
	"github.com/ekaya-inc/ekaya-renewals/pkg/llm"
	"github.com/ekaya-inc/ekaya-renewals/pkg/logging"
	"github.com/ekaya-inc/ekaya-renewals/pkg/metrics"
	"github.com/ekaya-inc/ekaya-renewals/pkg/middleware"
	"github.com/ekaya-inc/ekaya-renewals/pkg/notify"
	"github.com/ekaya-inc/ekaya-renewals/pkg/patterns"
	"github.com/ekaya-inc/ekaya-renewals/pkg/repositories"
	"github.com/ekaya-inc/ekaya-renewals/pkg/retry"
	"github.com/ekaya-inc/ekaya-renewals/pkg/semantic"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services"
	"github.com/ekaya-inc/ekaya-renewals/pkg/services/workqueue"
	"github.com/ekaya-inc/ekaya-renewals/pkg/sweeper"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// run wires every component and blocks until ctx is cancelled or the HTTP
// server fails.
func run(ctx context.Context) error {
	cfg, err := config.Load(Version)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ResolveDockerHosts()

	logger, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("Configuration loaded",
		zap.String("version", cfg.Version),
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.URL())),
		zap.Bool("redis", cfg.Redis.Host != ""),
		zap.Bool("ai_available", cfg.AI.IsAvailable()),
		zap.Bool("documentai", cfg.OCR.DocumentAI.IsAvailable()),
		zap.Bool("inbox", cfg.Inbox.Enabled))

	deps, err := initDependencies(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize dependencies: %w", err)
	}
	defer deps.Close()

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
	}

	queue := workqueue.New(logger,
		workqueue.WithStrategy(workqueue.NewThrottledStrategy(cfg.Pipeline.AIParallelism, cfg.Pipeline.ExtractionParallelism)),
		workqueue.WithOnFinish(func(snapshot workqueue.TaskSnapshot, d time.Duration) {
			m.RecordTask(snapshot.Name, string(snapshot.Status), d)
		}),
	)

	svcs, err := initServices(cfg, deps, queue, m, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	sweep, err := sweeper.New(svcs.alerts, svcs.credits, svcs.getScope, cfg.Alerts.SweepSchedule, m, logger)
	if err != nil {
		return err
	}
	if err := sweep.Start(); err != nil {
		return fmt.Errorf("failed to start sweeper: %w", err)
	}
	defer sweep.Stop()

	mux := http.NewServeMux()
	scope := handlers.ScopeMiddleware(database.WithScopeContext(deps.db, logger))

	handlers.NewHealthHandler(cfg, queue, logger).RegisterRoutes(mux)
	handlers.NewContractHandler(svcs.pipeline, svcs.semantic, svcs.alerts, logger).RegisterRoutes(mux, scope)
	handlers.NewCreditHandler(svcs.credits, logger).RegisterRoutes(mux, scope)
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           middleware.RequestLogger(logger, m)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var watcher *inbox.Watcher
	if cfg.Inbox.Enabled {
		watcher, err = inbox.New(cfg.Inbox.Dir, svcs.pipeline, svcs.getScope, m, logger)
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting ekaya-renewals",
			zap.String("addr", server.Addr),
			zap.Bool("tls", cfg.TLSCertPath != ""))
		var err error
		if cfg.TLSCertPath != "" {
			err = server.ListenAndServeTLS(cfg.TLSCertPath, cfg.TLSKeyPath)
		} else {
			err = server.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down server: %w", err))
		}
		if err := queue.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("failed to drain task queue: %w", err))
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Server shutdown complete")
	return nil
}

// initLogger uses a development logger for local runs.
func initLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// dependencies holds infrastructure connections.
type dependencies struct {
	db         *database.DB
	redis      *redis.Client
	documentAI *documentai.Extractor
	closers    []func()
}

// Close releases all infrastructure resources.
func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func initDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	deps := &dependencies{}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.URL(),
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConns,
		ConnectRetry:   retry.DefaultConfig(),
	})
	if err != nil {
		return nil, err
	}
	deps.db = db
	deps.closers = append(deps.closers, db.Close)

	if err := database.Migrate(cfg.Database.URL(), cfg.Database.MigrationsPath, logger); err != nil {
		deps.Close()
		return nil, err
	}

	rdb, err := database.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		deps.Close()
		return nil, err
	}
	if rdb != nil {
		deps.redis = rdb
		deps.closers = append(deps.closers, func() { _ = rdb.Close() })
		logger.Info("Connected to Redis", zap.String("addr", rdb.Options().Addr))
	}

	if cfg.OCR.DocumentAI.IsAvailable() {
		dai := cfg.OCR.DocumentAI
		extractor, err := documentai.New(ctx, documentai.Config{
			ProjectID:       dai.ProjectID,
			Location:        dai.Location,
			ProcessorID:     dai.ProcessorID,
			CredentialsFile: dai.CredentialsFile,
			HandleImages:    dai.HandleImages,
		}, logger)
		if err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to create Document AI client: %w", err)
		}
		deps.documentAI = extractor
		deps.closers = append(deps.closers, func() { _ = extractor.Close() })
	}

	return deps, nil
}

// appServices holds the business services.
type appServices struct {
	pipeline services.ContractPipelineService
	semantic services.SemanticAnalysisService
	alerts   services.AlertSchedulerService
	credits  services.CreditLedgerService
	getScope services.ScopeFunc
}

func initServices(
	cfg *config.Config,
	deps *dependencies,
	queue *workqueue.Queue,
	m *metrics.Metrics,
	logger *zap.Logger,
) (*appServices, error) {
	contractRepo := repositories.NewContractRepository()
	alertRepo := repositories.NewAlertEventRepository()
	ledgerRepo := repositories.NewCreditLedgerRepository()

	notifier, err := initNotifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	engine, err := initEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	analyzer, err := initAnalyzer(cfg)
	if err != nil {
		return nil, err
	}

	var locker services.ContractLocker
	if deps.redis != nil {
		locker = services.NewRedisContractLocker(deps.redis, cfg.Redis.LockTTL, logger)
	}

	consolidationSettings := consolidation.Settings{
		CommitThreshold:  cfg.Pipeline.CommitThreshold,
		OCRWeight:        cfg.Pipeline.OCRWeight,
		PatternWeight:    cfg.Pipeline.PatternWeight,
		LowOCRConfidence: cfg.Pipeline.LowOCRConfidence,
	}

	credits := services.NewCreditLedgerService(ledgerRepo, cfg.Credits.DefaultMonthlyLimit, audit.NewLedgerAuditor(logger), m, logger)
	alerts := services.NewAlertSchedulerService(alertRepo, notifier, cfg.Alerts.WarningOffsets, m, logger)
	semanticSvc := services.NewSemanticAnalysisService(contractRepo, engine, credits, alerts, locker, services.SemanticConfig{
		CommitThreshold: cfg.Pipeline.CommitThreshold,
		CacheTTL:        cfg.AI.CacheTTL,
		Timeout:         cfg.AI.Timeout,
	}, m, logger)

	getScope := services.NewScopeFunc(deps.db)
	pipeline := services.NewContractPipelineService(
		contractRepo,
		initExtractor(cfg, deps, logger),
		analyzer,
		alerts,
		credits,
		semanticSvc,
		queue,
		getScope,
		services.PipelineConfig{
			Consolidation:        consolidationSettings,
			AutoAI:               cfg.Pipeline.AutoAI,
			StaleProcessingAfter: cfg.Pipeline.StaleProcessingAfter,
		},
		m,
		logger,
	)

	return &appServices{
		pipeline: pipeline,
		semantic: semanticSvc,
		alerts:   alerts,
		credits:  credits,
		getScope: getScope,
	}, nil
}

// initEngine returns a nil Engine when no provider is configured; analysis
// requests then fail their precondition.
func initEngine(cfg *config.Config, logger *zap.Logger) (semantic.Engine, error) {
	if !cfg.AI.IsAvailable() {
		logger.Warn("Semantic analysis disabled: no AI provider configured")
		return nil, nil
	}

	client, err := llm.NewClientFromConfig(&llm.Config{
		Provider:  cfg.AI.Provider,
		Endpoint:  cfg.AI.BaseURL,
		Model:     cfg.AI.Model,
		APIKey:    cfg.AI.APIKey,
		MaxTokens: cfg.AI.MaxTokens,
		JSONMode:  cfg.AI.JSONMode,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %s", logging.SanitizeError(err))
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.AI.MaxAttempts

	logger.Info("Semantic analysis enabled",
		zap.String("provider", cfg.AI.Provider),
		zap.String("model", cfg.AI.Model))

	return semantic.NewLLMEngine(client, semantic.Config{
		Temperature:       cfg.AI.Temperature,
		MaxInputChars:     cfg.AI.MaxInputChars,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
		Burst:             cfg.AI.Burst,
		Retry:             retryCfg,
		CircuitBreaker: llm.CircuitBreakerConfig{
			Threshold:  cfg.AI.CircuitBreakerThreshold,
			ResetAfter: cfg.AI.CircuitBreakerResetAfter,
		},
	}, logger), nil
}

func initAnalyzer(cfg *config.Config) (patterns.Analyzer, error) {
	var rules *patterns.RuleSet
	var err error
	if cfg.Patterns.RulesFile != "" {
		rules, err = patterns.LoadRules(cfg.Patterns.RulesFile)
	} else {
		rules, err = patterns.DefaultRules()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load pattern rules: %w", err)
	}

	settings := patterns.DefaultSettings()
	settings.DateFloor = cfg.Patterns.DateFloor
	settings.AmountFloor = cfg.Patterns.AmountFloor
	settings.NoticeFloor = cfg.Patterns.NoticeFloor
	settings.DayFirst = cfg.Patterns.DayFirst
	settings.DefaultCurrency = strings.ToUpper(cfg.Patterns.DefaultCurrency)
	return patterns.NewAnalyzer(rules, settings), nil
}

// initExtractor orders engines so that plain text never reaches OCR and
// Document AI, when configured, takes PDFs ahead of Tesseract.
func initExtractor(cfg *config.Config, deps *dependencies, logger *zap.Logger) extraction.Extractor {
	engines := []extraction.Engine{extraction.NewPlainTextExtractor()}
	if deps.documentAI != nil {
		engines = append(engines, deps.documentAI)
	}
	engines = append(engines, tesseract.New(tesseract.Config{Languages: cfg.OCR.TesseractLanguages}, logger))

	router := extraction.NewRouter(extraction.NewLocalFileSource(cfg.OCR.StorageRoot), cfg.OCR.Timeout, logger, engines...)
	logger.Info("Extraction engines ready", zap.Strings("engines", router.Engines()))
	return router
}

func initNotifier(cfg *config.Config, logger *zap.Logger) (notify.Notifier, error) {
	logNotifier := notify.NewLogNotifier(logger)
	if cfg.Notify.NATSURL == "" {
		return logNotifier, nil
	}

	conn, err := notify.Connect(cfg.Notify.NATSURL, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.Info("Connected to NATS",
		zap.String("url", logging.SanitizeConnectionString(cfg.Notify.NATSURL)),
		zap.String("subject", cfg.Notify.Subject))

	return notify.Fanout{logNotifier, notify.NewNATSNotifier(conn, cfg.Notify.Subject, logger)}, nil
}
