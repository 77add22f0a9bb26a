package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	purchasingapp "github.com/bakery/backoffice/internal/application/purchasing"
	"github.com/bakery/backoffice/internal/domain/purchasing"
	"github.com/bakery/backoffice/internal/domain/shared"
	"github.com/bakery/backoffice/internal/infrastructure/auth"
	"github.com/bakery/backoffice/internal/infrastructure/cache"
	"github.com/bakery/backoffice/internal/infrastructure/config"
	"github.com/bakery/backoffice/internal/infrastructure/event"
	"github.com/bakery/backoffice/internal/infrastructure/logger"
	"github.com/bakery/backoffice/internal/infrastructure/migration"
	"github.com/bakery/backoffice/internal/infrastructure/persistence"
	"github.com/bakery/backoffice/internal/infrastructure/persistence/models"
	"github.com/bakery/backoffice/internal/infrastructure/queue"
	"github.com/bakery/backoffice/internal/infrastructure/telemetry"
	"github.com/bakery/backoffice/internal/interfaces/http/handler"
	"github.com/bakery/backoffice/internal/interfaces/http/middleware"
	"github.com/bakery/backoffice/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Bakery Back Office API
//	@version		1.0
//	@description	Purchase order lifecycle and goods reception for the bakery back office

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Bearer token authentication. Format: "Bearer {token}"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting bakery back office",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	// Telemetry first so the database plugin and middleware see the real providers
	ctx := context.Background()
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}

	// Database with a zap-backed GORM logger
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), 200*time.Millisecond)
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully", zap.String("driver", cfg.Database.Driver))

	if err := migrateSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to migrate database", zap.Error(err))
	}

	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Database.Driver == "sqlite" {
		dbTracing.DBSystem = "sqlite"
	}
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}

	// Caches
	caches, err := cache.NewFactory(cfg.Redis, cfg.Purchasing, cache.WithLogger(log)).Create()
	if err != nil {
		log.Fatal("Failed to initialize caches", zap.Error(err))
	}
	defer func() {
		if err := caches.Close(); err != nil {
			log.Error("Error closing caches", zap.Error(err))
		}
	}()

	// Repositories
	orderRepo := persistence.NewGormPurchaseOrderRepository(db.DB)
	historyLogger := persistence.NewGormHistoryLogger(db.DB)
	returnRepo := persistence.NewGormPurchaseReturnRepository(db.DB)
	supplierDirectory := persistence.NewGormSupplierDirectory(db.DB)
	txScope := persistence.NewGormTransactionScope(db.DB)

	// Purchase order events: written to the outbox with each change, then
	// delivered by the processor to the bus subscribers
	var outboxProcessor *event.OutboxProcessor
	var eventBus *event.InMemoryEventBus
	if cfg.Events.Enabled {
		serializer := event.NewPurchasingEventSerializer()
		publisher := event.NewOutboxPublisher(serializer)
		orderRepo.SetOutboxEventSaver(publisher)
		txScope.SetOutboxEventSaver(publisher)

		eventBus = event.NewInMemoryEventBus(log)
		eventBus.Subscribe(event.NewLoggingHandler(log))
		if cfg.Events.QueueForwarding {
			queueClient := queue.NewClient(cfg.Redis)
			defer func() {
				if err := queueClient.Close(); err != nil {
					log.Error("Error closing queue client", zap.Error(err))
				}
			}()
			forwarder := queue.NewEventForwarder(queueClient, serializer, queue.ForwarderConfig{
				Queue:    cfg.Events.Queue,
				MaxRetry: cfg.Events.QueueMaxRetry,
			}, log, purchasing.EventTypes()...)
			eventBus.Subscribe(event.NewIdempotentHandler("queue_forwarder", forwarder, caches.Idempotency,
				shared.IdempotencyConfig{TTL: cfg.Purchasing.IdempotencyTTL, Enabled: true}, log))
		}

		outboxConfig := event.DefaultOutboxProcessorConfig()
		outboxConfig.PollInterval = cfg.Events.PollInterval
		outboxConfig.BatchSize = cfg.Events.BatchSize
		outboxConfig.CleanupRetention = cfg.Events.CleanupRetention
		outboxProcessor = event.NewOutboxProcessor(
			event.NewGormOutboxRepository(db.DB), eventBus, serializer, outboxConfig, log)
		if err := outboxProcessor.Start(ctx); err != nil {
			log.Fatal("Failed to start outbox processor", zap.Error(err))
		}
	}

	// Application services
	settings := purchasingapp.Settings{
		NumberingMaxRetries: cfg.Purchasing.NumberingMaxRetries,
		ConflictMaxRetries:  cfg.Purchasing.ConflictMaxRetries,
		ConflictBackoff:     cfg.Purchasing.ConflictBackoff,
		IdempotencyTTL:      cfg.Purchasing.IdempotencyTTL,
		CacheTTL:            cfg.Purchasing.CacheTTL,
	}
	executor := purchasingapp.NewCommandExecutor(orderRepo, historyLogger, txScope, settings, log)
	executor.SetIdempotencyStore(caches.Idempotency)
	executor.SetOrderCache(caches.Orders)

	orderService := purchasingapp.NewOrderService(
		supplierDirectory, purchasingapp.NewNumberingService(orderRepo), executor, settings, log)
	workflowService := purchasingapp.NewWorkflowService(executor)
	receptionService := purchasingapp.NewReceptionService(executor)
	returnService := purchasingapp.NewReturnService(returnRepo, executor)
	queryService := purchasingapp.NewQueryService(orderRepo, historyLogger, returnRepo, log)
	queryService.SetOrderCache(caches.Orders, settings.CacheTTL)

	purchasingMetrics, err := telemetry.NewPurchasingMetrics(meterProvider.Meter("bakery.purchasing"), log)
	if err != nil {
		log.Warn("Purchasing metrics disabled", zap.Error(err))
	} else {
		executor.SetMetrics(purchasingMetrics)
		orderService.SetMetrics(purchasingMetrics)
		receptionService.SetMetrics(purchasingMetrics)
		returnService.SetMetrics(purchasingMetrics)
		if meterProvider.IsEnabled() {
			purchasingMetrics.StartPeriodicCollection(ctx, queryService.StatusCounts, cfg.Telemetry.MetricsInterval)
		}
	}

	// Handlers
	systemHandler := handler.NewSystemHandler(cfg.App.Name, version)
	systemHandler.AddCheck("database", db.Ping)
	if caches.Kind == "redis" {
		systemHandler.AddCheck("redis", caches.Ping)
	}
	purchaseOrderHandler := handler.NewPurchaseOrderHandler(
		orderService, workflowService, receptionService, returnService, queryService)

	// Gin engine
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	middleware.SetupValidator()

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	// Middleware chain (order matters):
	// 1. RequestID - Generate/propagate request ID
	// 2. Recovery - Catch panics
	// 3. Logger - Log requests
	// 4. Tracing - Start the server span and mark failed requests
	// 5. Metrics - Record request count and latency
	// 6. Security - Add security headers
	// 7. CORS - Handle cross-origin requests
	// 8. BodyLimit - Limit request body size
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.TracingWithConfig(middleware.TracingConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		Enabled:     cfg.Telemetry.Enabled,
	}))
	engine.Use(middleware.SpanErrorMarker())
	engine.Use(middleware.HTTPMetrics(middleware.HTTPMetricsConfig{
		MeterProvider: meterProvider,
		Enabled:       cfg.Telemetry.MetricsEnabled,
		Logger:        log,
	}))
	engine.Use(middleware.Secure())
	engine.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.HTTP.CORSAllowOrigins,
		AllowMethods:     cfg.HTTP.CORSAllowMethods,
		AllowHeaders:     cfg.HTTP.CORSAllowHeaders,
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	// Health check endpoint (outside API versioning and authentication)
	engine.GET("/health", systemHandler.Health)
	engine.NoRoute(systemHandler.NoRoute)

	var routerOpts []router.RouterOption
	if cfg.JWT.Enabled {
		routerOpts = append(routerOpts, router.WithMiddleware(
			middleware.JWTAuthMiddleware(auth.NewJWTService(cfg.JWT)),
			middleware.TracingAttributeInjector(),
		))
	} else {
		log.Warn("JWT authentication disabled, purchase order history records no actor")
		routerOpts = append(routerOpts, router.WithMiddleware(middleware.TracingAttributeInjector()))
	}

	groups := []*router.DomainGroup{systemHandler.Routes(), purchaseOrderHandler.Routes()}
	if outboxProcessor != nil {
		groups = append(groups, handler.NewOutboxHandler(outboxProcessor).Routes())
	}
	r := router.NewRouter(engine, routerOpts...)
	for _, group := range groups {
		r.Register(group)
	}
	r.Setup()

	for _, group := range groups {
		for _, route := range group.Routes() {
			log.Debug("Route registered",
				zap.String("method", route.Method),
				zap.String("path", r.BasePath()+route.Path),
			)
		}
	}

	// Create HTTP server with config
	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	// Start server in goroutine
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if outboxProcessor != nil {
		if err := outboxProcessor.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping outbox processor", zap.Error(err))
		}
		if err := eventBus.Stop(shutdownCtx); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}
	if purchasingMetrics != nil {
		purchasingMetrics.Stop()
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

// migrateSchema brings the schema up to date when auto migration is on.
// Postgres runs the versioned migrations on a dedicated connection because
// closing the migrator closes its database. Sqlite is created from the models.
func migrateSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if !cfg.Database.AutoMigrate {
		return nil
	}
	if cfg.Database.Driver == "sqlite" {
		return db.DB.AutoMigrate(models.PurchasingModels()...)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	m, err := migration.New(sqlDB, "", log)
	if err != nil {
		_ = sqlDB.Close()
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Error closing migrator", zap.Error(err))
		}
	}()
	return m.Up()
}
