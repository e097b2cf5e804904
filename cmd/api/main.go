package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"directstock/internal/auth"
	"directstock/internal/cache"
	"directstock/internal/catalog"
	"directstock/internal/config"
	"directstock/internal/events"
	"directstock/internal/handlers"
	"directstock/internal/idempotency"
	"directstock/internal/ledger"
	"directstock/internal/lots"
	"directstock/internal/observability"
	"directstock/internal/operations"
	"directstock/internal/serials"
	"directstock/internal/store"
	"directstock/pkg/logger"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "directstock/docs" // Import docs for Swagger
)

// @title           DirectStock API
// @version         1.0
// @description     Warehouse stock ledger: goods receipts, issues, transfers, inter-warehouse shipments and inventory counts.

// @host      localhost:8080
// @BasePath  /api/v1

// @schemes   http https

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	appLogger := logger.New(cfg.Environment)
	defer appLogger.Sync()

	appLogger.Info("Starting DirectStock",
		zap.String("environment", cfg.Environment),
		zap.String("port", cfg.Port),
		zap.String("db_driver", cfg.DBDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingConfig{
		Enabled:    cfg.OTelEnabled,
		Endpoint:   cfg.OTelEndpoint,
		AuthHeader: cfg.OTelAuthHeader,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to set up tracing", zap.Error(err))
	}

	db, err := store.Open(store.Config{
		Driver:       cfg.DBDriver,
		DSN:          cfg.DBDSN,
		MaxOpenConns: cfg.DBMaxOpenConns,
	}, appLogger)
	if err != nil {
		appLogger.Fatal("Failed to open database", zap.Error(err))
	}

	catalogRepo := catalog.NewRepository(db, appLogger)
	stockLedger := ledger.New(db, appLogger)
	journal := ledger.NewJournal(db, appLogger)
	lotRegistry := lots.NewRegistry(db, appLogger)
	serialRegistry := serials.NewRegistry(db, appLogger)
	reservations := idempotency.NewLog(db, appLogger)

	ops := operations.NewService(operations.Deps{
		DB:      db,
		Catalog: catalogRepo,
		Ledger:  stockLedger,
		Journal: journal,
		Lots:    lotRegistry,
		Serials: serialRegistry,
		Logger:  appLogger,
	})

	forwarder := events.NewForwarder(newPublisher(cfg, appLogger), 1024, appLogger)
	journal.Subscribe(forwarder)

	var stockCache cache.Cache
	if cfg.RedisEnabled {
		stockCache = cache.NewCache(cache.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, appLogger)
	} else {
		stockCache = cache.NewInMemoryCache()
	}
	defer stockCache.Close()
	stockQuery := cache.NewStockQuery(stockLedger, stockCache, cfg.StockCacheTTL, appLogger)

	var jwtManager *auth.JWTManager
	if cfg.AuthEnabled {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL, appLogger)
		appLogger.Info("JWT authentication enabled", zap.Int("secret_length", len(cfg.JWTSecret)))
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := handlers.NewRouter(handlers.RouterDeps{
		Logger:            appLogger,
		DB:                db,
		Reservations:      reservations,
		IdempotencyHeader: cfg.IdempotencyHeader,
		JWT:               jwtManager,
		Catalog:           catalogRepo,
		Operations:        ops,
		Stock:             stockQuery,
		Lots:              lotRegistry,
		Serials:           serialRegistry,
		Journal:           journal,
		Projection:        ledger.NewProjection(stockLedger, journal, appLogger),
	})
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	pruner := idempotency.NewPruner(reservations, cfg.IdempotencyTTL, cfg.IdempotencyPruneInterval, appLogger)
	go pruner.Run(ctx)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		appLogger.Info("HTTP server listening", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	if err := forwarder.Close(shutdownCtx); err != nil {
		appLogger.Error("Failed to drain movement events", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		appLogger.Error("Failed to flush traces", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		appLogger.Error("Failed to close database", zap.Error(err))
	}

	appLogger.Info("Server exited")
}

// newPublisher prefers Kafka and falls back to an in-process buffer so the API keeps
// serving when the broker is unreachable at startup.
func newPublisher(cfg *config.Config, log *zap.Logger) events.MovementPublisher {
	if !cfg.KafkaEnabled {
		return events.NewInMemoryPublisher(1000, log)
	}
	log.Info("Kafka Configuration",
		zap.Strings("brokers", cfg.KafkaBrokers),
		zap.String("topic", cfg.KafkaTopicMovements),
		zap.String("client_id", cfg.KafkaClientID),
		zap.String("acks", cfg.KafkaAcks),
		zap.Int("retries", cfg.KafkaRetries),
	)
	publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopicMovements,
		ClientID: cfg.KafkaClientID,
		Acks:     cfg.KafkaAcks,
		Retries:  cfg.KafkaRetries,
	}, log)
	if err != nil {
		log.Warn("Kafka unavailable, buffering movement events in memory", zap.Error(err))
		return events.NewInMemoryPublisher(1000, log)
	}
	return publisher
}
