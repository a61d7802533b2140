package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lambari-service/internal/config"
	"lambari-service/internal/events"
	"lambari-service/internal/handlers"
	"lambari-service/internal/importer"
	"lambari-service/internal/metrics"
	"lambari-service/internal/middleware"
	"lambari-service/internal/repository"
	"lambari-service/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Kit Import API
// @version 1.0.0
// @description Bulk import of clothing kits into the catalog with review before commit

// @host localhost:8080
// @BasePath /api/v1

func main() {
	// Initialize logger
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	// Initialize configuration
	cfg := config.Load()
	if cfg.Environment == "production" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	// Initialize database
	db, err := config.InitDB(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize Redis client; without it sessions live in memory
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.WithError(err).Warn("Failed to parse Redis URL (continuing without Redis)")
		} else {
			redisClient = redis.NewClient(redisOpts)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := redisClient.Ping(ctx).Err(); err != nil {
				logger.WithError(err).Warn("Failed to connect to Redis (continuing without Redis)")
				redisClient.Close()
				redisClient = nil
			} else {
				logger.Info("✓ Redis connected successfully")
			}
			cancel()
		}
	}

	bgCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	var (
		store   session.Store
		sweeper *session.Sweeper
	)
	if redisClient != nil {
		store = session.NewRedisStore(redisClient, cfg.SessionTTL, logger)
	} else {
		memStore := session.NewMemoryStore(cfg.SessionTTL)
		sweeper = session.NewSweeper(memStore, time.Minute, logger)
		go sweeper.Start(bgCtx)
		store = memStore
		logger.Info("Using in-memory import session store")
	}

	// Initialize repositories
	productsRepo := repository.NewProductsRepository(db)
	brandsRepo := repository.NewBrandsRepository(db, redisClient)
	categoriesRepo := repository.NewCategoriesRepository(db, redisClient)

	// Initialize Prometheus metrics
	collector := metrics.New("lambari", "kit_import")
	logger.Info("✓ Prometheus metrics initialized")

	observers := importer.Observers{importer.NewLogObserver(logger), collector}

	// Initialize event publisher only if NATS_URL is set
	var eventsPublisher *events.Publisher
	if cfg.NATSURL != "" {
		eventsPublisher, err = events.NewPublisher(cfg.NATSURL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize events publisher (continuing without event publishing)")
		} else {
			observers = append(observers, eventsPublisher)
			logger.Info("✓ Events publisher initialized (NATS connected)")
		}
	} else {
		logger.Info("NATS_URL not set, skipping event publishing initialization")
	}
	defer func() {
		if eventsPublisher != nil {
			eventsPublisher.Close()
		}
	}()

	importOpts := cfg.ImportOptions()
	importOpts.Observer = observers

	importHandler := handlers.NewImportHandler(handlers.ImportPipeline{
		Parser:     importer.NewParser(cfg.MaxUploadBytes),
		Validator:  importer.NewValidator(cfg.DefaultBrand),
		Products:   productsRepo,
		Brands:     brandsRepo,
		Categories: categoriesRepo,
		Options:    importOpts,
	}, store, cfg.CommitLockTTL, logger)
	healthHandler := handlers.NewHealthHandler(db, redisClient)

	// Initialize Gin router
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(collector.Middleware())
	router.Use(middleware.Logger(logger, "/health", "/ready", "/metrics", "/swagger"))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	// Health check endpoints
	router.GET("/health", healthHandler.HealthCheck)
	router.GET("/ready", healthHandler.ReadinessCheck)
	router.GET("/metrics", collector.Handler())

	api := router.Group("/api/v1")
	api.Use(middleware.Actor())
	handlers.RegisterImportRoutes(api, importHandler)

	// Swagger documentation; doc.json needs the docs package from `swag init -g cmd/main.go`
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Infof("Kit import service starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down kit import service...")

	// Commits in flight may run for a while; give them time to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if sweeper != nil {
		sweeper.Stop()
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if redisClient != nil {
		redisClient.Close()
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}

	logger.Info("Kit import service stopped")
}
