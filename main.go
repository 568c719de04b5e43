package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/SAP-F-2025/enrollment-service/internal/cache"
	"github.com/SAP-F-2025/enrollment-service/internal/config"
	"github.com/SAP-F-2025/enrollment-service/internal/events"
	"github.com/SAP-F-2025/enrollment-service/internal/handlers"
	"github.com/SAP-F-2025/enrollment-service/internal/payment"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories/casdoor"
	"github.com/SAP-F-2025/enrollment-service/internal/repositories/postgres"
	"github.com/SAP-F-2025/enrollment-service/internal/services"
	"github.com/SAP-F-2025/enrollment-service/internal/storage"
	"github.com/SAP-F-2025/enrollment-service/internal/utils"
	"github.com/SAP-F-2025/enrollment-service/internal/validator"
	"github.com/SAP-F-2025/enrollment-service/pkg"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	slogLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	logger := utils.NewSlogLogger(slogLogger)

	// Initialize database (runs pending migrations)
	db, err := pkg.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Redis backs the caches and the cart store; without it carts are disabled
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = pkg.NewRedisClient(cfg)
		if err != nil {
			logger.Warn("Failed to initialize Redis", "error", err)
			redisClient = nil
		}
	}

	// Initialize repositories
	repoManager := postgres.NewRepositoryManager(postgres.RepositoryConfig{
		DB:            db,
		RedisClient:   redisClient,
		UserDirectory: cfg.UserDirectory,
		CasdoorConfig: casdoor.CasdoorConfig{
			Endpoint:         cfg.Casdoor.Endpoint,
			ClientID:         cfg.Casdoor.ClientID,
			ClientSecret:     cfg.Casdoor.ClientSecret,
			Certificate:      cfg.Casdoor.Cert,
			OrganizationName: cfg.Casdoor.Organization,
			ApplicationName:  cfg.Casdoor.Application,
		},
	})
	if err := repoManager.Initialize(); err != nil {
		log.Fatalf("Failed to initialize repositories: %v", err)
	}
	repo := repoManager.GetRepository()

	// Domain events
	var publisher events.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaPublisher, err := events.NewKafkaEventPublisher(cfg.Kafka.Brokers, cfg.Kafka.TopicPrefix, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize event publisher: %v", err)
		}
		publisher = kafkaPublisher
	} else {
		logger.Warn("KAFKA_BROKERS not set, events stay in process")
		publisher = events.NewInMemoryEventPublisher(cfg.Kafka.TopicPrefix, slogLogger)
	}

	var cartStore cache.CartStore
	if redisClient != nil {
		cartStore = cache.NewRedisCartStore(redisClient, cfg.CartTTL)
	}

	var gateway payment.Gateway
	if cfg.Razorpay.Enabled() {
		gateway = payment.NewRazorpayGateway(cfg.Razorpay, slogLogger)
	}

	var store storage.Storage
	if cfg.Storage.Enabled() {
		minioStorage, err := storage.NewMinioStorage(cfg.Storage, slogLogger)
		if err != nil {
			log.Fatalf("Failed to initialize storage: %v", err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := minioStorage.Ping(pingCtx); err != nil {
			logger.Warn("Storage bucket check failed", "bucket", cfg.Storage.Bucket, "error", err)
		}
		cancel()
		store = minioStorage
	} else {
		logger.Warn("Object storage not configured, uploads disabled")
	}

	policy, err := services.NewCompletionPolicy(cfg.Completion)
	if err != nil {
		log.Fatalf("Invalid completion policy: %v", err)
	}

	// Initialize services
	validator := validator.New()
	serviceManager := services.NewServiceManager(db, repo, slogLogger, validator, services.ServiceManagerConfig{
		Completion: policy,
		Currency:   cfg.Razorpay.Currency,
		Reconcile:  cfg.Reconcile,
		Cache:      cache.NewCacheManager(redisClient),
		CartStore:  cartStore,
		Gateway:    gateway,
		Publisher:  publisher,
	})
	if err := serviceManager.Initialize(context.Background()); err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	// Initialize handlers
	authMiddleware := handlers.NewCasdoorAuthMiddleware(cfg.Casdoor, repo.User(), logger)
	maxUploadSize := int64(cfg.MaxUploadSizeMB) << 20
	handlerManager := handlers.NewHandlerManager(serviceManager, authMiddleware, store, validator, maxUploadSize, logger)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.MaxMultipartMemory = maxUploadSize
	handlers.SetupMiddleware(router, logger)
	handlerManager.SetupRoutes(router)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// Stops the sweep and closes the publisher
	if err := serviceManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown services", "error", err)
	}

	// Closes the database and Redis
	if err := repoManager.Shutdown(ctx); err != nil {
		logger.Error("Failed to close repositories", "error", err)
	}

	logger.Info("Server exited")
}
