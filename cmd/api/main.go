package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cod-fulfillment/config"
	"cod-fulfillment/internal/delivery/http/middleware"
	v1 "cod-fulfillment/internal/delivery/http/v1"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/internal/infrastructure/cache"
	"cod-fulfillment/internal/infrastructure/events"
	"cod-fulfillment/internal/migration"
	"cod-fulfillment/internal/repository/postgres"
	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/logger"
	"cod-fulfillment/pkg/storage"
	"cod-fulfillment/pkg/utils"

	"github.com/NYTimes/gziphandler"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.JWTSecret)

	// Initialize Logger
	logger.Init("cod-api", cfg.Env, cfg.LogLevel)
	log := logger.Get()

	// Initialize Database with pgx
	pgxPool, err := postgres.NewPgxPool(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pgxPool.Close()
	log.Info().Msg("Successfully connected to PostgreSQL via pgx")

	if cfg.DBAutoMigrate {
		if err := migration.Up(context.Background(), pgxPool); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

	// Initialize Repositories
	repos := usecase.CODRepositories{
		Orders:        postgres.NewOrderRepository(pgxPool),
		CODOrders:     postgres.NewCODOrderRepository(pgxPool),
		Verifications: postgres.NewVerificationRepository(pgxPool),
		Attempts:      postgres.NewDeliveryAttemptRepository(pgxPool),
		Collections:   postgres.NewCollectionRepository(pgxPool),
	}
	feeRuleRepo := postgres.NewFeeRuleRepository(pgxPool)
	txManager := postgres.NewTransactionManager(pgxPool)

	// Initialize Cache (In-Memory)
	// Default expiration 30m, cleanup every 60m
	memCache := cache.NewMemoryCache(30*time.Minute, 60*time.Minute)

	// Events: Kafka when brokers are configured, log only otherwise
	var publisher domain.EventPublisher = events.NewLogPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewKafkaProducer(context.Background(), cfg.KafkaBrokers, 10)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Kafka producer")
		}
		kafkaPublisher := events.NewKafkaPublisher(producer, cfg.KafkaTopicPrefix)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, COD events are only logged")
	}

	// --- Modules Initialization ---

	feeUC := usecase.NewFeeRuleUsecase(feeRuleRepo, memCache, cfg.CacheFeeRulesTTL)
	codUC := usecase.NewCODUsecase(repos, feeUC, publisher, txManager, cfg.COD)

	// --- Storage Module (R2) ---
	var proofUC *usecase.ProofUsecase
	if cfg.R2BucketName != "" {
		r2Storage, err := storage.NewR2Storage(
			context.Background(),
			cfg.R2AccountID,
			cfg.R2AccessKeyID,
			cfg.R2AccessKeySecret,
			cfg.R2BucketName,
			cfg.R2PublicURL,
			cfg.R2UploadTimeout,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize R2 Storage")
		}
		proofUC = usecase.NewProofUsecase(repos.CODOrders, repos.Attempts, r2Storage)
	} else {
		log.Warn().Msg("R2_BUCKET_NAME not set, proof uploads are disabled")
	}

	mux := v1.NewRouter(v1.Handlers{
		COD:     v1.NewCODHandler(codUC),
		Agent:   v1.NewAgentHandler(codUC, proofUC, cfg.MaxUploadSizeMB),
		Admin:   v1.NewAdminCODHandler(codUC),
		FeeRule: v1.NewFeeRuleHandler(feeUC),
		Config:  v1.NewConfigHandler(memCache, feeUC),
		Ping:    pgxPool.Ping,
	})

	addr := fmt.Sprintf(":%s", cfg.Port)

	// Initialize Rate Limiter with lifecycle management
	// 50 req/s, burst 100, cleanup every minute, TTL 3 minutes
	rateLimiter := middleware.NewRateLimiter(
		context.Background(),
		50,            // requests per second
		100,           // burst
		time.Minute,   // cleanup period
		3*time.Minute, // client TTL
	)

	// Apply CORS (with config injection), Request Logger, Rate Limit, and Gzip
	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = middleware.RequestLogger(handler)
	handler = rateLimiter.Middleware()(handler)
	handler = gziphandler.GzipHandler(handler)

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	logger.ServiceStart(version, addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	rateLimiter.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.ServiceStop()
}
