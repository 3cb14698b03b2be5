package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cod-fulfillment/config"
	"cod-fulfillment/internal/domain"
	"cod-fulfillment/internal/infrastructure/events"
	"cod-fulfillment/internal/repository/postgres"
	"cod-fulfillment/internal/usecase"
	"cod-fulfillment/pkg/logger"
)

// Set at build time with -ldflags "-X main.version=..."
var version = "dev"

// The sweeper runs once and exits when SWEEP_INTERVAL is unset, which suits
// a cron schedule. With an interval it keeps sweeping until signalled.
func main() {
	cfg := config.LoadConfig()

	logger.Init("cod-sweeper", cfg.Env, cfg.LogLevel)
	log := logger.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgxPool, err := postgres.NewPgxPool(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pgxPool.Close()

	var publisher domain.EventPublisher = events.NewLogPublisher()
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewKafkaProducer(ctx, cfg.KafkaBrokers, 10)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize Kafka producer")
		}
		kafkaPublisher := events.NewKafkaPublisher(producer, cfg.KafkaTopicPrefix)
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher
	} else {
		log.Warn().Msg("KAFKA_BROKERS not set, due work is only logged")
	}

	sweeper := usecase.NewSweeperUsecase(
		postgres.NewCODOrderRepository(pgxPool),
		postgres.NewDeliveryAttemptRepository(pgxPool),
		publisher,
		postgres.NewTransactionManager(pgxPool),
		cfg.SweepBatchSize,
	)

	logger.ServiceStart(version, "")

	if err := run(ctx, sweeper, cfg.SweepInterval); err != nil {
		log.Error().Err(err).Msg("Sweep failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, sweeper *usecase.SweeperUsecase, interval time.Duration) error {
	defer logger.ServiceStop()
	if interval <= 0 {
		return sweeper.RunOnce(ctx)
	}

	logger.Info().Dur("interval", interval).Msg("Sweeping on an interval")
	sweeper.RunForever(ctx, interval)
	return nil
}
