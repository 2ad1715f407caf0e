package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"stock-reservation-service/internal/api"
	"stock-reservation-service/internal/config"
	"stock-reservation-service/internal/kafka"
	"stock-reservation-service/internal/ledger"
	"stock-reservation-service/internal/metrics"
	"stock-reservation-service/internal/service"
	"stock-reservation-service/internal/sweeper"
)

// countingDeadLetterer wraps the publisher's dead-letter path so every
// poison message also bumps the counter.
type countingDeadLetterer struct {
	publisher *kafka.Publisher
	metrics   *metrics.Metrics
}

func (d *countingDeadLetterer) PublishDeadLetter(ctx context.Context, key, value []byte, sourceTopic, reason string) error {
	if d.metrics != nil {
		d.metrics.DeadLetters.Inc()
	}
	return d.publisher.PublishDeadLetter(ctx, key, value, sourceTopic, reason)
}

// setupLogging configures structured logging
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initializeLedger seeds the in-memory stock ledger
func initializeLedger(cfg *config.Config) *ledger.Ledger {
	l := ledger.New(cfg.HoldDuration, ledger.WithSeed(cfg.SeedStock))
	log.Info().
		Int("items", len(cfg.SeedStock)).
		Dur("hold_duration", cfg.HoldDuration).
		Msg("Stock ledger seeded")
	return l
}

// initializePublisher sets up the Kafka publisher for all outbound topics
func initializePublisher(cfg *config.Config) *kafka.Publisher {
	return kafka.NewPublisher(cfg.KafkaBrokers, kafka.Topics{
		Requests:   cfg.RequestsTopicName,
		Commands:   cfg.CommandsTopicName,
		Rejections: cfg.RejectionsTopicName,
		State:      cfg.StateTopicName,
		DeadLetter: cfg.DeadLetterTopicName,
	})
}

// startHTTPServer starts the HTTP server for health, snapshots and metrics
func startHTTPServer(cfg *config.Config, handler *api.WorkerHandler) *http.Server {
	serverAddr := fmt.Sprintf("%s:%s", cfg.ServerAddr, cfg.ServerPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: handler.SetupWorkerRoutes(),
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Stock Worker HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return srv
}

// startConsumers runs the reservation request consumers and the command
// consumer. Each worker owns its own reader within the shared consumer
// group, so the broker spreads partitions across them.
func startConsumers(ctx context.Context, cfg *config.Config, processor *service.StockProcessor, dl kafka.DeadLetterer) (*errgroup.Group, []*kafka.Consumer) {
	group, ctx := errgroup.WithContext(ctx)
	var consumers []*kafka.Consumer

	for i := 0; i < cfg.WorkerCount; i++ {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.RequestsTopicName, kafka.WithDeadLetterer(dl))
		consumers = append(consumers, consumer)

		worker := i
		group.Go(func() error {
			log.Info().Int("worker", worker).Msg("Starting reservation request worker")
			return consumer.ConsumeRequests(ctx, processor)
		})
	}

	commandConsumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, cfg.CommandsTopicName, kafka.WithDeadLetterer(dl))
	consumers = append(consumers, commandConsumer)
	group.Go(func() error {
		return commandConsumer.ConsumeCommands(ctx, processor)
	})

	return group, consumers
}

// gracefulShutdown handles graceful shutdown of the service
func gracefulShutdown(cfg *config.Config, cancel context.CancelFunc, srv *http.Server, group *errgroup.Group) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Stock Worker...")

	cancel()

	// Wait for in-flight message handling to finish before readers close
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Consumer group stopped with error")
	}

	ctx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced shutdown")
	}

	log.Info().Msg("Stock Worker stopped")
}

func main() {
	setupLogging()
	log.Info().Msg("Starting Stock Worker...")

	cfg := config.LoadConfig()

	var m *metrics.Metrics
	if cfg.EnableMetrics {
		m = metrics.New()
	}

	stockLedger := initializeLedger(cfg)

	publisher := initializePublisher(cfg)
	defer publisher.Close()

	processor := service.NewStockProcessor(stockLedger, publisher, m)

	sweeperOpts := []sweeper.Option{
		sweeper.WithReleaseHook(processor.HandleRelease),
	}
	if m != nil {
		sweeperOpts = append(sweeperOpts, sweeper.WithSweepObserver(func(elapsed time.Duration, released int) {
			m.SweepDuration.Observe(elapsed.Seconds())
		}))
	}
	expirySweeper := sweeper.New(stockLedger, cfg.SweepInterval, sweeperOpts...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Publish the seeded state so the read side starts warm
	if err := processor.PublishSnapshot(ctx); err != nil {
		log.Error().Err(err).Msg("Failed to publish boot snapshot, read side starts cold")
	}

	go expirySweeper.Run(ctx)

	dl := &countingDeadLetterer{publisher: publisher, metrics: m}
	group, consumers := startConsumers(ctx, cfg, processor, dl)
	defer func() {
		for _, c := range consumers {
			c.Close()
		}
	}()

	srv := startHTTPServer(cfg, api.NewWorkerHandler(stockLedger, m))

	log.Info().
		Str("service", cfg.ServiceName).
		Int("workers", cfg.WorkerCount).
		Str("instance_id", cfg.InstanceID).
		Msg("Stock Worker started, consuming reservation requests...")

	gracefulShutdown(cfg, cancel, srv, group)
}
