package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/api"
	"stock-reservation-service/internal/config"
	"stock-reservation-service/internal/kafka"
	redisCache "stock-reservation-service/internal/redis"
	"stock-reservation-service/internal/service"
)

// setupLogging configures structured logging
func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// initializePublisher sets up the Kafka publisher
func initializePublisher(cfg *config.Config) *kafka.Publisher {
	return kafka.NewPublisher(cfg.KafkaBrokers, kafka.Topics{
		Requests:   cfg.RequestsTopicName,
		Commands:   cfg.CommandsTopicName,
		Rejections: cfg.RejectionsTopicName,
		State:      cfg.StateTopicName,
		DeadLetter: cfg.DeadLetterTopicName,
	})
}

// initializeCache sets up Redis with cluster support
func initializeCache(cfg *config.Config) *redisCache.CacheClient {
	return redisCache.NewCacheClient(
		cfg.RedisAddrs,
		cfg.RedisPassword,
		cfg.RedisClusterMode,
		cfg.RedisTTL,
		cfg.RedisKeyPrefix,
	)
}

// startHTTPServer starts the gateway HTTP server
func startHTTPServer(cfg *config.Config, handler *api.GatewayHandler) *http.Server {
	serverAddr := fmt.Sprintf("%s:%s", cfg.ServerAddr, cfg.ServerPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: handler.SetupGatewayRoutes(),
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Basket Gateway HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return srv
}

// startRejectionFeed consumes rejection events into the per-basket feed.
// The gateway uses its own consumer group so the worker's offsets are
// untouched.
func startRejectionFeed(ctx context.Context, cfg *config.Config, feed *service.RejectionFeed, publisher *kafka.Publisher) *kafka.Consumer {
	consumer := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.ConsumerGroup+"-gateway",
		cfg.RejectionsTopicName,
		kafka.WithDeadLetterer(publisher),
	)

	go func() {
		if err := consumer.ConsumeRejections(ctx, feed); err != nil {
			log.Error().Err(err).Msg("Rejection feed consumption stopped")
		}
	}()

	return consumer
}

// gracefulShutdown handles graceful shutdown of the service
func gracefulShutdown(cfg *config.Config, cancel context.CancelFunc, srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Basket Gateway...")

	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced shutdown")
	}

	time.Sleep(2 * time.Second)

	log.Info().Msg("Basket Gateway stopped")
}

func main() {
	setupLogging()
	log.Info().Msg("Starting Basket Gateway...")

	cfg := config.LoadConfig()

	publisher := initializePublisher(cfg)
	defer publisher.Close()

	cache := initializeCache(cfg)
	defer cache.Close()

	requester := service.NewReservationService(publisher)
	feed := service.NewRejectionFeed(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := startRejectionFeed(ctx, cfg, feed, publisher)
	defer consumer.Close()

	srv := startHTTPServer(cfg, api.NewGatewayHandler(requester, feed))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("instance_id", cfg.InstanceID).
		Msg("Basket Gateway started")

	gracefulShutdown(cfg, cancel, srv)
}
