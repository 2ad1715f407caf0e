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

// startHTTPServer starts the reader HTTP server
func startHTTPServer(cfg *config.Config, handler *api.ReaderHandler) *http.Server {
	serverAddr := fmt.Sprintf("%s:%s", cfg.ServerAddr, cfg.ServerPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: handler.SetupReaderRoutes(),
	}

	go func() {
		log.Info().Str("address", serverAddr).Msg("Stock Reader HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return srv
}

// startStateConsumer keeps the cache current from stock state snapshots.
// The reader uses its own consumer group so every reader instance sees the
// full stream.
func startStateConsumer(ctx context.Context, cfg *config.Config, reader *service.ReaderService) *kafka.Consumer {
	consumer := kafka.NewConsumer(
		cfg.KafkaBrokers,
		cfg.ConsumerGroup+"-reader-"+cfg.InstanceID,
		cfg.StateTopicName,
	)

	go func() {
		if err := consumer.ConsumeState(ctx, reader); err != nil {
			log.Error().Err(err).Msg("Stock state consumption stopped")
		}
	}()

	return consumer
}

// gracefulShutdown handles graceful shutdown of the service
func gracefulShutdown(cfg *config.Config, cancel context.CancelFunc, srv *http.Server) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down Stock Reader...")

	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced shutdown")
	}

	time.Sleep(2 * time.Second)

	log.Info().Msg("Stock Reader stopped")
}

func main() {
	setupLogging()
	log.Info().Msg("Starting Stock Reader...")

	cfg := config.LoadConfig()

	cache := initializeCache(cfg)
	defer cache.Close()

	reader := service.NewReaderService(cache)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := startStateConsumer(ctx, cfg, reader)
	defer consumer.Close()

	// Let the boot snapshot stream land before serving queries
	reader.WarmupWait(ctx, 2*time.Second)

	srv := startHTTPServer(cfg, api.NewReaderHandler(reader))

	log.Info().
		Str("service", cfg.ServiceName).
		Str("instance_id", cfg.InstanceID).
		Msg("Stock Reader started")

	gracefulShutdown(cfg, cancel, srv)
}
