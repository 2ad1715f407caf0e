package test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-reservation-service/internal/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := config.LoadConfig()

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "stock.reservations", cfg.RequestsTopicName)
	assert.Equal(t, "stock.commands", cfg.CommandsTopicName)
	assert.Equal(t, "stock.rejections", cfg.RejectionsTopicName)
	assert.Equal(t, "stock.state", cfg.StateTopicName)
	assert.Equal(t, "stock.reservations.dlq", cfg.DeadLetterTopicName)

	assert.Equal(t, 10*time.Minute, cfg.HoldDuration)
	assert.Equal(t, time.Minute, cfg.SweepInterval)

	// Default catalog: items 1-12 with 50 units each
	require.Len(t, cfg.SeedStock, 12)
	for itemID := 1; itemID <= 12; itemID++ {
		assert.Equal(t, 50, cfg.SeedStock[itemID])
	}

	assert.False(t, cfg.IsProduction())
}

func TestLoadConfig_SeedStockOverride(t *testing.T) {
	t.Setenv("SEED_STOCK", "1:100, 7:25,9:0")

	cfg := config.LoadConfig()

	require.Len(t, cfg.SeedStock, 3)
	assert.Equal(t, 100, cfg.SeedStock[1])
	assert.Equal(t, 25, cfg.SeedStock[7])
	assert.Equal(t, 0, cfg.SeedStock[9])
}

func TestLoadConfig_MalformedSeedEntriesAreSkipped(t *testing.T) {
	t.Setenv("SEED_STOCK", "1:50,bogus,2:-5,:10,3:30")

	cfg := config.LoadConfig()

	require.Len(t, cfg.SeedStock, 2)
	assert.Equal(t, 50, cfg.SeedStock[1])
	assert.Equal(t, 30, cfg.SeedStock[3])
}

func TestLoadConfig_EntirelyMalformedSeedFallsBack(t *testing.T) {
	t.Setenv("SEED_STOCK", "not-a-seed-spec")

	cfg := config.LoadConfig()

	// Nothing parsed, so the default catalog applies
	assert.Len(t, cfg.SeedStock, 12)
}

func TestLoadConfig_DurationsFromEnv(t *testing.T) {
	t.Setenv("HOLD_DURATION_SEC", "120")
	t.Setenv("SWEEP_INTERVAL_SEC", "15")

	cfg := config.LoadConfig()

	assert.Equal(t, 2*time.Minute, cfg.HoldDuration)
	assert.Equal(t, 15*time.Second, cfg.SweepInterval)
}

func TestLoadConfig_BrokerListParsing(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092;kafka-3:9092")

	cfg := config.LoadConfig()

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092", "kafka-3:9092"}, cfg.KafkaBrokers)
}

func TestLoadConfig_WorkerCountByEnvironment(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	cfg := config.LoadConfig()
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.True(t, cfg.IsProduction())

	t.Setenv("WORKER_COUNT", "8")
	cfg = config.LoadConfig()
	assert.Equal(t, 8, cfg.WorkerCount)
}
