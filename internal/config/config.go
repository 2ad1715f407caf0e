package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Config holds all configuration for the application
type Config struct {
	// Kafka configuration
	KafkaBrokers        []string
	RequestsTopicName   string
	CommandsTopicName   string
	RejectionsTopicName string
	StateTopicName      string
	DeadLetterTopicName string
	ConsumerGroup       string

	// Redis configuration
	RedisAddrs       []string
	RedisPassword    string
	RedisClusterMode bool
	RedisTTL         time.Duration
	RedisKeyPrefix   string

	// Server configuration
	ServerAddr string
	ServerPort string

	// Reservation configuration
	HoldDuration  time.Duration // how long an unconfirmed hold survives
	SweepInterval time.Duration // how often expired holds are reclaimed
	SeedStock     map[int]int   // initial available quantity per item id

	// Worker configuration
	WorkerCount     int
	ShutdownTimeout time.Duration

	// Service identification
	ServiceName string
	InstanceID  string
	Environment string

	// Observability
	EnableMetrics bool
}

// LoadConfig loads configuration from environment variables with defaults
// matching the reference deployment: 10 minute holds, 60 second sweeps,
// items 1-12 seeded with 50 units each.
func LoadConfig() *Config {
	environment := getEnv("ENVIRONMENT", "development")

	cfg := &Config{
		// Kafka
		KafkaBrokers:        getEnvAsStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		RequestsTopicName:   getEnv("KAFKA_REQUESTS_TOPIC", "stock.reservations"),
		CommandsTopicName:   getEnv("KAFKA_COMMANDS_TOPIC", "stock.commands"),
		RejectionsTopicName: getEnv("KAFKA_REJECTIONS_TOPIC", "stock.rejections"),
		StateTopicName:      getEnv("KAFKA_STATE_TOPIC", "stock.state"),
		DeadLetterTopicName: getEnv("KAFKA_DEAD_LETTER_TOPIC", "stock.reservations.dlq"),
		ConsumerGroup:       getEnv("KAFKA_CONSUMER_GROUP", "stock-worker"),

		// Redis
		RedisAddrs:       getEnvAsStringSlice("REDIS_ADDRS", []string{"localhost:6379"}),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		RedisClusterMode: getEnvAsBool("REDIS_CLUSTER_MODE", len(getEnvAsStringSlice("REDIS_ADDRS", []string{})) > 1),
		RedisTTL:         time.Duration(getEnvAsInt("REDIS_TTL_SEC", 900)) * time.Second,
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", fmt.Sprintf("stock:%s:", environment)),

		// Server
		ServerAddr: getEnv("SERVER_ADDR", "0.0.0.0"),
		ServerPort: getEnv("SERVER_PORT", "8080"),

		// Reservation
		HoldDuration:  time.Duration(getEnvAsInt("HOLD_DURATION_SEC", 600)) * time.Second,
		SweepInterval: time.Duration(getEnvAsInt("SWEEP_INTERVAL_SEC", 60)) * time.Second,
		SeedStock:     getEnvAsSeedSpec("SEED_STOCK", defaultSeedStock()),

		// Workers
		WorkerCount:     getEnvAsInt("WORKER_COUNT", getDefaultWorkerCount(environment)),
		ShutdownTimeout: time.Duration(getEnvAsInt("SHUTDOWN_TIMEOUT_SEC", 30)) * time.Second,

		// Service identification
		ServiceName: getEnv("SERVICE_NAME", "stock-reservation-service"),
		InstanceID:  getEnv("INSTANCE_ID", uuid.New().String()[:8]),
		Environment: environment,

		// Observability
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
	}

	return cfg
}

// defaultSeedStock mirrors the reference catalog: items 1-12 with 50 units.
func defaultSeedStock() map[int]int {
	seed := make(map[int]int, 12)
	for itemID := 1; itemID <= 12; itemID++ {
		seed[itemID] = 50
	}
	return seed
}

func getDefaultWorkerCount(env string) int {
	switch env {
	case "production":
		return 4
	case "staging":
		return 2
	default:
		return 1
	}
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	// Support both comma and semicolon separated values
	values := strings.FieldsFunc(valueStr, func(c rune) bool {
		return c == ',' || c == ';'
	})

	for i, v := range values {
		values[i] = strings.TrimSpace(v)
	}

	return values
}

// getEnvAsSeedSpec parses "itemId:qty" pairs, e.g. "1:50,2:50,7:10".
// Malformed entries are skipped rather than failing startup.
func getEnvAsSeedSpec(key string, defaultValue map[int]int) map[int]int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	seed := make(map[int]int)
	for _, pair := range strings.Split(valueStr, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 {
			continue
		}
		itemID, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || itemID <= 0 {
			continue
		}
		qty, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil || qty < 0 {
			continue
		}
		seed[itemID] = qty
	}

	if len(seed) == 0 {
		return defaultValue
	}
	return seed
}
