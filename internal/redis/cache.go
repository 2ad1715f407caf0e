package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/models"
)

// maxRejectionsPerBasket bounds the per-basket rejection feed.
const maxRejectionsPerBasket = 50

// CacheClient wraps Redis for the availability cache and the per-basket
// rejection feed, with cluster support.
type CacheClient struct {
	client    redis.UniversalClient // Universal client supports both single and cluster
	ttl       time.Duration
	keyPrefix string
}

// NewCacheClient creates a new Redis cache client with cluster support.
func NewCacheClient(addrs []string, password string, clusterMode bool, ttl time.Duration, keyPrefix string) *CacheClient {
	var client redis.UniversalClient

	if clusterMode {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        addrs,
			Password:     password,
			MaxRetries:   3,
			PoolSize:     50,
			MinIdleConns: 5,
			PoolTimeout:  30 * time.Second,

			MaxRedirects:   8,
			ReadOnly:       false,
			RouteByLatency: true,
		})
	} else {
		// Single Redis instance for development
		addr := "localhost:6379"
		if len(addrs) > 0 {
			addr = addrs[0]
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       0, // DB is not supported in cluster mode
			PoolSize: 10,
		})
	}

	return &CacheClient{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

// GetStockState retrieves a cached availability snapshot. A cache miss
// returns (nil, nil).
func (c *CacheClient) GetStockState(ctx context.Context, itemID int) (*models.StockState, error) {
	key := c.stockKey(itemID)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			// Cache miss
			return nil, nil
		}
		log.Error().Err(err).Int("item_id", itemID).Msg("Failed to get stock state from cache")
		return nil, fmt.Errorf("failed to get stock state from cache: %w", err)
	}

	var state models.StockState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		log.Error().Err(err).Int("item_id", itemID).Msg("Failed to unmarshal cached stock state")
		return nil, fmt.Errorf("failed to unmarshal cached stock state: %w", err)
	}

	log.Debug().Int("item_id", itemID).Msg("Cache hit for stock state")
	return &state, nil
}

// SetStockState stores an availability snapshot in cache.
func (c *CacheClient) SetStockState(ctx context.Context, state *models.StockState) error {
	key := c.stockKey(state.ItemID)

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal stock state: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		log.Error().Err(err).Int("item_id", state.ItemID).Msg("Failed to set stock state in cache")
		return fmt.Errorf("failed to set stock state in cache: %w", err)
	}

	log.Debug().Int("item_id", state.ItemID).Msg("Cached stock state")
	return nil
}

// AppendRejection pushes a rejection event onto the basket's feed, trimmed
// to the newest maxRejectionsPerBasket entries and expiring with the TTL.
func (c *CacheClient) AppendRejection(ctx context.Context, event *models.RejectionEvent) error {
	key := c.rejectionsKey(event.BasketID)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rejection event: %w", err)
	}

	pipe := c.client.TxPipeline()
	pipe.LPush(ctx, key, data)
	pipe.LTrim(ctx, key, 0, maxRejectionsPerBasket-1)
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("basket_id", event.BasketID).Msg("Failed to append rejection to feed")
		return fmt.Errorf("failed to append rejection to feed: %w", err)
	}

	log.Debug().
		Str("basket_id", event.BasketID).
		Int("item_id", event.ItemID).
		Msg("Appended rejection to basket feed")
	return nil
}

// ListRejections returns the basket's rejection feed, newest first.
func (c *CacheClient) ListRejections(ctx context.Context, basketID string) ([]models.RejectionEvent, error) {
	key := c.rejectionsKey(basketID)

	entries, err := c.client.LRange(ctx, key, 0, maxRejectionsPerBasket-1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		log.Error().Err(err).Str("basket_id", basketID).Msg("Failed to list rejections")
		return nil, fmt.Errorf("failed to list rejections: %w", err)
	}

	events := make([]models.RejectionEvent, 0, len(entries))
	for _, entry := range entries {
		var event models.RejectionEvent
		if err := json.Unmarshal([]byte(entry), &event); err != nil {
			log.Error().Err(err).Str("basket_id", basketID).Msg("Skipping undecodable rejection feed entry")
			continue
		}
		events = append(events, event)
	}

	return events, nil
}

// Ping checks if Redis is available.
func (c *CacheClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *CacheClient) Close() error {
	return c.client.Close()
}

func (c *CacheClient) stockKey(itemID int) string {
	return fmt.Sprintf("%sstock:%d", c.keyPrefix, itemID)
}

func (c *CacheClient) rejectionsKey(basketID string) string {
	return fmt.Sprintf("%srejections:%s", c.keyPrefix, basketID)
}
