package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/interfaces"
	"stock-reservation-service/internal/models"
)

// RejectionFeed mirrors rejection events into a per-basket cache list so the
// gateway can answer "what got rejected for this basket" without replaying
// the topic.
type RejectionFeed struct {
	cache interfaces.StockCache
}

// NewRejectionFeed creates a new rejection feed over the given cache.
func NewRejectionFeed(cache interfaces.StockCache) *RejectionFeed {
	return &RejectionFeed{cache: cache}
}

// HandleRejection appends one rejection event to its basket's feed.
func (f *RejectionFeed) HandleRejection(ctx context.Context, event *models.RejectionEvent) error {
	if err := f.cache.AppendRejection(ctx, event); err != nil {
		return models.NewSystemError(models.ErrorCodeInternalError, "redis", "failed to store rejection event", err)
	}

	log.Debug().
		Str("basket_id", event.BasketID).
		Int("item_id", event.ItemID).
		Str("reason", event.Reason).
		Msg("Rejection event stored")
	return nil
}

// ListRejections returns the recent rejections for a basket, newest first.
// An empty feed is a normal answer, not an error.
func (f *RejectionFeed) ListRejections(ctx context.Context, basketID string) ([]models.RejectionEvent, error) {
	events, err := f.cache.ListRejections(ctx, basketID)
	if err != nil {
		return nil, models.NewSystemError(models.ErrorCodeInternalError, "redis", "failed to read rejection feed", err)
	}
	return events, nil
}
