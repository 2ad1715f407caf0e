package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/interfaces"
	"stock-reservation-service/internal/models"
)

// ReaderService maintains the read-side availability cache from stock state
// snapshots and serves availability queries out of it.
type ReaderService struct {
	cache interfaces.StockCache
}

// NewReaderService creates a new read-side service over the given cache.
func NewReaderService(cache interfaces.StockCache) *ReaderService {
	return &ReaderService{cache: cache}
}

// HandleState stores the latest per-item snapshot. Snapshots for the same
// item supersede each other, so a write failure is recoverable by the next
// update.
func (s *ReaderService) HandleState(ctx context.Context, state *models.StockState) error {
	if err := s.cache.SetStockState(ctx, state); err != nil {
		return models.NewSystemError(models.ErrorCodeInternalError, "redis", "failed to cache stock state", err)
	}

	log.Debug().
		Int("item_id", state.ItemID).
		Int("available_qty", state.AvailableQty).
		Int("reserved_qty", state.ReservedQty).
		Msg("Stock state cached")
	return nil
}

// GetAvailability answers an availability query from the cache. A miss means
// no snapshot has arrived for the item yet (or the entry expired); the
// response reports zero quantities with CacheHit false rather than guessing.
func (s *ReaderService) GetAvailability(ctx context.Context, itemID int) (*models.AvailabilityResponse, error) {
	state, err := s.cache.GetStockState(ctx, itemID)
	if err != nil {
		return nil, models.NewSystemError(models.ErrorCodeInternalError, "redis", "failed to read stock state", err)
	}

	if state == nil {
		log.Debug().Int("item_id", itemID).Msg("Stock state cache miss")
		return &models.AvailabilityResponse{
			ItemID:   itemID,
			CacheHit: false,
		}, nil
	}

	return &models.AvailabilityResponse{
		ItemID:       state.ItemID,
		AvailableQty: state.AvailableQty,
		ReservedQty:  state.ReservedQty,
		CacheHit:     true,
		LastUpdated:  state.UpdatedAt,
	}, nil
}

// WarmupWait gives a freshly started reader a short grace period before it
// reports ready, so the boot snapshot stream has a chance to land.
func (s *ReaderService) WarmupWait(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
