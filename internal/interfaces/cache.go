package interfaces

import (
	"context"

	"stock-reservation-service/internal/models"
)

// StockCache defines the contract for the read-side cache and the
// per-basket rejection feed
type StockCache interface {
	GetStockState(ctx context.Context, itemID int) (*models.StockState, error)
	SetStockState(ctx context.Context, state *models.StockState) error
	AppendRejection(ctx context.Context, event *models.RejectionEvent) error
	ListRejections(ctx context.Context, basketID string) ([]models.RejectionEvent, error)
	Close() error
}
