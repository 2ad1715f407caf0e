package interfaces

import (
	"context"

	"stock-reservation-service/internal/models"
)

// ReservationRequester defines the basket-facing producer operations
type ReservationRequester interface {
	RequestReservation(ctx context.Context, basketID string, itemID, quantity int) (*models.ReservationRequestedResponse, error)
	ConfirmHold(ctx context.Context, basketID string, itemID int) error
	CancelHold(ctx context.Context, basketID string, itemID int) error
	Restock(ctx context.Context, itemID, quantity int) error
}

// RejectionReader exposes the per-basket rejection feed
type RejectionReader interface {
	ListRejections(ctx context.Context, basketID string) ([]models.RejectionEvent, error)
}

// AvailabilityReader defines the read-side query operations
type AvailabilityReader interface {
	GetAvailability(ctx context.Context, itemID int) (*models.AvailabilityResponse, error)
}
