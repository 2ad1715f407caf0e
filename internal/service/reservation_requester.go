package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/interfaces"
	"stock-reservation-service/internal/models"
)

// ReservationService is the gateway-side producer. It never touches stock
// itself: every operation is turned into a message and the caller gets an
// asynchronous acknowledgement.
type ReservationService struct {
	publisher interfaces.MessagePublisher
}

// NewReservationService creates a new gateway producer service.
func NewReservationService(publisher interfaces.MessagePublisher) *ReservationService {
	return &ReservationService{publisher: publisher}
}

// RequestReservation publishes a reservation request for a basket item. The
// same (basket, item) pair can be requested again with a new quantity; the
// worker treats that as a replacement of the existing hold.
func (s *ReservationService) RequestReservation(ctx context.Context, basketID string, itemID, quantity int) (*models.ReservationRequestedResponse, error) {
	req := &models.ReservationRequest{
		ItemID:   itemID,
		Quantity: quantity,
		BasketID: basketID,
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := s.publisher.PublishRequest(ctx, req); err != nil {
		log.Error().Err(err).
			Int("item_id", itemID).
			Str("basket_id", basketID).
			Msg("Failed to publish reservation request")
		return nil, models.NewSystemError(models.ErrorCodePublishError, "kafka", "failed to publish reservation request", err)
	}

	log.Info().
		Int("item_id", itemID).
		Int("qty", quantity).
		Str("basket_id", basketID).
		Msg("Reservation request queued")

	return &models.ReservationRequestedResponse{
		ItemID:   itemID,
		Quantity: quantity,
		BasketID: basketID,
		Status:   "queued",
		Message:  "Reservation request accepted for processing",
	}, nil
}

// ConfirmHold publishes a command converting the basket's hold into a
// permanent deduction.
func (s *ReservationService) ConfirmHold(ctx context.Context, basketID string, itemID int) error {
	return s.publishCommand(ctx, &models.StockCommand{
		CommandID: uuid.New().String(),
		Type:      models.CommandTypeConfirmHold,
		ItemID:    itemID,
		BasketID:  basketID,
		Timestamp: time.Now().UTC(),
	})
}

// CancelHold publishes a command releasing the basket's hold back to
// available stock before it expires on its own.
func (s *ReservationService) CancelHold(ctx context.Context, basketID string, itemID int) error {
	return s.publishCommand(ctx, &models.StockCommand{
		CommandID: uuid.New().String(),
		Type:      models.CommandTypeCancelHold,
		ItemID:    itemID,
		BasketID:  basketID,
		Timestamp: time.Now().UTC(),
	})
}

// Restock publishes an administrative command adding quantity to an item.
func (s *ReservationService) Restock(ctx context.Context, itemID, quantity int) error {
	return s.publishCommand(ctx, &models.StockCommand{
		CommandID: uuid.New().String(),
		Type:      models.CommandTypeRestock,
		ItemID:    itemID,
		Quantity:  quantity,
		Timestamp: time.Now().UTC(),
	})
}

func (s *ReservationService) publishCommand(ctx context.Context, cmd *models.StockCommand) error {
	if err := cmd.Validate(); err != nil {
		return err
	}

	if err := s.publisher.PublishCommand(ctx, cmd); err != nil {
		log.Error().Err(err).
			Str("command_type", cmd.Type).
			Int("item_id", cmd.ItemID).
			Msg("Failed to publish stock command")
		return models.NewSystemError(models.ErrorCodePublishError, "kafka", "failed to publish stock command", err)
	}

	log.Info().
		Str("command_type", cmd.Type).
		Str("command_id", cmd.CommandID).
		Int("item_id", cmd.ItemID).
		Str("basket_id", cmd.BasketID).
		Msg("Stock command queued")
	return nil
}
