package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"stock-reservation-service/internal/interfaces"
	"stock-reservation-service/internal/ledger"
	"stock-reservation-service/internal/metrics"
	"stock-reservation-service/internal/models"
)

// StockProcessor applies inbound messages to the ledger and publishes the
// observable outcomes: state snapshots after every mutation, rejection
// events for insufficient stock. The ledger itself never publishes.
type StockProcessor struct {
	ledger    *ledger.Ledger
	publisher interfaces.MessagePublisher
	metrics   *metrics.Metrics
}

// NewStockProcessor creates a new processor over the given ledger.
// metrics may be nil when metrics are disabled.
func NewStockProcessor(l *ledger.Ledger, publisher interfaces.MessagePublisher, m *metrics.Metrics) *StockProcessor {
	return &StockProcessor{
		ledger:    l,
		publisher: publisher,
		metrics:   m,
	}
}

// HandleRequest runs the consumer state machine for one reservation
// request: apply to the ledger, then either publish the new state
// (accepted) or a rejection event (insufficient stock). Both outcomes are
// acknowledged by the caller; only infrastructure failures return an error.
func (p *StockProcessor) HandleRequest(ctx context.Context, req *models.ReservationRequest) error {
	log.Info().
		Int("item_id", req.ItemID).
		Int("qty", req.Quantity).
		Str("basket_id", req.BasketID).
		Msg("Processing reservation request")

	result, err := p.ledger.Reserve(req.ItemID, req.Quantity, req.BasketID)
	if err != nil {
		// Precondition violations; the consumer already validated the
		// payload, so these only fire on a contract mismatch.
		return fmt.Errorf("reserve failed: %w", err)
	}

	if !result.Accepted {
		return p.publishRejection(ctx, req, result)
	}

	if p.metrics != nil {
		p.metrics.ReservationsAccepted.Inc()
		p.metrics.ObserveAvailability(req.ItemID, result.AvailableQty)
	}

	log.Info().
		Int("item_id", req.ItemID).
		Int("qty", req.Quantity).
		Str("basket_id", req.BasketID).
		Time("expires_at", result.ExpiresAt).
		Int("available_qty", result.AvailableQty).
		Msg("Reservation accepted")

	return p.publishState(ctx, req.ItemID, result.ItemQuantities)
}

// publishRejection makes the business rejection observable. A rejection is
// an expected outcome, not an error: the caller still acknowledges the
// request once the rejection event is out.
func (p *StockProcessor) publishRejection(ctx context.Context, req *models.ReservationRequest, result ledger.ReserveResult) error {
	if p.metrics != nil {
		p.metrics.ReservationsRejected.WithLabelValues(result.Reason).Inc()
	}

	log.Warn().
		Int("item_id", req.ItemID).
		Int("requested", req.Quantity).
		Int("available", result.AvailableQty).
		Str("basket_id", req.BasketID).
		Str("reason", result.Reason).
		Msg("Reservation rejected")

	event := &models.RejectionEvent{
		EventID:      uuid.New().String(),
		ItemID:       req.ItemID,
		BasketID:     req.BasketID,
		RequestedQty: req.Quantity,
		AvailableQty: result.AvailableQty,
		Reason:       result.Reason,
		Timestamp:    time.Now().UTC(),
	}

	if err := p.publisher.PublishRejection(ctx, event); err != nil {
		// The rejection must not be silently dropped: fail the message so
		// the broker redelivers and the (idempotent) rejection is retried.
		return fmt.Errorf("failed to publish rejection: %w", err)
	}
	return nil
}

// HandleCommand applies a confirm / cancel / restock transition. A missing
// hold is a warn-level no-op: commands are redelivered at-least-once, so a
// second delivery must not fail the message.
func (p *StockProcessor) HandleCommand(ctx context.Context, cmd *models.StockCommand) error {
	log.Info().
		Str("command_type", cmd.Type).
		Str("command_id", cmd.CommandID).
		Int("item_id", cmd.ItemID).
		Str("basket_id", cmd.BasketID).
		Msg("Processing stock command")

	var (
		quantities ledger.ItemQuantities
		err        error
	)

	switch cmd.Type {
	case models.CommandTypeConfirmHold:
		quantities, err = p.ledger.Confirm(cmd.ItemID, cmd.BasketID)
		if err == nil && p.metrics != nil {
			p.metrics.HoldsConfirmed.Inc()
		}
	case models.CommandTypeCancelHold:
		quantities, err = p.ledger.Cancel(cmd.ItemID, cmd.BasketID)
		if err == nil && p.metrics != nil {
			p.metrics.HoldsCancelled.Inc()
		}
	case models.CommandTypeRestock:
		quantities, err = p.ledger.Restock(cmd.ItemID, cmd.Quantity)
	default:
		return fmt.Errorf("unknown command type: %s", cmd.Type)
	}

	if err == ledger.ErrHoldNotFound {
		log.Warn().
			Str("command_type", cmd.Type).
			Int("item_id", cmd.ItemID).
			Str("basket_id", cmd.BasketID).
			Msg("No active hold for command, treating as already settled")
		return nil
	}
	if err != nil {
		return fmt.Errorf("command %s failed: %w", cmd.Type, err)
	}

	if p.metrics != nil {
		p.metrics.ObserveAvailability(cmd.ItemID, quantities.AvailableQty)
	}

	return p.publishState(ctx, cmd.ItemID, quantities)
}

// HandleRelease is the sweeper's release hook: it publishes the restored
// availability for every reclaimed hold.
func (p *StockProcessor) HandleRelease(ctx context.Context, release ledger.Release) error {
	if p.metrics != nil {
		p.metrics.HoldsReleased.Inc()
		p.metrics.ObserveAvailability(release.ItemID, release.AvailableQty)
	}
	return p.publishState(ctx, release.ItemID, release.ItemQuantities)
}

// PublishSnapshot publishes the current state of every item. Called once at
// startup so the read side warms up before any traffic.
func (p *StockProcessor) PublishSnapshot(ctx context.Context) error {
	for itemID, snap := range p.ledger.Snapshot() {
		if p.metrics != nil {
			p.metrics.ObserveAvailability(itemID, snap.AvailableQty)
		}
		quantities := ledger.ItemQuantities{
			AvailableQty: snap.AvailableQty,
			ReservedQty:  snap.ReservedQty,
		}
		if err := p.publishState(ctx, itemID, quantities); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot exposes the ledger's diagnostic view for the HTTP handler.
func (p *StockProcessor) Snapshot() map[int]ledger.ItemSnapshot {
	return p.ledger.Snapshot()
}

func (p *StockProcessor) publishState(ctx context.Context, itemID int, quantities ledger.ItemQuantities) error {
	state := &models.StockState{
		ItemID:       itemID,
		AvailableQty: quantities.AvailableQty,
		ReservedQty:  quantities.ReservedQty,
		UpdatedAt:    time.Now().UTC(),
	}

	if err := p.publisher.PublishState(ctx, state); err != nil {
		return fmt.Errorf("failed to publish stock state: %w", err)
	}
	return nil
}
