package interfaces

import (
	"context"

	"stock-reservation-service/internal/models"
)

// MessagePublisher defines the contract for publishing messages
type MessagePublisher interface {
	PublishRequest(ctx context.Context, req *models.ReservationRequest) error
	PublishCommand(ctx context.Context, cmd *models.StockCommand) error
	PublishRejection(ctx context.Context, event *models.RejectionEvent) error
	PublishState(ctx context.Context, state *models.StockState) error
	PublishDeadLetter(ctx context.Context, key, value []byte, sourceTopic, reason string) error
	Close() error
}
