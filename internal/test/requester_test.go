package test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-reservation-service/internal/models"
	"stock-reservation-service/internal/service"
)

func TestReservationService_RequestReservation(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishRequest", mock.Anything, mock.Anything).Return(nil)

	svc := service.NewReservationService(publisher)

	response, err := svc.RequestReservation(context.Background(), "basket-1", 2, 10)
	require.NoError(t, err)

	assert.Equal(t, 2, response.ItemID)
	assert.Equal(t, 10, response.Quantity)
	assert.Equal(t, "basket-1", response.BasketID)
	assert.Equal(t, "queued", response.Status)

	publisher.AssertCalled(t, "PublishRequest", mock.Anything, mock.MatchedBy(func(req *models.ReservationRequest) bool {
		return req.ItemID == 2 && req.Quantity == 10 && req.BasketID == "basket-1"
	}))
}

func TestReservationService_RequestReservationValidation(t *testing.T) {
	publisher := new(MockPublisher)
	svc := service.NewReservationService(publisher)

	_, err := svc.RequestReservation(context.Background(), "basket-1", 2, 0)
	assert.True(t, models.IsValidationError(err))

	_, err = svc.RequestReservation(context.Background(), "", 2, 5)
	assert.True(t, models.IsValidationError(err))

	_, err = svc.RequestReservation(context.Background(), "basket-1", 0, 5)
	assert.True(t, models.IsValidationError(err))

	publisher.AssertNotCalled(t, "PublishRequest", mock.Anything, mock.Anything)
}

func TestReservationService_PublishFailureIsSystemError(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishRequest", mock.Anything, mock.Anything).Return(errors.New("broker unreachable"))

	svc := service.NewReservationService(publisher)

	_, err := svc.RequestReservation(context.Background(), "basket-1", 2, 10)
	require.Error(t, err)
	assert.True(t, models.IsSystemError(err))
}

func TestReservationService_ConfirmHold(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishCommand", mock.Anything, mock.Anything).Return(nil)

	svc := service.NewReservationService(publisher)
	require.NoError(t, svc.ConfirmHold(context.Background(), "basket-1", 2))

	publisher.AssertCalled(t, "PublishCommand", mock.Anything, mock.MatchedBy(func(cmd *models.StockCommand) bool {
		return cmd.Type == models.CommandTypeConfirmHold &&
			cmd.ItemID == 2 &&
			cmd.BasketID == "basket-1" &&
			cmd.CommandID != "" &&
			!cmd.Timestamp.IsZero()
	}))
}

func TestReservationService_CancelHold(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishCommand", mock.Anything, mock.Anything).Return(nil)

	svc := service.NewReservationService(publisher)
	require.NoError(t, svc.CancelHold(context.Background(), "basket-1", 2))

	publisher.AssertCalled(t, "PublishCommand", mock.Anything, mock.MatchedBy(func(cmd *models.StockCommand) bool {
		return cmd.Type == models.CommandTypeCancelHold && cmd.BasketID == "basket-1"
	}))
}

func TestReservationService_Restock(t *testing.T) {
	publisher := new(MockPublisher)
	publisher.On("PublishCommand", mock.Anything, mock.Anything).Return(nil)

	svc := service.NewReservationService(publisher)
	require.NoError(t, svc.Restock(context.Background(), 7, 100))

	publisher.AssertCalled(t, "PublishCommand", mock.Anything, mock.MatchedBy(func(cmd *models.StockCommand) bool {
		return cmd.Type == models.CommandTypeRestock && cmd.ItemID == 7 && cmd.Quantity == 100
	}))
}

func TestReservationService_RestockValidation(t *testing.T) {
	publisher := new(MockPublisher)
	svc := service.NewReservationService(publisher)

	err := svc.Restock(context.Background(), 7, 0)
	assert.True(t, models.IsValidationError(err))
	publisher.AssertNotCalled(t, "PublishCommand", mock.Anything, mock.Anything)
}
