package test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stock-reservation-service/internal/models"
	"stock-reservation-service/internal/service"
	"stock-reservation-service/internal/sweeper"
)

// MockPublisher records outbound messages instead of writing to Kafka
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishRequest(ctx context.Context, req *models.ReservationRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockPublisher) PublishCommand(ctx context.Context, cmd *models.StockCommand) error {
	args := m.Called(ctx, cmd)
	return args.Error(0)
}

func (m *MockPublisher) PublishRejection(ctx context.Context, event *models.RejectionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) PublishState(ctx context.Context, state *models.StockState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockPublisher) PublishDeadLetter(ctx context.Context, key, value []byte, sourceTopic, reason string) error {
	args := m.Called(ctx, key, value, sourceTopic, reason)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestStockProcessor_AcceptedRequestPublishesState(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	req := &models.ReservationRequest{ItemID: 2, Quantity: 10, BasketID: "B1"}
	err := processor.HandleRequest(context.Background(), req)
	require.NoError(t, err)

	publisher.AssertCalled(t, "PublishState", mock.Anything, mock.MatchedBy(func(state *models.StockState) bool {
		return state.ItemID == 2 && state.AvailableQty == 40 && state.ReservedQty == 10
	}))
	publisher.AssertNotCalled(t, "PublishRejection", mock.Anything, mock.Anything)
}

func TestStockProcessor_InsufficientStockPublishesRejection(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 5}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishRejection", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	req := &models.ReservationRequest{ItemID: 2, Quantity: 10, BasketID: "B1"}
	err := processor.HandleRequest(context.Background(), req)

	// A business rejection is a handled outcome, so the message commits
	require.NoError(t, err)

	publisher.AssertCalled(t, "PublishRejection", mock.Anything, mock.MatchedBy(func(event *models.RejectionEvent) bool {
		return event.ItemID == 2 &&
			event.BasketID == "B1" &&
			event.RequestedQty == 10 &&
			event.AvailableQty == 5 &&
			event.Reason == models.RejectionReasonInsufficientStock
	}))
	publisher.AssertNotCalled(t, "PublishState", mock.Anything, mock.Anything)
}

func TestStockProcessor_RejectionPublishFailurePropagates(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 5}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishRejection", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	processor := service.NewStockProcessor(l, publisher, nil)

	req := &models.ReservationRequest{ItemID: 2, Quantity: 10, BasketID: "B1"}
	err := processor.HandleRequest(context.Background(), req)

	// The consumer must redeliver so the rejection is not silently lost
	assert.Error(t, err)
}

func TestStockProcessor_ConfirmCommand(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	_, err := l.Reserve(2, 10, "B1")
	require.NoError(t, err)

	cmd := &models.StockCommand{
		CommandID: "cmd-1",
		Type:      models.CommandTypeConfirmHold,
		ItemID:    2,
		BasketID:  "B1",
	}
	require.NoError(t, processor.HandleCommand(context.Background(), cmd))

	publisher.AssertCalled(t, "PublishState", mock.Anything, mock.MatchedBy(func(state *models.StockState) bool {
		return state.ItemID == 2 && state.AvailableQty == 40 && state.ReservedQty == 0
	}))
}

func TestStockProcessor_CancelCommand(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	_, err := l.Reserve(2, 10, "B1")
	require.NoError(t, err)

	cmd := &models.StockCommand{
		CommandID: "cmd-2",
		Type:      models.CommandTypeCancelHold,
		ItemID:    2,
		BasketID:  "B1",
	}
	require.NoError(t, processor.HandleCommand(context.Background(), cmd))

	publisher.AssertCalled(t, "PublishState", mock.Anything, mock.MatchedBy(func(state *models.StockState) bool {
		return state.ItemID == 2 && state.AvailableQty == 50 && state.ReservedQty == 0
	}))
}

func TestStockProcessor_RedeliveredCommandIsNoOp(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	_, err := l.Reserve(2, 10, "B1")
	require.NoError(t, err)

	cmd := &models.StockCommand{
		CommandID: "cmd-3",
		Type:      models.CommandTypeConfirmHold,
		ItemID:    2,
		BasketID:  "B1",
	}
	require.NoError(t, processor.HandleCommand(context.Background(), cmd))

	// Second delivery finds no hold and succeeds without side effects
	require.NoError(t, processor.HandleCommand(context.Background(), cmd))

	quantities, err := l.Quantities(2)
	require.NoError(t, err)
	assert.Equal(t, 40, quantities.AvailableQty)
}

func TestStockProcessor_RestockCommand(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	cmd := &models.StockCommand{
		CommandID: "cmd-4",
		Type:      models.CommandTypeRestock,
		ItemID:    2,
		Quantity:  25,
	}
	require.NoError(t, processor.HandleCommand(context.Background(), cmd))

	publisher.AssertCalled(t, "PublishState", mock.Anything, mock.MatchedBy(func(state *models.StockState) bool {
		return state.ItemID == 2 && state.AvailableQty == 75
	}))
}

func TestStockProcessor_UnknownCommandType(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)

	processor := service.NewStockProcessor(l, publisher, nil)

	cmd := &models.StockCommand{CommandID: "cmd-5", Type: "explode", ItemID: 2}
	err := processor.HandleCommand(context.Background(), cmd)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command type")
}

func TestStockProcessor_PublishSnapshotCoversAllItems(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{1: 50, 2: 50, 3: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)
	require.NoError(t, processor.PublishSnapshot(context.Background()))

	publisher.AssertNumberOfCalls(t, "PublishState", 3)
}

// Full hold lifecycle: reserve, let it expire, sweep it back.
func TestStockProcessor_ReserveExpireRestoreFlow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLedger(map[int]int{2: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)

	req := &models.ReservationRequest{ItemID: 2, Quantity: 10, BasketID: "B1"}
	require.NoError(t, processor.HandleRequest(context.Background(), req))

	quantities, err := l.Quantities(2)
	require.NoError(t, err)
	assert.Equal(t, 40, quantities.AvailableQty)

	s := sweeper.New(l, time.Minute,
		sweeper.WithClock(func() time.Time { return now.Add(11 * time.Minute) }),
		sweeper.WithReleaseHook(processor.HandleRelease),
	)
	assert.Equal(t, 1, s.Sweep(context.Background()))

	quantities, err = l.Quantities(2)
	require.NoError(t, err)
	assert.Equal(t, 50, quantities.AvailableQty)
	assert.Equal(t, 0, quantities.ReservedQty)

	// One state publish for the reservation, one for the release
	publisher.AssertNumberOfCalls(t, "PublishState", 2)
}

func TestStockProcessor_SnapshotViewMatchesLedger(t *testing.T) {
	now := time.Now()
	l := newTestLedger(map[int]int{1: 50}, &now)
	publisher := new(MockPublisher)
	publisher.On("PublishState", mock.Anything, mock.Anything).Return(nil)

	processor := service.NewStockProcessor(l, publisher, nil)
	require.NoError(t, processor.HandleRequest(context.Background(), &models.ReservationRequest{
		ItemID: 1, Quantity: 7, BasketID: "B9",
	}))

	snap := processor.Snapshot()
	require.Contains(t, snap, 1)
	assert.Equal(t, 43, snap[1].AvailableQty)
	require.Len(t, snap[1].Holds, 1)
	assert.Equal(t, "B9", snap[1].Holds[0].BasketID)
}
