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
)

// MockCache stands in for the Redis-backed cache
type MockCache struct {
	mock.Mock
}

func (m *MockCache) GetStockState(ctx context.Context, itemID int) (*models.StockState, error) {
	args := m.Called(ctx, itemID)
	if state := args.Get(0); state != nil {
		return state.(*models.StockState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCache) SetStockState(ctx context.Context, state *models.StockState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}

func (m *MockCache) AppendRejection(ctx context.Context, event *models.RejectionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockCache) ListRejections(ctx context.Context, basketID string) ([]models.RejectionEvent, error) {
	args := m.Called(ctx, basketID)
	if events := args.Get(0); events != nil {
		return events.([]models.RejectionEvent), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockCache) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestReaderService_CacheHit(t *testing.T) {
	cache := new(MockCache)
	updatedAt := time.Now().UTC()
	cache.On("GetStockState", mock.Anything, 2).Return(&models.StockState{
		ItemID:       2,
		AvailableQty: 40,
		ReservedQty:  10,
		UpdatedAt:    updatedAt,
	}, nil)

	reader := service.NewReaderService(cache)

	response, err := reader.GetAvailability(context.Background(), 2)
	require.NoError(t, err)

	assert.Equal(t, 2, response.ItemID)
	assert.Equal(t, 40, response.AvailableQty)
	assert.Equal(t, 10, response.ReservedQty)
	assert.True(t, response.CacheHit)
	assert.Equal(t, updatedAt, response.LastUpdated)
}

func TestReaderService_CacheMissReportsZeroes(t *testing.T) {
	cache := new(MockCache)
	cache.On("GetStockState", mock.Anything, 99).Return(nil, nil)

	reader := service.NewReaderService(cache)

	response, err := reader.GetAvailability(context.Background(), 99)
	require.NoError(t, err)

	assert.Equal(t, 99, response.ItemID)
	assert.Equal(t, 0, response.AvailableQty)
	assert.False(t, response.CacheHit)
}

func TestReaderService_CacheFailureIsSystemError(t *testing.T) {
	cache := new(MockCache)
	cache.On("GetStockState", mock.Anything, 2).Return(nil, errors.New("connection refused"))

	reader := service.NewReaderService(cache)

	_, err := reader.GetAvailability(context.Background(), 2)
	require.Error(t, err)
	assert.True(t, models.IsSystemError(err))
}

func TestReaderService_HandleStateStoresSnapshot(t *testing.T) {
	cache := new(MockCache)
	cache.On("SetStockState", mock.Anything, mock.Anything).Return(nil)

	reader := service.NewReaderService(cache)

	state := &models.StockState{ItemID: 2, AvailableQty: 40, ReservedQty: 10, UpdatedAt: time.Now()}
	require.NoError(t, reader.HandleState(context.Background(), state))

	cache.AssertCalled(t, "SetStockState", mock.Anything, state)
}

func TestRejectionFeed_AppendAndList(t *testing.T) {
	cache := new(MockCache)
	event := &models.RejectionEvent{
		EventID:      "evt-1",
		ItemID:       2,
		BasketID:     "B1",
		RequestedQty: 10,
		AvailableQty: 5,
		Reason:       models.RejectionReasonInsufficientStock,
		Timestamp:    time.Now(),
	}
	cache.On("AppendRejection", mock.Anything, event).Return(nil)
	cache.On("ListRejections", mock.Anything, "B1").Return([]models.RejectionEvent{*event}, nil)

	feed := service.NewRejectionFeed(cache)

	require.NoError(t, feed.HandleRejection(context.Background(), event))

	events, err := feed.ListRejections(context.Background(), "B1")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "evt-1", events[0].EventID)
}

func TestRejectionFeed_EmptyFeedIsNotAnError(t *testing.T) {
	cache := new(MockCache)
	cache.On("ListRejections", mock.Anything, "B2").Return([]models.RejectionEvent{}, nil)

	feed := service.NewRejectionFeed(cache)

	events, err := feed.ListRejections(context.Background(), "B2")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRejectionFeed_CacheFailurePropagates(t *testing.T) {
	cache := new(MockCache)
	cache.On("AppendRejection", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	feed := service.NewRejectionFeed(cache)

	err := feed.HandleRejection(context.Background(), &models.RejectionEvent{BasketID: "B1"})
	require.Error(t, err)
	assert.True(t, models.IsSystemError(err))
}
