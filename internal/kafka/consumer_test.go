package kafka

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A transiently failing message must be retried in place rather than passed
// over: cumulative group commits would otherwise mark it consumed as soon
// as a later offset commits.
func TestProcessUntilSettled_RetriesPastExhaustedRound(t *testing.T) {
	c := &Consumer{}

	calls := 0
	err := c.processUntilSettled(context.Background(), func() error {
		calls++
		if calls < 6 {
			return errors.New("broker flake")
		}
		return nil
	})

	// One retry round is 4 attempts; the failure must survive into a
	// second round instead of being dropped.
	require.NoError(t, err)
	assert.Equal(t, 6, calls)
}

func TestProcessUntilSettled_NonRetryableSettlesImmediately(t *testing.T) {
	c := &Consumer{}

	calls := 0
	err := c.processUntilSettled(context.Background(), func() error {
		calls++
		return errors.New("no active hold for item and basket")
	})

	require.Error(t, err)
	assert.True(t, isNonRetryableError(err))
	assert.Equal(t, 1, calls)
}

func TestProcessUntilSettled_StopsOnContextCancel(t *testing.T) {
	c := &Consumer{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.processUntilSettled(ctx, func() error {
			return errors.New("still down")
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.Error(t, err)
		assert.False(t, isNonRetryableError(err))
	case <-time.After(2 * time.Second):
		t.Fatal("processUntilSettled did not stop after cancellation")
	}
}

// The consume loops must return once their context is cancelled so callers
// waiting on them unblock during shutdown.
func TestConsumer_ConsumeRequestsStopsWhenCancelled(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "test-group", "test-topic")
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.ConsumeRequests(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsumer_ConsumeCommandsStopsWhenCancelled(t *testing.T) {
	c := NewConsumer([]string{"localhost:9092"}, "test-group", "test-topic")
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.ConsumeCommands(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
