package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"stock-reservation-service/internal/models"
)

// RequestHandler processes decoded reservation requests.
type RequestHandler interface {
	HandleRequest(ctx context.Context, req *models.ReservationRequest) error
}

// CommandHandler processes decoded stock commands.
type CommandHandler interface {
	HandleCommand(ctx context.Context, cmd *models.StockCommand) error
}

// RejectionHandler processes rejection events on the basket side.
type RejectionHandler interface {
	HandleRejection(ctx context.Context, event *models.RejectionEvent) error
}

// StateHandler processes stock state snapshots on the read side.
type StateHandler interface {
	HandleState(ctx context.Context, state *models.StockState) error
}

// DeadLetterer is where consumers route poison messages. Satisfied by
// Publisher.
type DeadLetterer interface {
	PublishDeadLetter(ctx context.Context, key, value []byte, sourceTopic, reason string) error
}

// Consumer reads one topic with manual offset commits. Committing a message
// is the acknowledgement. Group commits are cumulative per partition, so a
// failing message is never passed over: it is retried in place until it
// succeeds or is dead-lettered, and its offset stays put. That is the
// negative-acknowledge-with-requeue path.
type Consumer struct {
	reader     *kafka.Reader
	deadLetter DeadLetterer
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithDeadLetterer routes undecodable messages to a dead-letter topic
// instead of skipping them.
func WithDeadLetterer(dl DeadLetterer) ConsumerOption {
	return func(c *Consumer) {
		c.deadLetter = dl
	}
}

// NewConsumer creates a consumer for one topic within a consumer group.
func NewConsumer(brokers []string, consumerGroup, topic string, opts ...ConsumerOption) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: consumerGroup,

		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
		MaxWait:     1 * time.Second,

		// One buffered message per worker: failures stay isolated to a
		// single in-flight message instead of cascading across a batch.
		QueueCapacity: 1,

		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Msgf("Kafka reader error: "+msg, args...)
		}),
	})

	c := &Consumer{reader: reader}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ConsumeRequests fetches reservation requests one at a time and applies
// them through the handler. Acknowledgement protocol:
//   - decode/validation failure: dead-letter, then commit (never retried)
//   - handler success (accepted or business rejection): commit
//   - transient handler failure: retried in place, the offset never
//     advances past the message
func (c *Consumer) ConsumeRequests(ctx context.Context, handler RequestHandler) error {
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting to consume reservation requests")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping reservation request consumption")
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if err == context.Canceled || ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("Failed to fetch reservation request")
				time.Sleep(time.Second) // Backoff on error
				continue
			}

			var req models.ReservationRequest
			if err := json.Unmarshal(message.Value, &req); err != nil {
				c.rejectPoison(ctx, message, fmt.Sprintf("undecodable payload: %v", err))
				continue
			}
			if err := req.Validate(); err != nil {
				c.rejectPoison(ctx, message, fmt.Sprintf("invalid request: %v", err))
				continue
			}

			processErr := c.processUntilSettled(ctx, func() error {
				return handler.HandleRequest(ctx, &req)
			})
			if processErr != nil {
				if isNonRetryableError(processErr) {
					// Retrying can never succeed, so the message is poison.
					c.rejectPoison(ctx, message, processErr.Error())
					continue
				}
				// Shutdown hit while the message was still failing. It stays
				// uncommitted and redelivers on the next start, which is safe
				// because the ledger treats a repeated (item, basket) request
				// as a re-assertion of the same hold.
				log.Warn().Err(processErr).
					Int("item_id", req.ItemID).
					Str("basket_id", req.BasketID).
					Msg("Stopping with unacknowledged reservation request")
				return nil
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				log.Error().Err(err).
					Int("item_id", req.ItemID).
					Str("basket_id", req.BasketID).
					Msg("Failed to commit reservation request")
			} else {
				log.Debug().
					Int("item_id", req.ItemID).
					Str("basket_id", req.BasketID).
					Msg("Successfully processed and committed reservation request")
			}
		}
	}
}

// ConsumeCommands fetches stock commands and applies them through the
// handler, with the same acknowledgement protocol as requests.
func (c *Consumer) ConsumeCommands(ctx context.Context, handler CommandHandler) error {
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting to consume stock commands")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping stock command consumption")
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if err == context.Canceled || ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("Failed to fetch stock command")
				time.Sleep(time.Second)
				continue
			}

			var cmd models.StockCommand
			if err := json.Unmarshal(message.Value, &cmd); err != nil {
				c.rejectPoison(ctx, message, fmt.Sprintf("undecodable payload: %v", err))
				continue
			}
			if err := cmd.Validate(); err != nil {
				c.rejectPoison(ctx, message, fmt.Sprintf("invalid command: %v", err))
				continue
			}

			processErr := c.processUntilSettled(ctx, func() error {
				return handler.HandleCommand(ctx, &cmd)
			})
			if processErr != nil {
				if isNonRetryableError(processErr) {
					c.rejectPoison(ctx, message, processErr.Error())
					continue
				}
				log.Warn().Err(processErr).
					Str("command_type", cmd.Type).
					Int("item_id", cmd.ItemID).
					Msg("Stopping with unacknowledged stock command")
				return nil
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				log.Error().Err(err).
					Str("command_id", cmd.CommandID).
					Msg("Failed to commit stock command")
			}
		}
	}
}

// ConsumeRejections feeds rejection events to the handler. Handler failures
// are logged and the message committed anyway: the event stays on the topic
// for replay and the feed is a convenience view, not the system of record.
func (c *Consumer) ConsumeRejections(ctx context.Context, handler RejectionHandler) error {
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting to consume rejection events")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping rejection event consumption")
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if err == context.Canceled || ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("Failed to fetch rejection event")
				time.Sleep(time.Second)
				continue
			}

			var event models.RejectionEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				c.rejectPoison(ctx, message, fmt.Sprintf("undecodable payload: %v", err))
				continue
			}

			if err := handler.HandleRejection(ctx, &event); err != nil {
				log.Error().Err(err).
					Str("basket_id", event.BasketID).
					Int("item_id", event.ItemID).
					Msg("Failed to handle rejection event")
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				log.Error().Err(err).Msg("Failed to commit rejection event")
			}
		}
	}
}

// ConsumeState feeds stock state snapshots to the handler, committing even
// on handler failure; the next snapshot for the item supersedes this one.
func (c *Consumer) ConsumeState(ctx context.Context, handler StateHandler) error {
	log.Info().Str("topic", c.reader.Config().Topic).Msg("Starting to consume stock state updates")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping stock state consumption")
			return ctx.Err()
		default:
			message, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if err == context.Canceled || ctx.Err() != nil {
					return nil
				}
				log.Error().Err(err).Msg("Failed to fetch stock state")
				time.Sleep(time.Second)
				continue
			}

			var state models.StockState
			if err := json.Unmarshal(message.Value, &state); err != nil {
				c.rejectPoison(ctx, message, fmt.Sprintf("undecodable payload: %v", err))
				continue
			}

			if err := handler.HandleState(ctx, &state); err != nil {
				log.Error().Err(err).
					Int("item_id", state.ItemID).
					Msg("Failed to handle stock state update")
			}

			if err := c.reader.CommitMessages(ctx, message); err != nil {
				log.Error().Err(err).Msg("Failed to commit stock state")
			} else {
				log.Debug().
					Int("item_id", state.ItemID).
					Msg("Successfully processed stock state update")
			}
		}
	}
}

// rejectPoison routes a malformed message to the dead-letter topic and
// commits it so it is never redelivered.
func (c *Consumer) rejectPoison(ctx context.Context, message kafka.Message, reason string) {
	log.Error().
		Str("topic", message.Topic).
		Int("partition", message.Partition).
		Int64("offset", message.Offset).
		Str("reason", reason).
		Msg("Poison message, routing to dead letter")

	if c.deadLetter != nil {
		if err := c.deadLetter.PublishDeadLetter(ctx, message.Key, message.Value, message.Topic, reason); err != nil {
			log.Error().Err(err).Msg("Failed to dead-letter poison message")
		}
	}

	if err := c.reader.CommitMessages(ctx, message); err != nil {
		log.Error().Err(err).Msg("Failed to commit poison message")
	}
}

// processUntilSettled runs fn until it succeeds or fails non-retryably.
// Group commits are cumulative per partition: if the loop skipped ahead, the
// next successful commit would mark this message consumed and it would
// never redeliver. So the message is retried in place, with its offset held,
// until the outcome is settled. Only context cancellation interrupts it.
func (c *Consumer) processUntilSettled(ctx context.Context, fn func() error) error {
	requeueBackoff := time.Second
	for {
		err := c.processWithRetry(ctx, 3, fn)
		if err == nil || isNonRetryableError(err) || ctx.Err() != nil {
			return err
		}

		log.Error().Err(err).
			Dur("backoff", requeueBackoff).
			Msg("Message still failing, holding offset and retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(requeueBackoff):
		}

		if requeueBackoff < 30*time.Second {
			requeueBackoff *= 2
		}
	}
}

// processWithRetry runs fn with exponential backoff retry for transient
// failures: 100ms, 200ms, 400ms.
func (c *Consumer) processWithRetry(ctx context.Context, maxRetries int, fn func() error) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isNonRetryableError(err) {
			log.Warn().Err(err).Msg("Non-retryable error, skipping retries")
			return err
		}

		if attempt < maxRetries {
			backoff := time.Duration(100*(1<<attempt)) * time.Millisecond
			log.Warn().Err(err).
				Int("attempt", attempt+1).
				Int("max_retries", maxRetries+1).
				Dur("backoff", backoff).
				Msg("Message processing failed, retrying after backoff")

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	return fmt.Errorf("message processing failed after %d attempts", maxRetries+1)
}

// isNonRetryableError determines if an error should not be retried.
func isNonRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errMsg := err.Error()
	nonRetryablePatterns := []string{
		"quantity must be positive",
		"basket id is required",
		"no active hold",
		"unknown command type",
		"validation error",
	}

	for _, pattern := range nonRetryablePatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}

	return false
}

// Close closes the Kafka reader.
func (c *Consumer) Close() error {
	if err := c.reader.Close(); err != nil {
		return fmt.Errorf("failed to close reader: %w", err)
	}
	return nil
}
