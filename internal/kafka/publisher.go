package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"stock-reservation-service/internal/models"
)

// Topics names every topic the service publishes to.
type Topics struct {
	Requests   string
	Commands   string
	Rejections string
	State      string
	DeadLetter string
}

// Publisher handles publishing messages to Kafka. Writers dial lazily, so a
// binary that never publishes to a topic pays nothing for its writer.
type Publisher struct {
	requestsWriter   *kafka.Writer
	commandsWriter   *kafka.Writer
	rejectionsWriter *kafka.Writer
	stateWriter      *kafka.Writer
	deadLetterWriter *kafka.Writer
}

// NewPublisher creates a new Kafka publisher.
func NewPublisher(brokers []string, topics Topics) *Publisher {
	return &Publisher{
		requestsWriter:   newWriter(brokers, topics.Requests),
		commandsWriter:   newWriter(brokers, topics.Commands),
		rejectionsWriter: newWriter(brokers, topics.Rejections),
		stateWriter:      newWriter(brokers, topics.State),
		deadLetterWriter: newWriter(brokers, topics.DeadLetter),
	}
}

// newWriter builds a durable writer: hash balancer so messages with the
// same key land on the same partition (ordering per item), acks from all
// replicas, synchronous writes.
func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Async:                  false,
		AllowAutoTopicCreation: true,

		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    1,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
	}
}

// PublishRequest publishes a reservation request, keyed by item id so all
// requests for one item are totally ordered on its partition.
func (p *Publisher) PublishRequest(ctx context.Context, req *models.ReservationRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal reservation request: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(strconv.Itoa(req.ItemID)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(models.EventTypeReservationRequest)},
			{Key: "basket-id", Value: []byte(req.BasketID)},
		},
	}

	if err := p.requestsWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Int("item_id", req.ItemID).
			Int("qty", req.Quantity).
			Str("basket_id", req.BasketID).
			Msg("Failed to publish reservation request")
		return fmt.Errorf("failed to publish reservation request: %w", err)
	}

	log.Info().
		Int("item_id", req.ItemID).
		Int("qty", req.Quantity).
		Str("basket_id", req.BasketID).
		Msg("Published reservation request")

	return nil
}

// PublishCommand publishes a stock command, keyed by item id.
func (p *Publisher) PublishCommand(ctx context.Context, cmd *models.StockCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal stock command: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(strconv.Itoa(cmd.ItemID)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "command-type", Value: []byte(cmd.Type)},
			{Key: "command-id", Value: []byte(cmd.CommandID)},
		},
	}

	if err := p.commandsWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Str("command_type", cmd.Type).
			Int("item_id", cmd.ItemID).
			Msg("Failed to publish stock command")
		return fmt.Errorf("failed to publish stock command: %w", err)
	}

	log.Info().
		Str("command_type", cmd.Type).
		Str("command_id", cmd.CommandID).
		Int("item_id", cmd.ItemID).
		Msg("Published stock command")

	return nil
}

// PublishRejection publishes a rejection event, keyed by basket id so the
// basket side reads its own rejections in order.
func (p *Publisher) PublishRejection(ctx context.Context, event *models.RejectionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal rejection event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.BasketID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(models.EventTypeStockRejection)},
			{Key: "event-id", Value: []byte(event.EventID)},
		},
	}

	if err := p.rejectionsWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Int("item_id", event.ItemID).
			Str("basket_id", event.BasketID).
			Msg("Failed to publish rejection event")
		return fmt.Errorf("failed to publish rejection event: %w", err)
	}

	log.Info().
		Int("item_id", event.ItemID).
		Str("basket_id", event.BasketID).
		Int("requested_qty", event.RequestedQty).
		Str("reason", event.Reason).
		Msg("Published rejection event")

	return nil
}

// PublishState publishes a stock state snapshot, keyed by item id.
func (p *Publisher) PublishState(ctx context.Context, state *models.StockState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal stock state: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(strconv.Itoa(state.ItemID)),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(models.EventTypeStockState)},
		},
	}

	if err := p.stateWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Int("item_id", state.ItemID).
			Msg("Failed to publish stock state")
		return fmt.Errorf("failed to publish stock state: %w", err)
	}

	log.Debug().
		Int("item_id", state.ItemID).
		Int("available_qty", state.AvailableQty).
		Int("reserved_qty", state.ReservedQty).
		Msg("Published stock state")

	return nil
}

// PublishDeadLetter routes an undecodable message to the dead-letter topic.
// Retrying a malformed payload can never succeed, so this is its terminal
// destination.
func (p *Publisher) PublishDeadLetter(ctx context.Context, key, value []byte, sourceTopic, reason string) error {
	message := kafka.Message{
		Key:   key,
		Value: value,
		Headers: []kafka.Header{
			{Key: "dead-letter-reason", Value: []byte(reason)},
			{Key: "source-topic", Value: []byte(sourceTopic)},
		},
	}

	if err := p.deadLetterWriter.WriteMessages(ctx, message); err != nil {
		log.Error().Err(err).
			Str("source_topic", sourceTopic).
			Str("reason", reason).
			Msg("Failed to publish dead letter")
		return fmt.Errorf("failed to publish dead letter: %w", err)
	}

	log.Warn().
		Str("source_topic", sourceTopic).
		Str("reason", reason).
		Msg("Routed message to dead letter topic")

	return nil
}

// Close closes the Kafka writers.
func (p *Publisher) Close() error {
	writers := map[string]*kafka.Writer{
		"requests":    p.requestsWriter,
		"commands":    p.commandsWriter,
		"rejections":  p.rejectionsWriter,
		"state":       p.stateWriter,
		"dead-letter": p.deadLetterWriter,
	}

	var errs []error
	for name, w := range writers {
		if err := w.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close %s writer: %w", name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing publishers: %v", errs)
	}
	return nil
}
