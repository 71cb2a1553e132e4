package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/config"
	"github.com/miravex/cinerec/pkg/models"
)

// MessageBus carries watchlist interaction events from the API to the
// interaction store. Poison messages land on a dead-letter topic after
// retries are exhausted.
type MessageBus struct {
	producer  *kafka.Writer
	consumer  *kafka.Reader
	dlqWriter *kafka.Writer
	topic     string
	logger    *logrus.Logger

	maxRetries   int
	retryBackoff time.Duration
}

func NewMessageBus(cfg *config.KafkaConfig, logger *logrus.Logger) (*MessageBus, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no kafka brokers configured")
	}

	producer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.Interactions,
		Balancer:     &kafka.Hash{}, // Key by user so one user's events stay ordered
		RequiredAcks: kafka.RequireOne,
		Async:        false,
		BatchTimeout: 10 * time.Millisecond,
		BatchSize:    100,
	}

	consumer := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topics.Interactions,
		GroupID:        cfg.ConsumerGroup,
		MinBytes:       10e3, // 10KB
		MaxBytes:       10e6, // 10MB
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	})

	dlqWriter := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topics.InteractionsDLQ,
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}

	return &MessageBus{
		producer:     producer,
		consumer:     consumer,
		dlqWriter:    dlqWriter,
		topic:        cfg.Topics.Interactions,
		logger:       logger,
		maxRetries:   3,
		retryBackoff: time.Second,
	}, nil
}

// PublishInteraction queues one interaction event for ingestion.
func (mb *MessageBus) PublishInteraction(jobID uuid.UUID, interaction models.Interaction) error {
	event := models.InteractionEvent{
		JobID:       jobID,
		Interaction: interaction,
		Timestamp:   time.Now(),
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal interaction event: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(interaction.UserID),
		Value: eventBytes,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(jobID.String())},
			{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := mb.producer.WriteMessages(ctx, message); err != nil {
		mb.logger.WithError(err).WithField("job_id", jobID).Error("Failed to publish interaction event")
		return fmt.Errorf("failed to write interaction event: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"job_id":  jobID,
		"user_id": interaction.UserID,
		"topic":   mb.topic,
	}).Debug("Interaction event published")

	return nil
}

// ConsumeInteractions reads events and hands them to the handler until the
// context is cancelled. Handler failures are retried with backoff and then
// dead-lettered.
func (mb *MessageBus) ConsumeInteractions(ctx context.Context, handler func(context.Context, models.InteractionEvent) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			message, err := mb.consumer.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				mb.logger.WithError(err).Error("Failed to read interaction event")
				continue
			}

			var event models.InteractionEvent
			if err := json.Unmarshal(message.Value, &event); err != nil {
				mb.logger.WithError(err).Error("Failed to unmarshal interaction event")
				continue
			}

			if err := mb.processWithRetry(ctx, event, handler); err != nil {
				mb.logger.WithError(err).WithField("job_id", event.JobID).
					Error("Failed to process interaction event after retries")
				if dlqErr := mb.sendToDLQ(ctx, event, err); dlqErr != nil {
					mb.logger.WithError(dlqErr).Error("Failed to dead-letter interaction event")
				}
			}
		}
	}
}

func (mb *MessageBus) processWithRetry(ctx context.Context, event models.InteractionEvent, handler func(context.Context, models.InteractionEvent) error) error {
	for attempt := 0; attempt <= mb.maxRetries; attempt++ {
		if attempt > 0 {
			delay := mb.retryBackoff * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		event.RetryCount = attempt
		if err := handler(ctx, event); err != nil {
			mb.logger.WithError(err).WithFields(logrus.Fields{
				"job_id":  event.JobID,
				"attempt": attempt,
			}).Warn("Interaction event processing failed")

			if attempt == mb.maxRetries {
				return fmt.Errorf("max retries exceeded: %w", err)
			}
			continue
		}
		return nil
	}

	return fmt.Errorf("unexpected retry loop exit")
}

func (mb *MessageBus) sendToDLQ(ctx context.Context, event models.InteractionEvent, originalError error) error {
	dlqMessage := map[string]interface{}{
		"original_event": event,
		"error":          originalError.Error(),
		"dlq_timestamp":  time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	if err != nil {
		return fmt.Errorf("failed to marshal DLQ message: %w", err)
	}

	message := kafka.Message{
		Key:   []byte(event.JobID.String()),
		Value: dlqBytes,
		Headers: []kafka.Header{
			{Key: "job_id", Value: []byte(event.JobID.String())},
			{Key: "original_topic", Value: []byte(mb.topic)},
			{Key: "error", Value: []byte(originalError.Error())},
		},
	}

	if err := mb.dlqWriter.WriteMessages(ctx, message); err != nil {
		return fmt.Errorf("failed to write DLQ message: %w", err)
	}

	mb.logger.WithFields(logrus.Fields{
		"job_id": event.JobID,
		"error":  originalError.Error(),
	}).Warn("Interaction event sent to DLQ")

	return nil
}

func (mb *MessageBus) Close() error {
	var errs []error

	if err := mb.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}
	if err := mb.consumer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
	}
	if err := mb.dlqWriter.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close DLQ writer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing message bus: %v", errs)
	}
	return nil
}

// Stats exposes consumer lag for the health endpoint.
func (mb *MessageBus) Stats() map[string]interface{} {
	stats := mb.consumer.Stats()
	return map[string]interface{}{
		"consumer_lag":    stats.Lag,
		"consumer_offset": stats.Offset,
		"messages_read":   stats.Messages,
		"errors":          stats.Errors,
	}
}
