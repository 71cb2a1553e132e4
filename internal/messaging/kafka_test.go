package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miravex/cinerec/pkg/models"
)

func TestInteractionEvent_Serialization(t *testing.T) {
	jobID := uuid.New()
	event := models.InteractionEvent{
		JobID: jobID,
		Interaction: models.Interaction{
			UserID: "user-1",
			ItemID: "550",
		},
		Timestamp:  time.Now(),
		RetryCount: 0,
	}

	eventBytes, err := json.Marshal(event)
	require.NoError(t, err)
	assert.NotEmpty(t, eventBytes)

	var deserialized models.InteractionEvent
	err = json.Unmarshal(eventBytes, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, event.JobID, deserialized.JobID)
	assert.Equal(t, event.Interaction.UserID, deserialized.Interaction.UserID)
	assert.Equal(t, event.Interaction.ItemID, deserialized.Interaction.ItemID)
	assert.Equal(t, event.RetryCount, deserialized.RetryCount)
}

func retryTestBus(t *testing.T) *MessageBus {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return &MessageBus{
		logger:       logger,
		maxRetries:   3,
		retryBackoff: time.Millisecond,
	}
}

func testEvent() models.InteractionEvent {
	return models.InteractionEvent{
		JobID:       uuid.New(),
		Interaction: models.Interaction{UserID: "user-1", ItemID: "550"},
		Timestamp:   time.Now(),
	}
}

func TestProcessWithRetry(t *testing.T) {
	t.Run("first attempt succeeds", func(t *testing.T) {
		bus := retryTestBus(t)

		attempts := 0
		err := bus.processWithRetry(context.Background(), testEvent(),
			func(ctx context.Context, event models.InteractionEvent) error {
				attempts++
				assert.Equal(t, 0, event.RetryCount)
				return nil
			})

		require.NoError(t, err)
		assert.Equal(t, 1, attempts)
	})

	t.Run("transient failures are retried with increasing retry count", func(t *testing.T) {
		bus := retryTestBus(t)

		var retryCounts []int
		err := bus.processWithRetry(context.Background(), testEvent(),
			func(ctx context.Context, event models.InteractionEvent) error {
				retryCounts = append(retryCounts, event.RetryCount)
				if len(retryCounts) < 3 {
					return fmt.Errorf("transient failure")
				}
				return nil
			})

		require.NoError(t, err)
		assert.Equal(t, []int{0, 1, 2}, retryCounts)
	})

	t.Run("persistent failure exhausts retries", func(t *testing.T) {
		bus := retryTestBus(t)

		attempts := 0
		err := bus.processWithRetry(context.Background(), testEvent(),
			func(ctx context.Context, event models.InteractionEvent) error {
				attempts++
				return fmt.Errorf("poison message")
			})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "max retries exceeded")
		assert.Contains(t, err.Error(), "poison message")
		assert.Equal(t, bus.maxRetries+1, attempts)
	})

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		bus := retryTestBus(t)
		ctx, cancel := context.WithCancel(context.Background())

		attempts := 0
		err := bus.processWithRetry(ctx, testEvent(),
			func(ctx context.Context, event models.InteractionEvent) error {
				attempts++
				cancel()
				return fmt.Errorf("failure before shutdown")
			})

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, attempts)
	})
}

func TestMessageKey_KeepsUserOrdering(t *testing.T) {
	// The producer keys by user ID so a single user's events hash to one
	// partition and arrive at the consumer in publish order.
	interactions := []models.Interaction{
		{UserID: "user-1", ItemID: "550"},
		{UserID: "user-1", ItemID: "680"},
		{UserID: "user-2", ItemID: "550"},
	}

	assert.Equal(t, []byte(interactions[0].UserID), []byte(interactions[1].UserID))
	assert.NotEqual(t, []byte(interactions[0].UserID), []byte(interactions[2].UserID))
}

func TestDLQMessage(t *testing.T) {
	originalEvent := models.InteractionEvent{
		JobID:       uuid.New(),
		Interaction: models.Interaction{UserID: "user-1", ItemID: "550"},
		Timestamp:   time.Now(),
		RetryCount:  3,
	}

	originalError := "processing failed"

	dlqMessage := map[string]interface{}{
		"original_event": originalEvent,
		"error":          originalError,
		"dlq_timestamp":  time.Now(),
	}

	dlqBytes, err := json.Marshal(dlqMessage)
	require.NoError(t, err)
	assert.NotEmpty(t, dlqBytes)

	var deserialized map[string]interface{}
	err = json.Unmarshal(dlqBytes, &deserialized)
	require.NoError(t, err)

	assert.Contains(t, deserialized, "original_event")
	assert.Contains(t, deserialized, "error")
	assert.Contains(t, deserialized, "dlq_timestamp")
	assert.Equal(t, originalError, deserialized["error"])
}
