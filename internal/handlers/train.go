package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/pipeline"
)

// Trainer runs one full training pass over the interaction log.
type Trainer interface {
	Run(ctx context.Context) (*pipeline.RunSummary, error)
}

// TrainingHandler triggers training runs. At most one run is in flight;
// a second trigger while one is running gets 409 instead of queueing.
type TrainingHandler struct {
	trainer Trainer
	logger  *logrus.Logger

	mu          sync.Mutex
	running     bool
	lastSummary *pipeline.RunSummary
	lastError   string
	lastRunAt   time.Time
}

func NewTrainingHandler(trainer Trainer, logger *logrus.Logger) *TrainingHandler {
	return &TrainingHandler{
		trainer: trainer,
		logger:  logger,
	}
}

func (h *TrainingHandler) Trigger(c *gin.Context) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		c.JSON(http.StatusConflict, gin.H{
			"error": gin.H{
				"code":    "TRAINING_IN_PROGRESS",
				"message": "A training run is already in progress",
			},
		})
		return
	}
	h.running = true
	h.mu.Unlock()

	// Detached from the request context: the run outlives the HTTP call.
	// gin's recovery only guards request goroutines, so a panic here must
	// be caught locally or it takes the whole process down.
	go func() {
		var summary *pipeline.RunSummary
		var runErr error

		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.WithField("panic", r).Error("Training run panicked")
					summary = nil
					runErr = fmt.Errorf("training run panicked: %v", r)
				}
			}()
			summary, runErr = h.trainer.Run(context.Background())
		}()

		h.mu.Lock()
		h.running = false
		h.lastRunAt = time.Now().UTC()
		if runErr != nil {
			h.lastSummary = nil
			h.lastError = runErr.Error()
		} else {
			h.lastSummary = summary
			h.lastError = ""
		}
		h.mu.Unlock()
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "started",
		"message": "Training run started",
	})
}

func (h *TrainingHandler) Status(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	resp := gin.H{"running": h.running}
	if !h.lastRunAt.IsZero() {
		resp["last_run_at"] = h.lastRunAt
	}
	if h.lastSummary != nil {
		resp["last_summary"] = h.lastSummary
	}
	if h.lastError != "" {
		resp["last_error"] = h.lastError
	}

	c.JSON(http.StatusOK, resp)
}
