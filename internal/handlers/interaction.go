package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/pkg/models"
)

// InteractionPublisher queues an interaction for asynchronous ingestion.
type InteractionPublisher interface {
	PublishInteraction(jobID uuid.UUID, interaction models.Interaction) error
}

type InteractionHandler struct {
	logger    *logrus.Logger
	publisher InteractionPublisher
	validator *validator.Validate
}

func NewInteractionHandler(logger *logrus.Logger, publisher InteractionPublisher) *InteractionHandler {
	return &InteractionHandler{
		logger:    logger,
		publisher: publisher,
		validator: validator.New(),
	}
}

// Record accepts one watchlist interaction and queues it. The write is
// asynchronous; 202 means accepted, not stored.
func (h *InteractionHandler) Record(c *gin.Context) {
	var req models.InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to bind interaction request")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_REQUEST",
				"message": "Invalid request format",
				"details": err.Error(),
			},
		})
		return
	}

	if err := h.validator.Struct(&req); err != nil {
		h.logger.WithError(err).Error("Validation failed for interaction")
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "VALIDATION_FAILED",
				"message": "Request validation failed",
				"details": err.Error(),
			},
		})
		return
	}

	jobID := uuid.New()
	interaction := models.Interaction{
		UserID: req.UserID,
		ItemID: req.ItemID,
	}

	if err := h.publisher.PublishInteraction(jobID, interaction); err != nil {
		h.logger.WithError(err).Error("Failed to queue interaction")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "INTERACTION_QUEUE_FAILED",
				"message": "Failed to queue interaction",
			},
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"job_id":  jobID,
		"status":  "queued",
		"message": "Interaction queued for processing",
	})
}
