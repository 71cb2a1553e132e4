package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/store"
	"github.com/miravex/cinerec/pkg/models"
)

type RecommendationHandler struct {
	sink   store.ResultSink
	logger *logrus.Logger
}

func NewRecommendationHandler(sink store.ResultSink, logger *logrus.Logger) *RecommendationHandler {
	return &RecommendationHandler{
		sink:   sink,
		logger: logger,
	}
}

// Get serves the precomputed recommendation list for a user. Recommendations
// are produced by training runs; this endpoint only reads the sink.
func (h *RecommendationHandler) Get(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{
				"code":    "INVALID_USER_ID",
				"message": "User ID is required",
			},
		})
		return
	}

	count := 0
	if countStr := c.Query("count"); countStr != "" {
		parsed, err := strconv.Atoi(countStr)
		if err != nil || parsed <= 0 || parsed > 100 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_COUNT",
					"message": "count must be an integer between 1 and 100",
				},
			})
			return
		}
		count = parsed
	}

	recs, err := h.sink.Read(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).
			Error("Failed to read recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_READ_FAILED",
				"message": "Failed to read recommendations",
			},
		})
		return
	}

	if recs == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATIONS_NOT_FOUND",
				"message": "No recommendations for this user yet",
			},
		})
		return
	}

	if count > 0 && len(recs) > count {
		recs = recs[:count]
	}

	c.JSON(http.StatusOK, models.RecommendationResponse{
		UserID:          userID,
		Recommendations: recs,
		GeneratedAt:     time.Now().UTC(),
	})
}
