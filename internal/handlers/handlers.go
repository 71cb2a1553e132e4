package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/miravex/cinerec/internal/store"
)

type Handlers struct {
	Health         *HealthHandler
	Interaction    *InteractionHandler
	Recommendation *RecommendationHandler
	Training       *TrainingHandler
}

func New(
	logger *logrus.Logger,
	publisher InteractionPublisher,
	sink store.ResultSink,
	trainer Trainer,
	checks []HealthCheck,
) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, checks),
		Interaction:    NewInteractionHandler(logger, publisher),
		Recommendation: NewRecommendationHandler(sink, logger),
		Training:       NewTrainingHandler(trainer, logger),
	}
}
