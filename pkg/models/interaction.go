package models

import (
	"time"

	"github.com/google/uuid"
)

// Interaction is a single implicit-feedback signal: the user added the item
// to their watchlist. There is no rating scale; presence is the signal.
type Interaction struct {
	UserID string `json:"user_id" db:"user_id" validate:"required"`
	ItemID string `json:"item_id" db:"item_id" validate:"required"`
}

type InteractionRequest struct {
	UserID string `json:"user_id" validate:"required,min=1,max=128"`
	ItemID string `json:"item_id" validate:"required,min=1,max=128"`
}

// InteractionEvent is the message envelope published to the interaction topic.
type InteractionEvent struct {
	JobID       uuid.UUID   `json:"job_id"`
	Interaction Interaction `json:"interaction"`
	Timestamp   time.Time   `json:"timestamp"`
	RetryCount  int         `json:"retry_count"`
}
