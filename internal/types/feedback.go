package types

import (
	"time"

	"github.com/google/uuid"
)

// FeedbackEvent reports an observed learning outcome. Delivery is
// at-least-once; EventID keys idempotent consumption, duplicates are
// no-ops.
type FeedbackEvent struct {
	EventID         uuid.UUID `json:"event_id"`
	LearnerID       uuid.UUID `json:"learner_id"`
	ConceptKey      string    `json:"concept_key"`
	Score           float64   `json:"score"` // 0..1
	Completed       bool      `json:"completed"`
	ContextSnapshot []float64 `json:"context_snapshot"`
	ObservedAt      time.Time `json:"observed_at"`
}

// ProcessedEvent records a consumed FeedbackEvent id.
type ProcessedEvent struct {
	EventID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"event_id"`
	ProcessedAt time.Time `gorm:"not null;default:now()" json:"processed_at"`
}

func (ProcessedEvent) TableName() string { return "processed_event" }
