package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContextDim is the fixed dimensionality of the learner context vector:
// [avg_mastery, style one-hot x4, skill_level, time_constraint,
// cognitive_load, velocity, scope]. Changing the layout requires a new
// SchemaVersion, never a silent resize.
const ContextDim = 10

// LearnerState is the persisted per-learner record. Writes go through
// CompareAndSwap keyed on Version; Version strictly increases.
type LearnerState struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	LearnerID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_learner_state_learner" json:"learner_id"`

	// Mastery and LastSeen are keyed by concept key.
	Mastery  datatypes.JSON `gorm:"column:mastery;type:jsonb" json:"mastery"`   // map[string]float64
	LastSeen datatypes.JSON `gorm:"column:last_seen;type:jsonb" json:"last_seen"` // map[string]time.Time (RFC3339)

	// ContextVector is the fixed-length feature vector (len == ContextDim).
	ContextVector datatypes.JSON `gorm:"column:context_vector;type:jsonb" json:"context_vector"` // []float64
	SchemaVersion int            `gorm:"column:schema_version;not null;default:1" json:"schema_version"`

	TimeBudgetMinutes int `gorm:"column:time_budget_minutes;not null;default:30" json:"time_budget_minutes"`

	LastOutcomeConcept string  `gorm:"column:last_outcome_concept" json:"last_outcome_concept"`
	LastOutcomeScore   float64 `gorm:"column:last_outcome_score;not null;default:0" json:"last_outcome_score"`

	Version int64 `gorm:"column:version;not null;default:0" json:"version"`

	CreatedAt time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LearnerState) TableName() string { return "learner_state" }

// LearnerContext is the decoded, in-memory view of LearnerState that the
// planning engine works with. It is a snapshot of committed state; the
// engine never mutates it in place, it builds a successor and writes it
// back under the lease+version protocol.
type LearnerContext struct {
	LearnerID         uuid.UUID
	Mastery           map[string]float64
	LastSeen          map[string]time.Time
	Vector            []float64
	SchemaVersion     int
	TimeBudgetMinutes int

	LastOutcomeConcept string
	LastOutcomeScore   float64

	Version int64
}

// Clone returns a deep copy safe to mutate into the successor state.
func (lc *LearnerContext) Clone() *LearnerContext {
	out := &LearnerContext{
		LearnerID:          lc.LearnerID,
		Mastery:            make(map[string]float64, len(lc.Mastery)),
		LastSeen:           make(map[string]time.Time, len(lc.LastSeen)),
		Vector:             append([]float64(nil), lc.Vector...),
		SchemaVersion:      lc.SchemaVersion,
		TimeBudgetMinutes:  lc.TimeBudgetMinutes,
		LastOutcomeConcept: lc.LastOutcomeConcept,
		LastOutcomeScore:   lc.LastOutcomeScore,
		Version:            lc.Version,
	}
	for k, v := range lc.Mastery {
		out.Mastery[k] = v
	}
	for k, v := range lc.LastSeen {
		out.LastSeen[k] = v
	}
	return out
}

// AvgMastery averages over known concepts; 0 for a cold-start learner.
func (lc *LearnerContext) AvgMastery() float64 {
	if len(lc.Mastery) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range lc.Mastery {
		sum += v
	}
	return sum / float64(len(lc.Mastery))
}
