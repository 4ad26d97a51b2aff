package engine

import (
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pathpilot/internal/types"
)

// Fixed layout of the learner context vector (types.ContextDim slots).
// Structural changes require a new schema version, never a resize.
const (
	ctxKnowledge      = 0 // aggregate mastery
	ctxStyleBase      = 1 // learning-style one-hot, 4 slots
	ctxSkillLevel     = 5
	ctxTimeConstraint = 6
	ctxCognitiveLoad  = 7
	ctxVelocity       = 8
	ctxScope          = 9
)

// NewLearnerContext seeds a fresh learner snapshot from an intake profile.
// The mastery map starts empty, so the first planning run takes the
// cold-start branch.
func NewLearnerContext(learnerID uuid.UUID, style int, skill float64, timeBudgetMinutes int) *types.LearnerContext {
	vec := make([]float64, types.ContextDim)
	if style >= 0 && style < 4 {
		vec[ctxStyleBase+style] = 1
	}
	vec[ctxSkillLevel] = clamp01(skill)
	vec[ctxTimeConstraint] = clamp01(float64(timeBudgetMinutes) / 120)
	vec[ctxScope] = 1
	return &types.LearnerContext{
		LearnerID:         learnerID,
		Mastery:           map[string]float64{},
		LastSeen:          map[string]time.Time{},
		Vector:            vec,
		SchemaVersion:     1,
		TimeBudgetMinutes: timeBudgetMinutes,
	}
}
