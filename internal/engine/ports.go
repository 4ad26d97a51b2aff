package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pathpilot/internal/types"
)

// GraphView exposes the concept graph to the planner. Implementations are
// read-only; the core never mutates the graph. GetCandidates must support
// cold start: an empty mastery set returns root concepts ranked by
// centrality.
type GraphView interface {
	GetCandidates(ctx context.Context, mastery map[string]float64, goal string, limit int) ([]*types.Concept, error)
	GetEdges(ctx context.Context, conceptKeys []string) (map[string][]types.ConceptEdge, error)
}

// StateStore persists per-learner state with optimistic concurrency.
// CompareAndSwap commits next with Version = expectedVersion+1 iff the
// stored version still equals expectedVersion, and returns
// errs.ErrVersionConflict otherwise. Load returns errs.ErrNotFound for an
// unknown learner.
type StateStore interface {
	Load(ctx context.Context, learnerID uuid.UUID) (*types.LearnerContext, error)
	CompareAndSwap(ctx context.Context, learnerID uuid.UUID, expectedVersion int64, next *types.LearnerContext) error
}

// ArmStore persists bandit arms, one atomic row per concept key.
// LoadArm returns errs.ErrNotFound for a concept never updated before.
type ArmStore interface {
	LoadArm(ctx context.Context, conceptKey string) (*types.Arm, error)
	StoreArm(ctx context.Context, arm *types.Arm) error
}

// EventLog records consumed feedback event ids for idempotency. The
// IsProcessed/MarkProcessed pair is only race-free under the learner
// lease, which FeedbackCoordinator holds across both calls.
type EventLog interface {
	IsProcessed(ctx context.Context, eventID uuid.UUID) (bool, error)
	MarkProcessed(ctx context.Context, eventID uuid.UUID) error
}

// Lease is a time-bounded exclusive-access token scoped to a learner id.
// Acquire returns errs.ErrLeaseBusy while another holder is live; the TTL
// bounds staleness if a holder crashes. Releasing an expired or foreign
// token is a no-op.
type Lease interface {
	Acquire(ctx context.Context, learnerID uuid.UUID, ttl time.Duration) (token string, err error)
	Release(ctx context.Context, learnerID uuid.UUID, token string) error
}

// Oracle scores the viability of a partial concept sequence for a learner,
// in [0,1]. It may be slow and may fail; callers wrap every invocation in
// a per-branch timeout and drop the branch on error. One Oracle instance
// is shared across all planning sessions, so implementations must be safe
// for concurrent ScorePath calls.
type Oracle interface {
	ScorePath(ctx context.Context, concepts []*types.Concept, lc *types.LearnerContext) (float64, error)
}

// Publisher emits PLAN_READY events to the surrounding application.
type Publisher interface {
	PublishPlanReady(ctx context.Context, learnerID uuid.UUID, path *types.LearningPath) error
}
