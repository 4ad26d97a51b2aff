package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

// In-memory doubles mirroring the port contracts, shared across the
// engine tests.

type memArmStore struct {
	mu   sync.Mutex
	arms map[string]*types.Arm
}

func newMemArmStore() *memArmStore {
	return &memArmStore{arms: map[string]*types.Arm{}}
}

func (s *memArmStore) LoadArm(_ context.Context, key string) (*types.Arm, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arm, ok := s.arms[key]
	if !ok {
		return nil, fmt.Errorf("arm %q: %w", key, errs.ErrNotFound)
	}
	return arm.Clone(), nil
}

func (s *memArmStore) StoreArm(_ context.Context, arm *types.Arm) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arms[arm.Key] = arm.Clone()
	return nil
}

type memStateStore struct {
	mu     sync.Mutex
	states map[uuid.UUID]*types.LearnerContext
	// casFailures injects spurious version conflicts before succeeding.
	casFailures int
}

func newMemStateStore() *memStateStore {
	return &memStateStore{states: map[uuid.UUID]*types.LearnerContext{}}
}

func (s *memStateStore) put(lc *types.LearnerContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[lc.LearnerID] = lc.Clone()
}

func (s *memStateStore) Load(_ context.Context, learnerID uuid.UUID) (*types.LearnerContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lc, ok := s.states[learnerID]
	if !ok {
		return nil, fmt.Errorf("learner %s: %w", learnerID, errs.ErrNotFound)
	}
	return lc.Clone(), nil
}

func (s *memStateStore) CompareAndSwap(_ context.Context, learnerID uuid.UUID, expectedVersion int64, next *types.LearnerContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.states[learnerID]
	if !ok {
		return fmt.Errorf("learner %s: %w", learnerID, errs.ErrNotFound)
	}
	if s.casFailures > 0 {
		s.casFailures--
		return fmt.Errorf("injected: %w", errs.ErrVersionConflict)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("learner %s at version %d: %w", learnerID, expectedVersion, errs.ErrVersionConflict)
	}
	committed := next.Clone()
	committed.Version = expectedVersion + 1
	s.states[learnerID] = committed
	return nil
}

type memEventLog struct {
	mu   sync.Mutex
	seen map[uuid.UUID]bool
}

func newMemEventLog() *memEventLog {
	return &memEventLog{seen: map[uuid.UUID]bool{}}
}

func (l *memEventLog) IsProcessed(_ context.Context, eventID uuid.UUID) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seen[eventID], nil
}

func (l *memEventLog) MarkProcessed(_ context.Context, eventID uuid.UUID) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[eventID] = true
	return nil
}

type memLease struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]string
}

func newMemLease() *memLease {
	return &memLease{tokens: map[uuid.UUID]string{}}
}

func (l *memLease) Acquire(_ context.Context, learnerID uuid.UUID, _ time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, held := l.tokens[learnerID]; held {
		return "", fmt.Errorf("learner %s: %w", learnerID, errs.ErrLeaseBusy)
	}
	token := uuid.NewString()
	l.tokens[learnerID] = token
	return token, nil
}

func (l *memLease) Release(_ context.Context, learnerID uuid.UUID, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.tokens[learnerID] == token {
		delete(l.tokens, learnerID)
	}
	return nil
}

// holdForeign simulates a crashed holder that never releases.
func (l *memLease) holdForeign(learnerID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens[learnerID] = "foreign"
}

type fakeGraph struct {
	pool []*types.Concept
}

func (g *fakeGraph) GetCandidates(_ context.Context, _ map[string]float64, _ string, _ int) ([]*types.Concept, error) {
	return g.pool, nil
}

func (g *fakeGraph) GetEdges(_ context.Context, _ []string) (map[string][]types.ConceptEdge, error) {
	out := map[string][]types.ConceptEdge{}
	for _, c := range g.pool {
		out[c.Key] = c.Edges
	}
	return out, nil
}

// stubOracle scores paths with a provided function keyed by concept keys.
type stubOracle struct {
	score func(keys []string, lc *types.LearnerContext) (float64, error)
}

func (o *stubOracle) ScorePath(ctx context.Context, concepts []*types.Concept, lc *types.LearnerContext) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	keys := make([]string, len(concepts))
	for i, c := range concepts {
		keys[i] = c.Key
	}
	return o.score(keys, lc)
}

func testLearner(id uuid.UUID, mastery map[string]float64) *types.LearnerContext {
	if mastery == nil {
		mastery = map[string]float64{}
	}
	vec := make([]float64, types.ContextDim)
	vec[ctxStyleBase] = 1
	vec[ctxSkillLevel] = 0.5
	return &types.LearnerContext{
		LearnerID:         id,
		Mastery:           mastery,
		LastSeen:          map[string]time.Time{},
		Vector:            vec,
		SchemaVersion:     1,
		TimeBudgetMinutes: 30,
	}
}

func testConfig() Config {
	return Config{
		Search: SearchConfig{
			BeamWidth:          3,
			MaxDepth:           3,
			MaxThoughts:        3,
			MinViability:       0.3,
			OracleTimeout:      2 * time.Second,
			MasteryThreshold:   0.6,
			FreshnessThreshold: 0.5,
			DecayHalfLifeDays:  30,
			DecayMaxDrop:       0.7,
		},
		Bandit: BanditConfig{Dim: types.ContextDim, Alpha: 0.5},
		Feedback: FeedbackConfig{
			ScoreWeight:     0.6,
			CompletedWeight: 0.4,
			MasteryGamma:    0.6,
			LeaseTTL:        time.Second,
			LeaseRetries:    3,
			LeaseBackoff:    time.Millisecond,
			CASRetries:      3,
		},
		Session: SessionConfig{
			CandidateLimit:   100,
			FillRatio:        0.8,
			MaxFallbackSteps: 10,
			PlanTimeout:      5 * time.Second,
		},
	}
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log := &logger.Logger{SugaredLogger: zap.NewNop().Sugar()}
	return log
}
