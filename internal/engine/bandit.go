package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

// BanditEngine is a disjoint linear contextual bandit (LinUCB): one
// regression arm per concept. Arms are the only deliberately-shared
// mutable state across learners; each arm serializes its own updates, so
// two learners' feedback on the same concept can race safely.
type BanditEngine struct {
	cfg   BanditConfig
	store ArmStore
	log   *logger.Logger

	mu   sync.Mutex
	arms map[string]*armState
}

// armState pairs the persisted arm with its incrementally-maintained
// inverse. The mutex makes (A, b, AInv, pulls, reward) move as a unit; a
// reader never observes A updated without b.
type armState struct {
	mu   sync.Mutex
	arm  *types.Arm
	aInv []float64
}

func NewBanditEngine(cfg BanditConfig, store ArmStore, log *logger.Logger) *BanditEngine {
	return &BanditEngine{
		cfg:   cfg,
		store: store,
		log:   log.With("service", "BanditEngine"),
		arms:  make(map[string]*armState),
	}
}

// Select returns the candidate with the highest upper confidence bound
// UCB = thetaT*x + alpha*sqrt(xT*AInv*x). Ties prefer fewer pulls, then
// the lexicographically lower key, so selection is reproducible.
func (e *BanditEngine) Select(ctx context.Context, candidateKeys []string, x []float64) (string, error) {
	if len(candidateKeys) == 0 {
		return "", fmt.Errorf("select: %w: empty candidate set", errs.ErrInvalidArgument)
	}
	if len(x) != e.cfg.Dim {
		return "", fmt.Errorf("select: %w: context dim %d, want %d", errs.ErrInvalidArgument, len(x), e.cfg.Dim)
	}

	bestKey := ""
	bestUCB := math.Inf(-1)
	var bestPulls int64
	for _, key := range candidateKeys {
		st, err := e.getArm(ctx, key)
		if err != nil {
			return "", err
		}
		ucb, pulls := st.estimate(x, e.cfg.Alpha, e.cfg.Dim)
		better := ucb > bestUCB ||
			(ucb == bestUCB && pulls < bestPulls) ||
			(ucb == bestUCB && pulls == bestPulls && bestKey != "" && key < bestKey)
		if bestKey == "" || better {
			bestKey, bestUCB, bestPulls = key, ucb, pulls
		}
	}
	return bestKey, nil
}

// Update applies the observed reward as a rank-1 update:
// A += x*xT, b += reward*x, pulls++, total += reward — atomically per arm.
// The inverse is maintained via Sherman-Morrison, keeping updates O(d^2).
func (e *BanditEngine) Update(ctx context.Context, conceptKey string, x []float64, reward float64) error {
	if len(x) != e.cfg.Dim {
		return fmt.Errorf("update arm %q: %w: context dim %d, want %d", conceptKey, errs.ErrInvalidArgument, len(x), e.cfg.Dim)
	}
	st, err := e.getArm(ctx, conceptKey)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	next := st.arm.Clone()
	addOuter(next.A, x, next.Dim)
	for i := range x {
		next.B[i] += reward * x[i]
	}
	next.Pulls++
	next.TotalReward += reward

	// Persist first; the in-memory arm only advances once the row commit
	// succeeded, so a storage failure leaves no half-applied arm.
	if err := e.store.StoreArm(ctx, next); err != nil {
		return fmt.Errorf("store arm %q: %w", conceptKey, err)
	}
	shermanMorrison(st.aInv, x, next.Dim)
	st.arm = next
	return nil
}

// Stats returns (pulls, total reward) for a concept's arm, zero for an
// unseen concept.
func (e *BanditEngine) Stats(ctx context.Context, conceptKey string) (int64, float64, error) {
	st, err := e.getArm(ctx, conceptKey)
	if err != nil {
		return 0, 0, err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.arm.Pulls, st.arm.TotalReward, nil
}

// getArm returns the cached arm state, loading from the store or lazily
// initializing an identity prior for a never-seen concept.
func (e *BanditEngine) getArm(ctx context.Context, key string) (*armState, error) {
	e.mu.Lock()
	if st, ok := e.arms[key]; ok {
		e.mu.Unlock()
		return st, nil
	}
	e.mu.Unlock()

	arm, err := e.store.LoadArm(ctx, key)
	switch {
	case err == nil:
		if arm.Dim != e.cfg.Dim {
			return nil, fmt.Errorf("arm %q: %w: stored dim %d, want %d", key, errs.ErrInvalidArgument, arm.Dim, e.cfg.Dim)
		}
	case errors.Is(err, errs.ErrNotFound):
		arm = types.NewArm(key, e.cfg.Dim)
	default:
		return nil, fmt.Errorf("load arm %q: %w", key, err)
	}

	aInv, err := choleskyInverse(arm.A, arm.Dim)
	if err != nil {
		// A not SPD can only mean a corrupted row; refuse to build on it.
		return nil, fmt.Errorf("arm %q: invert A: %w", key, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.arms[key]; ok {
		// Lost the load race; the winner's state is authoritative.
		return st, nil
	}
	st := &armState{arm: arm, aInv: aInv}
	e.arms[key] = st
	return st, nil
}

// estimate computes the UCB for context x under the arm lock.
func (st *armState) estimate(x []float64, alpha float64, d int) (float64, int64) {
	st.mu.Lock()
	defer st.mu.Unlock()
	theta := matVec(st.aInv, st.arm.B, d)
	mean := vecDot(theta, x)
	varTerm := vecDot(x, matVec(st.aInv, x, d))
	if varTerm < 0 {
		varTerm = 0
	}
	return mean + alpha*math.Sqrt(varTerm), st.arm.Pulls
}
