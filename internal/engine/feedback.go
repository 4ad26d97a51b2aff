package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

// FeedbackCoordinator consumes outcome events: it recomputes reward,
// updates the touched bandit arm, and folds the score into the learner's
// mastery under the per-learner lease plus optimistic versioning.
// Consumption is idempotent by event id, so at-least-once delivery is
// safe.
type FeedbackCoordinator struct {
	cfg    FeedbackConfig
	states StateStore
	events EventLog
	bandit *BanditEngine
	lease  Lease
	log    *logger.Logger
	now    func() time.Time
}

func NewFeedbackCoordinator(cfg FeedbackConfig, states StateStore, events EventLog, bandit *BanditEngine, lease Lease, log *logger.Logger) *FeedbackCoordinator {
	return &FeedbackCoordinator{
		cfg:    cfg,
		states: states,
		events: events,
		bandit: bandit,
		lease:  lease,
		log:    log.With("service", "FeedbackCoordinator"),
		now:    time.Now,
	}
}

// OnOutcome applies one FeedbackEvent. The read-modify-write cycle runs
// entirely under the learner lease; the lease is released on every exit
// path. Versioned writes are defense-in-depth on top of the lease: a
// conflict triggers a bounded reload-and-retry.
func (c *FeedbackCoordinator) OnOutcome(ctx context.Context, ev types.FeedbackEvent) error {
	if ev.EventID == uuid.Nil || ev.LearnerID == uuid.Nil || ev.ConceptKey == "" {
		return fmt.Errorf("on outcome: %w: event id, learner id and concept key required", errs.ErrInvalidArgument)
	}
	if ev.Score < 0 || ev.Score > 1 {
		return fmt.Errorf("on outcome: %w: score %v outside [0,1]", errs.ErrInvalidArgument, ev.Score)
	}

	token, err := c.acquireLease(ctx, ev.LearnerID)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := c.lease.Release(context.WithoutCancel(ctx), ev.LearnerID, token); relErr != nil {
			c.log.Warn("lease release failed", "learner_id", ev.LearnerID, "error", relErr)
		}
	}()

	// Duplicate deliveries of the same event serialize on the learner
	// lease, making check-apply-mark atomic with respect to them.
	processed, err := c.events.IsProcessed(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("check event %s: %w", ev.EventID, err)
	}
	if processed {
		c.log.Debug("duplicate feedback event ignored", "event_id", ev.EventID)
		return nil
	}

	reward := c.Reward(ev)
	if err := c.bandit.Update(ctx, ev.ConceptKey, ev.ContextSnapshot, reward); err != nil {
		return err
	}

	if err := c.applyToState(ctx, ev); err != nil {
		return err
	}

	if err := c.events.MarkProcessed(ctx, ev.EventID); err != nil {
		return fmt.Errorf("mark event %s: %w", ev.EventID, err)
	}
	c.log.Debug("feedback applied",
		"event_id", ev.EventID,
		"learner_id", ev.LearnerID,
		"concept", ev.ConceptKey,
		"reward", reward,
	)
	return nil
}

// Reward folds score and completion into a scalar:
// R = w1*score + w2*completed.
func (c *FeedbackCoordinator) Reward(ev types.FeedbackEvent) float64 {
	completed := 0.0
	if ev.Completed {
		completed = 1
	}
	return c.cfg.ScoreWeight*ev.Score + c.cfg.CompletedWeight*completed
}

// applyToState commits the mastery moving average and context refresh with
// a bounded CAS-retry loop.
func (c *FeedbackCoordinator) applyToState(ctx context.Context, ev types.FeedbackEvent) error {
	for attempt := 0; attempt <= c.cfg.CASRetries; attempt++ {
		lc, err := c.states.Load(ctx, ev.LearnerID)
		if err != nil {
			return fmt.Errorf("load learner %s: %w", ev.LearnerID, err)
		}

		next := lc.Clone()
		prev := next.Mastery[ev.ConceptKey]
		next.Mastery[ev.ConceptKey] = prev*(1-c.cfg.MasteryGamma) + ev.Score*c.cfg.MasteryGamma
		next.LastSeen[ev.ConceptKey] = c.now().UTC()
		next.LastOutcomeConcept = ev.ConceptKey
		next.LastOutcomeScore = ev.Score
		if len(next.Vector) == types.ContextDim {
			next.Vector[ctxKnowledge] = next.AvgMastery()
			next.Vector[ctxVelocity] = clamp01(0.7*next.Vector[ctxVelocity] + 0.3*ev.Score)
		}

		err = c.states.CompareAndSwap(ctx, ev.LearnerID, lc.Version, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, errs.ErrVersionConflict) {
			return fmt.Errorf("save learner %s: %w", ev.LearnerID, err)
		}
		c.log.Warn("version conflict under lease, reloading", "learner_id", ev.LearnerID, "attempt", attempt)
	}
	return fmt.Errorf("apply feedback for %s: %w", ev.LearnerID, errs.ErrConcurrencyExhausted)
}

// acquireLease retries a busy lease with backoff up to the configured
// budget, then surfaces ErrUnavailable.
func (c *FeedbackCoordinator) acquireLease(ctx context.Context, learnerID uuid.UUID) (string, error) {
	backoff := c.cfg.LeaseBackoff
	for attempt := 0; attempt <= c.cfg.LeaseRetries; attempt++ {
		token, err := c.lease.Acquire(ctx, learnerID, c.cfg.LeaseTTL)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, errs.ErrLeaseBusy) {
			return "", fmt.Errorf("acquire lease for %s: %w", learnerID, err)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return "", fmt.Errorf("lease for %s still busy: %w", learnerID, errs.ErrUnavailable)
}
