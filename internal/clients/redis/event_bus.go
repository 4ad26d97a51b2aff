package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"

	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/types"
	"github.com/yungbote/pathpilot/internal/utils"
)

// EventBus carries the engine's outbound PLAN_READY events and inbound
// OUTCOME_OBSERVED events over redis pub/sub. Pub/sub itself is
// at-most-once (messages published while no subscriber is live are
// gone); the surrounding delivery layer may redeliver, and the feedback
// coordinator is idempotent by event id, so duplicates are harmless.
type EventBus interface {
	PublishPlanReady(ctx context.Context, learnerID uuid.UUID, path *types.LearningPath) error
	StartOutcomeConsumer(ctx context.Context, onEvent func(ev types.FeedbackEvent)) error
	Close() error
}

type planReadyEnvelope struct {
	LearnerID uuid.UUID           `json:"learner_id"`
	Path      *types.LearningPath `json:"path"`
}

type eventBus struct {
	log       *logger.Logger
	rdb       *goredis.Client
	planCh    string
	outcomeCh string
	workers   int
}

func NewEventBus(rdb *goredis.Client, log *logger.Logger) EventBus {
	workers := utils.GetEnvAsInt("REDIS_OUTCOME_WORKERS", 16, log)
	if workers < 1 {
		workers = 1
	}
	return &eventBus{
		log:       log.With("service", "RedisEventBus"),
		rdb:       rdb,
		planCh:    utils.GetEnv("REDIS_PLAN_READY_CHANNEL", "plan_ready", log),
		outcomeCh: utils.GetEnv("REDIS_OUTCOME_CHANNEL", "outcome_observed", log),
		workers:   workers,
	}
}

func (b *eventBus) PublishPlanReady(ctx context.Context, learnerID uuid.UUID, path *types.LearningPath) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("event bus not initialized")
	}
	raw, err := json.Marshal(planReadyEnvelope{LearnerID: learnerID, Path: path})
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.planCh, raw).Err()
}

func (b *eventBus) StartOutcomeConsumer(ctx context.Context, onEvent func(ev types.FeedbackEvent)) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("event bus not initialized")
	}
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.outcomeCh)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		b.consume(ctx, sub.Channel(), onEvent)
	}()

	return nil
}

// consume decodes outcome messages and hands each one to a bounded worker
// pool. Handlers can block for seconds on a contended learner lease; with
// per-event workers only same-learner events serialize on it, and the
// subscription channel keeps draining instead of overflowing its buffer.
func (b *eventBus) consume(ctx context.Context, msgs <-chan *goredis.Message, onEvent func(ev types.FeedbackEvent)) {
	workers := pool.New().WithMaxGoroutines(b.workers)
	defer workers.Wait()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-msgs:
			if !ok || m == nil {
				return
			}
			var ev types.FeedbackEvent
			if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
				b.log.Warn("bad outcome payload", "error", err)
				continue
			}
			workers.Go(func() { onEvent(ev) })
		}
	}
}

func (b *eventBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
