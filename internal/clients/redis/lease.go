package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/pathpilot/internal/logger"
	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
)

// releaseScript deletes the lease key only when it still holds the
// caller's token, so releasing an expired lease that another caller has
// since acquired is a no-op.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LearnerLease is a redis-backed, TTL-bounded exclusive lock per learner
// id. The TTL bounds worst-case staleness when a holder crashes: the lease
// simply expires and the next caller proceeds.
type LearnerLease struct {
	rdb    *goredis.Client
	prefix string
	log    *logger.Logger
}

func NewLearnerLease(rdb *goredis.Client, log *logger.Logger) *LearnerLease {
	return &LearnerLease{
		rdb:    rdb,
		prefix: "pathpilot:lease:learner:",
		log:    log.With("client", "LearnerLease"),
	}
}

func (l *LearnerLease) key(learnerID uuid.UUID) string {
	return l.prefix + learnerID.String()
}

func (l *LearnerLease) Acquire(ctx context.Context, learnerID uuid.UUID, ttl time.Duration) (string, error) {
	if learnerID == uuid.Nil {
		return "", fmt.Errorf("acquire lease: %w", errs.ErrInvalidArgument)
	}
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key(learnerID), token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("acquire lease: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("learner %s: %w", learnerID, errs.ErrLeaseBusy)
	}
	return token, nil
}

func (l *LearnerLease) Release(ctx context.Context, learnerID uuid.UUID, token string) error {
	if learnerID == uuid.Nil || token == "" {
		return fmt.Errorf("release lease: %w", errs.ErrInvalidArgument)
	}
	if err := releaseScript.Run(ctx, l.rdb, []string{l.key(learnerID)}, token).Err(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}
