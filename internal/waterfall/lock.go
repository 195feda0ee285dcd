package waterfall

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"mindline/internal/shared/constants"
)

// ErrLockNotAcquired is returned when another writer holds the job lock
var ErrLockNotAcquired = errors.New("job lock not acquired")

// unlockScript releases the lock only if the caller still owns it, so a
// slow critical section cannot release a lock that already rotated.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
else
    return 0
end
`)

// Locker serializes inbound-response handling per job. All offer state
// transitions driven by patient replies happen inside the lock.
type Locker interface {
	WithJobLock(ctx context.Context, jobID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisJobLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retries int
	backoff time.Duration
}

// NewLocker creates a Redis-backed per-job lock
func NewLocker(client *redis.Client) Locker {
	return &redisJobLocker{
		client:  client,
		ttl:     constants.TTL_JOB_LOCK,
		retries: 5,
		backoff: 50 * time.Millisecond,
	}
}

// acquireWithRetry attempts acquire up to attempts times, sleeping backoff
// between tries. Contention here is a racing reconciler or scheduler tick
// holding the lock for milliseconds, so a short wait usually wins the lock
// instead of bouncing the caller.
func acquireWithRetry(ctx context.Context, attempts int, backoff time.Duration, acquire func(ctx context.Context) (bool, error)) (bool, error) {
	for i := 0; i < attempts; i++ {
		ok, err := acquire(ctx)
		if err != nil || ok {
			return ok, err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(backoff):
		}
	}
	return false, nil
}

func (l *redisJobLocker) WithJobLock(ctx context.Context, jobID uuid.UUID, fn func(ctx context.Context) error) error {
	key := constants.JobLockKey(jobID)
	token := uuid.New().String()

	ok, err := acquireWithRetry(ctx, l.retries, l.backoff, func(ctx context.Context) (bool, error) {
		return l.client.SetNX(ctx, key, token, l.ttl).Result()
	})
	if err != nil {
		return fmt.Errorf("failed to acquire job lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = unlockScript.Run(unlockCtx, l.client, []string{key}, token).Err()
	}()

	return fn(ctx)
}
