package constants

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Redis key conventions for the scheduling backend.
// Pattern: mindline:{module}:{operation}:{identifier}

const (
	// TTL_JOB_LOCK bounds the reconciler's per-job critical section. A crashed
	// holder releases implicitly when the key expires.
	TTL_JOB_LOCK = 10 * time.Second

	// TTL_WAITLIST_STATS covers the daily waitlist counters.
	TTL_WAITLIST_STATS = 24 * time.Hour
)

// JobLockKey returns the reconciler lock key for one waterfall job.
func JobLockKey(jobID uuid.UUID) string {
	return "mindline:waterfall:lock:" + jobID.String()
}

// WaitlistStatsKey returns the daily waitlist counter hash for a practice day.
func WaitlistStatsKey(day time.Time) string {
	return "mindline:waitlist:stats:" + day.Format("2006-01-02")
}

// RateLimitKey returns the sliding-window key for a client/limit pair.
func RateLimitKey(clientIP, limitType string) string {
	return fmt.Sprintf("mindline:ratelimit:%s:%s", clientIP, limitType)
}
