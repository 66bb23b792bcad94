// Package retry implements the exponential-backoff-with-jitter pattern used
// independently by the client transfer engine, block server replication, and
// heartbeat sender in the original system.
package retry

import (
	"math/rand"
	"time"
)

// Backoff computes the delay before attempt-th retry (0-based), following
// base*2^attempt capped at max, plus up to 10% jitter.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	delay := base * time.Duration(1<<uint(attempt))
	if delay > max || delay <= 0 {
		delay = max
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/10 + 1))
	return delay + jitter
}

// Do runs fn up to maxAttempts times, sleeping Backoff(attempt, base, max)
// between attempts, and returns the last error if every attempt failed.
func Do(maxAttempts int, base, max time.Duration, fn func(attempt int) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt < maxAttempts-1 {
			time.Sleep(Backoff(attempt, base, max))
		}
	}
	return err
}
