package queue

import (
	"fmt"
	"time"
)

const (
	MaxConcurrency = 50
	MinRetention   = time.Minute
	maxBackoff     = time.Hour
)

// Config holds the per-queue execution policy. Lock duration must cover the
// slowest expected handler because an expired lock hands the job to another
// worker.
type Config struct {
	Name         string
	Concurrency  int
	MaxAttempts  int
	LockDuration time.Duration
	Backoff      time.Duration
	Retention    time.Duration
}

// Validate rejects configurations that would break claim semantics.
func (c Config) Validate() error {
	switch {
	case c.Name == "":
		return fmt.Errorf("queue name is required")
	case c.Concurrency < 1 || c.Concurrency > MaxConcurrency:
		return fmt.Errorf("queue %s: concurrency must be between 1 and %d", c.Name, MaxConcurrency)
	case c.MaxAttempts < 1:
		return fmt.Errorf("queue %s: max attempts must be at least 1", c.Name)
	case c.LockDuration < time.Second:
		return fmt.Errorf("queue %s: lock duration must be at least 1s", c.Name)
	case c.Backoff < 0:
		return fmt.Errorf("queue %s: backoff must not be negative", c.Name)
	case c.Retention < MinRetention:
		return fmt.Errorf("queue %s: retention must be at least %s", c.Name, MinRetention)
	}
	return nil
}

// RetryDelay returns the wait before the next attempt after attemptsMade
// failures: Backoff doubled per prior failure, capped at one hour.
func (c Config) RetryDelay(attemptsMade int) time.Duration {
	if c.Backoff <= 0 || attemptsMade < 1 {
		return 0
	}
	delay := c.Backoff
	for i := 1; i < attemptsMade; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
