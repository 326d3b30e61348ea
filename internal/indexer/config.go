package indexer

import (
	"fmt"
	"time"
)

// Config contains configuration attributes for an Indexer.
type Config struct {
	BlockFailedExecutionBackoff time.Duration
	StartHeight                 uint32
	CaughtUpDepth               uint32
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		BlockFailedExecutionBackoff: time.Second * 10,
		StartHeight:                 0,
		CaughtUpDepth:               8,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithBlockFailedExecutionBackoff provides a sleep duration between
// retryable block commits, e.g. if the latest chain height can't be
// read yet. A failed store transaction is never retried.
func WithBlockFailedExecutionBackoff(backoff time.Duration) Option {
	return func(c *Config) error {
		if backoff.Seconds() < 1 {
			return fmt.Errorf("backoff is too low (<1s)")
		}
		c.BlockFailedExecutionBackoff = backoff
		return nil
	}
}

// WithStartHeight sets the back-fill start height used when the store
// carries no progress metadata yet (a first run). On later runs the
// persisted progress always wins, so restarts resume where they left
// off rather than re-walking history.
func WithStartHeight(height uint32) Option {
	return func(c *Config) error {
		c.StartHeight = height
		return nil
	}
}

// WithCaughtUpDepth sets how close (in blocks) to the latest observed
// chain head a committed block must be to count as head-stream
// progress rather than back-fill progress. It should be a bit larger
// than the follower's reorg-safety depth, since the follower never
// emits blocks closer to the head than that.
func WithCaughtUpDepth(depth uint32) Option {
	return func(c *Config) error {
		if depth == 0 {
			return fmt.Errorf("caught-up depth must be positive")
		}
		c.CaughtUpDepth = depth
		return nil
	}
}
