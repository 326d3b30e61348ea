// Package follower streams decoded block events from the upstream
// chain node, grounded on the project's original event-feed component:
// a head-tracking background loop feeds a bounded back-fill loop that
// walks from the last indexed height up to a reorg-safe watermark,
// self-throttling its batch size and backing off on node errors.
package follower

import (
	"context"
	"fmt"
	"time"

	"github.com/chainindex/chainindex/internal/events"
)

// ChainClient is the upstream node boundary: everything the follower
// needs from the chain, kept narrow enough to fake in tests.
type ChainClient interface {
	// LatestHeight returns the chain's current best-known block height.
	LatestHeight(ctx context.Context) (uint32, error)
	// BlockEventsRange returns the decoded events for every block in
	// [fromHeight, toHeight] that emitted any, in ascending height
	// order.
	BlockEventsRange(ctx context.Context, fromHeight, toHeight uint32) ([]events.BlockEvents, error)
}

// Config contains configuration parameters for a Follower.
type Config struct {
	MinBlockChainDepth int
	MaxBlocksFetchSize int
	ChainAPIBackoff    time.Duration
	HeadPollFreq       time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		MinBlockChainDepth: 5,
		MaxBlocksFetchSize: 10000,
		ChainAPIBackoff:    time.Second * 15,
		HeadPollFreq:       time.Second * 6,
	}
}

// Option modifies a configuration attribute.
type Option func(*Config) error

// WithMinBlockDepth provides the confidence interval of block depth
// from which the follower can safely assume block finality and skip
// worrying about reorgs.
func WithMinBlockDepth(depth int) Option {
	return func(c *Config) error {
		if depth < 0 {
			return fmt.Errorf("depth must be non-negative")
		}
		c.MinBlockChainDepth = depth
		return nil
	}
}

// WithMaxBlocksFetchSize sets the starting bound on how many blocks a
// single ranged query covers. The follower shrinks the window itself
// when the node rejects a span as too large.
func WithMaxBlocksFetchSize(batchSize int) Option {
	return func(c *Config) error {
		if batchSize <= 0 {
			return fmt.Errorf("batch size should be greater than zero")
		}
		c.MaxBlocksFetchSize = batchSize
		return nil
	}
}

// WithChainAPIBackoff provides a sleep duration between failed node api
// calls before retrying.
func WithChainAPIBackoff(backoff time.Duration) Option {
	return func(c *Config) error {
		if backoff < time.Second {
			return fmt.Errorf("chain api backoff is too low (<1s)")
		}
		c.ChainAPIBackoff = backoff
		return nil
	}
}

// WithHeadPollFreq sets how often the follower polls the node for its
// latest height.
func WithHeadPollFreq(freq time.Duration) Option {
	return func(c *Config) error {
		if freq < time.Second {
			return fmt.Errorf("head poll frequency is too low (<1s)")
		}
		c.HeadPollFreq = freq
		return nil
	}
}
