package follower

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"go.uber.org/atomic"

	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/sharedstate"
)

// Follower pulls decoded events from the upstream chain node and
// pushes them, one block at a time and in ascending height order, onto
// a channel owned by its caller (the Indexer).
type Follower struct {
	log    zerolog.Logger
	client ChainClient
	state  *sharedstate.SharedState
	config *Config

	// maxBlocksFetchSize starts at the configured value and shrinks
	// when the node rejects a ranged query as too large.
	maxBlocksFetchSize int

	mCurrentHeight atomic.Int64
}

// New returns a new Follower.
func New(client ChainClient, state *sharedstate.SharedState, opts ...Option) (*Follower, error) {
	config := DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, fmt.Errorf("applying provided option: %s", err)
		}
	}
	log := logger.With().Str("component", "follower").Logger()
	f := &Follower{
		log:                log,
		client:             client,
		state:              state,
		config:             config,
		maxBlocksFetchSize: config.MaxBlocksFetchSize,
	}
	if err := f.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}
	return f, nil
}

// Start streams block events from fromHeight onward to ch. This is a
// blocking call; the caller must cancel ctx to shut it down gracefully.
// The provided channel is never closed by Start.
func (f *Follower) Start(ctx context.Context, fromHeight uint32, ch chan<- events.BlockEvents) error {
	f.log.Debug().Msg("starting...")
	defer f.log.Debug().Msg("stopped")

	ctx, cls := context.WithCancel(ctx)
	defer cls()
	chHeads := make(chan uint32, 1)
	if err := f.notifyNewHeads(ctx, chHeads); err != nil {
		return fmt.Errorf("creating background head notificator: %s", err)
	}

	for head := range chHeads {
		if head%100 == 0 {
			f.log.Debug().
				Uint32("head", head).
				Int("max_blocks_fetch_size", f.maxBlocksFetchSize).
				Msg("received new chain head")
		}

	Loop:
		for {
			if ctx.Err() != nil {
				break
			}
			// Only ever index blocks at least MinBlockChainDepth behind
			// the reported head, so a later reorg can't invalidate what
			// was already indexed.
			toHeight := head - uint32(f.config.MinBlockChainDepth)
			if head < uint32(f.config.MinBlockChainDepth) || toHeight < fromHeight {
				break
			}
			if toHeight-fromHeight+1 > uint32(f.maxBlocksFetchSize) {
				toHeight = fromHeight + uint32(f.maxBlocksFetchSize) - 1
			}

			blocks, err := f.fetchBlockEventsRange(ctx, fromHeight, toHeight)
			if err != nil {
				f.log.Warn().Err(err).Msgf("fetch block events from %d to %d", fromHeight, toHeight)
				if strings.Contains(err.Error(), "read limit exceeded") ||
					strings.Contains(err.Error(), "response size exceeded") ||
					strings.Contains(err.Error(), "is greater than the limit") ||
					strings.Contains(err.Error(), "block range is too wide") {
					// The requested span was too big for the node; shrink
					// the fetch window and retry right away.
					f.maxBlocksFetchSize = f.maxBlocksFetchSize * 80 / 100
					if f.maxBlocksFetchSize < 1 {
						f.maxBlocksFetchSize = 1
					}
				} else {
					time.Sleep(f.config.ChainAPIBackoff)
				}
				continue Loop
			}

			for _, blockEvents := range blocks {
				select {
				case ch <- blockEvents:
				case <-ctx.Done():
					break Loop
				}
			}

			fromHeight = toHeight + 1
			f.mCurrentHeight.Store(int64(fromHeight))
			f.log.Debug().Uint32("height", fromHeight).Msg("processed up to height")
		}
	}
	return nil
}

func (f *Follower) fetchBlockEventsRange(ctx context.Context, fromHeight, toHeight uint32) ([]events.BlockEvents, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	blocks, err := f.client.BlockEventsRange(ctx, fromHeight, toHeight)
	if err != nil {
		return nil, fmt.Errorf("fetching block events: %s", err)
	}
	return blocks, nil
}

// notifyNewHeads pushes newly observed chain heights to clientCh. It's
// mandatory that the caller cancels ctx to gracefully close the
// background goroutine; when that happens clientCh is closed.
func (f *Follower) notifyNewHeads(ctx context.Context, clientCh chan uint32) error {
	ctx2, cls := context.WithTimeout(ctx, time.Second*10)
	defer cls()
	h, err := f.client.LatestHeight(ctx2)
	if err != nil {
		return fmt.Errorf("get current height: %s", err)
	}
	f.state.SetLastSeenHeight(h)
	clientCh <- h

	go func() {
		defer close(clientCh)
		for {
			select {
			case <-ctx.Done():
				f.log.Info().Msg("gracefully closing head polling")
				return
			case <-time.After(f.config.HeadPollFreq):
				hctx, hcls := context.WithTimeout(ctx, time.Second*10)
				h, err := f.client.LatestHeight(hctx)
				if err != nil {
					f.log.Error().Err(err).Msg("get latest height")
				} else {
					f.state.SetLastSeenHeight(h)
					clientCh <- h
				}
				hcls()
			}
		}
	}()

	return nil
}
