// Package indexer is the single writer of the secondary index: it
// consumes decoded block events from a Feed, runs each event through
// the dispatch table, and commits every block's extracted identifiers
// to the store in one atomic transaction before publishing them to
// live subscribers. The StartSync/StopSync daemon shape is kept from
// the project's original event processor.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/chainindex/chainindex/internal/dispatch"
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
	"github.com/chainindex/chainindex/internal/subscription"
)

// Feed is everything the Indexer needs from the chain follower.
type Feed interface {
	Start(ctx context.Context, fromHeight uint32, ch chan<- events.BlockEvents) error
}

// HeightSource reports the chain's current best-known height, used to
// classify whether a committed block is still part of the initial
// back-fill or has caught up to the live head.
type HeightSource interface {
	LatestHeight(ctx context.Context) (uint32, error)
}

var log = logger.With().Str("component", "indexer").Logger()

// Indexer is the single writer of the secondary index.
type Indexer struct {
	store  *kvstore.Store
	mux    *subscription.Multiplexer
	feed   Feed
	height HeightSource

	config *Config

	lock           sync.Mutex
	daemonCtx      context.Context
	daemonCancel   context.CancelFunc
	daemonCanceled chan struct{}

	mLog    zerolog.Logger
	metrics metrics
}

// New returns a new Indexer.
func New(
	store *kvstore.Store,
	mux *subscription.Multiplexer,
	feed Feed,
	height HeightSource,
	opts ...Option,
) (*Indexer, error) {
	config := DefaultConfig()
	for _, o := range opts {
		if err := o(config); err != nil {
			return nil, fmt.Errorf("applying option: %s", err)
		}
	}
	ix := &Indexer{
		store:  store,
		mux:    mux,
		feed:   feed,
		height: height,
		config: config,
		mLog:   log,
	}
	if err := ix.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}
	return ix, nil
}

// StartSync starts the background indexing daemon.
func (ix *Indexer) StartSync() error {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	if ix.daemonCtx != nil {
		return fmt.Errorf("indexer already started")
	}

	ctx, cls := context.WithCancel(context.Background())
	ix.daemonCtx = ctx
	ix.daemonCancel = cls
	ix.daemonCanceled = make(chan struct{})
	if err := ix.startDaemon(); err != nil {
		return fmt.Errorf("background daemon failed starting: %s", err)
	}

	ix.mLog.Info().Msg("indexer started")
	return nil
}

// StopSync stops the background indexing daemon, blocking until it has
// fully shut down.
func (ix *Indexer) StopSync() {
	ix.lock.Lock()
	defer ix.lock.Unlock()
	if ix.daemonCtx == nil {
		return
	}

	ix.mLog.Debug().Msg("stopping indexer gracefully...")
	ix.daemonCancel()
	<-ix.daemonCanceled

	ix.daemonCtx = nil
	ix.daemonCancel = nil
	ix.daemonCanceled = nil

	ix.mLog.Debug().Msg("indexer stopped")
}

func (ix *Indexer) startDaemon() error {
	ix.mLog.Debug().Msg("starting daemon")

	status, err := ix.store.ReadStatus()
	if err != nil {
		return fmt.Errorf("reading progress status: %s", err)
	}
	fromHeight := status.LastHeadBlock
	if status.LastBatchBlock > fromHeight {
		fromHeight = status.LastBatchBlock
	}
	if fromHeight > 0 {
		fromHeight++
	} else {
		fromHeight = ix.config.StartHeight
	}

	ch := make(chan events.BlockEvents)
	go func() {
		defer close(ch)
		if err := ix.feed.Start(ix.daemonCtx, fromHeight, ch); err != nil {
			ix.mLog.Error().Err(err).Msg("feed was closed unexpectedly")
			go ix.StopSync()
			return
		}
		ix.mLog.Info().Msg("feed gracefully closed")
	}()

	go func() {
		defer close(ix.daemonCanceled)
		for blockEvents := range ch {
			for ix.daemonCtx.Err() == nil {
				if err := ix.commitBlock(ix.daemonCtx, blockEvents); err != nil {
					// A failed store transaction is the one error class
					// that must never be absorbed by the retry loop: the
					// process exits so an operator can investigate.
					var sErr storeError
					if errors.As(err, &sErr) {
						ix.mLog.Fatal().Err(err).Uint32("block_number", blockEvents.BlockNumber).
							Msg("unrecoverable store failure committing block")
					}
					ix.mLog.Error().Err(err).Msg("committing block")
					select {
					case <-ix.daemonCtx.Done():
					case <-time.After(ix.config.BlockFailedExecutionBackoff):
					}
					continue
				}
				break
			}
		}
		ix.mLog.Info().Msg("background daemon closed")
	}()

	return nil
}

// commitBlock runs the dispatch table over every event in the block,
// writes the resulting identifiers in one atomic transaction, and
// publishes each one to live subscribers.
func (ix *Indexer) commitBlock(ctx context.Context, be events.BlockEvents) error {
	var writes []kvstore.BlockWrite
	type publishTarget struct {
		key      subscription.Key
		locator  subscription.EventLocator
	}
	var toPublish []publishTarget

	for eventIndex, e := range be.Events {
		ids, value, ok, err := dispatch.Extract(e)
		if err != nil {
			ix.mLog.Warn().Err(err).Str("event", e.String()).Msg("extracting identifiers, skipping event")
			continue
		}
		if !ok {
			ix.mLog.Debug().Str("event", e.String()).Msg("no dispatch entry for event, skipping")
			continue
		}
		for _, id := range ids {
			writes = append(writes, kvstore.BlockWrite{
				Kind:       id.Kind,
				Identifier: id.Bytes,
				EventIndex: uint32(eventIndex),
				Value:      value,
			})
			toPublish = append(toPublish, publishTarget{
				key:     subscription.NewKey(id.Kind, id.Bytes),
				locator: subscription.EventLocator{BlockNumber: be.BlockNumber, EventIndex: uint32(eventIndex)},
			})
		}
	}

	progress, err := ix.progressAdvance(ctx, be.BlockNumber)
	if err != nil {
		return fmt.Errorf("computing progress advance: %s", err)
	}

	if err := ix.store.CommitBlockWrites(be.BlockNumber, writes, progress); err != nil {
		return storeError{err}
	}

	for _, p := range toPublish {
		if err := ix.mux.Publish(ctx, p.key, p.locator); err != nil {
			ix.mLog.Warn().Err(err).Msg("publishing to subscribers")
		}
	}

	ix.metrics.mLastProcessedHeight.Store(int64(be.BlockNumber))
	ix.metrics.mEventsIndexed.Add(ctx, int64(len(be.Events)))

	return nil
}

// storeError marks a failed store transaction, as opposed to the
// transient errors (an unavailable height source, say) the commit
// retry loop is allowed to wait out.
type storeError struct {
	err error
}

func (e storeError) Error() string {
	return fmt.Sprintf("committing block writes: %s", e.err)
}

// progressAdvance classifies the block as still catching up (batch) or
// at the live head, based on how far behind the chain's current height
// it is.
func (ix *Indexer) progressAdvance(ctx context.Context, blockNumber uint32) (kvstore.ProgressAdvance, error) {
	latest, err := ix.height.LatestHeight(ctx)
	if err != nil {
		return kvstore.ProgressAdvance{}, fmt.Errorf("reading latest height: %s", err)
	}

	caughtUp := latest <= blockNumber || latest-blockNumber <= ix.config.CaughtUpDepth
	if caughtUp {
		return kvstore.ProgressAdvance{
			SetHeadBlock:             true,
			HeadBlock:                blockNumber,
			SetBatchIndexingComplete: true,
			BatchIndexingComplete:    true,
		}, nil
	}
	return kvstore.ProgressAdvance{
		SetBatchBlock: true,
		BatchBlock:    blockNumber,
	}, nil
}
