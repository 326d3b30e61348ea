package indexer

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
	"github.com/chainindex/chainindex/internal/sharedstate"
	"github.com/chainindex/chainindex/internal/subscription"
)

func TestBalanceTransferIndexing(t *testing.T) {
	t.Parallel()
	store, mux, state := setup(t)

	from := accountFixture(0xa1)
	to := accountFixture(0xa2)
	state.SetLastSeenHeight(1000)
	feed := &feedMock{blocks: []events.BlockEvents{{
		BlockNumber: 1000,
		Events: []events.Event{
			unknownEvent(), unknownEvent(), unknownEvent(),
			transferEvent(from, to),
		},
	}}}

	ix := startIndexer(t, store, mux, feed, state)
	defer ix.StopSync()

	require.Eventually(t, func() bool {
		status, err := store.ReadStatus()
		require.NoError(t, err)
		return status.LastHeadBlock == 1000
	}, time.Second*5, time.Millisecond*20)

	for _, account := range []events.AccountID{from, to} {
		records, err := store.ScanReverse(kvstore.KindAccountID, account[:])
		require.NoError(t, err)
		require.Len(t, records, 1)
		require.Equal(t, uint32(1000), records[0].BlockNumber)
		require.Equal(t, uint32(3), records[0].EventIndex)
	}

	// The block's variant entry makes the event reachable by
	// (pallet, variant) too.
	records, err := store.ScanReverse(kvstore.KindVariant, []byte{0, 1})
	require.NoError(t, err)
	require.Len(t, records, 1)

	status, err := store.ReadStatus()
	require.NoError(t, err)
	require.True(t, status.BatchIndexingComplete)
}

func TestCouncilProposedIndexing(t *testing.T) {
	t.Parallel()
	store, mux, state := setup(t)

	account := accountFixture(0xb1)
	var proposalHash events.Hash32
	for i := range proposalHash {
		proposalHash[i] = 0xb2
	}

	// The chain head is far beyond this block, so its commit counts as
	// back-fill progress, not head progress.
	state.SetLastSeenHeight(2500)
	feed := &feedMock{blocks: []events.BlockEvents{{
		BlockNumber: 2000,
		Events: []events.Event{{
			Pallet:      7,
			PalletName:  "collective",
			Variant:     0,
			VariantName: "Proposed",
			Fields: map[string]events.Field{
				"account":        events.AccountField(account),
				"proposal_index": events.IndexField(7),
				"proposal_hash":  events.HashField(proposalHash),
				"threshold":      events.IndexField(3),
			},
		}},
	}}}

	ix := startIndexer(t, store, mux, feed, state)
	defer ix.StopSync()

	require.Eventually(t, func() bool {
		status, err := store.ReadStatus()
		require.NoError(t, err)
		return status.LastBatchBlock == 2000
	}, time.Second*5, time.Millisecond*20)

	scans := []struct {
		kind       kvstore.Kind
		identifier []byte
	}{
		{kvstore.KindAccountID, account[:]},
		{kvstore.KindProposalIndex, []byte{0x00, 0x00, 0x00, 0x07}},
		{kvstore.KindProposalHash, proposalHash[:]},
	}
	for _, scan := range scans {
		records, err := store.ScanReverse(scan.kind, scan.identifier)
		require.NoError(t, err)
		require.Len(t, records, 1, "kind %s", scan.kind)
		require.Equal(t, uint32(2000), records[0].BlockNumber)
		require.Equal(t, uint32(0), records[0].EventIndex)
	}

	status, err := store.ReadStatus()
	require.NoError(t, err)
	require.Equal(t, uint32(0), status.LastHeadBlock)
	require.False(t, status.BatchIndexingComplete)
}

func TestIndexedEventsReachSubscribers(t *testing.T) {
	t.Parallel()
	store, mux, state := setup(t)

	account := accountFixture(0xc1)
	other := accountFixture(0xc2)

	subCh, _, _, err := mux.Subscribe(context.Background(), subscription.NewKey(kvstore.KindAccountID, account[:]))
	require.NoError(t, err)

	state.SetLastSeenHeight(1501)
	feed := &feedMock{blocks: []events.BlockEvents{
		{BlockNumber: 1500, Events: []events.Event{transferEvent(account, other)}},
		{BlockNumber: 1501, Events: []events.Event{transferEvent(other, account)}},
	}}

	ix := startIndexer(t, store, mux, feed, state)
	defer ix.StopSync()

	// Deliveries arrive in (block, event index) order per subscriber.
	for _, want := range []subscription.EventLocator{
		{BlockNumber: 1500, EventIndex: 0},
		{BlockNumber: 1501, EventIndex: 0},
	} {
		select {
		case loc := <-subCh:
			require.Equal(t, want, loc)
		case <-time.After(time.Second * 5):
			t.Fatalf("never received locator for block %d", want.BlockNumber)
		}
	}
}

func TestRestartResumesAfterLastCommittedBlock(t *testing.T) {
	t.Parallel()
	store, mux, state := setup(t)

	// A previous run got the back-fill to block 999.
	require.NoError(t, store.CommitBlockWrites(999, nil, kvstore.ProgressAdvance{SetBatchBlock: true, BatchBlock: 999}))

	state.SetLastSeenHeight(2000)
	feed := &feedMock{}
	ix := startIndexer(t, store, mux, feed, state)
	defer ix.StopSync()

	require.Eventually(t, func() bool {
		return len(feed.startedFrom()) == 1
	}, time.Second*5, time.Millisecond*20)
	require.Equal(t, []uint32{1000}, feed.startedFrom())
}

func TestFirstRunStartsAtConfiguredHeight(t *testing.T) {
	t.Parallel()
	store, mux, state := setup(t)

	state.SetLastSeenHeight(2000)
	feed := &feedMock{}
	ix := startIndexer(t, store, mux, feed, state, WithStartHeight(500))
	defer ix.StopSync()

	require.Eventually(t, func() bool {
		return len(feed.startedFrom()) == 1
	}, time.Second*5, time.Millisecond*20)
	require.Equal(t, []uint32{500}, feed.startedFrom())
}

func setup(t *testing.T) (*kvstore.Store, *subscription.Multiplexer, *sharedstate.SharedState) {
	t.Helper()

	store, err := kvstore.Open(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	mux := subscription.New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		mux.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return store, mux, sharedstate.New()
}

func startIndexer(
	t *testing.T,
	store *kvstore.Store,
	mux *subscription.Multiplexer,
	feed Feed,
	state *sharedstate.SharedState,
	opts ...Option,
) *Indexer {
	t.Helper()

	ix, err := New(store, mux, feed, state, opts...)
	require.NoError(t, err)
	require.NoError(t, ix.StartSync())
	return ix
}

// feedMock replays a fixed block list from the requested height and
// then idles until cancelled, the way the real follower does between
// chain heads.
type feedMock struct {
	mu     sync.Mutex
	blocks []events.BlockEvents
	froms  []uint32
}

func (f *feedMock) Start(ctx context.Context, fromHeight uint32, ch chan<- events.BlockEvents) error {
	f.mu.Lock()
	f.froms = append(f.froms, fromHeight)
	blocks := f.blocks
	f.mu.Unlock()

	for _, be := range blocks {
		if be.BlockNumber < fromHeight {
			continue
		}
		select {
		case ch <- be:
		case <-ctx.Done():
			return nil
		}
	}
	<-ctx.Done()
	return nil
}

func (f *feedMock) startedFrom() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	froms := make([]uint32, len(f.froms))
	copy(froms, f.froms)
	return froms
}

func unknownEvent() events.Event {
	return events.Event{Pallet: 200, PalletName: "not_indexed", Variant: 0, VariantName: "Whatever"}
}

func transferEvent(from, to events.AccountID) events.Event {
	return events.Event{
		Pallet:      0,
		PalletName:  "balances",
		Variant:     1,
		VariantName: "Transfer",
		Fields: map[string]events.Field{
			"from": events.AccountField(from),
			"to":   events.AccountField(to),
		},
	}
}

func accountFixture(b byte) events.AccountID {
	var a events.AccountID
	for i := range a {
		a[i] = b
	}
	return a
}
