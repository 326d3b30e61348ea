package follower

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/sharedstate"
)

func TestEmitsBlocksUpToSafeDepth(t *testing.T) {
	t.Parallel()

	client := &chainClientMock{height: 10}
	state := sharedstate.New()
	f, err := New(client, state, WithMinBlockDepth(2))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan events.BlockEvents)
	done := make(chan error, 1)
	go func() { done <- f.Start(ctx, 0, ch) }()

	// With head 10 and depth 2, blocks 0..8 are safe to emit.
	for want := uint32(0); want <= 8; want++ {
		select {
		case be := <-ch:
			require.Equal(t, want, be.BlockNumber)
		case <-time.After(time.Second * 5):
			t.Fatalf("never received block %d", want)
		}
	}

	select {
	case be := <-ch:
		t.Fatalf("received block %d beyond the reorg-safe watermark", be.BlockNumber)
	case <-time.After(time.Millisecond * 200):
	}

	h, ok := state.GetLastSeenHeight()
	require.True(t, ok)
	require.Equal(t, uint32(10), h)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second * 5):
		t.Fatal("follower never shut down")
	}
}

func TestResumesFromGivenHeight(t *testing.T) {
	t.Parallel()

	client := &chainClientMock{height: 2000}
	f, err := New(client, sharedstate.New(), WithMinBlockDepth(5), WithMaxBlocksFetchSize(100))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan events.BlockEvents)
	go func() { _ = f.Start(ctx, 1000, ch) }()

	select {
	case be := <-ch:
		require.Equal(t, uint32(1000), be.BlockNumber)
	case <-time.After(time.Second * 5):
		t.Fatal("never received the resume block")
	}
}

func TestShrinksFetchWindowOnTooWideRange(t *testing.T) {
	t.Parallel()

	// The node caps ranged responses at 10 blocks; the follower's
	// window starts far above that and must shrink until accepted.
	// No backoff sleep happens on the shrink path, so the first block
	// arriving quickly is what proves the window shrank.
	client := &chainClientMock{height: 100, maxSpan: 10}
	f, err := New(client, sharedstate.New(), WithMinBlockDepth(2), WithMaxBlocksFetchSize(10000))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan events.BlockEvents)
	go func() { _ = f.Start(ctx, 0, ch) }()

	select {
	case be := <-ch:
		require.Equal(t, uint32(0), be.BlockNumber)
	case <-time.After(time.Second * 5):
		t.Fatal("follower never shrank its fetch window")
	}
	require.LessOrEqual(t, f.maxBlocksFetchSize, 10)
}

func TestFetchErrorBacksOffAndRetries(t *testing.T) {
	t.Parallel()

	client := &chainClientMock{height: 10, failFirstFetches: 1}
	f, err := New(client, sharedstate.New(), WithMinBlockDepth(2), WithChainAPIBackoff(time.Second))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan events.BlockEvents)
	go func() { _ = f.Start(ctx, 0, ch) }()

	select {
	case be := <-ch:
		require.Equal(t, uint32(0), be.BlockNumber)
	case <-time.After(time.Second * 10):
		t.Fatal("follower never recovered from a fetch error")
	}
}

// chainClientMock serves a fixed head height and empty blocks,
// optionally failing the first N fetches or rejecting ranges wider
// than maxSpan the way a real node bounds its response size.
type chainClientMock struct {
	mu               sync.Mutex
	height           uint32
	failFirstFetches int
	maxSpan          int
}

func (c *chainClientMock) LatestHeight(context.Context) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.height, nil
}

func (c *chainClientMock) BlockEventsRange(_ context.Context, fromHeight, toHeight uint32) ([]events.BlockEvents, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failFirstFetches > 0 {
		c.failFirstFetches--
		return nil, fmt.Errorf("node hiccup")
	}
	if c.maxSpan > 0 && int(toHeight-fromHeight+1) > c.maxSpan {
		return nil, fmt.Errorf("block range is too wide")
	}
	blocks := make([]events.BlockEvents, 0, toHeight-fromHeight+1)
	for height := fromHeight; height <= toHeight; height++ {
		blocks = append(blocks, events.BlockEvents{BlockNumber: height})
	}
	return blocks, nil
}
