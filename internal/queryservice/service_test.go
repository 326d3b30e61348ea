package queryservice

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/chainindex/chainindex/internal/kvstore"
	"github.com/chainindex/chainindex/internal/subscription"
)

func TestStatusRequest(t *testing.T) {
	t.Parallel()
	store, _, conn := setup(t)

	require.NoError(t, store.CommitBlockWrites(1234, nil, kvstore.ProgressAdvance{
		SetHeadBlock:             true,
		HeadBlock:                1234,
		SetBatchIndexingComplete: true,
		BatchIndexingComplete:    true,
	}))

	var resp statusResponse
	roundTrip(t, conn, `{"type":"Status"}`, &resp)
	require.Equal(t, "Status", resp.Type)
	require.Equal(t, uint32(1234), resp.LastHeadBlock)
	require.True(t, resp.BatchIndexingComplete)
}

func TestVariantsRequest(t *testing.T) {
	t.Parallel()
	_, _, conn := setup(t)

	var resp variantsResponse
	roundTrip(t, conn, `{"type":"Variants"}`, &resp)
	require.Equal(t, "Variants", resp.Type)
	require.NotEmpty(t, resp.Pallets)

	names := make([]string, len(resp.Pallets))
	for i, p := range resp.Pallets {
		names[i] = p.Name
	}
	require.Contains(t, names, "balances")
	require.Contains(t, names, "treasury")
}

func TestGetEventsReturnsMostRecentFirst(t *testing.T) {
	t.Parallel()
	store, _, conn := setup(t)

	account := bytes.Repeat([]byte{0xaa}, 32)
	for _, locator := range [][2]uint32{{1000, 3}, {1001, 0}, {1001, 7}} {
		require.NoError(t, store.CommitBlockWrites(locator[0], []kvstore.BlockWrite{
			{Kind: kvstore.KindAccountID, Identifier: account, EventIndex: locator[1]},
		}, kvstore.ProgressAdvance{SetHeadBlock: true, HeadBlock: locator[0]}))
	}

	var resp eventsResponse
	roundTrip(t, conn, `{"type":"GetEvents","key":{"AccountId":"0x`+strings.Repeat("aa", 32)+`"}}`, &resp)
	require.Equal(t, "Events", resp.Type)
	require.Equal(t, kvstore.KindAccountID, resp.Key.Kind)
	require.Equal(t, []eventLocator{
		{BlockNumber: 1001, EventIndex: 7},
		{BlockNumber: 1001, EventIndex: 0},
		{BlockNumber: 1000, EventIndex: 3},
	}, resp.Events)
}

func TestMalformedFrameKeepsConnectionOpen(t *testing.T) {
	t.Parallel()
	_, _, conn := setup(t)

	// A truncated frame is logged and dropped...
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"GetEvents"`)))
	// ...an unknown type likewise...
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"Nope"}`)))

	// ...and the connection still serves the next well-formed request.
	var resp statusResponse
	roundTrip(t, conn, `{"type":"Status"}`, &resp)
	require.Equal(t, "Status", resp.Type)
}

func TestSubscriptionDelivery(t *testing.T) {
	t.Parallel()
	_, mux, conn := setup(t)

	account := bytes.Repeat([]byte{0xcc}, 32)
	var sub subscribedResponse
	roundTrip(t, conn, `{"type":"SubscribeEvents","key":{"AccountId":"0x`+strings.Repeat("cc", 32)+`"}}`, &sub)
	require.Equal(t, "Subscribed", sub.Type)

	key := subscription.NewKey(kvstore.KindAccountID, account)
	locators := []subscription.EventLocator{
		{BlockNumber: 1500, EventIndex: 2},
		{BlockNumber: 1501, EventIndex: 0},
	}
	for _, loc := range locators {
		require.NoError(t, mux.Publish(context.Background(), key, loc))
	}

	// Pushes arrive as single-element Events frames, in publish order.
	for _, want := range locators {
		var push eventsResponse
		readFrame(t, conn, &push)
		require.Equal(t, "Events", push.Type)
		require.Equal(t, []eventLocator{{BlockNumber: want.BlockNumber, EventIndex: want.EventIndex}}, push.Events)
	}
}

func TestSubscriptionForDifferentKeyStaysQuiet(t *testing.T) {
	t.Parallel()
	_, mux, conn := setup(t)

	var sub subscribedResponse
	roundTrip(t, conn, `{"type":"SubscribeEvents","key":{"ParaId":2000}}`, &sub)

	otherKey := subscription.NewKey(kvstore.KindParaID, []byte{0x00, 0x00, 0x08, 0x00})
	require.NoError(t, mux.Publish(context.Background(), otherKey, subscription.EventLocator{BlockNumber: 9}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Millisecond*200)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err) // deadline, not a frame
}

func setup(t *testing.T) (*kvstore.Store, *subscription.Multiplexer, *websocket.Conn) {
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

	qs, err := New(store, mux)
	require.NoError(t, err)
	server := httptest.NewServer(qs.Handler())
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return store, mux, conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, req string, resp interface{}) {
	t.Helper()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(req)))
	readFrame(t, conn, resp)
}

func readFrame(t *testing.T, conn *websocket.Conn, resp interface{}) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second*5)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, resp))
}
