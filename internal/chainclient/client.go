// Package chainclient is the concrete upstream-node boundary: a
// JSON-RPC-over-WebSocket client that satisfies the follower's
// ChainClient interface. It deliberately stays thin; metadata-driven
// event decoding happens node-side, so what travels over the wire is
// the already-decoded event shape defined in the events package.
package chainclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
	logger "github.com/rs/zerolog/log"

	"github.com/chainindex/chainindex/internal/events"
)

var log = logger.With().Str("component", "chainclient").Logger()

// Client is a connection to the upstream node. It serializes requests:
// one in flight at a time, which is all the follower ever issues.
type Client struct {
	url string

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID uint64
}

// Dial connects to the node's WebSocket endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dialing node at %s: %s", url, err)
	}
	return &Client{url: url, conn: conn}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Close()
}

// LatestHeight returns the node's current finalized chain height.
func (c *Client) LatestHeight(ctx context.Context) (uint32, error) {
	var height uint32
	if err := c.call(ctx, "chain_getFinalizedHeight", nil, &height); err != nil {
		return 0, fmt.Errorf("calling chain_getFinalizedHeight: %s", err)
	}
	return height, nil
}

// BlockEventsRange returns the decoded events for every block in
// [fromHeight, toHeight] that emitted any, in ascending height order.
// The node rejects spans that would produce too large a response; the
// follower reacts by shrinking its fetch window.
func (c *Client) BlockEventsRange(ctx context.Context, fromHeight, toHeight uint32) ([]events.BlockEvents, error) {
	var wireBlocks []wireBlock
	if err := c.call(ctx, "chain_getBlockEventsRange", []interface{}{fromHeight, toHeight}, &wireBlocks); err != nil {
		return nil, fmt.Errorf("calling chain_getBlockEventsRange: %s", err)
	}

	blocks := make([]events.BlockEvents, 0, len(wireBlocks))
	for _, wb := range wireBlocks {
		be := events.BlockEvents{BlockNumber: wb.BlockNumber, Events: make([]events.Event, 0, len(wb.Events))}
		for i, we := range wb.Events {
			e, err := we.toEvent()
			if err != nil {
				// A single undecodable event doesn't sink the block; the
				// indexer has the same skip posture for unknown variants.
				log.Warn().Err(err).Uint32("height", wb.BlockNumber).Int("event_index", i).Msg("decoding event, skipping")
				continue
			}
			be.Events = append(be.Events, e)
		}
		blocks = append(blocks, be)
	}
	return blocks, nil
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call issues one request and decodes its response into result. The
// whole exchange happens under the client mutex; responses to stale
// ids (e.g. after a deadline expired mid-read) are discarded.
func (c *Client) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	req := rpcRequest{JSONRPC: "2.0", ID: c.nextID, Method: method, Params: params}

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		_ = c.conn.SetReadDeadline(deadline)
	}

	if err := c.conn.WriteJSON(req); err != nil {
		return fmt.Errorf("writing request: %s", err)
	}

	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			return fmt.Errorf("reading response: %s", err)
		}
		if resp.ID != req.ID {
			log.Debug().Uint64("id", resp.ID).Msg("discarding stale response")
			continue
		}
		if resp.Error != nil {
			return fmt.Errorf("node returned error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("unmarshaling result: %s", err)
		}
		return nil
	}
}
