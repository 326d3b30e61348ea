// Package queryservice serves the client wire protocol: point queries
// against the secondary index plus live subscriptions, one WebSocket
// connection per client, each with its own read loop and a dedicated
// outgoing writer so subscription pushes and request responses share a
// single ordered frame stream.
package queryservice

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/chainindex/chainindex/internal/dispatch"
	"github.com/chainindex/chainindex/internal/kvstore"
	"github.com/chainindex/chainindex/internal/subscription"
)

// outBuffer bounds the per-connection outgoing frame queue shared by
// responses and subscription pushes.
const outBuffer = 64

// QueryService handles client connections against the store and the
// subscription multiplexer. It only ever reads the store; all writes
// stay confined to the indexer.
type QueryService struct {
	log      zerolog.Logger
	store    *kvstore.Store
	mux      *subscription.Multiplexer
	upgrader websocket.Upgrader

	metrics metrics
}

// New returns a new QueryService.
func New(store *kvstore.Store, mux *subscription.Multiplexer) (*QueryService, error) {
	s := &QueryService{
		log:   logger.With().Str("component", "queryservice").Logger(),
		store: store,
		mux:   mux,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The protocol carries no browser credentials and the port
			// is unauthenticated by design, so any origin may connect.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("initializing metrics instruments: %s", err)
	}
	return s, nil
}

// Handler returns the HTTP surface: the WebSocket protocol endpoint at
// the root, plus a liveness probe.
func (s *QueryService) Handler() http.Handler {
	httpMux := http.NewServeMux()
	httpMux.HandleFunc("/", s.handleProtocol)
	httpMux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httpMux
}

func (s *QueryService) handleProtocol(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("upgrading connection")
		return
	}
	defer func() { _ = conn.Close() }()

	s.metrics.mActiveConnections.Inc()
	defer s.metrics.mActiveConnections.Dec()
	s.log.Debug().Str("remote", r.RemoteAddr).Msg("connection open")
	defer s.log.Debug().Str("remote", r.RemoteAddr).Msg("connection closed")

	s.serveConn(conn)
}

// serveConn runs one connection's state machine until the client
// disconnects: a reader driving request handling, a writer draining
// the outgoing frame queue, and one forwarder per live subscription.
func (s *QueryService) serveConn(conn *websocket.Conn) {
	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	g, ctx := errgroup.WithContext(rootCtx)
	out := make(chan []byte, outBuffer)
	// Only the reader goroutine appends; read back after g.Wait.
	var subCancels []func()

	// Whichever side dies first cancels ctx; closing the conn is what
	// unblocks the other side's pending ReadMessage/WriteMessage.
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	g.Go(func() error {
		defer cancel()
		for {
			select {
			case frame := <-out:
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return fmt.Errorf("writing frame: %s", err)
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return fmt.Errorf("reading frame: %s", err)
			}

			var req request
			if err := json.Unmarshal(data, &req); err != nil {
				// A malformed frame is the client's problem, not a
				// reason to drop the connection.
				s.log.Warn().Err(err).Msg("ignoring malformed frame")
				continue
			}
			if err := s.handleRequest(ctx, g, req, out, &subCancels); err != nil {
				return fmt.Errorf("handling %s request: %s", req.Type, err)
			}
		}
	})

	if err := g.Wait(); err != nil {
		s.log.Debug().Err(err).Msg("connection terminated")
	}

	// Unregister this connection's subscriptions eagerly; the
	// multiplexer's prune-on-failed-delivery only ever fires for keys
	// that keep publishing.
	for _, cancelSub := range subCancels {
		cancelSub()
	}
}

// handleRequest serves one decoded request. Only failures that mean
// the connection can't continue (a store error, a closed peer) are
// returned; protocol-level mistakes are logged and swallowed.
func (s *QueryService) handleRequest(
	ctx context.Context,
	g *errgroup.Group,
	req request,
	out chan<- []byte,
	subCancels *[]func(),
) error {
	switch req.Type {
	case requestStatus:
		status, err := s.store.ReadStatus()
		if err != nil {
			return fmt.Errorf("reading status: %s", err)
		}
		return send(ctx, out, statusResponse{
			Type:                  requestStatus,
			LastHeadBlock:         status.LastHeadBlock,
			LastBatchBlock:        status.LastBatchBlock,
			BatchIndexingComplete: status.BatchIndexingComplete,
		})

	case requestVariants:
		return send(ctx, out, variantsResponse{Type: requestVariants, Pallets: dispatch.Catalog()})

	case requestGetEvents:
		if req.Key == nil {
			s.log.Warn().Msg("GetEvents request without key, ignoring")
			return nil
		}
		records, err := s.store.ScanReverse(req.Key.Kind, req.Key.Identifier)
		if err != nil {
			return fmt.Errorf("scanning %s: %s", req.Key.Kind, err)
		}
		locators := make([]eventLocator, len(records))
		for i, r := range records {
			locators[i] = eventLocator{BlockNumber: r.BlockNumber, EventIndex: r.EventIndex}
		}
		s.metrics.mQueriesServed.Inc()
		return send(ctx, out, eventsResponse{Type: "Events", Key: *req.Key, Events: locators})

	case requestSubscribeEvents:
		if req.Key == nil {
			s.log.Warn().Msg("SubscribeEvents request without key, ignoring")
			return nil
		}
		subCh, _, cancelSub, err := s.mux.Subscribe(ctx, subscription.NewKey(req.Key.Kind, req.Key.Identifier))
		if err != nil {
			return fmt.Errorf("registering subscription: %s", err)
		}
		*subCancels = append(*subCancels, cancelSub)
		key := *req.Key
		g.Go(func() error {
			return s.forwardSubscription(ctx, key, subCh, out)
		})
		return send(ctx, out, subscribedResponse{Type: "Subscribed"})

	default:
		s.log.Warn().Str("type", req.Type).Msg("unknown request type, ignoring")
		return nil
	}
}

// forwardSubscription pushes every published locator for one
// subscription to the connection as a single-element Events frame. It
// exits when the connection dies or the multiplexer prunes the
// subscription; serveConn unregisters the registration itself once
// the connection winds down.
func (s *QueryService) forwardSubscription(
	ctx context.Context,
	key Key,
	subCh <-chan subscription.EventLocator,
	out chan<- []byte,
) error {
	for {
		select {
		case loc, ok := <-subCh:
			if !ok {
				return nil
			}
			push := eventsResponse{
				Type:   "Events",
				Key:    key,
				Events: []eventLocator{{BlockNumber: loc.BlockNumber, EventIndex: loc.EventIndex}},
			}
			if err := send(ctx, out, push); err != nil {
				return err
			}
			s.metrics.mEventsPushed.Inc()
		case <-ctx.Done():
			return nil
		}
	}
}

func send(ctx context.Context, out chan<- []byte, msg interface{}) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling frame: %s", err)
	}
	select {
	case out <- frame:
		return nil
	case <-ctx.Done():
		return nil
	}
}
