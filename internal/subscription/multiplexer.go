// Package subscription implements the fan-out between the Indexer and
// the Query Service's live subscriptions: a single task owns a table
// mapping each subscribed identifier to the set of connections that
// asked to hear about it, fed by publish messages as the Indexer
// commits each block. It is the cooperative, single-owner-goroutine
// idiom used throughout this codebase for anything with shared mutable
// state: no locks, just a goroutine that only ever touches its own
// table, reached through channels.
package subscription

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	logger "github.com/rs/zerolog/log"

	"github.com/chainindex/chainindex/internal/kvstore"
)

// Key identifies the (kind, identifier) pair subscribers register
// against. kvstore.Kind plus the identifier's canonical bytes together
// are exactly the prefix a GetEvents/SubscribeEvents request names.
type Key struct {
	Kind       kvstore.Kind
	Identifier string
}

// NewKey builds a Key from raw identifier bytes.
func NewKey(kind kvstore.Kind, identifier []byte) Key {
	return Key{Kind: kind, Identifier: string(identifier)}
}

// EventLocator is the (block, event index) pair published to
// subscribers; connections forward it to the client as-is, without
// reading the stored value.
type EventLocator struct {
	BlockNumber uint32
	EventIndex  uint32
}

// subscriberBuffer bounds how many unread locators a single subscriber
// can accumulate before it's treated as dead and pruned.
const subscriberBuffer = 64

type registration struct {
	id  uuid.UUID
	key Key
	ch  chan EventLocator
}

type publication struct {
	key    Key
	locator EventLocator
}

// Multiplexer is the subscription fan-out table. It must be driven by
// a call to Run in its own goroutine before Subscribe or Publish have
// any effect.
type Multiplexer struct {
	log zerolog.Logger

	registerCh   chan registration
	unregisterCh chan uuid.UUID
	publishCh    chan publication
	done         chan struct{}
}

// New returns a Multiplexer. Call Run to start serving it.
func New() *Multiplexer {
	return &Multiplexer{
		log:          logger.With().Str("component", "subscription").Logger(),
		registerCh:   make(chan registration),
		unregisterCh: make(chan uuid.UUID),
		publishCh:    make(chan publication, 256),
		done:         make(chan struct{}),
	}
}

// Run owns the subscriber table for as long as ctx is alive. It never
// returns until ctx is cancelled, so the caller should run it in its
// own goroutine.
func (m *Multiplexer) Run(ctx context.Context) {
	defer close(m.done)

	type subscriber struct {
		key Key
		ch  chan EventLocator
	}
	subscribers := make(map[uuid.UUID]subscriber)
	byKey := make(map[Key]map[uuid.UUID]struct{})

	prune := func(id uuid.UUID) {
		sub, ok := subscribers[id]
		if !ok {
			return
		}
		delete(subscribers, id)
		if set, ok := byKey[sub.key]; ok {
			delete(set, id)
			if len(set) == 0 {
				delete(byKey, sub.key)
			}
		}
		close(sub.ch)
	}

	for {
		select {
		case <-ctx.Done():
			for id := range subscribers {
				prune(id)
			}
			return

		case reg := <-m.registerCh:
			subscribers[reg.id] = subscriber{key: reg.key, ch: reg.ch}
			if byKey[reg.key] == nil {
				byKey[reg.key] = make(map[uuid.UUID]struct{})
			}
			byKey[reg.key][reg.id] = struct{}{}

		case id := <-m.unregisterCh:
			prune(id)

		case pub := <-m.publishCh:
			for id := range byKey[pub.key] {
				sub := subscribers[id]
				select {
				case sub.ch <- pub.locator:
				default:
					// Subscriber isn't draining its channel fast enough
					// to keep up; treat it as gone rather than block the
					// whole publish on one slow reader.
					m.log.Warn().Str("subscriber", id.String()).Msg("pruning slow subscriber")
					prune(id)
				}
			}
		}
	}
}

// Subscribe registers a new subscriber for key and returns its channel
// of incoming event locators plus a cancel func to unregister it. The
// returned channel is closed once the subscriber is unregistered,
// either explicitly or because Run's context was cancelled. cancel
// outlives ctx: it still unregisters after the subscriber's own
// context is gone, and no-ops once the multiplexer has shut down.
func (m *Multiplexer) Subscribe(ctx context.Context, key Key) (<-chan EventLocator, uuid.UUID, func(), error) {
	id := uuid.New()
	ch := make(chan EventLocator, subscriberBuffer)
	select {
	case m.registerCh <- registration{id: id, key: key, ch: ch}:
	case <-m.done:
		return nil, uuid.UUID{}, nil, fmt.Errorf("registering subscriber: multiplexer closed")
	case <-ctx.Done():
		return nil, uuid.UUID{}, nil, fmt.Errorf("registering subscriber: %s", ctx.Err())
	}
	cancel := func() {
		select {
		case m.unregisterCh <- id:
		case <-m.done:
		}
	}
	return ch, id, cancel, nil
}

// Publish notifies every subscriber of key about a newly indexed
// event. It never blocks on a slow subscriber; Run prunes those instead.
func (m *Multiplexer) Publish(ctx context.Context, key Key, locator EventLocator) error {
	select {
	case m.publishCh <- publication{key: key, locator: locator}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
