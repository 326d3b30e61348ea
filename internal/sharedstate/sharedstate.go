// Package sharedstate is the in-memory exchange point for the most
// recently observed chain head: the follower writes every height it
// learns from the node, and the indexer reads it back to decide
// whether a committed block is still part of the back-fill or has
// reached the live head.
package sharedstate

import (
	"context"
	"fmt"
	"sync"
)

// SharedState is an in-memory thread-safe data structure to exchange
// data between the follower and the rest of the process.
type SharedState struct {
	mu             sync.RWMutex
	lastSeenHeight uint32
	seen           bool
}

// New creates a new SharedState object.
func New() *SharedState {
	return &SharedState{}
}

// SetLastSeenHeight records the highest chain height observed so far.
// Stale heights (lower than an already recorded one) are ignored so a
// lagging node response can never move the watermark backwards.
func (s *SharedState) SetLastSeenHeight(height uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen && height < s.lastSeenHeight {
		return
	}
	s.lastSeenHeight = height
	s.seen = true
}

// GetLastSeenHeight returns the last observed chain height, with
// ok=false if no height has been observed yet.
func (s *SharedState) GetLastSeenHeight() (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeenHeight, s.seen
}

// LatestHeight implements the indexer's height source over the shared
// state, avoiding a round-trip to the node on every committed block.
func (s *SharedState) LatestHeight(_ context.Context) (uint32, error) {
	h, ok := s.GetLastSeenHeight()
	if !ok {
		return 0, fmt.Errorf("no chain height observed yet")
	}
	return h, nil
}
