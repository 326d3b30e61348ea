package kvstore

import (
	"encoding/binary"
	"fmt"
)

// suffixLen is the width of the block-number/event-index suffix: two
// big-endian uint32s.
const suffixLen = 8

// EncodeKey builds the composite key identifier‖block_be32‖event_index_be32.
// The big-endian encoding of the suffix is load-bearing: sorted byte
// order of the resulting key must coincide with numeric order of
// (blockNumber, eventIndex), which is what makes a prefix scan yield
// ascending chronological order and a reverse prefix scan yield
// most-recent-first order.
func EncodeKey(identifier []byte, blockNumber, eventIndex uint32) []byte {
	key := make([]byte, len(identifier)+suffixLen)
	n := copy(key, identifier)
	binary.BigEndian.PutUint32(key[n:], blockNumber)
	binary.BigEndian.PutUint32(key[n+4:], eventIndex)
	return key
}

// DecodeKey splits a composite key back into its identifier segment and
// (blockNumber, eventIndex) suffix. idLen must match the Kind the key
// was read from.
func DecodeKey(key []byte, idLen int) (identifier []byte, blockNumber, eventIndex uint32, err error) {
	if len(key) != idLen+suffixLen {
		return nil, 0, 0, fmt.Errorf("composite key has length %d, want %d", len(key), idLen+suffixLen)
	}
	identifier = make([]byte, idLen)
	copy(identifier, key[:idLen])
	blockNumber = binary.BigEndian.Uint32(key[idLen : idLen+4])
	eventIndex = binary.BigEndian.Uint32(key[idLen+4 : idLen+8])
	return identifier, blockNumber, eventIndex, nil
}

// upperBound returns the largest composite key that could ever be
// written for this identifier (the identifier followed by eight 0xff
// bytes), used as the seek target for a reverse prefix scan.
func upperBound(identifier []byte) []byte {
	bound := make([]byte, len(identifier)+suffixLen)
	copy(bound, identifier)
	for i := len(identifier); i < len(bound); i++ {
		bound[i] = 0xff
	}
	return bound
}
