// Package kvstore implements the on-disk secondary-index layout: one
// sorted-KV bucket per identifier kind, keyed by the composite
// identifier‖block‖event_index encoding in keys.go, plus a root bucket
// for progress metadata. It is grounded on the bucket-per-entity,
// single-file embedded-database pattern used for the node state store
// in the project's reference storage layer (cursor-based prefix scans
// over named buckets inside a single bbolt.DB).
package kvstore

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Record is a single entry written to (or read from) an identifier
// bucket: the (block, event index) locator, plus the optional payload
// value recorded alongside it.
type Record struct {
	BlockNumber uint32
	EventIndex  uint32
	Value       []byte
}

// Progress keys stored in the root bucket.
const (
	keyLastHeadBlock          = "last_head_block"
	keyLastBatchBlock         = "last_batch_block"
	keyBatchIndexingComplete  = "batch_indexing_complete"
)

// Store is a handle onto the embedded sorted-KV database. It is safe
// for concurrent use: writes are expected to be confined to a single
// writer (the Indexer), while reads (by Connection tasks) may run
// concurrently with writes, exactly as bbolt's MVCC model allows.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if necessary) the KV store at path and ensures
// every identifier-kind bucket plus the root bucket exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening kv store: %s", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(rootBucket)); err != nil {
			return fmt.Errorf("creating root bucket: %s", err)
		}
		for _, k := range allKinds {
			if _, err := tx.CreateBucketIfNotExists([]byte(k.BucketName())); err != nil {
				return fmt.Errorf("creating bucket %s: %s", k.BucketName(), err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database file.
func (s *Store) Close() error {
	return s.db.Close()
}

// BlockWrite is a fully-addressed index write: identifier bytes plus
// the exact (block, event index) suffix, ready to become a composite
// key. The Indexer builds one of these per extracted identifier.
type BlockWrite struct {
	Kind        Kind
	Identifier  []byte
	EventIndex  uint32
	Value       []byte
}

// ProgressAdvance describes how progress metadata should move forward
// after a block is committed. Exactly one of HeadBlock/BatchBlock is
// normally set, matching whether the block came from the head stream
// or the back-fill batch stream.
type ProgressAdvance struct {
	SetHeadBlock          bool
	HeadBlock             uint32
	SetBatchBlock         bool
	BatchBlock            uint32
	SetBatchIndexingComplete bool
	BatchIndexingComplete bool
}

// CommitBlockWrites is the real single-writer entry point: every
// extracted identifier for the block, plus the progress advance, land
// in one bbolt transaction. The write set is all-or-nothing:
// a KV error aborts the whole block and is fatal to the caller.
func (s *Store) CommitBlockWrites(blockNumber uint32, writes []BlockWrite, progress ProgressAdvance) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, w := range writes {
			b := tx.Bucket([]byte(w.Kind.BucketName()))
			if b == nil {
				return fmt.Errorf("bucket %s not found", w.Kind.BucketName())
			}
			key := EncodeKey(w.Identifier, blockNumber, w.EventIndex)
			// Writing unconditionally is correct: the full key is
			// deterministic from (identifier, block, event index), so
			// a duplicate write (e.g. after a crash-restart replay) is
			// a semantic no-op. A pre-check via b.Get would only be an
			// efficiency hint, never a correctness requirement.
			if err := b.Put(key, w.Value); err != nil {
				return fmt.Errorf("writing %s key: %s", w.Kind, err)
			}
		}
		return s.applyProgress(tx, progress)
	})
}

func (s *Store) applyProgress(tx *bolt.Tx, progress ProgressAdvance) error {
	root := tx.Bucket([]byte(rootBucket))
	if root == nil {
		return fmt.Errorf("root bucket not found")
	}
	if progress.SetHeadBlock {
		if err := putUint32(root, keyLastHeadBlock, progress.HeadBlock); err != nil {
			return fmt.Errorf("writing last_head_block: %s", err)
		}
	}
	if progress.SetBatchBlock {
		if err := putUint32(root, keyLastBatchBlock, progress.BatchBlock); err != nil {
			return fmt.Errorf("writing last_batch_block: %s", err)
		}
	}
	if progress.SetBatchIndexingComplete {
		v := byte(0x00)
		if progress.BatchIndexingComplete {
			v = 0x01
		}
		if err := root.Put([]byte(keyBatchIndexingComplete), []byte{v}); err != nil {
			return fmt.Errorf("writing batch_indexing_complete: %s", err)
		}
	}
	return nil
}

// Status is the progress metadata snapshot returned to clients.
type Status struct {
	LastHeadBlock         uint32
	LastBatchBlock        uint32
	BatchIndexingComplete bool
}

// ReadStatus returns the current progress metadata.
func (s *Store) ReadStatus() (Status, error) {
	var status Status
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(rootBucket))
		if root == nil {
			return fmt.Errorf("root bucket not found")
		}
		status.LastHeadBlock = getUint32(root, keyLastHeadBlock)
		status.LastBatchBlock = getUint32(root, keyLastBatchBlock)
		v := root.Get([]byte(keyBatchIndexingComplete))
		status.BatchIndexingComplete = len(v) == 1 && v[0] == 0x01
		return nil
	})
	return status, err
}

// MaxEventsPerQuery bounds every GetEvents response: the 100-cap is
// fixed and not negotiable, per the client wire protocol.
const MaxEventsPerQuery = 100

// ScanReverse returns up to MaxEventsPerQuery composite-key locators for
// the given kind and identifier, in most-recent-first (descending
// (block, event_index)) order. It observes a single bbolt read
// transaction's consistent snapshot.
func (s *Store) ScanReverse(kind Kind, identifier []byte) ([]Record, error) {
	if len(identifier) != kind.Len() {
		return nil, fmt.Errorf("identifier for kind %s must be %d bytes, got %d", kind, kind.Len(), len(identifier))
	}

	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(kind.BucketName()))
		if b == nil {
			return fmt.Errorf("bucket %s not found", kind)
		}
		c := b.Cursor()

		seek := upperBound(identifier)
		k, v := c.Seek(seek)
		if k == nil {
			// Seek ran off the end of the bucket; the last key (if
			// any) is the highest key in the whole bucket.
			k, v = c.Last()
		} else if !bytes.Equal(k, seek) {
			// Seek landed on a key > seek, which belongs to a
			// lexicographically-later identifier. Step back to find
			// this identifier's range. (Landing exactly on seek means
			// the maximal composite key for this identifier exists and
			// is itself part of the result.)
			k, v = c.Prev()
		}

		for k != nil && bytes.HasPrefix(k, identifier) && len(records) < MaxEventsPerQuery {
			_, blockNumber, eventIndex, err := DecodeKey(k, len(identifier))
			if err != nil {
				return fmt.Errorf("decoding key: %s", err)
			}
			value := make([]byte, len(v))
			copy(value, v)
			records = append(records, Record{BlockNumber: blockNumber, EventIndex: eventIndex, Value: value})
			k, v = c.Prev()
		}
		return nil
	})
	return records, err
}

func putUint32(b *bolt.Bucket, key string, v uint32) error {
	buf := make([]byte, 4)
	buf[0] = byte(v >> 24)
	buf[1] = byte(v >> 16)
	buf[2] = byte(v >> 8)
	buf[3] = byte(v)
	return b.Put([]byte(key), buf)
}

func getUint32(b *bolt.Bucket, key string) uint32 {
	v := b.Get([]byte(key))
	if len(v) != 4 {
		return 0
	}
	return uint32(v[0])<<24 | uint32(v[1])<<16 | uint32(v[2])<<8 | uint32(v[3])
}
