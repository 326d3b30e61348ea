// Package events defines the decoded, chain-agnostic event shape the
// indexer consumes. Turning raw chain-metadata-encoded event bytes into
// this shape is the responsibility of the upstream follower's chain
// client; this package only describes the result of that decoding.
package events

import "fmt"

// AccountID is the 32-byte canonical encoding of an on-chain account.
type AccountID [32]byte

// Hash32 is the 32-byte canonical encoding of a content-addressed
// reference (a proposal hash, a candidate hash, a preimage hash, ...).
type Hash32 [32]byte

// Field is a single named, typed value carried by an event variant.
// Only the shapes the dispatch table ever needs to extract are modeled:
// a single account, a list of accounts, a numeric index, or a hash.
type Field struct {
	Account    *AccountID
	Accounts   []AccountID
	Hash       *Hash32
	Index      *uint32
	HasIndex   bool
	StringVal  string
	HasString  bool
}

// AccountField builds a Field carrying a single AccountID.
func AccountField(a AccountID) Field { return Field{Account: &a} }

// AccountsField builds a Field carrying a list of AccountIDs.
func AccountsField(as []AccountID) Field { return Field{Accounts: as} }

// HashField builds a Field carrying a single Hash32.
func HashField(h Hash32) Field { return Field{Hash: &h} }

// IndexField builds a Field carrying a numeric index.
func IndexField(i uint32) Field { return Field{Index: &i, HasIndex: true} }

// StringField builds a Field carrying an opaque string (used only for
// payload enrichment, never for identifier extraction).
func StringField(s string) Field { return Field{StringVal: s, HasString: true} }

// Event is a single decoded event emitted by a block, tagged by its
// pallet and variant and carrying its fields by name.
type Event struct {
	Pallet      uint8
	PalletName  string
	Variant     uint8
	VariantName string
	Fields      map[string]Field
}

// Field looks up a named field, returning ok=false if the event doesn't
// carry it. Dispatch extractors use this rather than struct access
// because the same Event shape is reused across every pallet.
func (e Event) Field(name string) (Field, bool) {
	f, ok := e.Fields[name]
	return f, ok
}

// String renders "pallet.variant" for logging.
func (e Event) String() string {
	return fmt.Sprintf("%s.%s", e.PalletName, e.VariantName)
}

// BlockEvents is every decoded event from a single block, in the
// block's original event order; EventIndex is implied by slice position.
type BlockEvents struct {
	BlockNumber uint32
	Events      []Event
}
