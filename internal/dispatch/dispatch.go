// Package dispatch is the single source of truth mapping a decoded
// event's (pallet, variant) to the identifiers it contributes to the
// secondary index. It replaces what would otherwise be a large switch
// on pallet/variant name with a table of pure extractor functions, one
// per variant, grouped by pallet family across a handful of files.
//
// Every extractor follows the same shape: look at the event's named
// fields, and for each one that carries an identifier, emit an
// (IdentifierKind, bytes) pair. Composite events (an account plus a
// proposal hash, say) simply emit more than one pair for the same
// event, which is how a single event ends up joinable from either
// identifier.
package dispatch

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"

	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// Identifier is one (kind, canonical-bytes) pair an extractor emits for
// a single event.
type Identifier struct {
	Kind  kvstore.Kind
	Bytes []byte
}

// Extractor is the pure leaf function for one event variant: given the
// decoded event, return every identifier it references plus an
// optional serialized payload to store alongside the index entries.
type Extractor func(e events.Event) ([]Identifier, []byte, error)

type variantEntry struct {
	index     uint8
	extractor Extractor
}

type palletEntry struct {
	index    uint8
	variants map[string]variantEntry
}

// table is the two-level (pallet name -> variant name -> extractor)
// dispatch table, populated by each pallet-group file's init().
var table = map[string]palletEntry{}

// registerPallet adds one pallet's variant extractors to the table. It
// panics on a duplicate pallet name, which would indicate a
// programming error in the dispatch table itself (the one place this
// package should never silently misbehave).
func registerPallet(name string, index uint8, variants map[string]variantEntry) {
	if _, exists := table[name]; exists {
		panic("dispatch: pallet " + name + " registered twice")
	}
	table[name] = palletEntry{index: index, variants: variants}
}

// Lookup returns the extractor for a (pallet, variant) pair, or
// ok=false if the pair isn't covered by the dispatch table. The caller
// (the Indexer) treats a miss as a non-fatal "unknown variant, skip and
// log" case, never as a fatal error.
func Lookup(palletName, variantName string) (Extractor, bool) {
	p, ok := table[palletName]
	if !ok {
		return nil, false
	}
	v, ok := p.variants[variantName]
	if !ok {
		return nil, false
	}
	return v.extractor, true
}

// Extract runs the dispatch table against a decoded event, additionally
// producing the mandatory Variant-kind identifier that makes
// "all events of pallet.variant" queryable regardless of whether the
// event itself carries any other identifier.
func Extract(e events.Event) (ids []Identifier, value []byte, ok bool, err error) {
	extractor, found := Lookup(e.PalletName, e.VariantName)
	if !found {
		return nil, nil, false, nil
	}
	ids, value, err = extractor(e)
	if err != nil {
		return nil, nil, true, err
	}
	ids = append(ids, variantIdentifier(e.Pallet, e.Variant))
	return ids, value, true, nil
}

func variantIdentifier(pallet, variant uint8) Identifier {
	return Identifier{Kind: kvstore.KindVariant, Bytes: []byte{pallet, variant}}
}

// PalletMeta and EventMeta describe the catalog returned by the
// Variants query: the closed set of pallets and their event variants.
type PalletMeta struct {
	Index  uint8       `json:"index"`
	Name   string      `json:"name"`
	Events []EventMeta `json:"events"`
}

// EventMeta is one variant entry in a PalletMeta's catalog.
type EventMeta struct {
	Index uint8  `json:"index"`
	Name  string `json:"name"`
}

// Catalog returns the full pallet/variant schema, sorted by pallet
// index then variant index, for serving the Variants request.
func Catalog() []PalletMeta {
	pallets := make([]PalletMeta, 0, len(table))
	for name, p := range table {
		evs := make([]EventMeta, 0, len(p.variants))
		for vname, v := range p.variants {
			evs = append(evs, EventMeta{Index: v.index, Name: vname})
		}
		sort.Slice(evs, func(i, j int) bool { return evs[i].Index < evs[j].Index })
		pallets = append(pallets, PalletMeta{Index: p.index, Name: name, Events: evs})
	}
	sort.Slice(pallets, func(i, j int) bool { return pallets[i].Index < pallets[j].Index })
	return pallets
}

// --- shared extractor helpers, used by every pallet-group file ---

func accountID(a events.AccountID) Identifier {
	b := make([]byte, 32)
	copy(b, a[:])
	return Identifier{Kind: kvstore.KindAccountID, Bytes: b}
}

func hash(kind kvstore.Kind, h events.Hash32) Identifier {
	b := make([]byte, 32)
	copy(b, h[:])
	return Identifier{Kind: kind, Bytes: b}
}

func numeric(kind kvstore.Kind, v uint32) Identifier {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return Identifier{Kind: kind, Bytes: b}
}

// field is a small accessor wrapper: extractors read fields by name and
// bail out cleanly (empty result, no error) if the decode didn't
// populate a field a variant's shape says it should have, the same
// "skip rather than fail the block" posture the indexer takes for
// malformed individual events.
func field(e events.Event, name string) (events.Field, bool) {
	return e.Field(name)
}

// eventPayload is the optional value stored alongside an event's index
// entries: the pallet/variant discriminators plus the event's fields,
// camelCased to round-trip with the JSON shape of query responses.
type eventPayload struct {
	Pallet  string                 `json:"pallet"`
	Variant string                 `json:"variant"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// payload serializes an event into its stored value form. The
// single-account helpers (balancesAccountField, identityAccountField,
// reused by many pallets), balancesTransfer, the identity judgement and
// sub-identity extractors and the collective extractors call it; every
// other extractor stores no value.
func payload(e events.Event) []byte {
	fields := make(map[string]interface{}, len(e.Fields))
	for name, f := range e.Fields {
		switch {
		case f.Account != nil:
			fields[camelCase(name)] = "0x" + hex.EncodeToString(f.Account[:])
		case f.Accounts != nil:
			hexed := make([]string, len(f.Accounts))
			for i, a := range f.Accounts {
				hexed[i] = "0x" + hex.EncodeToString(a[:])
			}
			fields[camelCase(name)] = hexed
		case f.Hash != nil:
			fields[camelCase(name)] = "0x" + hex.EncodeToString(f.Hash[:])
		case f.HasIndex:
			fields[camelCase(name)] = *f.Index
		case f.HasString:
			fields[camelCase(name)] = f.StringVal
		}
	}
	b, err := json.Marshal(eventPayload{Pallet: e.PalletName, Variant: e.VariantName, Fields: fields})
	if err != nil {
		return nil
	}
	return b
}

// camelCase converts a snake_case field name to the camelCase form
// clients see, e.g. proposal_index -> proposalIndex.
func camelCase(s string) string {
	parts := strings.Split(s, "_")
	for i := 1; i < len(parts); i++ {
		if parts[i] == "" {
			continue
		}
		parts[i] = strings.ToUpper(parts[i][:1]) + parts[i][1:]
	}
	return strings.Join(parts, "")
}
