package queryservice

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chainindex/chainindex/internal/dispatch"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// Key is the tagged union clients use to select one identifier kind
// and its concrete value, e.g. {"AccountId":"0x…"}, {"ProposalIndex":42}
// or {"Variant":[5,2]}. Internally it is just a kind plus the
// identifier's canonical bytes, which is exactly the prefix a store
// scan needs.
type Key struct {
	Kind       kvstore.Kind
	Identifier []byte
}

// kindWireNames maps each identifier kind to its protocol tag.
var kindWireNames = map[kvstore.Kind]string{
	kvstore.KindAccountID:      "AccountId",
	kvstore.KindAccountIndex:   "AccountIndex",
	kvstore.KindAuctionIndex:   "AuctionIndex",
	kvstore.KindBountyIndex:    "BountyIndex",
	kvstore.KindCandidateHash:  "CandidateHash",
	kvstore.KindEraIndex:       "EraIndex",
	kvstore.KindMessageID:      "MessageId",
	kvstore.KindParaID:         "ParaId",
	kvstore.KindPoolID:         "PoolId",
	kvstore.KindPreimageHash:   "PreimageHash",
	kvstore.KindProposalHash:   "ProposalHash",
	kvstore.KindProposalIndex:  "ProposalIndex",
	kvstore.KindRefIndex:       "RefIndex",
	kvstore.KindRegistrarIndex: "RegistrarIndex",
	kvstore.KindSessionIndex:   "SessionIndex",
	kvstore.KindTipHash:        "TipHash",
	kvstore.KindVariant:        "Variant",
}

var kindsByWireName = func() map[string]kvstore.Kind {
	m := make(map[string]kvstore.Kind, len(kindWireNames))
	for k, name := range kindWireNames {
		m[name] = k
	}
	return m
}()

// MarshalJSON renders the key in its wire shape: hash kinds as a
// 0x-prefixed hex string, numeric kinds as a plain number, Variant as
// a [pallet, variant] pair.
func (k Key) MarshalJSON() ([]byte, error) {
	name, ok := kindWireNames[k.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown identifier kind %d", uint8(k.Kind))
	}
	if len(k.Identifier) != k.Kind.Len() {
		return nil, fmt.Errorf("identifier for %s must be %d bytes, got %d", name, k.Kind.Len(), len(k.Identifier))
	}

	var value interface{}
	switch k.Kind.Len() {
	case 32:
		value = "0x" + hex.EncodeToString(k.Identifier)
	case 4:
		value = binary.BigEndian.Uint32(k.Identifier)
	case 2:
		value = [2]uint8{k.Identifier[0], k.Identifier[1]}
	}
	return json.Marshal(map[string]interface{}{name: value})
}

// UnmarshalJSON parses the wire shape back into (kind, canonical
// bytes), validating lengths so a malformed key never reaches the
// store layer.
func (k *Key) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("key must be an object: %s", err)
	}
	if len(raw) != 1 {
		return fmt.Errorf("key must have exactly one entry, got %d", len(raw))
	}

	for name, value := range raw {
		kind, ok := kindsByWireName[name]
		if !ok {
			return fmt.Errorf("unknown identifier kind %q", name)
		}

		switch kind.Len() {
		case 32:
			var s string
			if err := json.Unmarshal(value, &s); err != nil {
				return fmt.Errorf("%s value must be a hex string: %s", name, err)
			}
			b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
			if err != nil {
				return fmt.Errorf("%s value isn't valid hex: %s", name, err)
			}
			if len(b) != 32 {
				return fmt.Errorf("%s value must be 32 bytes, got %d", name, len(b))
			}
			k.Kind, k.Identifier = kind, b
		case 4:
			var n uint32
			if err := json.Unmarshal(value, &n); err != nil {
				return fmt.Errorf("%s value must be a number: %s", name, err)
			}
			b := make([]byte, 4)
			binary.BigEndian.PutUint32(b, n)
			k.Kind, k.Identifier = kind, b
		case 2:
			// Not []uint8: that's []byte, which the json package
			// decodes from a base64 string rather than an array.
			var pair []uint16
			if err := json.Unmarshal(value, &pair); err != nil {
				return fmt.Errorf("%s value must be a [pallet, variant] pair: %s", name, err)
			}
			if len(pair) != 2 || pair[0] > 255 || pair[1] > 255 {
				return fmt.Errorf("%s value must be a pair of u8s", name)
			}
			k.Kind, k.Identifier = kind, []byte{byte(pair[0]), byte(pair[1])}
		}
	}
	return nil
}

// Request types accepted over a connection.
const (
	requestStatus          = "Status"
	requestVariants        = "Variants"
	requestGetEvents       = "GetEvents"
	requestSubscribeEvents = "SubscribeEvents"
)

// request is one inbound frame. Key is present only for GetEvents and
// SubscribeEvents.
type request struct {
	Type string `json:"type"`
	Key  *Key   `json:"key"`
}

type statusResponse struct {
	Type                  string `json:"type"`
	LastHeadBlock         uint32 `json:"lastHeadBlock"`
	LastBatchBlock        uint32 `json:"lastBatchBlock"`
	BatchIndexingComplete bool   `json:"batchIndexingComplete"`
}

type variantsResponse struct {
	Type    string                `json:"type"`
	Pallets []dispatch.PalletMeta `json:"pallets"`
}

// eventLocator is the (block, event index) pair clients receive, both
// in GetEvents responses and in subscription pushes.
type eventLocator struct {
	BlockNumber uint32 `json:"blockNumber"`
	EventIndex  uint32 `json:"eventIndex"`
}

type eventsResponse struct {
	Type   string         `json:"type"`
	Key    Key            `json:"key"`
	Events []eventLocator `json:"events"`
}

type subscribedResponse struct {
	Type string `json:"type"`
}
