package chainclient

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/chainindex/chainindex/internal/events"
)

// wireBlock is one block's worth of decoded events in a ranged
// response.
type wireBlock struct {
	BlockNumber uint32      `json:"blockNumber"`
	Events      []wireEvent `json:"events"`
}

// wireEvent is the node's JSON rendition of a decoded event. Field
// values arrive as a one-entry-per-shape object so the node can evolve
// its schema without breaking older indexers.
type wireEvent struct {
	Pallet      uint8                `json:"pallet"`
	PalletName  string               `json:"palletName"`
	Variant     uint8                `json:"variant"`
	VariantName string               `json:"variantName"`
	Fields      map[string]wireField `json:"fields"`
}

type wireField struct {
	Account  *string  `json:"account,omitempty"`
	Accounts []string `json:"accounts,omitempty"`
	Hash     *string  `json:"hash,omitempty"`
	Index    *uint32  `json:"index,omitempty"`
	Str      *string  `json:"string,omitempty"`
}

func (we wireEvent) toEvent() (events.Event, error) {
	e := events.Event{
		Pallet:      we.Pallet,
		PalletName:  we.PalletName,
		Variant:     we.Variant,
		VariantName: we.VariantName,
		Fields:      make(map[string]events.Field, len(we.Fields)),
	}
	for name, wf := range we.Fields {
		f, err := wf.toField()
		if err != nil {
			return events.Event{}, fmt.Errorf("field %s: %s", name, err)
		}
		e.Fields[name] = f
	}
	return e, nil
}

func (wf wireField) toField() (events.Field, error) {
	switch {
	case wf.Account != nil:
		var a events.AccountID
		if err := decode32(*wf.Account, a[:]); err != nil {
			return events.Field{}, err
		}
		return events.AccountField(a), nil
	case wf.Accounts != nil:
		as := make([]events.AccountID, len(wf.Accounts))
		for i, s := range wf.Accounts {
			if err := decode32(s, as[i][:]); err != nil {
				return events.Field{}, err
			}
		}
		return events.AccountsField(as), nil
	case wf.Hash != nil:
		var h events.Hash32
		if err := decode32(*wf.Hash, h[:]); err != nil {
			return events.Field{}, err
		}
		return events.HashField(h), nil
	case wf.Index != nil:
		return events.IndexField(*wf.Index), nil
	case wf.Str != nil:
		return events.StringField(*wf.Str), nil
	default:
		return events.Field{}, fmt.Errorf("field carries no known shape")
	}
}

func decode32(s string, dst []byte) error {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("decoding hex: %s", err)
	}
	if len(b) != 32 {
		return fmt.Errorf("want 32 bytes, got %d", len(b))
	}
	copy(dst, b)
	return nil
}
