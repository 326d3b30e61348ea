package dispatch

import (
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// balances, vesting and indices all revolve around a single account:
// balances and vesting variants resolve to zero or more AccountID
// identifiers, grounded on the vesting pallet's VestingUpdated/
// VestingCompleted shape (a lone `account` field, indexed under
// account_id); indices variants additionally (or only, for IndexFreed)
// index their `index` field under account_index.

func init() {
	registerPallet("balances", 0, map[string]variantEntry{
		"Endowed":    {0, balancesAccountField("account")},
		"Transfer":   {1, balancesTransfer},
		"Reserved":   {2, balancesAccountField("who")},
		"Unreserved": {3, balancesAccountField("who")},
		"Deposit":    {4, balancesAccountField("who")},
		"Withdraw":   {5, balancesAccountField("who")},
		"Slashed":    {6, balancesAccountField("who")},
	})

	registerPallet("vesting", 1, map[string]variantEntry{
		"VestingUpdated":   {0, balancesAccountField("account")},
		"VestingCompleted": {1, balancesAccountField("account")},
	})

	registerPallet("indices", 2, map[string]variantEntry{
		"IndexAssigned": {0, indicesIndexAssigned},
		"IndexFreed":    {1, indicesIndexOnly},
		"IndexFrozen":   {2, indicesIndexAssigned},
	})
}

// balancesAccountField builds an Extractor for the common case of a
// single account-carrying field.
func balancesAccountField(fieldName string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		f, ok := field(e, fieldName)
		if !ok || f.Account == nil {
			return nil, nil, nil
		}
		return []Identifier{accountID(*f.Account)}, payload(e), nil
	}
}

func balancesTransfer(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "from"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "to"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	return ids, payload(e), nil
}

func indicesIndexAssigned(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "who"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindAccountIndex, *f.Index))
	}
	return ids, nil, nil
}

func indicesIndexOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "index")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindAccountIndex, *f.Index)}, nil, nil
}
