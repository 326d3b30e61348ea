package dispatch

import (
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// bounties, child_bounties, treasury and tips are the spending
// pallets. bounties and child_bounties share the bounty_index bucket
// (a child bounty's own index is still "a bounty index" for query
// purposes); treasury additionally indexes by proposal_index; tips key
// off the tip's own content hash.

func init() {
	registerPallet("bounties", 10, map[string]variantEntry{
		"BountyProposed":     {0, bountyIndexOnly},
		"BountyAwarded":      {1, bountyIndexAndAccount("beneficiary")},
		"BountyClaimed":      {2, bountyIndexAndAccount("beneficiary")},
		"BountyCanceled":     {3, bountyIndexOnly},
		"BountyRejected":     {4, bountyIndexOnly},
		"BountyBecameActive": {5, bountyIndexOnly},
		"BountyExtended":     {6, bountyIndexOnly},
	})

	registerPallet("child_bounties", 11, map[string]variantEntry{
		"Added":    {0, bountyIndexOnly},
		"Awarded":  {1, bountyIndexAndAccount("beneficiary")},
		"Claimed":  {2, bountyIndexAndAccount("beneficiary")},
		"Canceled": {3, bountyIndexOnly},
	})

	registerPallet("treasury", 12, map[string]variantEntry{
		"Proposed":      {0, treasuryProposalIndex},
		"Spending":      {1, treasuryNoIdentifiers},
		"Awarded":       {2, treasuryAwarded},
		"Rejected":      {3, treasuryProposalIndex},
		"Burnt":         {4, treasuryNoIdentifiers},
		"Rollover":      {5, treasuryNoIdentifiers},
		"Deposit":       {6, treasuryNoIdentifiers},
		"SpendApproved": {7, treasuryAwarded},
	})

	registerPallet("tips", 13, map[string]variantEntry{
		"NewTip":       {0, tipHashOnly},
		"TipClosed":    {1, tipHashAndAccount("who")},
		"TipRetracted": {2, tipHashOnly},
		"TipSlashed":   {3, tipHashAndAccount("finder")},
	})
}

func bountyIndexOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "index")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindBountyIndex, *f.Index)}, nil, nil
}

func bountyIndexAndAccount(accountField string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		var ids []Identifier
		if f, ok := field(e, "index"); ok && f.HasIndex {
			ids = append(ids, numeric(kvstore.KindBountyIndex, *f.Index))
		}
		if f, ok := field(e, accountField); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		return ids, nil, nil
	}
}

func treasuryProposalIndex(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "proposal_index")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindProposalIndex, *f.Index)}, nil, nil
}

func treasuryAwarded(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "proposal_index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindProposalIndex, *f.Index))
	}
	if f, ok := field(e, "account"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	return ids, nil, nil
}

func treasuryNoIdentifiers(events.Event) ([]Identifier, []byte, error) {
	return nil, nil, nil
}

func tipHashOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "tip_hash")
	if !ok || f.Hash == nil {
		return nil, nil, nil
	}
	return []Identifier{hash(kvstore.KindTipHash, *f.Hash)}, nil, nil
}

func tipHashAndAccount(accountField string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		var ids []Identifier
		if f, ok := field(e, "tip_hash"); ok && f.Hash != nil {
			ids = append(ids, hash(kvstore.KindTipHash, *f.Hash))
		}
		if f, ok := field(e, accountField); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		return ids, nil, nil
	}
}
