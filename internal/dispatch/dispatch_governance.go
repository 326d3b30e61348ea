package dispatch

import (
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// democracy, collective, elections_phragmen and alliance are the
// proposal-and-vote pallets: the shared shape is an account plus a
// proposal_index and/or proposal_hash, grounded directly on the
// council pallet's Proposed/Voted/Approved/Disapproved/Executed/
// MemberExecuted/Closed variants (each combining a subset of account,
// proposal_index and proposal_hash fields).

func init() {
	registerPallet("democracy", 6, map[string]variantEntry{
		"Proposed":        {0, democracyProposalIndex},
		"Tabled":          {1, democracyProposalIndex},
		"Started":         {2, democracyRefIndex},
		"Passed":          {3, democracyRefIndex},
		"NotPassed":       {4, democracyRefIndex},
		"Cancelled":       {5, democracyRefIndex},
		"Voted":           {6, democracyVoted},
		"Delegated":       {7, proxyTwoAccounts("who", "target")},
		"Undelegated":     {8, identityAccountField("account")},
		"PreimageNoted":   {9, democracyPreimageHash},
		"PreimageUsed":    {10, democracyPreimageHash},
		"PreimageInvalid": {11, democracyPreimageHash},
		"PreimageMissing": {12, democracyPreimageHash},
		"PreimageReaped":  {13, democracyPreimageHash},
	})

	registerPallet("collective", 7, map[string]variantEntry{
		"Proposed":       {0, collectiveProposed},
		"Voted":          {1, collectiveVoted},
		"Approved":       {2, collectiveProposalHashOnly},
		"Disapproved":    {3, collectiveProposalHashOnly},
		"Executed":       {4, collectiveProposalHashOnly},
		"MemberExecuted": {5, collectiveProposalHashOnly},
		"Closed":         {6, collectiveProposalHashOnly},
	})

	registerPallet("elections_phragmen", 8, map[string]variantEntry{
		"NewTerm":          {0, electionsMembers},
		"EmptyTerm":        {1, electionsNoIdentifiers},
		"ElectionError":    {2, electionsNoIdentifiers},
		"MemberKicked":     {3, identityAccountField("member")},
		"Renounced":        {4, identityAccountField("candidate")},
		"CandidateSlashed": {5, identityAccountField("candidate")},
		"SeatHolderSlashed": {6, identityAccountField("seat_holder")},
	})

	registerPallet("alliance", 9, map[string]variantEntry{
		"NewAllianceMember": {0, identityAccountField("who")},
		"MembersRemoved":    {1, electionsMembers},
		"Proposed":          {2, allianceProposed},
		"Voted":             {3, collectiveVoted},
		"Approved":          {4, collectiveProposalHashOnly},
		"Disapproved":       {5, collectiveProposalHashOnly},
	})
}

func democracyProposalIndex(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "proposal_index")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindProposalIndex, *f.Index)}, nil, nil
}

func democracyRefIndex(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "ref_index")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindRefIndex, *f.Index)}, nil, nil
}

func democracyVoted(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "voter"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "ref_index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindRefIndex, *f.Index))
	}
	return ids, nil, nil
}

func democracyPreimageHash(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "hash")
	if !ok || f.Hash == nil {
		return nil, nil, nil
	}
	return []Identifier{hash(kvstore.KindPreimageHash, *f.Hash)}, nil, nil
}

func collectiveProposed(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "account"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "proposal_index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindProposalIndex, *f.Index))
	}
	if f, ok := field(e, "proposal_hash"); ok && f.Hash != nil {
		ids = append(ids, hash(kvstore.KindProposalHash, *f.Hash))
	}
	return ids, payload(e), nil
}

func collectiveVoted(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "account"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "proposal_hash"); ok && f.Hash != nil {
		ids = append(ids, hash(kvstore.KindProposalHash, *f.Hash))
	}
	return ids, payload(e), nil
}

func collectiveProposalHashOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "proposal_hash")
	if !ok || f.Hash == nil {
		return nil, nil, nil
	}
	return []Identifier{hash(kvstore.KindProposalHash, *f.Hash)}, payload(e), nil
}

func electionsMembers(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "members")
	if !ok {
		return nil, nil, nil
	}
	ids := make([]Identifier, 0, len(f.Accounts))
	for _, a := range f.Accounts {
		ids = append(ids, accountID(a))
	}
	return ids, nil, nil
}

func electionsNoIdentifiers(events.Event) ([]Identifier, []byte, error) {
	return nil, nil, nil
}

func allianceProposed(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "proposer"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "proposal_index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindProposalIndex, *f.Index))
	}
	if f, ok := field(e, "proposal_hash"); ok && f.Hash != nil {
		ids = append(ids, hash(kvstore.KindProposalHash, *f.Hash))
	}
	return ids, nil, nil
}
