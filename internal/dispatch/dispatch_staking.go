package dispatch

import (
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// bags_list, fast_unstake, election_provider_multi_phase and
// nomination_pools are the staking-adjacent pallets. bags_list is
// grounded directly on its Rebagged/ScoreUpdated shape (a lone `who`
// field); nomination_pools additionally indexes by pool_id.

func init() {
	registerPallet("bags_list", 14, map[string]variantEntry{
		"Rebagged":     {0, identityAccountField("who")},
		"ScoreUpdated": {1, identityAccountField("who")},
	})

	registerPallet("fast_unstake", 15, map[string]variantEntry{
		"Unstaked": {0, identityAccountField("stash")},
		"Slashed":  {1, identityAccountField("stash")},
		"Checking": {2, identityAccountField("stash")},
		"Errored":  {3, identityAccountField("stash")},
	})

	registerPallet("election_provider_multi_phase", 16, map[string]variantEntry{
		"SolutionStored":     {0, identityAccountField("origin")},
		"ElectionFinalized":  {1, electionsNoIdentifiers},
		"Rewarded":           {2, identityAccountField("account")},
		"Slashed":            {3, identityAccountField("account")},
		"PhaseTransitioned":  {4, electionsNoIdentifiers},
	})

	registerPallet("nomination_pools", 17, map[string]variantEntry{
		"Created":      {0, poolAccountAndID("depositor")},
		"Bonded":       {1, poolAccountAndID("member")},
		"PaidOut":      {2, poolAccountAndID("member")},
		"Unbonded":     {3, poolAccountAndID("member")},
		"Withdrawn":    {4, poolAccountAndID("member")},
		"Destroyed":    {5, poolIDOnly},
		"StateChanged": {6, poolIDOnly},
		"MemberRemoved": {7, poolAccountAndID("member")},
		"RolesUpdated": {8, electionsNoIdentifiers},
	})
}

func poolAccountAndID(accountField string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		var ids []Identifier
		if f, ok := field(e, accountField); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		if f, ok := field(e, "pool_id"); ok && f.HasIndex {
			ids = append(ids, numeric(kvstore.KindPoolID, *f.Index))
		}
		return ids, nil, nil
	}
}

func poolIDOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "pool_id")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindPoolID, *f.Index)}, nil, nil
}
