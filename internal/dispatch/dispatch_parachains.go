package dispatch

import (
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// The parachain-host pallets (auctions, crowdloan, parachains_disputes,
// parachains_hrmp, parachains_paras, parachains_ump, paras_registrar,
// slots) key primarily off para_id, with auctions additionally using
// auction_index, disputes using candidate_hash, and ump using
// message_id, following the same per-variant field extraction shape
// as every other pallet group.

func init() {
	registerPallet("auctions", 21, map[string]variantEntry{
		"AuctionStarted": {0, auctionIndexOnly},
		"AuctionClosed":  {1, auctionIndexOnly},
		"WonRenewal":     {2, paraIDOnly},
		"WonDeploy":      {3, paraIDAndAccount("who")},
		"Reserved":       {4, paraIDAndAccount("bidder")},
		"Unreserved":     {5, identityAccountField("bidder")},
	})

	registerPallet("crowdloan", 22, map[string]variantEntry{
		"Created":         {0, paraIDOnly},
		"Contributed":     {1, paraIDAndAccount("who")},
		"Withdrew":        {2, paraIDAndAccount("who")},
		"Dissolved":       {3, paraIDOnly},
		"HandleBidResult": {4, paraIDOnly},
		"Edited":          {5, paraIDOnly},
		"MemoUpdated":     {6, paraIDAndAccount("who")},
		"AllRefunded":     {7, paraIDOnly},
	})

	registerPallet("parachains_disputes", 23, map[string]variantEntry{
		"DisputeInitiated": {0, candidateHashOnly},
		"DisputeConcluded": {1, candidateHashOnly},
		"DisputeTimedOut":  {2, candidateHashOnly},
	})

	registerPallet("parachains_hrmp", 24, map[string]variantEntry{
		"OpenChannelRequested": {0, hrmpChannel},
		"OpenChannelAccepted":  {1, hrmpChannel},
		"ChannelClosed":        {2, paraIDOnly},
	})

	registerPallet("parachains_paras", 25, map[string]variantEntry{
		"CurrentCodeUpdated":  {0, paraIDOnly},
		"CurrentHeadUpdated":  {1, paraIDOnly},
		"CodeUpgradeScheduled": {2, paraIDOnly},
		"NewHeadNoted":        {3, paraIDOnly},
		"ActionQueued":        {4, parasActionQueued},
	})

	registerPallet("parachains_ump", 26, map[string]variantEntry{
		"InvalidFormat":          {0, messageIDOnly},
		"UnsupportedVersion":     {1, messageIDOnly},
		"ExecutedUpward":         {2, messageIDOnly},
		"WeightExhausted":        {3, messageIDOnly},
		"UpwardMessagesReceived": {4, paraIDOnly},
	})

	registerPallet("paras_registrar", 27, map[string]variantEntry{
		"Registered":   {0, paraIDAndAccount("manager")},
		"Deregistered": {1, paraIDOnly},
		"Reserved":     {2, paraIDAndAccount("who")},
		"Swapped":      {3, paraIDOnly},
	})

	registerPallet("slots", 28, map[string]variantEntry{
		"Leased": {0, paraIDAndAccount("leaser")},
	})
}

func auctionIndexOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "auction_index")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindAuctionIndex, *f.Index)}, nil, nil
}

func paraIDOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "para_id")
	if !ok || !f.HasIndex {
		return nil, nil, nil
	}
	return []Identifier{numeric(kvstore.KindParaID, *f.Index)}, nil, nil
}

func paraIDAndAccount(accountField string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		var ids []Identifier
		if f, ok := field(e, "para_id"); ok && f.HasIndex {
			ids = append(ids, numeric(kvstore.KindParaID, *f.Index))
		}
		if f, ok := field(e, accountField); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		return ids, nil, nil
	}
}

func candidateHashOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "candidate_hash")
	if !ok || f.Hash == nil {
		return nil, nil, nil
	}
	return []Identifier{hash(kvstore.KindCandidateHash, *f.Hash)}, nil, nil
}

func hrmpChannel(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "sender"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindParaID, *f.Index))
	}
	if f, ok := field(e, "recipient"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindParaID, *f.Index))
	}
	return ids, nil, nil
}

func parasActionQueued(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "para_id"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindParaID, *f.Index))
	}
	if f, ok := field(e, "session_index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindSessionIndex, *f.Index))
	}
	return ids, nil, nil
}

func messageIDOnly(e events.Event) ([]Identifier, []byte, error) {
	f, ok := field(e, "message_id")
	if !ok || f.Hash == nil {
		return nil, nil, nil
	}
	return []Identifier{hash(kvstore.KindMessageID, *f.Hash)}, nil, nil
}
