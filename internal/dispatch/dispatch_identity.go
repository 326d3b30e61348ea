package dispatch

import (
	"github.com/chainindex/chainindex/internal/events"
	"github.com/chainindex/chainindex/internal/kvstore"
)

// identity, multisig and proxy all center on one or more accounts plus,
// for identity's registrar workflow and multisig/proxy's call tracking,
// a registrar index or call hash. Multisig and proxy call hashes reuse
// the proposal_hash bucket: both are "a hash identifying a pending call
// someone might approve or execute", the same shape a governance
// proposal hash has.

func init() {
	registerPallet("identity", 3, map[string]variantEntry{
		"IdentitySet":        {0, identityAccountField("who")},
		"IdentityCleared":    {1, identityAccountField("who")},
		"IdentityKilled":     {2, identityAccountField("who")},
		"JudgementRequested": {3, identityJudgement},
		"JudgementGiven":     {4, identityJudgement},
		"SubIdentityAdded":   {5, identitySubIdentity},
	})

	registerPallet("multisig", 4, map[string]variantEntry{
		"NewMultisig":       {0, multisigCall("approving", "multisig")},
		"MultisigApproval":  {1, multisigCall("approving", "multisig")},
		"MultisigExecuted":  {2, multisigCall("approving", "multisig")},
		"MultisigCancelled": {3, multisigCall("cancelling", "multisig")},
	})

	registerPallet("proxy", 5, map[string]variantEntry{
		"ProxyExecuted": {0, identityAccountField("account")},
		"PureCreated":   {1, proxyTwoAccounts("pure", "who")},
		"ProxyAdded":    {2, proxyTwoAccounts("delegator", "delegatee")},
		"ProxyRemoved":  {3, proxyTwoAccounts("delegator", "delegatee")},
		"Announced":     {4, proxyAnnounced},
	})
}

func identityAccountField(fieldName string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		f, ok := field(e, fieldName)
		if !ok || f.Account == nil {
			return nil, nil, nil
		}
		return []Identifier{accountID(*f.Account)}, payload(e), nil
	}
}

func identityJudgement(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "who"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "target"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "registrar_index"); ok && f.HasIndex {
		ids = append(ids, numeric(kvstore.KindRegistrarIndex, *f.Index))
	}
	return ids, payload(e), nil
}

func identitySubIdentity(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "sub"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "main"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	return ids, payload(e), nil
}

func multisigCall(accountField, multisigField string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		var ids []Identifier
		if f, ok := field(e, accountField); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		if f, ok := field(e, multisigField); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		if f, ok := field(e, "call_hash"); ok && f.Hash != nil {
			ids = append(ids, hash(kvstore.KindProposalHash, *f.Hash))
		}
		return ids, nil, nil
	}
}

func proxyTwoAccounts(a, b string) Extractor {
	return func(e events.Event) ([]Identifier, []byte, error) {
		var ids []Identifier
		if f, ok := field(e, a); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		if f, ok := field(e, b); ok && f.Account != nil {
			ids = append(ids, accountID(*f.Account))
		}
		return ids, nil, nil
	}
}

func proxyAnnounced(e events.Event) ([]Identifier, []byte, error) {
	var ids []Identifier
	if f, ok := field(e, "real"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "proxy"); ok && f.Account != nil {
		ids = append(ids, accountID(*f.Account))
	}
	if f, ok := field(e, "call_hash"); ok && f.Hash != nil {
		ids = append(ids, hash(kvstore.KindProposalHash, *f.Hash))
	}
	return ids, nil, nil
}
