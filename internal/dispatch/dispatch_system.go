package dispatch

// system, transaction_payment and claims are extrinsic-success
// bookkeeping pallets, each keying off a single account field. Grounded
// directly: system's NewAccount/KilledAccount/Remarked each carry one
// account (the sender, for Remarked); transaction_payment's
// TransactionFeePaid and claims' Claimed both carry a lone `who`.

func init() {
	registerPallet("system", 18, map[string]variantEntry{
		"NewAccount":    {0, identityAccountField("account")},
		"KilledAccount": {1, identityAccountField("account")},
		"Remarked":      {2, identityAccountField("sender")},
	})

	registerPallet("transaction_payment", 19, map[string]variantEntry{
		"TransactionFeePaid": {0, identityAccountField("who")},
	})

	registerPallet("claims", 20, map[string]variantEntry{
		"Claimed": {0, identityAccountField("who")},
	})
}
