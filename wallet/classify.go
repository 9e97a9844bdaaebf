package wallet

import "github.com/lwkgo/lwk/elements"

// ClassifyType derives a WalletTx's Type from the signs of its per-asset
// balance and the presence of issuance inputs or burn outputs, per spec
// §3's "derived transaction type" rule. Issuance/reissuance/burn take
// priority over the balance-sign classification since a single
// transaction can both issue an asset and move the policy asset around.
func ClassifyType(balance elements.SignedBalance, hasIssuance, hasReissuance, hasBurn bool) string {
	switch {
	case hasBurn:
		return TypeBurn
	case hasReissuance:
		return TypeReissuance
	case hasIssuance:
		return TypeIssuance
	}

	if len(balance) == 0 {
		return TypeRedeposit
	}

	allPositive, allNegative := true, true
	for _, v := range balance {
		if v < 0 {
			allPositive = false
		}
		if v > 0 {
			allNegative = false
		}
	}
	switch {
	case allPositive:
		return TypeIncoming
	case allNegative:
		return TypeOutgoing
	default:
		return TypeUnknown
	}
}
