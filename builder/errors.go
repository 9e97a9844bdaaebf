// Package builder implements the chainable transaction builder described
// in spec.md §4.G: coin selection, fee estimation, issuance/reissuance,
// blinding, and PSET assembly, grounded on the teacher's
// wallet/btcwallet/psbt.go (FundPsbt/SignPsbt dispatch-by-script-type
// pattern) generalized from a single-asset Bitcoin wallet to Liquid's
// per-asset coin-selection and blinding model.
package builder

import (
	"fmt"

	"github.com/lwkgo/lwk/elements"
)

// Kind tags a builder Error with the spec §4.G/§7 taxonomy entry it
// belongs to.
type Kind string

const (
	KindInsufficientFunds      Kind = "InsufficientFunds"
	KindMissingReissuanceToken Kind = "MissingReissuanceToken"
	KindInvalidAddress         Kind = "InvalidAddress"
	KindInvalidAmount          Kind = "InvalidAmount"
	KindScriptNotMine          Kind = "ScriptNotMine"
	KindMissingUtxo            Kind = "MissingUtxo"
)

// Error is the structured error type every builder-package failure
// surfaces, carrying a stable Kind plus a free-form message, per spec §7.
type Error struct {
	Kind  Kind
	Asset *elements.AssetId
	OutPt *elements.OutPoint
	Msg   string
}

func (e *Error) Error() string {
	switch {
	case e.Asset != nil:
		return fmt.Sprintf("builder: %s(%s): %s", e.Kind, e.Asset, e.Msg)
	case e.OutPt != nil:
		return fmt.Sprintf("builder: %s(%s): %s", e.Kind, e.OutPt, e.Msg)
	default:
		return fmt.Sprintf("builder: %s: %s", e.Kind, e.Msg)
	}
}

func errInsufficientFunds(asset elements.AssetId) error {
	return &Error{Kind: KindInsufficientFunds, Asset: &asset, Msg: "not enough funds to cover requested outputs and fee"}
}

func errMissingReissuanceToken(asset elements.AssetId) error {
	return &Error{Kind: KindMissingReissuanceToken, Asset: &asset, Msg: "wallet does not hold the reissuance token"}
}

func errInvalidAddress(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidAddress, Msg: fmt.Sprintf(format, args...)}
}

func errInvalidAmount(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidAmount, Msg: fmt.Sprintf(format, args...)}
}

func errScriptNotMine(format string, args ...interface{}) error {
	return &Error{Kind: KindScriptNotMine, Msg: fmt.Sprintf(format, args...)}
}

func errMissingUtxo(op elements.OutPoint) error {
	return &Error{Kind: KindMissingUtxo, OutPt: &op, Msg: "outpoint not found among spendable utxos"}
}
