// Package wallet implements the owned-UTXO set, transaction history, and
// Update-application state machine described in spec.md §3/§4.D.
package wallet

import (
	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

// Tip is the wallet's view of the chain tip.
type Tip struct {
	Height    uint32
	BlockHash [32]byte
}

// WalletTxOut is one output the wallet recognizes as its own, per spec §3.
// Its uniqueness key is OutPoint.
type WalletTxOut struct {
	OutPoint      elements.OutPoint
	ScriptPubkey  []byte
	Height        *uint32
	Unblinded     elements.TxOutSecrets
	WildcardIndex uint32
	Chain         descriptor.Chain
	IsSpent       bool
	Address       string
}

// WalletTx is one transaction touching the wallet, with per-input/output
// slots populated only where the prevout/output is (or was) a wallet
// output, per spec §3.
type WalletTx struct {
	Txid      elements.Txid
	Tx        *elements.Tx
	Height    *uint32
	Balance   elements.SignedBalance
	Fee       uint64
	Type      string
	Timestamp *uint32
	Inputs    []*WalletTxOut
	Outputs   []*WalletTxOut
}

// Transaction type tags, per spec §4.D.
const (
	TypeIncoming   = "incoming"
	TypeOutgoing   = "outgoing"
	TypeRedeposit  = "redeposit"
	TypeIssuance   = "issuance"
	TypeReissuance = "reissuance"
	TypeBurn       = "burn"
	TypeUnknown    = "unknown"
)

// Update is a scanner-produced delta to be applied to a WalletState, per
// spec §3/§4.D. Version 0 is the legacy tag: it carries no status hash and
// bypasses the staleness check.
type Update struct {
	Version uint8

	// StatusHash is the status hash of the WalletState snapshot this
	// update was computed against; required unless Version == 0.
	StatusHash []byte

	NewTip *Tip

	NewTxs []*WalletTx

	NewSpent []elements.OutPoint

	// LastUsedExternal/LastUsedInternal advance the wallet's last-used
	// indices; nil means "no change".
	LastUsedExternal *uint32
	LastUsedInternal *uint32
}
