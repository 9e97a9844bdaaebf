// Package descriptor implements the confidential descriptor model: parsing,
// validation, and derivation of addresses/scripts/blinding keys from a
// descriptor text, per spec.md §3/§4.B. Grounded on
// original_source/wollet/src/descriptor.rs, wollet/src/wollet_desc.rs, and
// common/src/descriptor.rs.
package descriptor

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
)

// Chain selects which wildcard sub-path (desugared from a canonical
// <0;1>/* multipath token) an address or script derivation operates on.
type Chain int

const (
	ChainExternal Chain = iota
	ChainInternal
)

// SpendingKind is the recognized spending-descriptor shape.
type SpendingKind int

const (
	KindWpkh SpendingKind = iota
	KindShWpkh
	KindWshMulti
	KindWshSortedMulti
	KindTaprootKeyPath
)

// BlindingPolicyKind selects which of the three accepted blinding-key
// policies (spec §3) a descriptor carries.
type BlindingPolicyKind int

const (
	BlindingSlip77 BlindingPolicyKind = iota
	BlindingViewXprv
	BlindingViewXpubOnly
)

// BlindingPolicy is the descriptor's blinding-key policy.
type BlindingPolicy struct {
	Kind BlindingPolicyKind

	// Slip77Key is the 32-byte master blinding key (BlindingSlip77).
	Slip77Key [32]byte

	// ViewKey is the descriptor-level blinding private key
	// (BlindingViewXprv) or, for BlindingViewXpubOnly, nil (the wallet
	// can recognize outputs but not unblind them).
	ViewKey *btcec.PrivateKey
}

// KeyExpr is one key expression inside a spending descriptor: its key
// origin info, the extended public key it resolves to, and the two
// wildcard sub-paths (external/internal) desugared from a canonical
// <0;1>/* multipath token. A key written with a plain, non-multipath
// wildcard has only the external sub-path: InternalSuffix is nil and
// internal-chain derivation returns an error.
type KeyExpr struct {
	Fingerprint [4]byte
	OriginPath  []uint32
	Xpub        *hdkeychain.ExtendedKey
	// ExternalSuffix/InternalSuffix are the path elements after the
	// xpub, up to but excluding the trailing wildcard index itself.
	ExternalSuffix []uint32
	InternalSuffix []uint32
}

// Descriptor is a parsed, validated confidential descriptor: a spending
// descriptor tree plus a blinding-key policy.
type Descriptor struct {
	Text     string // the original descriptor text, pre-checksum
	Checksum string

	Kind      SpendingKind
	Threshold int // multisig threshold; 0 for single-sig kinds
	Keys      []KeyExpr

	Blinding BlindingPolicy

	mainnet bool
}

// IsMainnet reports whether every key's xpub network byte indicates
// mainnet (parsing fails if keys disagree, per spec §4.B).
func (d *Descriptor) IsMainnet() bool { return d.mainnet }
