// Package pset implements the version-2 Elements PSET model and analysis
// pass described in spec.md §3/§4.F: a confidential-transaction analogue
// of BIP-174 PSBT, generalized from github.com/btcsuite/btcd/btcutil/psbt
// with the extra per-input issuance and per-output blinding fields
// Elements requires.
package pset

import (
	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/lwkgo/lwk/elements"
)

// Input is one PSET input, per spec §3's PSET field list.
type Input struct {
	PrevTxid elements.Txid
	PrevVout uint32

	WitnessUtxo   *elements.TxOut
	RedeemScript  []byte
	WitnessScript []byte

	// BIP32Derivations reuses btcutil/psbt's Bip32Derivation shape
	// (PubKey, MasterKeyFingerprint, Bip32Path) rather than redeclaring
	// an identical struct.
	BIP32Derivations []*psbt.Bip32Derivation

	SighashType *uint32

	Issuance *elements.Issuance

	// PartialSigs maps a compressed pubkey (hex) to a DER-encoded (or
	// Schnorr, for taproot) signature.
	PartialSigs map[string][]byte

	Sequence uint32

	// FinalScriptWitness is populated by Finalize, moving PartialSigs
	// into the witness stack Extract's transaction is spent with.
	FinalScriptWitness [][]byte
}

// Output is one PSET output, per spec §3's PSET field list.
type Output struct {
	Script []byte

	ExplicitAsset *elements.AssetId
	ExplicitValue *uint64

	AssetCommitment [33]byte
	ValueCommitment [33]byte

	BlindingPubkey []byte
	EcdhPubkey     []byte
	BlinderIndex   *uint32

	ValueRangeproof      []byte
	AssetSurjectionProof []byte
	BlindValueProof      []byte
	BlindAssetProof      []byte
	AssetBlindingFactor  [32]byte
	ValueBlindingFactor  [32]byte

	BIP32Derivations []*psbt.Bip32Derivation
}

// PSET is the version-2 Elements PSET this toolkit's builder/signer/
// analysis components operate on. It is created fully blinded (except
// signatures) by builder/, mutated in place by signer/swsigner/jade,
// finalized by Finalize, and turned into an elements.Tx by Extract.
type PSET struct {
	Version  uint32
	Inputs   []*Input
	Outputs  []*Output
	Locktime uint32
}

// New returns an empty, version-2 PSET.
func New() *PSET {
	return &PSET{Version: 2}
}

// Extract assembles an elements.Tx from the PSET: each input's outpoint,
// issuance and sequence, and each output. elements.Tx has no witness
// field, so FinalScriptWitness (set by Finalize) is not carried into the
// result. Extract does not sign or finalize.
func (p *PSET) Extract() *elements.Tx {
	tx := &elements.Tx{Version: p.Version, Locktime: p.Locktime}
	for _, in := range p.Inputs {
		tx.Inputs = append(tx.Inputs, elements.TxIn{
			PrevOut:  elements.OutPoint{Txid: in.PrevTxid, Vout: in.PrevVout},
			Issuance: in.Issuance,
			Sequence: in.Sequence,
		})
	}
	for _, out := range p.Outputs {
		tx.Outputs = append(tx.Outputs, outputToTxOut(out))
	}
	return tx
}

func outputToTxOut(o *Output) elements.TxOut {
	txOut := elements.TxOut{
		Script:          o.Script,
		Nonce:           o.EcdhPubkey,
		RangeProof:      o.ValueRangeproof,
		SurjectionProof: o.AssetSurjectionProof,
	}
	if o.ExplicitAsset != nil {
		txOut.Asset = elements.ExplicitAsset(*o.ExplicitAsset)
	} else {
		txOut.Asset = elements.ConfidentialAsset(o.AssetCommitment)
	}
	if o.ExplicitValue != nil {
		txOut.Value = elements.ExplicitValue(*o.ExplicitValue)
	} else {
		txOut.Value = elements.ConfidentialValueCommitment(o.ValueCommitment)
	}
	return txOut
}
