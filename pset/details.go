package pset

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/unblind"
)

// IssuanceKind tags the per-input issuance record pset_details returns.
type IssuanceKind string

const (
	IssuanceNone       IssuanceKind = "none"
	IssuanceNew        IssuanceKind = "issuance"
	IssuanceReissuance IssuanceKind = "reissuance"
)

// KeySignature names one BIP32-derived key an input's PartialSigs map is
// checked against, per spec §4.F.
type KeySignature struct {
	PubKey      []byte
	Fingerprint [4]byte
	Path        []uint32
}

// InputSignatures is the has/missing-signature split for one input.
type InputSignatures struct {
	HasSignature     []KeySignature
	MissingSignature []KeySignature
}

// InputIssuance is the tagged issuance record for one input, per spec
// §4.F.
type InputIssuance struct {
	Kind        IssuanceKind
	AssetId     elements.AssetId
	TokenId     elements.AssetId
	PrevOut     elements.OutPoint
	AssetAmount elements.ValueCommitment
	TokenAmount elements.ValueCommitment
}

// PsetBalance is the net per-asset effect of the PSET from the analyzing
// wallet's point of view, plus the transaction fee, per spec §4.F.
type PsetBalance struct {
	Fee      uint64
	Balances elements.SignedBalance
}

// PsetDetails is the full result of pset_details, per spec §4.F.
type PsetDetails struct {
	Balance    PsetBalance
	Signatures []InputSignatures
	Issuances  []InputIssuance
}

// blindProofTag binds an output's claimed (asset, value, blinding-factor)
// opening to its commitments. Unlike the range/surjection-proof rewind
// path (unblind/rangeproof.go), this proof carries no secrecy requirement: it
// exists so pset_details can confirm an output's commitments are
// consistent with the opening the builder attached, the same role
// Elements' BlindValueProof/BlindAssetProof play for a party that already
// has the plaintext in hand and wants to confirm it wasn't tampered with.
func blindProofTag(tag string, commitment [33]byte, opening []byte) [32]byte {
	buf := make([]byte, 0, len(tag)+33+len(opening))
	buf = append(buf, []byte(tag)...)
	buf = append(buf, commitment[:]...)
	buf = append(buf, opening...)
	return elements.TaggedHash("LWK-blind-proof/1.0", buf)
}

// EncodeBlindValueProof produces the Output.BlindValueProof builder/
// attaches to a freshly blinded output.
func EncodeBlindValueProof(valueCommitment [33]byte, value uint64, vbf [32]byte) []byte {
	opening := make([]byte, 8+32)
	binary.BigEndian.PutUint64(opening[:8], value)
	copy(opening[8:], vbf[:])
	proof := blindProofTag("value", valueCommitment, opening)
	return append(opening, proof[:]...)
}

// EncodeBlindAssetProof produces the Output.BlindAssetProof builder/
// attaches to a freshly blinded output.
func EncodeBlindAssetProof(assetCommitment [33]byte, asset elements.AssetId, abf [32]byte) []byte {
	opening := make([]byte, 32+32)
	copy(opening[:32], asset[:])
	copy(opening[32:], abf[:])
	proof := blindProofTag("asset", assetCommitment, opening)
	return append(opening, proof[:]...)
}

func verifyBlindValueProof(o *Output) (uint64, [32]byte, bool) {
	var zero [32]byte
	if len(o.BlindValueProof) != 8+32+32 {
		return 0, zero, false
	}
	opening := o.BlindValueProof[:40]
	tag := o.BlindValueProof[40:]
	want := blindProofTag("value", o.ValueCommitment, opening)
	if !bytes.Equal(tag, want[:]) {
		return 0, zero, false
	}
	value := binary.BigEndian.Uint64(opening[:8])
	var vbf [32]byte
	copy(vbf[:], opening[8:])
	return value, vbf, true
}

func verifyBlindAssetProof(o *Output) (elements.AssetId, [32]byte, bool) {
	var zero [32]byte
	var zeroAsset elements.AssetId
	if len(o.BlindAssetProof) != 32+32+32 {
		return zeroAsset, zero, false
	}
	opening := o.BlindAssetProof[:64]
	tag := o.BlindAssetProof[64:]
	want := blindProofTag("asset", o.AssetCommitment, opening)
	if !bytes.Equal(tag, want[:]) {
		return zeroAsset, zero, false
	}
	var asset elements.AssetId
	copy(asset[:], opening[:32])
	var abf [32]byte
	copy(abf[:], opening[32:])
	return asset, abf, true
}

// DecodeBlindValueProof recovers an output's plaintext value and
// value-blinding factor from its BlindValueProof, for a party that built
// the PSET and already holds the proof (jade/'s trusted_commitments
// construction), mirroring Details' own use of verifyBlindValueProof.
func DecodeBlindValueProof(o *Output) (uint64, [32]byte, bool) {
	return verifyBlindValueProof(o)
}

// DecodeBlindAssetProof is DecodeBlindValueProof's asset-side counterpart.
func DecodeBlindAssetProof(o *Output) (elements.AssetId, [32]byte, bool) {
	return verifyBlindAssetProof(o)
}

// Details runs the pset_details analysis pass described in spec §4.F.
func Details(p *PSET, desc *descriptor.Descriptor, net elements.NetworkParams) (*PsetDetails, error) {
	policyAsset, err := net.PolicyAsset()
	if err != nil {
		return nil, err
	}

	feeCount := 0
	var fee uint64
	balances := make(elements.SignedBalance)

	for _, out := range p.Outputs {
		txOut := outputToTxOut(out)
		if txOut.IsFee() {
			feeCount++
			if !policyAsset.Equal(*txOut.Asset.Explicit) {
				return nil, newErr(KindCommitmentMismatch, "fee output asset is not the policy asset")
			}
			fee = *txOut.Value.Explicit
			continue
		}

		if out.ExplicitAsset != nil || out.ExplicitValue != nil {
			return nil, newErr(KindNonFeeOutputNotBlinded, "non-fee output is not blinded")
		}

		asset, abf, ok := verifyBlindAssetProof(out)
		if !ok {
			return nil, newErr(KindMissingBlindProof, "output has no valid blind-asset proof")
		}
		value, vbf, ok := verifyBlindValueProof(out)
		if !ok {
			return nil, newErr(KindMissingBlindProof, "output has no valid blind-value proof")
		}

		assetCommit, err := elements.AssetCommit(asset, abf)
		if err != nil || assetCommit != out.AssetCommitment {
			return nil, newErr(KindInvalidBlindProof, "blind-asset proof does not match commitment")
		}
		valueCommit, err := elements.ValueCommit(value, assetCommit, vbf)
		if err != nil || valueCommit != out.ValueCommitment {
			return nil, newErr(KindInvalidBlindProof, "blind-value proof does not match commitment")
		}

		if isWalletOwned(out.BIP32Derivations, desc) {
			secrets, err := unblindOutput(out, desc)
			if err != nil {
				return nil, newErr(KindUnblindFailed, "wallet output could not be unblinded: %v", err)
			}
			if secrets.Asset != asset || secrets.Value != value {
				return nil, newErr(KindCommitmentMismatch, "unblinded output does not match its own blind proof")
			}
			balances[asset] += int64(value)
		}
	}

	if feeCount == 0 {
		return nil, newErr(KindMissingFeeOutput, "pset has no fee output")
	}
	if feeCount > 1 {
		return nil, newErr(KindMultipleFeeOutputs, "pset has %d fee outputs", feeCount)
	}

	sigs := make([]InputSignatures, len(p.Inputs))
	issuances := make([]InputIssuance, len(p.Inputs))

	for i, in := range p.Inputs {
		sigs[i] = inputSignatures(in)
		issuances[i] = inputIssuance(in)

		if in.WitnessUtxo == nil || !isWalletOwned(in.BIP32Derivations, desc) {
			continue
		}
		blindKey, err := desc.BlindingKeyForScript(in.WitnessUtxo.Script)
		if err != nil {
			return nil, newErr(KindUnblindFailed, "wallet input blinding key could not be derived: %v", err)
		}
		secrets, err := unblind.Rewind(*in.WitnessUtxo, blindKey)
		if err != nil {
			return nil, newErr(KindUnblindFailed, "wallet input could not be unblinded: %v", err)
		}
		balances[secrets.Asset] -= int64(secrets.Value)
	}

	for asset, v := range balances {
		if v == 0 {
			delete(balances, asset)
		}
	}

	return &PsetDetails{
		Balance:    PsetBalance{Fee: fee, Balances: balances},
		Signatures: sigs,
		Issuances:  issuances,
	}, nil
}

func unblindOutput(o *Output, desc *descriptor.Descriptor) (elements.TxOutSecrets, error) {
	txOut := outputToTxOut(o)
	key, err := desc.BlindingKeyForScript(o.Script)
	if err != nil {
		return elements.TxOutSecrets{}, err
	}
	return unblind.Rewind(txOut, key)
}

func isWalletOwned(derivations []*psbt.Bip32Derivation, desc *descriptor.Descriptor) bool {
	for _, d := range derivations {
		for _, ke := range desc.Keys {
			if d.MasterKeyFingerprint == fingerprintUint32(ke.Fingerprint) {
				return true
			}
		}
	}
	return false
}

func fingerprintUint32(fp [4]byte) uint32 {
	return uint32(fp[0])<<24 | uint32(fp[1])<<16 | uint32(fp[2])<<8 | uint32(fp[3])
}

func inputSignatures(in *Input) InputSignatures {
	var out InputSignatures
	for _, d := range in.BIP32Derivations {
		pubHex := hex.EncodeToString(d.PubKey)
		ks := KeySignature{PubKey: d.PubKey, Fingerprint: fingerprintBytes(d.MasterKeyFingerprint), Path: d.Bip32Path}
		if _, ok := in.PartialSigs[pubHex]; ok {
			out.HasSignature = append(out.HasSignature, ks)
		} else {
			out.MissingSignature = append(out.MissingSignature, ks)
		}
	}
	return out
}

func fingerprintBytes(fp uint32) [4]byte {
	return [4]byte{byte(fp >> 24), byte(fp >> 16), byte(fp >> 8), byte(fp)}
}

func inputIssuance(in *Input) InputIssuance {
	if in.Issuance == nil || in.Issuance.IsNull() {
		return InputIssuance{Kind: IssuanceNone}
	}
	entropy := in.Issuance.AssetEntropy
	prevOut := elements.OutPoint{Txid: in.PrevTxid, Vout: in.PrevVout}
	rec := InputIssuance{
		PrevOut:     prevOut,
		AssetId:     elements.AssetIdFromEntropy(entropy),
		TokenId:     elements.TokenIdFromEntropy(entropy),
		AssetAmount: in.Issuance.AssetAmount,
		TokenAmount: in.Issuance.TokenAmount,
	}
	if in.Issuance.IsReissuance() {
		rec.Kind = IssuanceReissuance
	} else {
		rec.Kind = IssuanceNew
	}
	return rec
}
