package jade

import (
	"context"
	"encoding/hex"

	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/signer"
)

// Sign implements signer.Signer, driving the full confidential sign
// protocol of spec §4.J: sign_liquid_tx opens the session, tx_input runs
// once per input in order committing the device to an anti-exfil nonce,
// then get_signature runs once per input in order revealing the host's
// entropy and returning the final signature, which is verified against
// the earlier commitment before insertion. Every input must carry a
// witness utxo and a BIP32 derivation for this signer — matching the
// reference implementation, which has no concept of a PSET mixing
// inputs across signers. Grounded on
// original_source/jade/src/sign_pset.rs, with the anti-exfil check
// actually performed (see antiexfil.go) rather than discarded as that
// reference implementation does.
func (c *Client) Sign(p *pset.PSET) (uint32, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	myFp, err := signer.Fingerprint(c)
	if err != nil {
		return 0, err
	}

	tx := p.Extract()
	txn := tx.Serialize()

	commitments := make([]*Commitment, len(p.Outputs))
	changes := make([]*ChangeAddress, len(p.Outputs))
	for i, out := range p.Outputs {
		if len(out.Script) == 0 {
			continue // fee output contributes None, per spec §4.J step 1.
		}
		commitments[i] = outputCommitment(out)
		changes[i] = outputChange(out, myFp)
	}

	params := SignLiquidTxParams{
		Network:            string(c.network),
		Txn:                txn,
		NumInputs:          uint32(len(p.Inputs)),
		UseAeSignatures:    true,
		Change:             changes,
		AssetInfo:          nil,
		TrustedCommitments: commitments,
	}
	var accepted bool
	if err := c.call(ctx, "sign_liquid_tx", params, &accepted); err != nil {
		return 0, err
	}
	if !accepted {
		return 0, newError(KindUserRefused, "device declined sign_liquid_tx")
	}

	signerCommitments := make([][]byte, len(p.Inputs))
	hostEntropies := make([][32]byte, len(p.Inputs))

	for i, in := range p.Inputs {
		if in.WitnessUtxo == nil {
			return 0, newInputError(KindMissingWitnessUtxoInInput, i, "missing witness utxo")
		}
		path, ok := matchingPath(in, myFp)
		if !ok {
			return 0, newInputError(KindMissingBip32DerivInput, i, "no bip32 derivation for this signer")
		}
		kind := elements.ScriptKindOf(in.WitnessUtxo.Script)
		scriptCode, err := signer.ScriptCode(kind, in.WitnessUtxo.Script, in.WitnessScript, in.RedeemScript)
		if err != nil {
			return 0, err
		}

		entropy, commitment, err := newHostEntropy()
		if err != nil {
			return 0, err
		}
		hostEntropies[i] = entropy

		inParams := TxInputParams{
			IsWitness:        true,
			ScriptCode:       scriptCode,
			ValueCommitment:  in.WitnessUtxo.Value.Bytes(),
			Path:             path,
			Sighash:          sighashOverride(in),
			AEHostCommitment: commitment[:],
		}
		var res TxInputResult
		if err := c.call(ctx, "tx_input", inParams, &res); err != nil {
			return 0, err
		}
		signerCommitments[i] = res.SignerCommitment
	}

	var inserted uint32
	for i, in := range p.Inputs {
		path, _ := matchingPath(in, myFp)

		sigParams := GetSignatureParams{AEHostEntropy: hostEntropies[i][:]}
		var res GetSignatureResult
		if err := c.call(ctx, "get_signature", sigParams, &res); err != nil {
			return 0, err
		}

		var commitment, nonce, tag [32]byte
		copy(commitment[:], signerCommitments[i])
		copy(nonce[:], res.AENonce)
		copy(tag[:], res.AETag)
		if err := verifyAntiExfil(commitment, nonce, tag, res.Signature); err != nil {
			return inserted, err
		}

		pub, ok := pubkeyForPath(in, myFp, path)
		if !ok {
			continue
		}
		if in.PartialSigs == nil {
			in.PartialSigs = make(map[string][]byte)
		}
		key := hex.EncodeToString(pub)
		if _, exists := in.PartialSigs[key]; !exists {
			inserted++
		}
		in.PartialSigs[key] = res.Signature
	}

	return inserted, nil
}

func outputCommitment(out *pset.Output) *Commitment {
	value, _, okValue := pset.DecodeBlindValueProof(out)
	asset, _, okAsset := pset.DecodeBlindAssetProof(out)
	if !okValue && out.ExplicitValue != nil {
		value = *out.ExplicitValue
	}
	if !okAsset && out.ExplicitAsset != nil {
		asset = *out.ExplicitAsset
	}

	return &Commitment{
		AssetGenerator:  out.AssetCommitment[:],
		AssetID:         reverseBytes(asset[:]),
		BlindingKey:     out.BlindingPubkey,
		Value:           value,
		ValueCommitment: out.ValueCommitment[:],
		ValueBlindProof: out.BlindValueProof,
		AssetBlindProof: out.BlindAssetProof,
	}
}

func outputChange(out *pset.Output, myFp [4]byte) *ChangeAddress {
	for _, d := range out.BIP32Derivations {
		if fingerprintUint32(myFp) != d.MasterKeyFingerprint {
			continue
		}
		variant := scriptVariant(elements.ScriptKindOf(out.Script))
		return &ChangeAddress{Variant: variant, Path: d.Bip32Path, IsChange: true}
	}
	return &ChangeAddress{IsChange: false}
}

func scriptVariant(kind elements.ScriptKind) string {
	switch kind {
	case elements.ScriptWPKH:
		return "wpkh(k)"
	case elements.ScriptShWPKH:
		return "sh(wpkh(k))"
	default:
		return ""
	}
}

func matchingPath(in *pset.Input, myFp [4]byte) ([]uint32, bool) {
	for _, d := range in.BIP32Derivations {
		if fingerprintUint32(myFp) == d.MasterKeyFingerprint {
			return d.Bip32Path, true
		}
	}
	return nil, false
}

func pubkeyForPath(in *pset.Input, myFp [4]byte, path []uint32) ([]byte, bool) {
	for _, d := range in.BIP32Derivations {
		if fingerprintUint32(myFp) == d.MasterKeyFingerprint && pathEqual(d.Bip32Path, path) {
			return d.PubKey, true
		}
	}
	return nil, false
}

func pathEqual(a, b []uint32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func sighashOverride(in *pset.Input) *uint32 {
	if in.SighashType == nil {
		return nil
	}
	v := *in.SighashType
	return &v
}

func fingerprintUint32(fp [4]byte) uint32 {
	return uint32(fp[0])<<24 | uint32(fp[1])<<16 | uint32(fp[2])<<8 | uint32(fp[3])
}

func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
