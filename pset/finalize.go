package pset

import (
	"encoding/hex"
	"fmt"

	"github.com/lwkgo/lwk/elements"
)

// Combine merges b's partial signatures into a clone of a, per spec §9's
// pset.combine(other): distributed signing flows pass immutable PSET
// clones to each signer and merge the results back into one. a and b
// must share the same input/output structure (both cloned from the same
// unsigned PSET before each signer mutated its own copy).
func Combine(a, b *PSET) (*PSET, error) {
	if len(a.Inputs) != len(b.Inputs) || len(a.Outputs) != len(b.Outputs) {
		return nil, newErr(KindStructureMismatch, "psets have different input/output counts")
	}

	out := clonePSET(a)
	for i, in := range b.Inputs {
		if in.PrevTxid != out.Inputs[i].PrevTxid || in.PrevVout != out.Inputs[i].PrevVout {
			return nil, newErr(KindStructureMismatch, "input %d does not match between psets", i)
		}
		if out.Inputs[i].PartialSigs == nil {
			out.Inputs[i].PartialSigs = make(map[string][]byte, len(in.PartialSigs))
		}
		for pubkeyHex, sig := range in.PartialSigs {
			out.Inputs[i].PartialSigs[pubkeyHex] = sig
		}
	}
	return out, nil
}

func clonePSET(p *PSET) *PSET {
	out := &PSET{Version: p.Version, Locktime: p.Locktime}
	out.Inputs = make([]*Input, len(p.Inputs))
	for i, in := range p.Inputs {
		c := *in
		c.PartialSigs = make(map[string][]byte, len(in.PartialSigs))
		for k, v := range in.PartialSigs {
			c.PartialSigs[k] = v
		}
		out.Inputs[i] = &c
	}
	out.Outputs = make([]*Output, len(p.Outputs))
	for i, o := range p.Outputs {
		c := *o
		out.Outputs[i] = &c
	}
	return out
}

// Finalize moves each input's collected partial signatures into its
// final witness stack, per the PSET lifecycle ("finalized by moving
// signatures into input witness data"). It fails with
// KindMissingSignatures if any input lacks enough signatures for its
// script kind: one for wpkh/sh-wpkh, the witness script's threshold for
// wsh-multisig.
func Finalize(p *PSET) error {
	for i, in := range p.Inputs {
		if in.WitnessUtxo == nil {
			continue
		}
		kind := elements.ScriptKindOf(in.WitnessUtxo.Script)
		witness, err := finalizeInput(kind, in)
		if err != nil {
			return newErr(KindMissingSignatures, "input %d: %v", i, err)
		}
		in.FinalScriptWitness = witness
	}
	return nil
}

func finalizeInput(kind elements.ScriptKind, in *Input) ([][]byte, error) {
	switch kind {
	case elements.ScriptWPKH, elements.ScriptShWPKH:
		if len(in.BIP32Derivations) == 0 {
			return nil, fmt.Errorf("no bip32 derivation recorded")
		}
		pub := in.BIP32Derivations[0].PubKey
		sig, ok := in.PartialSigs[hex.EncodeToString(pub)]
		if !ok {
			return nil, fmt.Errorf("missing signature for %x", pub)
		}
		witness := [][]byte{sig, pub}
		if kind == elements.ScriptShWPKH {
			witness = append(witness, in.RedeemScript)
		}
		return witness, nil

	case elements.ScriptWSHMulti:
		threshold, keyOrder, err := multisigKeyOrder(in.WitnessScript)
		if err != nil {
			return nil, err
		}
		var sigs [][]byte
		for _, pub := range keyOrder {
			sig, ok := in.PartialSigs[hex.EncodeToString(pub)]
			if !ok {
				continue
			}
			sigs = append(sigs, sig)
			if len(sigs) == threshold {
				break
			}
		}
		if len(sigs) < threshold {
			return nil, fmt.Errorf("have %d of %d required signatures", len(sigs), threshold)
		}
		witness := make([][]byte, 0, len(sigs)+2)
		witness = append(witness, nil) // OP_CHECKMULTISIG off-by-one dummy element
		witness = append(witness, sigs...)
		witness = append(witness, in.WitnessScript)
		return witness, nil

	default:
		return nil, fmt.Errorf("unsupported script kind for finalize")
	}
}

// multisigKeyOrder parses a standard OP_m <pubkeys...> OP_n
// OP_CHECKMULTISIG witness script, returning the threshold and the
// pubkeys in script order, grounded on descriptor/derive.go's
// buildMultisigScript construction it inverts.
func multisigKeyOrder(script []byte) (int, [][]byte, error) {
	if len(script) < 3 {
		return 0, nil, fmt.Errorf("witness script too short")
	}
	threshold, err := opNValue(script[0])
	if err != nil {
		return 0, nil, err
	}
	var keys [][]byte
	i := 1
	for i < len(script) {
		length := int(script[i])
		if length == 0 || length > 0x4b || i+1+length > len(script) {
			break
		}
		keys = append(keys, script[i+1:i+1+length])
		i += 1 + length
	}
	return threshold, keys, nil
}

func opNValue(b byte) (int, error) {
	if b == 0x00 {
		return 0, nil
	}
	if b >= 0x51 && b <= 0x60 {
		return int(b) - 0x50, nil
	}
	return 0, fmt.Errorf("not an OP_N opcode: 0x%x", b)
}
