package builder

import (
	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

// baseInputVsize/baseOutputVsize/baseTxVsize are the non-witness vsize
// contribution of one input, one output, and the fixed transaction
// overhead (version, locktime, input/output counts), in virtual bytes,
// approximating Elements' explicit (non-confidential scriptPubkey) shapes
// this toolkit builds, grounded on the teacher's wallet/btcwallet/psbt.go
// weight-estimation pass.
const (
	baseTxVsize     = 10
	baseInputVsize  = 41
	baseOutputVsize = 33

	// confidentialOutputExtra accounts for the extra range-proof,
	// surjection-proof, and 33-byte asset/value commitments a blinded
	// (non-fee) output carries over an explicit one.
	confidentialOutputExtra = 174
)

// scriptKindFor maps a descriptor's spending kind to the elements
// ScriptKind fee.go/unblind use to estimate witness weight.
func scriptKindFor(kind descriptor.SpendingKind) elements.ScriptKind {
	switch kind {
	case descriptor.KindWpkh:
		return elements.ScriptWPKH
	case descriptor.KindShWpkh:
		return elements.ScriptShWPKH
	case descriptor.KindWshMulti, descriptor.KindWshSortedMulti:
		return elements.ScriptWSHMulti
	case descriptor.KindTaprootKeyPath:
		return elements.ScriptTaprootKeyPath
	default:
		return elements.ScriptUnknown
	}
}

// estimateVsize estimates the final transaction's virtual size: selected
// inputs (by script kind, witness discounted 4:1 per BIP-141), the fee
// output (always explicit), and every other requested output (always
// blinded, per spec §4.G step 5's "every output but the fee output is
// blinded").
func estimateVsize(inputs []candidate, nonFeeOutputs int, threshold, multisigN int) int {
	vsize := baseTxVsize

	for _, in := range inputs {
		witnessBytes := elements.WitnessSize(in.scriptKind, threshold, multisigN)
		vsize += baseInputVsize + witnessBytes/4
	}

	vsize += baseOutputVsize // fee output
	vsize += nonFeeOutputs * (baseOutputVsize + confidentialOutputExtra)

	return vsize
}

// feeForVsize applies the sat/vB rate, rounding up so the resulting fee
// never underpays, per spec §4.G step 4.
func feeForVsize(vsize int, satPerVb float64) uint64 {
	fee := float64(vsize) * satPerVb
	rounded := uint64(fee)
	if float64(rounded) < fee {
		rounded++
	}
	if rounded == 0 {
		rounded = 1
	}
	return rounded
}
