package elements

// ScriptKind identifies the shape of a spending script the builder and
// signer need to distinguish in order to simulate witness weight or build
// the right sighash script-code, grounded on
// original_source/lwk_common/src/segwit.rs and original_source/common/src/descriptor.rs.
type ScriptKind int

const (
	ScriptUnknown ScriptKind = iota
	ScriptWPKH
	ScriptShWPKH
	ScriptWSHMulti
	ScriptTaprootKeyPath
)

// IsProvablySegwit reports whether a script-pubkey is provably a v0/v1
// segwit program (as opposed to a legacy or nested-inside-non-segwit
// script this toolkit does not support), grounded on lwk_common/segwit.rs.
func IsProvablySegwit(script []byte) bool {
	if len(script) == 0 {
		return false
	}
	switch {
	case len(script) == 22 && script[0] == 0x00 && script[1] == 0x14: // OP_0 <20-byte hash>
		return true
	case len(script) == 34 && script[0] == 0x00 && script[1] == 0x20: // OP_0 <32-byte hash>
		return true
	case len(script) == 34 && script[0] == 0x51 && script[1] == 0x20: // OP_1 <32-byte key> (taproot)
		return true
	default:
		return false
	}
}

// ScriptKindOf classifies a script-pubkey by shape, used by signer/ to pick
// the right script-code construction for sighashing when no out-of-band
// descriptor kind is available (e.g. a WitnessUtxo reconstructed from a
// PSET alone).
func ScriptKindOf(script []byte) ScriptKind {
	switch {
	case len(script) == 22 && script[0] == 0x00 && script[1] == 0x14:
		return ScriptWPKH
	case len(script) == 23 && script[0] == 0xa9 && script[22] == 0x87:
		return ScriptShWPKH
	case len(script) == 34 && script[0] == 0x00 && script[1] == 0x20:
		return ScriptWSHMulti
	case len(script) == 34 && script[0] == 0x51 && script[1] == 0x20:
		return ScriptTaprootKeyPath
	default:
		return ScriptUnknown
	}
}

// WitnessSize returns the estimated size in bytes of a satisfying witness
// for the given script kind, used by builder/ fee estimation to simulate
// weight before a witness actually exists.
func WitnessSize(kind ScriptKind, multisigThreshold, multisigN int) int {
	switch kind {
	case ScriptWPKH, ScriptShWPKH:
		// 1 (item count) + 1+72 (sig) + 1+33 (pubkey)
		return 1 + 1 + 72 + 1 + 33
	case ScriptWSHMulti:
		// 1 (item count) + OP_0 placeholder + threshold sigs + redeem script
		sigs := multisigThreshold * (1 + 72)
		redeem := 1 + 1 + multisigN*(1+33) + 1 + 1
		return 1 + 1 + sigs + redeem
	case ScriptTaprootKeyPath:
		return 1 + 1 + 64
	default:
		return 1 + 1 + 72 + 1 + 33
	}
}
