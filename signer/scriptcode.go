package signer

import "github.com/lwkgo/lwk/elements"

// ScriptCode builds the script-code a sighash commits to for the given
// script kind, per spec §4.H: the P2PKH-equivalent code for wpkh (and, via
// the redeem script, nested wpkh), or the witness script itself for wsh
// multisig. Taproot key-path spends need no script-code (the sighash
// commits to the output key directly); callers pass the witness program
// itself through unchanged.
func ScriptCode(kind elements.ScriptKind, script, witnessScript, redeemScript []byte) ([]byte, error) {
	switch kind {
	case elements.ScriptWPKH:
		if len(script) != 22 {
			return nil, UnsupportedScriptPubkey(script)
		}
		return p2pkhScriptCode(script[2:22]), nil
	case elements.ScriptShWPKH:
		if len(redeemScript) != 22 {
			return nil, UnsupportedScriptPubkey(script)
		}
		return p2pkhScriptCode(redeemScript[2:22]), nil
	case elements.ScriptWSHMulti:
		if len(witnessScript) == 0 {
			return nil, UnsupportedScriptPubkey(script)
		}
		return witnessScript, nil
	case elements.ScriptTaprootKeyPath:
		return script, nil
	default:
		return nil, UnsupportedScriptPubkey(script)
	}
}

// p2pkhScriptCode builds OP_DUP OP_HASH160 <hash> OP_EQUALVERIFY
// OP_CHECKSIG, the script-code BIP-143 commits to for a v0 wpkh input.
func p2pkhScriptCode(pubkeyHash []byte) []byte {
	out := make([]byte, 0, 25)
	out = append(out, 0x76, 0xa9, byte(len(pubkeyHash)))
	out = append(out, pubkeyHash...)
	out = append(out, 0x88, 0xac)
	return out
}
