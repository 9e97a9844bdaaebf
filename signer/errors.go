package signer

import "fmt"

// Kind tags a signer Error with the spec §7 taxonomy entry it belongs to.
type Kind string

const (
	KindNoKeyForInput           Kind = "NoKeyForInput"
	KindUnsupportedScriptPubkey Kind = "UnsupportedScriptPubkey"
)

// Error is the structured error type signer-package failures surface, per
// spec §7's Signer taxonomy (`NoKeyForInput`, `UnsupportedScriptPubkey{script}`).
type Error struct {
	Kind   Kind
	Script []byte
	Msg    string
}

func (e *Error) Error() string {
	if e.Script != nil {
		return fmt.Sprintf("signer: %s(%x): %s", e.Kind, e.Script, e.Msg)
	}
	return fmt.Sprintf("signer: %s: %s", e.Kind, e.Msg)
}

// NoKeyForInput builds the error for input index carrying no
// BIP32Derivation the signer recognizes.
func NoKeyForInput(index int) error {
	return &Error{Kind: KindNoKeyForInput, Msg: fmt.Sprintf("no bip32 derivation for input %d matches this signer", index)}
}

// UnsupportedScriptPubkey builds the error a Sign implementation returns
// when an input's witness script shape has no script-code construction.
func UnsupportedScriptPubkey(script []byte) error {
	return &Error{Kind: KindUnsupportedScriptPubkey, Script: script, Msg: "script pubkey shape not recognized for sighashing"}
}
