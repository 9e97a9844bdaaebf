// Package unblind recovers the plaintext (asset, value, blinding factors)
// of a confidential Elements output given the recipient's per-script
// blinding key, per spec.md §4.C.
package unblind

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lwkgo/lwk/elements"
)

// Errors mirror spec §4.C's taxonomy.
var (
	// ErrNonConfidential is returned when the caller requires a
	// confidential input but the output is explicit or null.
	ErrNonConfidential = errors.New("unblind: output is not confidential")

	// ErrRewindFailed is returned when the supplied blinding key does
	// not open this output's range-proof (the output is not ours).
	ErrRewindFailed = errors.New("unblind: rewind failed, output is not ours")
)

// Rewind recovers TxOutSecrets from a TxOut using the blinding SecretKey,
// per spec §4.C. Explicit outputs pass through unchanged with zero
// blinding factors; confidential outputs are rewound via the
// range-proof-rewind construction documented in rangeproof.go.
func Rewind(out elements.TxOut, blindKey *btcec.PrivateKey) (elements.TxOutSecrets, error) {
	if out.Asset.Explicit != nil && out.Value.Explicit != nil {
		return elements.TxOutSecrets{Asset: *out.Asset.Explicit, Value: *out.Value.Explicit}, nil
	}

	if out.Asset.Conf == nil || out.Value.Conf == nil {
		return elements.TxOutSecrets{}, ErrNonConfidential
	}
	if blindKey == nil {
		return elements.TxOutSecrets{}, ErrRewindFailed
	}
	if len(out.Nonce) == 0 {
		return elements.TxOutSecrets{}, ErrRewindFailed
	}

	return rewindConfidential(out, blindKey)
}
