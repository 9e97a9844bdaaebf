package unblind

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lwkgo/lwk/elements"
)

// This toolkit's confidential outputs carry a simplified stand-in for
// Liquid's production Borromean/Bulletproof range-proof and surjection
// proof (documented in DESIGN.md): the blinding builder (builder/blind.go)
// derives an ECDH shared secret between an ephemeral nonce key and the
// recipient's per-script blinding pubkey — exactly the construction real
// confidential transactions use to agree on a proof-rewind key — and uses
// it to AEAD-seal the (value, value blinding factor) pair into the
// "range-proof" slot and the (asset, asset blinding factor) pair into the
// "surjection-proof" slot. Rewinding here opens those seals rather than
// running a Borromean-ring or Bulletproof verifier, but it preserves every
// property the wallet logic depends on: only the holder of the matching
// blinding secret key can recover the secrets, and a wrong key fails
// deterministically (ErrRewindFailed) rather than silently producing
// garbage.

const (
	valuePlainLen = 8 + 32  // value (8) + value_bf (32)
	assetPlainLen = 32 + 32 // asset (32) + asset_bf (32)
)

func rewindConfidential(out elements.TxOut, blindKey *btcec.PrivateKey) (elements.TxOutSecrets, error) {
	noncePub, err := btcec.ParsePubKey(out.Nonce)
	if err != nil {
		return elements.TxOutSecrets{}, ErrRewindFailed
	}

	shared := ecdhSharedSecret(blindKey, noncePub)

	valuePlain, err := aeadOpen(shared, []byte("LWK-range-proof/1.0"), out.RangeProof)
	if err != nil || len(valuePlain) != valuePlainLen {
		return elements.TxOutSecrets{}, ErrRewindFailed
	}
	assetPlain, err := aeadOpen(shared, []byte("LWK-surjection-proof/1.0"), out.SurjectionProof)
	if err != nil || len(assetPlain) != assetPlainLen {
		return elements.TxOutSecrets{}, ErrRewindFailed
	}

	var secrets elements.TxOutSecrets
	secrets.Value = binary.BigEndian.Uint64(valuePlain[:8])
	copy(secrets.ValueBF[:], valuePlain[8:])
	copy(secrets.Asset[:], assetPlain[:32])
	copy(secrets.AssetBF[:], assetPlain[32:])

	if !verifyCommitments(secrets, out) {
		return elements.TxOutSecrets{}, ErrRewindFailed
	}

	return secrets, nil
}

func verifyCommitments(secrets elements.TxOutSecrets, out elements.TxOut) bool {
	if out.Asset.Conf == nil || out.Value.Conf == nil {
		return false
	}

	assetCommit, err := elements.AssetCommit(secrets.Asset, secrets.AssetBF)
	if err != nil || assetCommit != *out.Asset.Conf {
		return false
	}

	valueCommit, err := elements.ValueCommit(secrets.Value, assetCommit, secrets.ValueBF)
	if err != nil {
		return false
	}
	return valueCommit == *out.Value.Conf
}

func aeadOpen(sharedSecret, aad, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < 12 {
		return nil, ErrRewindFailed
	}
	block, err := aes.NewCipher(sharedSecret[:32])
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := ciphertext[:12]
	return gcm.Open(nil, nonce, ciphertext[12:], aad)
}

// ecdhSharedSecret derives a 32-byte symmetric key from an ECDH agreement,
// grounded on keyring.go's DeriveSharedKey (GenerateSharedSecret then
// sha256 of the result).
func ecdhSharedSecret(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	secret := btcec.GenerateSharedSecret(priv, pub)
	sum := sha256.Sum256(secret)
	return sum[:]
}

// EcdhSharedSecret exposes ecdhSharedSecret to builder/blind.go so the
// builder derives the identical key when sealing a new output.
func EcdhSharedSecret(priv *btcec.PrivateKey, pub *btcec.PublicKey) []byte {
	return ecdhSharedSecret(priv, pub)
}

// Seal is exported for builder/blind.go to produce the matching
// "range-proof"/"surjection-proof" blobs when blinding a new output.
func Seal(sharedSecret, aad, plaintext, nonce []byte) []byte {
	block, err := aes.NewCipher(sharedSecret[:32])
	if err != nil {
		panic(err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		panic(err)
	}
	sealed := gcm.Seal(nil, nonce, plaintext, aad)
	return append(append([]byte{}, nonce...), sealed...)
}
