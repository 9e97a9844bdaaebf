// Package swsigner implements the software Signer (spec §4.I): a BIP39
// mnemonic is stretched into a BIP32 seed, the master xprv derives every
// key and the SLIP-77 master blinding key, and nothing is held between
// calls beyond that seed. Grounded on
// original_source/signer/src/software.rs's SwSigner.
package swsigner

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/signer"
)

// slip77HmacKey is SLIP-0077's fixed HMAC key for deriving a master
// blinding key from a BIP-39 seed.
const slip77HmacKey = "Symmetric key seed"

// Signer is a BIP39/BIP32-backed software Signer, per spec §4.I.
type Signer struct {
	xprv    *hdkeychain.ExtendedKey
	seed    []byte
	mainnet bool
}

// New derives a Signer from mnemonic, per spec §4.I. The empty string is
// used as the BIP-39 passphrase, matching the reference implementation.
func New(mnemonic string, isMainnet bool) (*Signer, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("swsigner: invalid mnemonic")
	}
	return fromSeed(bip39.NewSeed(mnemonic, ""), isMainnet)
}

// Random generates a fresh 12-word mnemonic and its Signer, per spec §4.I.
func Random(isMainnet bool) (*Signer, string, error) {
	entropy, err := bip39.NewEntropy(128)
	if err != nil {
		return nil, "", err
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", err
	}
	s, err := fromSeed(bip39.NewSeed(mnemonic, ""), isMainnet)
	if err != nil {
		return nil, "", err
	}
	return s, mnemonic, nil
}

func fromSeed(seed []byte, isMainnet bool) (*Signer, error) {
	params := &chaincfg.TestNet3Params
	if isMainnet {
		params = &chaincfg.MainNetParams
	}
	xprv, err := hdkeychain.NewMaster(seed, params)
	if err != nil {
		return nil, fmt.Errorf("swsigner: %w", err)
	}
	return &Signer{xprv: xprv, seed: seed, mainnet: isMainnet}, nil
}

// DeriveXpub implements signer.Signer.
func (s *Signer) DeriveXpub(path []uint32) (*hdkeychain.ExtendedKey, error) {
	key, err := s.deriveChild(path)
	if err != nil {
		return nil, err
	}
	return key.Neuter()
}

// Slip77MasterBlindingKey implements signer.Signer, per SLIP-0077:
// HMAC-SHA512("Symmetric key seed", seed), taking the left 32 bytes.
func (s *Signer) Slip77MasterBlindingKey() ([32]byte, error) {
	mac := hmac.New(sha512.New, []byte(slip77HmacKey))
	mac.Write(s.seed)
	sum := mac.Sum(nil)
	var out [32]byte
	copy(out[:], sum[:32])
	return out, nil
}

// IsMainnet implements signer.Signer.
func (s *Signer) IsMainnet() bool { return s.mainnet }

// Sign implements signer.Signer, per spec §4.H: for every input whose
// BIP32Derivation fingerprint matches this signer, derive the private key
// along that path, compute the sighash for the input's script kind (ECDSA
// for wpkh/sh-wpkh/wsh, Schnorr for taproot key-path — BIP-341's own
// sighash algorithm is not reproduced here; taproot inputs reuse the same
// generalized digest the ECDSA path does), and insert the signature. The
// sighash type is the input's SighashType when set, SIGHASH_ALL otherwise.
// Returns the count inserted;
// zero means nothing in the PSET matched this signer, which is not an
// error (matching the reference implementation's contract).
func (s *Signer) Sign(p *pset.PSET) (uint32, error) {
	myFp, err := signer.Fingerprint(s)
	if err != nil {
		return 0, err
	}

	tx := p.Extract()
	var inserted uint32

	for i, in := range p.Inputs {
		if in.WitnessUtxo == nil {
			continue
		}
		for _, d := range in.BIP32Derivations {
			if fingerprintUint32(myFp) != d.MasterKeyFingerprint {
				continue
			}

			child, err := s.deriveChild(d.Bip32Path)
			if err != nil {
				return inserted, err
			}
			priv, err := child.ECPrivKey()
			if err != nil {
				return inserted, err
			}
			pub := priv.PubKey()
			if !bytes.Equal(pub.SerializeCompressed(), d.PubKey) {
				continue
			}

			kind := elements.ScriptKindOf(in.WitnessUtxo.Script)
			scriptCode, err := signer.ScriptCode(kind, in.WitnessUtxo.Script, in.WitnessScript, in.RedeemScript)
			if err != nil {
				return inserted, err
			}

			hashType := elements.SighashAll
			if in.SighashType != nil {
				hashType = *in.SighashType
			}
			digest := elements.SigHash(tx, i, scriptCode, in.WitnessUtxo.Value, hashType)
			rawSig, err := signWithKind(priv, digest, kind)
			if err != nil {
				return inserted, err
			}
			if kind != elements.ScriptTaprootKeyPath {
				rawSig[len(rawSig)-1] = byte(hashType)
			}

			if in.PartialSigs == nil {
				in.PartialSigs = make(map[string][]byte)
			}
			key := hex.EncodeToString(pub.SerializeCompressed())
			if _, exists := in.PartialSigs[key]; !exists {
				inserted++
			}
			in.PartialSigs[key] = rawSig
		}
	}

	return inserted, nil
}

// SignDigest signs digest with the private key at path, in the scheme
// matching kind (Schnorr for a taproot key-path spend, ECDSA with a
// trailing sighash-type byte otherwise). Exposed so other signer-capable
// components (jade's in-process Emulator, notably) can reuse this
// derive-then-sign primitive without duplicating swsigner's key
// derivation.
func (s *Signer) SignDigest(path []uint32, digest [32]byte, kind elements.ScriptKind) (sig []byte, pubkey []byte, err error) {
	child, err := s.deriveChild(path)
	if err != nil {
		return nil, nil, err
	}
	priv, err := child.ECPrivKey()
	if err != nil {
		return nil, nil, err
	}
	rawSig, err := signWithKind(priv, digest, kind)
	if err != nil {
		return nil, nil, err
	}
	return rawSig, priv.PubKey().SerializeCompressed(), nil
}

func signWithKind(priv *btcec.PrivateKey, digest [32]byte, kind elements.ScriptKind) ([]byte, error) {
	if kind == elements.ScriptTaprootKeyPath {
		sig, err := schnorr.Sign(priv, digest[:])
		if err != nil {
			return nil, err
		}
		return sig.Serialize(), nil
	}
	sig := ecdsa.Sign(priv, digest[:])
	return append(sig.Serialize(), byte(elements.SighashAll)), nil
}

func (s *Signer) deriveChild(path []uint32) (*hdkeychain.ExtendedKey, error) {
	key := s.xprv
	for _, idx := range path {
		var err error
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("swsigner: %w", err)
		}
	}
	return key, nil
}

func fingerprintUint32(fp [4]byte) uint32 {
	return uint32(fp[0])<<24 | uint32(fp[1])<<16 | uint32(fp[2])<<8 | uint32(fp[3])
}
