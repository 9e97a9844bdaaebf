// Package signer declares the Signer capability (spec §4.H): the
// abstract contract swsigner's software implementation and jade's
// hardware-wallet implementation both satisfy, plus the shared
// identifier/fingerprint/keyorigin-xpub helpers any Signer gets for free
// once it can derive an xpub, grounded on
// original_source/lwk_common/src/signer.rs's blanket-default-method
// trait shape (ported to free functions, since Go interfaces carry no
// default method bodies).
package signer

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // matches Bitcoin/Elements HASH160

	"github.com/lwkgo/lwk/pset"
)

// Bip identifies which standard account-derivation path KeyoriginXpub
// formats for, per spec §4.H's `keyorigin_xpub(bip: {49|84|87}, ...)`.
type Bip int

const (
	Bip49 Bip = 49
	Bip84 Bip = 84
	Bip87 Bip = 87
)

// mainnetCoinType/testnetCoinType are Liquid's registered SLIP-44 coin
// types, per original_source/common/src/signer.rs's keyorigin_xpub.
const (
	mainnetCoinType = 1776
	testnetCoinType = 1
)

// Signer is the abstract signing capability spec §4.H requires: sign a
// PSET in place, derive an xpub at an arbitrary (possibly hardened) path,
// and expose the SLIP-77 master blinding key used to derive confidential
// addresses for this signer's keys.
type Signer interface {
	// Sign mutates pset in place, inserting a signature for every input
	// whose BIP32Derivation fingerprint matches this signer, and returns
	// the count inserted.
	Sign(p *pset.PSET) (uint32, error)

	// DeriveXpub derives the extended public key at path (hardened
	// components have the top bit set, matching hdkeychain.Derive).
	DeriveXpub(path []uint32) (*hdkeychain.ExtendedKey, error)

	// Slip77MasterBlindingKey returns the SLIP-77 master blinding key
	// this signer's descriptors should use.
	Slip77MasterBlindingKey() ([32]byte, error)

	// IsMainnet reports which network this signer's keys were derived
	// for; KeyoriginXpub uses it to pick Liquid's mainnet vs. testnet
	// coin type.
	IsMainnet() bool
}

// Xpub returns the signer's master xpub (path = []), per spec §4.H.
func Xpub(s Signer) (*hdkeychain.ExtendedKey, error) {
	return s.DeriveXpub(nil)
}

// Identifier returns the master xpub's HASH160 identifier (20 bytes), per
// spec §4.H.
func Identifier(s Signer) ([20]byte, error) {
	var id [20]byte
	xpub, err := Xpub(s)
	if err != nil {
		return id, err
	}
	pub, err := xpub.ECPubKey()
	if err != nil {
		return id, err
	}
	copy(id[:], hash160(pub.SerializeCompressed()))
	return id, nil
}

// Fingerprint returns the first 4 bytes of Identifier, per spec §4.H.
func Fingerprint(s Signer) ([4]byte, error) {
	var fp [4]byte
	id, err := Identifier(s)
	if err != nil {
		return fp, err
	}
	copy(fp[:], id[:4])
	return fp, nil
}

// KeyoriginXpub renders "[fingerprint/<bip>h/<cointype>h/0h]xpub" for the
// standard account path bip specifies, per spec §4.H, grounded on
// original_source/lwk_common/src/signer.rs's keyorigin_xpub.
func KeyoriginXpub(s Signer, bip Bip) (string, error) {
	coinType := uint32(testnetCoinType)
	if s.IsMainnet() {
		coinType = mainnetCoinType
	}

	const hardened = 0x80000000
	path := []uint32{hardened | uint32(bip), hardened | coinType, hardened}

	xpub, err := s.DeriveXpub(path)
	if err != nil {
		return "", err
	}
	fp, err := Fingerprint(s)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("[%x/%dh/%dh/0h]%s", fp, uint32(bip), coinType, xpub.String()), nil
}

func hash160(b []byte) []byte {
	h := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(h[:])
	return r.Sum(nil)
}
