package signer

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/pset"
)

type fakeSigner struct {
	master   *hdkeychain.ExtendedKey
	mainnet  bool
}

func (f *fakeSigner) Sign(*pset.PSET) (uint32, error) { return 0, nil }

func (f *fakeSigner) DeriveXpub(path []uint32) (*hdkeychain.ExtendedKey, error) {
	key := f.master
	for _, idx := range path {
		var err error
		key, err = key.Derive(idx)
		if err != nil {
			return nil, err
		}
	}
	return key.Neuter()
}

func (f *fakeSigner) Slip77MasterBlindingKey() ([32]byte, error) { return [32]byte{}, nil }
func (f *fakeSigner) IsMainnet() bool                            { return f.mainnet }

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	require.NoError(t, err)
	master, err := hdkeychain.NewMaster(seed, &chaincfg.TestNet3Params)
	require.NoError(t, err)
	return &fakeSigner{master: master}
}

func TestFingerprintMatchesIdentifierPrefix(t *testing.T) {
	s := newFakeSigner(t)
	id, err := Identifier(s)
	require.NoError(t, err)
	fp, err := Fingerprint(s)
	require.NoError(t, err)
	require.Equal(t, id[:4], fp[:])
}

func TestKeyoriginXpubUsesTestnetCoinTypeByDefault(t *testing.T) {
	s := newFakeSigner(t)
	ko, err := KeyoriginXpub(s, Bip84)
	require.NoError(t, err)
	require.Contains(t, ko, "/84h/1h/0h]")
}

func TestKeyoriginXpubUsesMainnetCoinTypeWhenMainnet(t *testing.T) {
	s := newFakeSigner(t)
	s.mainnet = true
	ko, err := KeyoriginXpub(s, Bip49)
	require.NoError(t, err)
	require.Contains(t, ko, "/49h/1776h/0h]")
}
