package jade

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // matches Bitcoin/Elements HASH160

	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/signer"
	"github.com/lwkgo/lwk/swsigner"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestClient(t *testing.T) (*Client, *swsigner.Signer) {
	t.Helper()
	wallet, err := swsigner.New(testMnemonic, false)
	require.NoError(t, err)
	emu := NewEmulator(wallet, NetworkLocaltest, true)
	return New(emu, NetworkLocaltest), wallet
}

func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

func wpkhScript(pubkey []byte) []byte {
	h := hash160(pubkey)
	out := make([]byte, 0, 22)
	out = append(out, 0x00, 0x14)
	return append(out, h...)
}

func TestConnectTransitionsToUnknown(t *testing.T) {
	c, _ := newTestClient(t)
	require.Equal(t, StateLocked, c.State())
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, StateUnknown, c.State())
}

func TestUnlockSkipsHandshakeWhenAlreadyAuthenticated(t *testing.T) {
	c, _ := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Unlock(context.Background()))
	require.Equal(t, StateReady, c.State())
}

func TestGetMasterFingerprintMatchesSoftwareSigner(t *testing.T) {
	c, wallet := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Unlock(context.Background()))

	want, err := signer.Fingerprint(wallet)
	require.NoError(t, err)

	got, err := c.GetMasterFingerprint(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDeriveXpubMatchesSoftwareSigner(t *testing.T) {
	c, wallet := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Unlock(context.Background()))

	path := []uint32{84 + 1<<31, 1 + 1<<31, 0 + 1<<31}
	want, err := wallet.DeriveXpub(path)
	require.NoError(t, err)
	got, err := c.DeriveXpub(path)
	require.NoError(t, err)
	require.Equal(t, want.String(), got.String())
}

func TestSlip77MasterBlindingKeyMatchesSoftwareSigner(t *testing.T) {
	c, wallet := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Unlock(context.Background()))

	want, err := wallet.Slip77MasterBlindingKey()
	require.NoError(t, err)
	got, err := c.Slip77MasterBlindingKey()
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSignInsertsVerifiedSignature(t *testing.T) {
	c, wallet := newTestClient(t)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Unlock(context.Background()))

	myFp, err := signer.Fingerprint(c)
	require.NoError(t, err)
	var fpU32 uint32
	for _, b := range myFp {
		fpU32 = fpU32<<8 | uint32(b)
	}

	path := []uint32{84 + 1<<31, 1 + 1<<31, 0 + 1<<31, 0, 0}
	xpub, err := wallet.DeriveXpub(path)
	require.NoError(t, err)
	pub, err := xpub.ECPubKey()
	require.NoError(t, err)
	pubBytes := pub.SerializeCompressed()

	lbtc := elements.AssetId{0x01}
	p := pset.New()
	p.Inputs = []*pset.Input{
		{
			PrevVout: 0,
			WitnessUtxo: &elements.TxOut{
				Asset:  elements.ExplicitAsset(lbtc),
				Value:  elements.ExplicitValue(100000),
				Script: wpkhScript(pubBytes),
			},
			BIP32Derivations: []*psbt.Bip32Derivation{
				{PubKey: pubBytes, MasterKeyFingerprint: fpU32, Bip32Path: path},
			},
			Sequence: 0xffffffff,
		},
	}
	fee := uint64(500)
	p.Outputs = []*pset.Output{
		{
			Script:        wpkhScript(pubBytes),
			ExplicitAsset: &lbtc,
			ExplicitValue: uintPtr(99500),
		},
		{
			ExplicitAsset: &lbtc,
			ExplicitValue: &fee,
		},
	}

	inserted, err := c.Sign(p)
	require.NoError(t, err)
	require.Equal(t, uint32(1), inserted)
	require.Len(t, p.Inputs[0].PartialSigs, 1)
}

func uintPtr(v uint64) *uint64 { return &v }
