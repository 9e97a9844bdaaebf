package unblind

import (
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/elements"
)

// sealedOutput builds a confidential TxOut the same way builder/blind.go's
// blindOutput does: a fresh asset-blinding factor, the caller-chosen
// value-blinding factor, Pedersen commitments over both, and an
// ephemeral-to-recipient ECDH-sealed range/surjection proof pair.
func sealedOutput(t *testing.T, asset elements.AssetId, value uint64, vbf [32]byte, recipientPub *btcec.PublicKey) elements.TxOut {
	t.Helper()

	abf := randomScalar(t)
	assetCommit, err := elements.AssetCommit(asset, abf)
	require.NoError(t, err)
	valueCommit, err := elements.ValueCommit(value, assetCommit, vbf)
	require.NoError(t, err)

	ephemeralKey, ephemeralPub := btcec.PrivKeyFromBytes(randomBytes(t, 32))
	shared := EcdhSharedSecret(ephemeralKey, recipientPub)

	valuePlain := make([]byte, 8+32)
	binary.BigEndian.PutUint64(valuePlain[:8], value)
	copy(valuePlain[8:], vbf[:])
	rangeProof := Seal(shared, []byte("LWK-range-proof/1.0"), valuePlain, randomBytes(t, 12))

	assetPlain := make([]byte, 32+32)
	copy(assetPlain[:32], asset[:])
	copy(assetPlain[32:], abf[:])
	surjProof := Seal(shared, []byte("LWK-surjection-proof/1.0"), assetPlain, randomBytes(t, 12))

	return elements.TxOut{
		Asset:           elements.ConfidentialAsset(assetCommit),
		Value:           elements.ConfidentialValueCommitment(valueCommit),
		Script:          []byte{0x00, 0x14},
		Nonce:           ephemeralPub.SerializeCompressed(),
		RangeProof:      rangeProof,
		SurjectionProof: surjProof,
	}
}

func randomScalar(t *testing.T) [32]byte {
	t.Helper()
	var s btcec.ModNScalar
	s.SetByteSlice(randomBytes(t, 32))
	return s.Bytes()
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestRewindRecoversChosenSecrets(t *testing.T) {
	recipientKey, recipientPub := btcec.PrivKeyFromBytes(randomBytes(t, 32))

	var asset elements.AssetId
	copy(asset[:], randomBytes(t, 32))
	const value = uint64(123456789)
	vbf := randomScalar(t)

	out := sealedOutput(t, asset, value, vbf, recipientPub)

	secrets, err := Rewind(out, recipientKey)
	require.NoError(t, err)
	require.Equal(t, asset, secrets.Asset)
	require.Equal(t, value, secrets.Value)
	require.Equal(t, vbf, secrets.ValueBF)
	require.False(t, secrets.IsExplicit())
}

func TestRewindFailsWithWrongBlindingKey(t *testing.T) {
	_, recipientPub := btcec.PrivKeyFromBytes(randomBytes(t, 32))
	wrongKey, _ := btcec.PrivKeyFromBytes(randomBytes(t, 32))

	var asset elements.AssetId
	copy(asset[:], randomBytes(t, 32))
	vbf := randomScalar(t)

	out := sealedOutput(t, asset, 5000, vbf, recipientPub)

	_, err := Rewind(out, wrongKey)
	require.ErrorIs(t, err, ErrRewindFailed)
}

func TestRewindExplicitOutputPassesThrough(t *testing.T) {
	var asset elements.AssetId
	copy(asset[:], randomBytes(t, 32))

	out := elements.TxOut{
		Asset:  elements.ExplicitAsset(asset),
		Value:  elements.ExplicitValue(5000),
		Script: []byte{0x00, 0x14},
	}

	secrets, err := Rewind(out, nil)
	require.NoError(t, err)
	require.Equal(t, asset, secrets.Asset)
	require.Equal(t, uint64(5000), secrets.Value)
	require.True(t, secrets.IsExplicit())
}

func TestRewindNonConfidentialWithoutExplicitValueFails(t *testing.T) {
	out := elements.TxOut{
		Asset:  elements.NullAsset(),
		Value:  elements.NullValue(),
		Script: []byte{0x00, 0x14},
	}
	_, err := Rewind(out, nil)
	require.ErrorIs(t, err, ErrNonConfidential)
}
