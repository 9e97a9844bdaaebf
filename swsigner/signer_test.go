package swsigner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/signer"
)

func emptyPset() *pset.PSET { return pset.New() }

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func TestNewMatchesKnownFingerprint(t *testing.T) {
	s, err := New(testMnemonic, false)
	require.NoError(t, err)

	fp, err := signer.Fingerprint(s)
	require.NoError(t, err)
	// well-known test-vector fingerprint for this mnemonic's master key.
	require.Equal(t, "73c5da0a", hexString(fp[:]))
}

func TestNewRejectsInvalidMnemonic(t *testing.T) {
	_, err := New("not a mnemonic", false)
	require.Error(t, err)
}

func TestRandomProducesDistinctSigners(t *testing.T) {
	s1, m1, err := Random(false)
	require.NoError(t, err)
	s2, m2, err := Random(false)
	require.NoError(t, err)
	require.NotEqual(t, m1, m2)

	fp1, err := signer.Fingerprint(s1)
	require.NoError(t, err)
	fp2, err := signer.Fingerprint(s2)
	require.NoError(t, err)
	require.NotEqual(t, fp1, fp2)
}

func TestSignReturnsZeroWhenNoMatchingInput(t *testing.T) {
	s, err := New(testMnemonic, false)
	require.NoError(t, err)

	inserted, err := s.Sign(emptyPset())
	require.NoError(t, err)
	require.Equal(t, uint32(0), inserted)
}

func TestSlip77MasterBlindingKeyIsDeterministic(t *testing.T) {
	s1, err := New(testMnemonic, false)
	require.NoError(t, err)
	s2, err := New(testMnemonic, false)
	require.NoError(t, err)

	k1, err := s1.Slip77MasterBlindingKey()
	require.NoError(t, err)
	k2, err := s2.Slip77MasterBlindingKey()
	require.NoError(t, err)
	require.Equal(t, k1, k2)
}

func hexString(b []byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 0, len(b)*2)
	for _, c := range b {
		out = append(out, hexDigits[c>>4], hexDigits[c&0x0f])
	}
	return string(out)
}
