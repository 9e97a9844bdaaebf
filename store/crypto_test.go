package store

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func testKey() [32]byte {
	var k [32]byte
	for i := range k {
		k[i] = 7
	}
	return k
}

func TestRandomNonceRoundtrip(t *testing.T) {
	t.Parallel()

	c := NewCipher(testKey())
	plaintext := []byte("example plaintext")

	encrypted, err := c.EncryptWithRandomNonce(rand.Reader, plaintext)
	require.NoError(t, err)
	require.Greater(t, len(encrypted), NonceLen+tagLen)

	decrypted, err := c.Decrypt(encrypted)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted)
}

func TestDeterministicNonceIsStable(t *testing.T) {
	t.Parallel()

	c := NewCipher(testKey())
	plaintext := []byte("deterministic payload")

	encrypted1, err := c.EncryptWithDeterministicNonce(plaintext)
	require.NoError(t, err)

	decrypted1, err := c.Decrypt(encrypted1)
	require.NoError(t, err)
	require.Equal(t, plaintext, decrypted1)

	encrypted2, err := c.EncryptWithDeterministicNonce(plaintext)
	require.NoError(t, err)
	require.True(t, bytes.Equal(encrypted1, encrypted2))
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	t.Parallel()

	c := NewCipher(testKey())
	encrypted, err := c.EncryptWithRandomNonce(rand.Reader, []byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), encrypted...)
	tampered[len(tampered)-1] ^= 0xff

	_, err = c.Decrypt(tampered)
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestEncryptedStoreRoundtrip(t *testing.T) {
	t.Parallel()

	key, err := DeriveKey("ct(slip77(00),elwpkh([00000000]xpub/<0;1>/*))")
	require.NoError(t, err)

	inner := NewMemStore()
	es := NewEncryptedStore(inner, key, true, rand.Reader)
	ctx := context.Background()

	require.NoError(t, es.Put(ctx, "wallet/state/v1", []byte("hello state")))

	got, ok, err := es.Get(ctx, "wallet/state/v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello state"), got)

	raw, ok, err := inner.Get(ctx, "wallet/state/v1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEqual(t, []byte("hello state"), raw)
}
