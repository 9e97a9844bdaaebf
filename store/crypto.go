package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"io"

	"github.com/lwkgo/lwk/elements"
)

// NonceLen is the length in bytes of an AES-256-GCM-SIV nonce, per spec §4.E.
const NonceLen = 12

// tagLen is the length in bytes of the AES-GCM-SIV authentication tag.
const tagLen = 16

// deterministicNonceTag is the tagged-hash domain used to derive a
// deterministic nonce from plaintext, grounded exactly on
// original_source/lwk_common/src/crypto.rs's DeterministicNonceTag.
const deterministicNonceTag = "LWK-Deterministic-Nonce/1.0"

// ErrAuthFailed reports that ciphertext failed authentication on decrypt.
var ErrAuthFailed = errors.New("store: AES-GCM-SIV authentication failed")

// ErrCiphertextTooShort reports a ciphertext shorter than nonce+tag.
var ErrCiphertextTooShort = errors.New("store: ciphertext shorter than nonce+tag")

// Cipher implements AES-256-GCM-SIV (RFC 8452) over a 32-byte key. The
// standard library has no GCM-SIV primitive and this pack carries no
// third-party GCM-SIV package, so this hand-rolled implementation exists
// exactly to the extent the exact scheme in crypto.rs requires: POLYVAL
// over GF(2^128), the two-key derivation, and nonce-then-tag framing.
// See DESIGN.md for the justification this file fulfills.
type Cipher struct {
	key [32]byte
}

// NewCipher returns a Cipher for the given 32-byte key.
func NewCipher(key [32]byte) *Cipher { return &Cipher{key: key} }

// EncryptWithRandomNonce encrypts plaintext with a fresh random nonce, read
// from rand, returning nonce || ciphertext || tag.
func (c *Cipher) EncryptWithRandomNonce(rand io.Reader, plaintext []byte) ([]byte, error) {
	var nonce [NonceLen]byte
	if _, err := io.ReadFull(rand, nonce[:]); err != nil {
		return nil, err
	}
	return c.encryptWithNonce(nonce, plaintext)
}

// EncryptWithDeterministicNonce encrypts plaintext with a nonce derived
// from the tagged hash of the plaintext itself, matching
// encrypt_with_deterministic_nonce: identical plaintext always yields
// identical ciphertext, which callers rely on for idempotent re-puts of
// unchanged records.
func (c *Cipher) EncryptWithDeterministicNonce(plaintext []byte) ([]byte, error) {
	h := elements.TaggedHash(deterministicNonceTag, plaintext)
	var nonce [NonceLen]byte
	copy(nonce[:], h[:NonceLen])
	return c.encryptWithNonce(nonce, plaintext)
}

func (c *Cipher) encryptWithNonce(nonce [NonceLen]byte, plaintext []byte) ([]byte, error) {
	authKey, encKey := deriveKeys(c.key, nonce)

	tag, err := computeTag(authKey, encKey, nonce, nil, plaintext)
	if err != nil {
		return nil, err
	}

	ks, err := keystreamCipher(encKey, tag)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(plaintext))
	xorKeystream(ks, ciphertext, plaintext, 0)

	out := make([]byte, 0, NonceLen+len(ciphertext)+tagLen)
	out = append(out, nonce[:]...)
	out = append(out, ciphertext...)
	out = append(out, tag[:]...)
	return out, nil
}

// Decrypt reverses EncryptWithRandomNonce/EncryptWithDeterministicNonce,
// per decrypt_with_nonce_prefix: the nonce is read from the first
// NonceLen bytes, and the trailing tagLen bytes are the tag.
func (c *Cipher) Decrypt(data []byte) ([]byte, error) {
	if len(data) < NonceLen+tagLen {
		return nil, ErrCiphertextTooShort
	}

	var nonce [NonceLen]byte
	copy(nonce[:], data[:NonceLen])
	ciphertext := data[NonceLen : len(data)-tagLen]
	var wantTag [tagLen]byte
	copy(wantTag[:], data[len(data)-tagLen:])

	authKey, encKey := deriveKeys(c.key, nonce)

	ks, err := keystreamCipher(encKey, wantTag)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	xorKeystream(ks, plaintext, ciphertext, 0)

	gotTag, err := computeTag(authKey, encKey, nonce, nil, plaintext)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(gotTag[:], wantTag[:]) != 1 {
		return nil, ErrAuthFailed
	}

	return plaintext, nil
}

// deriveKeys implements RFC 8452 §4's key derivation for a 256-bit key:
// six AES_k(counter||nonce) blocks, the low 8 bytes of each kept, the
// first two concatenated into the 16-byte POLYVAL key and the remaining
// four into the 32-byte AES record-encryption key.
func deriveKeys(key [32]byte, nonce [NonceLen]byte) (authKey [16]byte, encKey [32]byte) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err) // key is always exactly 32 bytes
	}

	var material [6 * 8]byte
	var in, out [16]byte
	copy(in[4:], nonce[:])
	for i := 0; i < 6; i++ {
		binary.LittleEndian.PutUint32(in[:4], uint32(i))
		block.Encrypt(out[:], in[:])
		copy(material[i*8:(i+1)*8], out[:8])
	}

	copy(authKey[:], material[:16])
	copy(encKey[:], material[16:48])
	return authKey, encKey
}

// computeTag implements the POLYVAL-then-AES tag derivation of RFC 8452 §4.
func computeTag(authKey [16]byte, encKey [32]byte, nonce [NonceLen]byte, aad, plaintext []byte) ([tagLen]byte, error) {
	var tag [tagLen]byte

	blocks := make([][16]byte, 0, len(aad)/16+len(plaintext)/16+3)
	blocks = append(blocks, pad16Blocks(aad)...)
	blocks = append(blocks, pad16Blocks(plaintext)...)

	var lengthBlock [16]byte
	binary.LittleEndian.PutUint64(lengthBlock[0:8], uint64(len(aad))*8)
	binary.LittleEndian.PutUint64(lengthBlock[8:16], uint64(len(plaintext))*8)
	blocks = append(blocks, lengthBlock)

	s := polyval(authKey, blocks)

	var nonceBlock [16]byte
	copy(nonceBlock[:NonceLen], nonce[:])
	for i := range s {
		s[i] ^= nonceBlock[i]
	}
	s[15] &= 0x7f

	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return tag, err
	}
	block.Encrypt(tag[:], s[:])
	return tag, nil
}

// ctrKeystream generates the AES-CTR keystream RFC 8452 §4 describes: only
// the low 32 bits (little-endian) of the 16-byte counter block increment
// between successive blocks.
type ctrKeystream struct {
	block cipher.Block
	base  [16]byte
}

// keystreamCipher builds a ctrKeystream keyed by encKey, with the initial
// counter block derived from the tag (tag with the top bit of the last
// byte set), per RFC 8452 §4.
func keystreamCipher(encKey [32]byte, tag [tagLen]byte) (*ctrKeystream, error) {
	block, err := aes.NewCipher(encKey[:])
	if err != nil {
		return nil, err
	}
	var counterBlock [16]byte
	copy(counterBlock[:], tag[:])
	counterBlock[15] |= 0x80
	return &ctrKeystream{block: block, base: counterBlock}, nil
}

// xorKeystream XORs src into dst using k's keystream.
func xorKeystream(k *ctrKeystream, dst, src []byte, _ int) {
	counter := binary.LittleEndian.Uint32(k.base[:4])
	var block [16]byte
	copy(block[:], k.base[:])

	for off := 0; off < len(src); off += 16 {
		binary.LittleEndian.PutUint32(block[:4], counter)
		var ks [16]byte
		k.block.Encrypt(ks[:], block[:])

		end := off + 16
		if end > len(src) {
			end = len(src)
		}
		for i := off; i < end; i++ {
			dst[i] = src[i] ^ ks[i-off]
		}
		counter++
	}
}

func pad16Blocks(data []byte) [][16]byte {
	var blocks [][16]byte
	for i := 0; i < len(data); i += 16 {
		var b [16]byte
		end := i + 16
		if end > len(data) {
			end = len(data)
		}
		copy(b[:], data[i:end])
		blocks = append(blocks, b)
	}
	return blocks
}

// polyval computes POLYVAL(h, blocks) per RFC 8452 §3, via Horner's method
// over GF(2^128): acc = 0; for each block, acc = gf128Mul(acc XOR block, h).
func polyval(h [16]byte, blocks [][16]byte) [16]byte {
	hv := bytesToElem(h[:])
	var acc [2]uint64
	for _, b := range blocks {
		bv := bytesToElem(b[:])
		acc[0] ^= bv[0]
		acc[1] ^= bv[1]
		acc = gf128Mul(acc, hv)
	}
	var out [16]byte
	elemToBytes(acc, out[:])
	return out
}

func bytesToElem(b []byte) [2]uint64 {
	return [2]uint64{
		binary.LittleEndian.Uint64(b[0:8]),
		binary.LittleEndian.Uint64(b[8:16]),
	}
}

func elemToBytes(e [2]uint64, out []byte) {
	binary.LittleEndian.PutUint64(out[0:8], e[0])
	binary.LittleEndian.PutUint64(out[8:16], e[1])
}

// gf128Mul multiplies two POLYVAL field elements: bit i of the little-
// endian 128-bit value is the coefficient of x^i, reduced modulo
// x^128 + x^127 + x^126 + x^121 + 1.
func gf128Mul(x, y [2]uint64) [2]uint64 {
	var acc [2]uint64
	v := y
	for i := 0; i < 128; i++ {
		var bit uint64
		if i < 64 {
			bit = (x[0] >> uint(i)) & 1
		} else {
			bit = (x[1] >> uint(i-64)) & 1
		}
		if bit == 1 {
			acc[0] ^= v[0]
			acc[1] ^= v[1]
		}

		carry := v[1] >> 63
		v[1] = (v[1] << 1) | (v[0] >> 63)
		v[0] = v[0] << 1
		if carry == 1 {
			v[0] ^= 1
			v[1] ^= (1 << 57) | (1 << 62) | (1 << 63)
		}
	}
	return acc
}
