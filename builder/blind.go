package builder

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/unblind"
)

// blindOutput fully blinds one non-fee PSET output in place, per spec
// §4.G step 5: a fresh asset-blinding factor, the caller-supplied
// value-blinding factor (balanced across the transaction by
// balanceValueBlindingFactors), the resulting commitments, the sealed
// range-proof/surjection-proof slots (unblind.Seal, grounded on
// rangeproof.go's rewind construction), and the explicit
// blind-value/blind-asset proofs pset.Details verifies.
func blindOutput(out *pset.Output, asset elements.AssetId, value uint64, blindingPub *btcec.PublicKey, vbf [32]byte) error {
	abf, err := randomScalar()
	if err != nil {
		return err
	}

	assetCommit, err := elements.AssetCommit(asset, abf)
	if err != nil {
		return err
	}
	valueCommit, err := elements.ValueCommit(value, assetCommit, vbf)
	if err != nil {
		return err
	}

	ephemeral, err := randomScalar()
	if err != nil {
		return err
	}
	ephemeralKey, ephemeralPub := btcec.PrivKeyFromBytes(ephemeral[:])

	shared := unblind.EcdhSharedSecret(ephemeralKey, blindingPub)

	valuePlain := make([]byte, 8+32)
	binary.BigEndian.PutUint64(valuePlain[:8], value)
	copy(valuePlain[8:], vbf[:])
	rangeNonce, err := randomNonce()
	if err != nil {
		return err
	}
	rangeProof := unblind.Seal(shared, []byte("LWK-range-proof/1.0"), valuePlain, rangeNonce)

	assetPlain := make([]byte, 32+32)
	copy(assetPlain[:32], asset[:])
	copy(assetPlain[32:], abf[:])
	surjNonce, err := randomNonce()
	if err != nil {
		return err
	}
	surjProof := unblind.Seal(shared, []byte("LWK-surjection-proof/1.0"), assetPlain, surjNonce)

	out.AssetCommitment = assetCommit
	out.ValueCommitment = valueCommit
	out.BlindingPubkey = blindingPub.SerializeCompressed()
	out.EcdhPubkey = ephemeralPub.SerializeCompressed()
	out.ValueRangeproof = rangeProof
	out.AssetSurjectionProof = surjProof
	out.AssetBlindingFactor = abf
	out.ValueBlindingFactor = vbf
	out.BlindValueProof = pset.EncodeBlindValueProof(valueCommit, value, vbf)
	out.BlindAssetProof = pset.EncodeBlindAssetProof(assetCommit, asset, abf)
	return nil
}

// balanceValueBlindingFactors assigns a fresh random value-blinding factor
// to every non-fee output except the last, and a balancing factor to the
// last so that the sum of the n output VBFs equals the sum of inputVBFs.
// This is a single scalar constraint across all non-fee outputs, whatever
// assets they carry; no per-asset balancing is done (documented
// simplification, see DESIGN.md).
func balanceValueBlindingFactors(n int, inputVBFs [][32]byte) ([][32]byte, error) {
	if n == 0 {
		return nil, nil
	}
	out := make([][32]byte, n)
	var sum btcec.ModNScalar
	for i := 0; i < n-1; i++ {
		r, err := randomScalar()
		if err != nil {
			return nil, err
		}
		out[i] = r
		var s btcec.ModNScalar
		s.SetBytes(&r)
		sum.Add(&s)
	}

	var target btcec.ModNScalar
	for _, vbf := range inputVBFs {
		var s btcec.ModNScalar
		s.SetBytes(&vbf)
		target.Add(&s)
	}

	sum.Negate()
	target.Add(&sum)
	out[n-1] = target.Bytes()
	return out, nil
}

func randomScalar() ([32]byte, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return b, fmt.Errorf("builder: failed to generate blinding randomness: %w", err)
	}
	var s btcec.ModNScalar
	s.SetByteSlice(b[:])
	return s.Bytes(), nil
}

func randomNonce() ([]byte, error) {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("builder: failed to generate AEAD nonce: %w", err)
	}
	return b, nil
}
