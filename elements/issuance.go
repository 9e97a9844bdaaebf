package elements

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
)

// ContractHash is the canonical hash of a Contract (asset-registry JSON
// entry), per spec §3/§6.
type ContractHash [32]byte

// Contract is the asset-registry JSON document that pins the human-facing
// metadata of an issued asset.
type Contract struct {
	Entity       ContractEntity `json:"entity"`
	IssuerPubkey string         `json:"issuer_pubkey"`
	Name         string         `json:"name"`
	Precision    uint8          `json:"precision"`
	Ticker       string         `json:"ticker"`
	Version      uint8          `json:"version"`
}

// ContractEntity names the domain that vouches for a Contract.
type ContractEntity struct {
	Domain string `json:"domain"`
}

// Validate enforces the Contract field constraints from spec §3.
func (c Contract) Validate() error {
	if c.Precision > 8 {
		return fmt.Errorf("elements: contract precision %d exceeds 8", c.Precision)
	}
	if len(c.Ticker) < 3 || len(c.Ticker) > 5 {
		return fmt.Errorf("elements: contract ticker %q must be 3-5 chars", c.Ticker)
	}
	for _, r := range c.Ticker {
		if r < 'A' || r > 'Z' {
			return fmt.Errorf("elements: contract ticker %q must be upper-case", c.Ticker)
		}
	}
	if len(c.IssuerPubkey) != 66 {
		return fmt.Errorf("elements: contract issuer_pubkey must be 33-byte hex")
	}
	return nil
}

// Hash computes the canonical ContractHash: double-SHA256 over the
// contract's canonical (sorted-keys, minified) JSON serialization, in the
// fixed field order the wire format names: entity, issuer_pubkey, name,
// precision, ticker, version.
func (c Contract) Hash() (ContractHash, error) {
	ordered := map[string]interface{}{
		"entity":        map[string]interface{}{"domain": c.Entity.Domain},
		"issuer_pubkey": c.IssuerPubkey,
		"name":          c.Name,
		"precision":     c.Precision,
		"ticker":        c.Ticker,
		"version":       c.Version,
	}
	canon, err := canonicalJSON(ordered)
	if err != nil {
		return ContractHash{}, err
	}
	first := sha256.Sum256(canon)
	second := sha256.Sum256(first[:])
	var out ContractHash
	copy(out[:], second[:])
	return out, nil
}

// canonicalJSON produces minified JSON with map keys sorted, which
// encoding/json already guarantees for map[string]interface{}.
func canonicalJSON(v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateAssetEntropy derives the 32-byte asset entropy from the issuance
// outpoint and the contract hash, per spec §3/§8 property 6. This mirrors
// Elements consensus: entropy = SHA256d(outpoint || contract_hash), with
// the outpoint serialized as txid(internal order) || vout(LE32).
func GenerateAssetEntropy(prevOut OutPoint, contract ContractHash) [32]byte {
	var buf bytes.Buffer
	buf.Write(prevOut.Txid[:])
	var voutBytes [4]byte
	binary.LittleEndian.PutUint32(voutBytes[:], prevOut.Vout)
	buf.Write(voutBytes[:])
	buf.Write(contract[:])

	first := sha256.Sum256(buf.Bytes())
	second := sha256.Sum256(first[:])
	return second
}

// AssetIdFromEntropy derives the issued asset's AssetId from asset entropy:
// SHA256d(entropy || 0x00...0 (32 zero bytes)).
func AssetIdFromEntropy(entropy [32]byte) AssetId {
	return idFromEntropyAndSuffix(entropy, 0)
}

// TokenIdFromEntropy derives the paired reissuance token's AssetId from
// asset entropy: SHA256d(entropy || 0x01 || 31 zero bytes), matching
// Elements' fixed-point "prevout" hash construction for the reissuance
// token tag.
func TokenIdFromEntropy(entropy [32]byte) AssetId {
	return idFromEntropyAndSuffix(entropy, 1)
}

func idFromEntropyAndSuffix(entropy [32]byte, suffix byte) AssetId {
	var tagged [32]byte
	tagged[0] = suffix
	var buf bytes.Buffer
	buf.Write(entropy[:])
	buf.Write(tagged[:])
	first := sha256.Sum256(buf.Bytes())
	second := sha256.Sum256(first[:])
	var id AssetId
	copy(id[:], second[:])
	return id
}
