// Package elements provides the Liquid/Elements primitives the rest of the
// toolkit builds on: asset identifiers, confidential commitments, the
// minimal transaction/outpoint model, and the per-network constant table.
package elements

import "encoding/hex"

// Network identifies one of the Liquid-family chains this toolkit supports.
type Network string

const (
	NetworkLiquid          Network = "liquid"
	NetworkTestnetLiquid   Network = "testnet-liquid"
	NetworkLocaltestLiquid Network = "localtest-liquid"
)

// NetworkParams bundles the constants a given Network fixes: its native
// policy asset and its genesis block hash, both given in the same
// byte-reversed display form used by Elements tooling, plus the human
// address-parameter tag carried alongside for encoding/decoding addresses.
type NetworkParams struct {
	Network         Network
	PolicyAssetHex  string
	GenesisHashHex  string
	Bech32HRP       string
	BlindedHRP      string
	IsMainnet       bool
}

// Networks is the single source of truth for network constants; every other
// package derives from this table instead of re-declaring literals.
var Networks = map[Network]NetworkParams{
	NetworkLiquid: {
		Network:        NetworkLiquid,
		PolicyAssetHex: "6f0279e9ed041c3d710a9f57d0c02928416460c4b722ae3457a11eec381c526d",
		GenesisHashHex: "1466275836220db2944ca059a3a10ef6fd2ea684b0688d2c379296888a206003",
		Bech32HRP:      "ex",
		BlindedHRP:     "lq",
		IsMainnet:      true,
	},
	NetworkTestnetLiquid: {
		Network:        NetworkTestnetLiquid,
		PolicyAssetHex: "144c654344aa716d6f3abcc1ca90e5641e4e2a7f633bc09fe3baf64585819a49",
		GenesisHashHex: "a771da8e52ee6ad581ed1e9a99825e5b3b7992225534eaa2ae23244fe26ab1c1",
		Bech32HRP:      "tex",
		BlindedHRP:     "tlq",
		IsMainnet:      false,
	},
	NetworkLocaltestLiquid: {
		Network:        NetworkLocaltestLiquid,
		PolicyAssetHex: "5ac9f65c0efcc4775e0baec4ec03abdde22473cd3cf33c0419ca290e0751b225",
		GenesisHashHex: "c7af03b0774a3498a574902bd41045c1633fd40b69ca163345c5d9c78bfd6af7",
		Bech32HRP:      "ert",
		BlindedHRP:     "el",
		IsMainnet:      false,
	},
}

// PolicyAsset returns the network's policy AssetId, the asset fees must be
// paid in.
func (p NetworkParams) PolicyAsset() (AssetId, error) {
	return AssetIdFromDisplayHex(p.PolicyAssetHex)
}

// GenesisHash returns the network's genesis block hash in its 32-byte,
// internal (non-reversed) byte order.
func (p NetworkParams) GenesisHash() ([32]byte, error) {
	return hash32FromDisplayHex(p.GenesisHashHex)
}

func hash32FromDisplayHex(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, ErrInvalidLength
	}
	reverse32(b)
	copy(out[:], b)
	return out, nil
}

func reverse32(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}
