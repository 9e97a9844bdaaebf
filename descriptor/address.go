package descriptor

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/bech32"

	"github.com/lwkgo/lwk/elements"
)

// ParseAddress decodes an address string produced by Address/Change (or by
// any wallet targeting the same network), recognizing both the plain
// segwit form and this toolkit's confidential form, per spec §4.G's
// "validates address network" / "rejects non-confidential addresses"
// requirements. It is the inverse of addressAt/bech32Segwit/blindedAddress.
func ParseAddress(addrStr string, net elements.NetworkParams) (*Address, error) {
	hrp, data, err := bech32.DecodeNoLimit(addrStr)
	if err != nil {
		return nil, newErr(KindSyntax, "address %q is not valid bech32: %v", addrStr, err)
	}

	switch hrp {
	case net.Bech32HRP:
		script, err := decodeSegwitScript(data)
		if err != nil {
			return nil, err
		}
		return &Address{Script: script, Unconfidential: addrStr}, nil

	case net.BlindedHRP:
		payload, err := bech32.ConvertBits(data, 5, 8, false)
		if err != nil {
			return nil, newErr(KindSyntax, "address %q has invalid bech32 payload: %v", addrStr, err)
		}
		if len(payload) < 34 {
			return nil, newErr(KindSyntax, "address %q payload too short for a blinding key", addrStr)
		}
		blindingKey, err := btcec.ParsePubKey(payload[:33])
		if err != nil {
			return nil, newErr(KindSyntax, "address %q has invalid blinding key: %v", addrStr, err)
		}
		return &Address{
			Script:       payload[33:],
			BlindingKey:  blindingKey,
			Confidential: addrStr,
		}, nil

	default:
		return nil, newErr(KindSyntax, "address %q has hrp %q, expected %q or %q", addrStr, hrp, net.Bech32HRP, net.BlindedHRP)
	}
}

// decodeSegwitScript reverses bech32Segwit: the first 5-bit symbol is the
// witness version, the rest (re-packed to 8-bit) is the witness program.
func decodeSegwitScript(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, newErr(KindSyntax, "address payload is empty")
	}
	version := fiveBitToWitnessVersion(data[0])
	program, err := bech32.ConvertBits(data[1:], 5, 8, false)
	if err != nil {
		return nil, newErr(KindSyntax, "invalid witness program encoding: %v", err)
	}
	return append([]byte{version, byte(len(program))}, program...), nil
}

func fiveBitToWitnessVersion(v byte) byte {
	if v == 0 {
		return 0x00
	}
	return 0x50 + v
}

// ValidateAddressNetwork returns an error when wantConfidential is true and
// addr carries no blinding key. It does not check the network itself;
// ParseAddress already rejects an address whose HRP belongs to another
// network.
func ValidateAddressNetwork(addr *Address, wantConfidential bool) error {
	if wantConfidential && addr.BlindingKey == nil {
		return newErr(KindSyntax, "address %q is not confidential", addr.Unconfidential)
	}
	return nil
}
