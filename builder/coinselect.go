package builder

import (
	"sort"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

// candidate is one spendable utxo, wallet-owned or externally supplied,
// normalized to what coin selection and blinding need.
type candidate struct {
	outPoint   elements.OutPoint
	txOut      elements.TxOut
	unblinded  elements.TxOutSecrets
	scriptKind elements.ScriptKind
	confirmed  bool
	external   bool

	// isWalletOwned/chain/index locate this coin in the wallet's
	// descriptor for BIP32Derivations; set only when !external.
	isWalletOwned bool
	chain         descriptor.Chain
	index         uint32

	// externalDerivation/externalFingerprint are a caller-supplied,
	// already-resolved single BIP32 path for an ExternalUtxo the caller
	// claims as its own, distinct from the wallet-derived path above.
	externalDerivation  []uint32
	externalFingerprint [4]byte
}

// selectCoins orders each asset's candidates deterministically (confirmed
// utxos before unconfirmed and, within the same confirmation status, the
// lexicographically smallest outpoint first) and takes them in that order
// until their summed value covers targets[asset]. It stops at the first
// covering prefix; it does not search for the smallest or best-fitting
// set. Grounded on the teacher's wallet/btcwallet/psbt.go
// fee/coin-selection pass generalized from a single BTC balance to a
// per-asset map.
func selectCoins(pool []candidate, targets map[elements.AssetId]uint64) ([]candidate, error) {
	byAsset := make(map[elements.AssetId][]candidate)
	for _, c := range pool {
		byAsset[c.unblinded.Asset] = append(byAsset[c.unblinded.Asset], c)
	}

	var selected []candidate
	used := make(map[elements.OutPoint]bool)

	for asset, target := range targets {
		coins := append([]candidate(nil), byAsset[asset]...)
		sort.Slice(coins, func(i, j int) bool {
			if coins[i].confirmed != coins[j].confirmed {
				return coins[i].confirmed
			}
			return coins[i].outPoint.Less(coins[j].outPoint)
		})

		var sum uint64
		for _, c := range coins {
			if sum >= target {
				break
			}
			if used[c.outPoint] {
				continue
			}
			selected = append(selected, c)
			used[c.outPoint] = true
			sum += c.unblinded.Value
		}
		if sum < target {
			return nil, errInsufficientFunds(asset)
		}
	}

	return selected, nil
}

func externalCandidates(ext []ExternalUtxo) []candidate {
	out := make([]candidate, 0, len(ext))
	for _, e := range ext {
		out = append(out, candidate{
			outPoint:            e.OutPoint,
			txOut:               e.TxOut,
			unblinded:           e.Unblinded,
			scriptKind:          e.ScriptKind,
			confirmed:           true,
			external:            true,
			externalDerivation:  e.Derivation,
			externalFingerprint: e.Fingerprint,
		})
	}
	return out
}
