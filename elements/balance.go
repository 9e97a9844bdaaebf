package elements

import "sort"

// Balance is a per-asset unsigned balance map. Map iteration is unordered;
// Sorted gives the asset ids in a deterministic (AssetId byte) order.
// Grounded on original_source/lwk_common/src/balance.rs.
type Balance map[AssetId]uint64

// SignedBalance is the signed counterpart Balance.Sub produces: a net
// per-asset delta, with zero entries pruned.
type SignedBalance map[AssetId]int64

// Sorted returns the asset ids of b in their canonical (byte) order.
func (b Balance) Sorted() []AssetId {
	ids := make([]AssetId, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Sorted returns the asset ids of b in their canonical (byte) order.
func (b SignedBalance) Sorted() []AssetId {
	ids := make([]AssetId, 0, len(b))
	for id := range b {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Sub computes b - other per asset, pruning entries that net to zero.
func (b Balance) Sub(other Balance) SignedBalance {
	out := make(SignedBalance)
	for id, v := range b {
		out[id] += int64(v)
	}
	for id, v := range other {
		out[id] -= int64(v)
	}
	for id, v := range out {
		if v == 0 {
			delete(out, id)
		}
	}
	return out
}

// Add accumulates value into the balance for asset, creating the entry if
// absent.
func (b Balance) Add(asset AssetId, value uint64) {
	b[asset] += value
}
