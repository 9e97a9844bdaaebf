package elements

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBalanceAddAccumulatesPerAsset(t *testing.T) {
	a := AssetId{0x01}
	b := AssetId{0x02}

	bal := make(Balance)
	bal.Add(a, 1000)
	bal.Add(a, 500)
	bal.Add(b, 250)

	require.Equal(t, uint64(1500), bal[a])
	require.Equal(t, uint64(250), bal[b])
	require.Equal(t, []AssetId{a, b}, bal.Sorted())
}

// TestBalanceSubPrunesZeroNet covers the balance-closure computation
// wallet.WalletState relies on: spent inputs minus received outputs nets
// to zero for every asset untouched by a transaction, and those entries
// must not linger in the resulting SignedBalance.
func TestBalanceSubPrunesZeroNet(t *testing.T) {
	a := AssetId{0x01}
	b := AssetId{0x02}

	before := Balance{a: 10000, b: 500}
	after := Balance{a: 8000, b: 500}

	delta := after.Sub(before)
	require.Equal(t, SignedBalance{a: -2000}, delta)
	_, stillPresent := delta[b]
	require.False(t, stillPresent)
}
