package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

func testDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Parse(
		"ct(slip77(9aa0dc2b6ecc938e04f6ea18ee21436c2e4b0c6c1b3dddaa4fb0abcc9aec27d5)," +
			"elwpkh([aabbccdd/84'/1'/0']tpubD6NzVbkrYhZ4WZaiWHz59q5EQ61bd6dUYfFwpH7pBmgyeYBgvrhzTwNjj5WpwW9hkp5PhSXhcn2WH3DKiANx7Chbrgu9iA8ooQcGNfGWNVY/<0;1>/*))",
	)
	require.NoError(t, err)
	return d
}

func TestStatusHashDeterministic(t *testing.T) {
	t.Parallel()

	d := testDescriptor(t)
	s1 := NewState(elements.NetworkLocaltestLiquid, d)
	s2 := NewState(elements.NetworkLocaltestLiquid, d)

	require.Equal(t, s1.StatusHash(), s2.StatusHash())

	txid := elements.Txid{0x01}
	height := uint32(10)
	tx := &WalletTx{Txid: txid, Height: &height, Balance: elements.SignedBalance{}}

	require.NoError(t, s1.ApplyUpdate(&Update{Version: 0, NewTxs: []*WalletTx{tx}}))
	require.NoError(t, s2.ApplyUpdate(&Update{Version: 0, NewTxs: []*WalletTx{tx}}))

	require.Equal(t, s1.StatusHash(), s2.StatusHash())
}

func TestApplyUpdateRejectsStaleStatus(t *testing.T) {
	t.Parallel()

	d := testDescriptor(t)
	s := NewState(elements.NetworkLocaltestLiquid, d)

	stale := s.StatusHash()

	// Advance the state so its status hash changes.
	txid := elements.Txid{0x02}
	require.NoError(t, s.ApplyUpdate(&Update{Version: 0, NewTxs: []*WalletTx{
		{Txid: txid, Balance: elements.SignedBalance{}},
	}}))

	err := s.ApplyUpdate(&Update{Version: 1, StatusHash: stale})
	require.Error(t, err)

	var staleErr *StaleUpdateError
	require.ErrorAs(t, err, &staleErr)
}

func TestApplyUpdateAcceptsMatchingStatus(t *testing.T) {
	t.Parallel()

	d := testDescriptor(t)
	s := NewState(elements.NetworkLocaltestLiquid, d)
	current := s.StatusHash()

	idx := uint32(3)
	err := s.ApplyUpdate(&Update{
		Version:          1,
		StatusHash:       current,
		LastUsedExternal: &idx,
	})
	require.NoError(t, err)
	require.NotNil(t, s.LastUsedExternal)
	require.Equal(t, idx, *s.LastUsedExternal)
}

func TestLastUsedNeverDecreases(t *testing.T) {
	t.Parallel()

	d := testDescriptor(t)
	s := NewState(elements.NetworkLocaltestLiquid, d)

	high := uint32(5)
	low := uint32(2)

	require.NoError(t, s.ApplyUpdate(&Update{Version: 0, LastUsedExternal: &high}))
	require.NoError(t, s.ApplyUpdate(&Update{Version: 0, LastUsedExternal: &low}))

	require.Equal(t, high, *s.LastUsedExternal)
}

func TestBalanceSumsUnspentOutputsOnly(t *testing.T) {
	t.Parallel()

	d := testDescriptor(t)
	s := NewState(elements.NetworkLocaltestLiquid, d)

	asset := elements.AssetId{0xaa}
	op1 := elements.OutPoint{Txid: elements.Txid{0x01}, Vout: 0}
	op2 := elements.OutPoint{Txid: elements.Txid{0x01}, Vout: 1}

	tx := &WalletTx{
		Txid:    elements.Txid{0x01},
		Balance: elements.SignedBalance{},
		Outputs: []*WalletTxOut{
			{OutPoint: op1, Unblinded: elements.TxOutSecrets{Asset: asset, Value: 1000}},
			{OutPoint: op2, Unblinded: elements.TxOutSecrets{Asset: asset, Value: 500}, IsSpent: true},
		},
	}

	require.NoError(t, s.ApplyUpdate(&Update{Version: 0, NewTxs: []*WalletTx{tx}}))

	bal := s.Balance()
	require.Equal(t, uint64(1000), bal[asset])
}

func TestMarkSpentUpdatesExistingOutputs(t *testing.T) {
	t.Parallel()

	d := testDescriptor(t)
	s := NewState(elements.NetworkLocaltestLiquid, d)

	asset := elements.AssetId{0xbb}
	op := elements.OutPoint{Txid: elements.Txid{0x03}, Vout: 0}

	tx := &WalletTx{
		Txid:    elements.Txid{0x03},
		Balance: elements.SignedBalance{},
		Outputs: []*WalletTxOut{
			{OutPoint: op, Unblinded: elements.TxOutSecrets{Asset: asset, Value: 777}},
		},
	}
	require.NoError(t, s.ApplyUpdate(&Update{Version: 0, NewTxs: []*WalletTx{tx}}))
	require.NoError(t, s.ApplyUpdate(&Update{Version: 0, NewSpent: []elements.OutPoint{op}}))

	utxos := s.Utxos()
	require.Empty(t, utxos)

	bal := s.Balance()
	require.Equal(t, uint64(0), bal[asset])
}
