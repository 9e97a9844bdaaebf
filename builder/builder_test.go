package builder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/wallet"
)

func testDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Parse(
		"ct(slip77(9aa0dc2b7e04ddf4efd6ceb44307ee1749c5620a06048531da30ac8739b3e12c)," +
			"elwpkh([aabbccdd/84'/1'/0']tpubD6NzVbkrYhZ4WZaiWHz59q5EQ61bd6dUYfFwpH7pBmgyeYBgvrhzTwNjj5WpwW9hkp5PhSXhcn2WH3DKiANx7Chbrgu9iA8ooQcGNfGWNVY/<0;1>/*))",
	)
	require.NoError(t, err)
	return d
}

// fundedWallet builds a wallet holding a single confirmed policy-asset
// utxo of the given value at external index 0.
func fundedWallet(t *testing.T, value uint64) (*wallet.Wallet, elements.NetworkParams) {
	t.Helper()
	ctx := context.Background()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	desc := testDescriptor(t)

	w, err := wallet.New(ctx, net.Network, desc, nil)
	require.NoError(t, err)

	addr, err := desc.Address(0, net)
	require.NoError(t, err)

	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)

	txid := elements.Txid{0xaa}
	height := uint32(100)
	op := elements.OutPoint{Txid: txid, Vout: 0}

	tx := &wallet.WalletTx{
		Txid:   txid,
		Height: &height,
		Outputs: []*wallet.WalletTxOut{{
			OutPoint:      op,
			ScriptPubkey:  addr.Script,
			Height:        &height,
			Unblinded:     elements.TxOutSecrets{Asset: policyAsset, Value: value, AssetBF: [32]byte{0x01}, ValueBF: [32]byte{0x02}},
			WildcardIndex: 0,
			Chain:         descriptor.ChainExternal,
		}},
	}

	require.NoError(t, w.ApplyUpdate(ctx, &wallet.Update{Version: 0, NewTxs: []*wallet.WalletTx{tx}}))
	return w, net
}

func TestFinishPaysRecipientAndReturnsChange(t *testing.T) {
	t.Parallel()
	w, net := fundedWallet(t, 100_000)
	desc := w.Snapshot().Descriptor

	destAddr, err := desc.Address(5, net)
	require.NoError(t, err)

	p, err := New().AddLbtcRecipient(destAddr.Confidential, 10_000).Finish(w)
	require.NoError(t, err)

	require.Len(t, p.Inputs, 1)
	// one recipient output + one change output + one fee output
	require.Len(t, p.Outputs, 3)

	details, err := pset.Details(p, desc, net)
	require.NoError(t, err)
	require.Greater(t, details.Balance.Fee, uint64(0))

	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)
	// wallet lost the recipient amount and the fee
	require.Equal(t, -int64(10_000+details.Balance.Fee), details.Balance.Balances[policyAsset])
}

func TestFinishRejectsInsufficientFunds(t *testing.T) {
	t.Parallel()
	w, net := fundedWallet(t, 1_000)
	desc := w.Snapshot().Descriptor

	destAddr, err := desc.Address(5, net)
	require.NoError(t, err)

	_, err = New().AddLbtcRecipient(destAddr.Confidential, 1_000_000).Finish(w)
	require.Error(t, err)

	var berr *Error
	require.ErrorAs(t, err, &berr)
	require.Equal(t, KindInsufficientFunds, berr.Kind)
}

func TestFeeRateRejectsBelowMinimum(t *testing.T) {
	t.Parallel()
	rate := 0.01
	b := New().FeeRate(&rate)
	require.Error(t, b.err)
}

func TestDrainLbtcWalletOmitsPolicyAssetChange(t *testing.T) {
	t.Parallel()
	w, net := fundedWallet(t, 50_000)
	desc := w.Snapshot().Descriptor

	destAddr, err := desc.Address(5, net)
	require.NoError(t, err)

	p, err := New().AddLbtcRecipient(destAddr.Confidential, 1_000).DrainLbtcWallet().Finish(w)
	require.NoError(t, err)

	// one recipient output + one fee output, no change
	require.Len(t, p.Outputs, 2)
}
