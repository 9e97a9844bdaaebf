package pset

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

func testDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	const text = "ct(slip77(9aa0dc2b7e04ddf4efd6ceb44307ee1749c5620a06048531da30ac8739b3e12c)," +
		"elwpkh([aabbccdd/84'/1'/0']tpubD6NzVbkrYhZ4WZaiWHz59q5EQ61bd6dUYfFwpH7pBmgyeYBgvrhzTwNjj5WpwW9hkp5PhSXhcn2WH3DKiANx7Chbrgu9iA8ooQcGNfGWNVY/<0;1>/*))"
	d, err := descriptor.Parse(text)
	require.NoError(t, err)
	return d
}

func policyAssetAndNet(t *testing.T) (elements.AssetId, elements.NetworkParams) {
	t.Helper()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	asset, err := net.PolicyAsset()
	require.NoError(t, err)
	return asset, net
}

func blindedOutput(t *testing.T, asset elements.AssetId, value uint64) *Output {
	t.Helper()
	var abf, vbf [32]byte
	abf[0] = 1
	vbf[0] = 2

	assetCommit, err := elements.AssetCommit(asset, abf)
	require.NoError(t, err)
	valueCommit, err := elements.ValueCommit(value, assetCommit, vbf)
	require.NoError(t, err)

	return &Output{
		Script:          []byte{0x00, 0x14, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20},
		AssetCommitment: assetCommit,
		ValueCommitment: valueCommit,
		BlindAssetProof: EncodeBlindAssetProof(assetCommit, asset, abf),
		BlindValueProof: EncodeBlindValueProof(valueCommit, value, vbf),
	}
}

func feeOutput(t *testing.T, asset elements.AssetId, fee uint64) *Output {
	t.Helper()
	return &Output{ExplicitAsset: &asset, ExplicitValue: &fee}
}

func TestDetailsRequiresExactlyOneFeeOutput(t *testing.T) {
	t.Parallel()
	desc := testDescriptor(t)
	asset, net := policyAssetAndNet(t)

	p := New()
	p.Outputs = []*Output{blindedOutput(t, asset, 1000)}
	_, err := Details(p, desc, net)
	var psetErr *Error
	require.ErrorAs(t, err, &psetErr)
	require.Equal(t, KindMissingFeeOutput, psetErr.Kind)

	p.Outputs = append(p.Outputs, feeOutput(t, asset, 100), feeOutput(t, asset, 50))
	_, err = Details(p, desc, net)
	require.ErrorAs(t, err, &psetErr)
	require.Equal(t, KindMultipleFeeOutputs, psetErr.Kind)
}

func TestDetailsComputesFeeAndRejectsTamperedProof(t *testing.T) {
	t.Parallel()
	desc := testDescriptor(t)
	asset, net := policyAssetAndNet(t)

	p := New()
	out := blindedOutput(t, asset, 1000)
	p.Outputs = []*Output{out, feeOutput(t, asset, 250)}

	details, err := Details(p, desc, net)
	require.NoError(t, err)
	require.Equal(t, uint64(250), details.Balance.Fee)
	require.Empty(t, details.Balance.Balances) // output isn't wallet-owned (no BIP32Derivations)

	out.BlindValueProof[0] ^= 0xff
	_, err = Details(p, desc, net)
	var psetErr *Error
	require.ErrorAs(t, err, &psetErr)
	require.Equal(t, KindMissingBlindProof, psetErr.Kind)
}

func TestDetailsRejectsNonBlindedNonFeeOutput(t *testing.T) {
	t.Parallel()
	desc := testDescriptor(t)
	asset, net := policyAssetAndNet(t)

	value := uint64(500)
	p := New()
	p.Outputs = []*Output{
		{Script: []byte{0x00, 0x14}, ExplicitAsset: &asset, ExplicitValue: &value},
		feeOutput(t, asset, 100),
	}

	_, err := Details(p, desc, net)
	var psetErr *Error
	require.ErrorAs(t, err, &psetErr)
	require.Equal(t, KindNonFeeOutputNotBlinded, psetErr.Kind)
}

func TestExtractAssemblesTransaction(t *testing.T) {
	t.Parallel()
	asset, _ := policyAssetAndNet(t)

	p := New()
	p.Inputs = []*Input{{PrevVout: 0, Sequence: 0xffffffff}}
	p.Outputs = []*Output{blindedOutput(t, asset, 1000), feeOutput(t, asset, 250)}

	tx := p.Extract()
	require.Len(t, tx.Inputs, 1)
	require.Len(t, tx.Outputs, 2)
	require.True(t, tx.Outputs[1].IsFee())
}
