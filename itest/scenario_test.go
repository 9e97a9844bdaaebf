// Package itest exercises the toolkit end-to-end, wiring builder/, pset/,
// wallet/, jade/, swsigner/, and store/ together the way a real caller
// would rather than unit-testing any one package in isolation.
package itest

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"testing"

	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // matches Bitcoin/Elements HASH160

	"github.com/lwkgo/lwk/builder"
	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/jade"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/signer"
	"github.com/lwkgo/lwk/store"
	"github.com/lwkgo/lwk/swsigner"
	"github.com/lwkgo/lwk/wallet"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func singleSigDescriptor(t *testing.T) *descriptor.Descriptor {
	t.Helper()
	d, err := descriptor.Parse(
		"ct(slip77(9aa0dc2b7e04ddf4efd6ceb44307ee1749c5620a06048531da30ac8739b3e12c)," +
			"elwpkh([aabbccdd/84'/1'/0']tpubD6NzVbkrYhZ4WZaiWHz59q5EQ61bd6dUYfFwpH7pBmgyeYBgvrhzTwNjj5WpwW9hkp5PhSXhcn2WH3DKiANx7Chbrgu9iA8ooQcGNfGWNVY/<0;1>/*))",
	)
	require.NoError(t, err)
	return d
}

// fundedWallet starts a wallet against desc holding a single confirmed
// utxo of asset/value at external index 0, applied through an initial
// (legacy, version-0) Update so later Updates can be built against its
// real status hash.
func fundedWallet(t *testing.T, ctx context.Context, desc *descriptor.Descriptor, net elements.NetworkParams, asset elements.AssetId, value uint64) *wallet.Wallet {
	t.Helper()
	w, err := wallet.New(ctx, net.Network, desc, nil)
	require.NoError(t, err)

	addr, err := desc.Address(0, net)
	require.NoError(t, err)

	txid := elements.Txid{0xaa}
	height := uint32(100)
	tx := &wallet.WalletTx{
		Txid:   txid,
		Height: &height,
		Type:   wallet.TypeIncoming,
		Outputs: []*wallet.WalletTxOut{{
			OutPoint:      elements.OutPoint{Txid: txid, Vout: 0},
			ScriptPubkey:  addr.Script,
			Height:        &height,
			Unblinded:     elements.TxOutSecrets{Asset: asset, Value: value, AssetBF: [32]byte{0x01}, ValueBF: [32]byte{0x02}},
			WildcardIndex: 0,
			Chain:         descriptor.ChainExternal,
		}},
	}
	require.NoError(t, w.ApplyUpdate(ctx, &wallet.Update{Version: 0, NewTxs: []*wallet.WalletTx{tx}}))
	return w
}

// S1: fund, send, and observe a change output, with the wallet's own
// transaction history classifying the result as outgoing.
func TestScenarioFundSendChange(t *testing.T) {
	ctx := context.Background()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	desc := singleSigDescriptor(t)
	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)

	w := fundedWallet(t, ctx, desc, net, policyAsset, 100_000)

	destAddr, err := desc.Address(5, net)
	require.NoError(t, err)

	p, err := builder.New().AddLbtcRecipient(destAddr.Confidential, 10_000).Finish(w)
	require.NoError(t, err)
	require.Len(t, p.Inputs, 1)
	require.Len(t, p.Outputs, 3) // recipient + change + fee

	details, err := pset.Details(p, desc, net)
	require.NoError(t, err)
	require.Equal(t, -int64(10_000+details.Balance.Fee), details.Balance.Balances[policyAsset])

	sig, err := swsigner.New(testMnemonic, false)
	require.NoError(t, err)
	inserted, err := sig.Sign(p)
	require.NoError(t, err)
	require.Equal(t, uint32(1), inserted)
	require.NoError(t, pset.Finalize(p))

	tx := p.Extract()
	txid := tx.Txid()

	spentIn := p.Inputs[0]
	spent := elements.OutPoint{Txid: spentIn.PrevTxid, Vout: spentIn.PrevVout}

	height := uint32(101)
	walletTx := &wallet.WalletTx{
		Txid:    txid,
		Tx:      tx,
		Height:  &height,
		Balance: details.Balance.Balances,
		Fee:     details.Balance.Fee,
		Type:    wallet.ClassifyType(details.Balance.Balances, false, false, false),
	}

	snap := w.Snapshot()
	update := &wallet.Update{
		Version:    1,
		StatusHash: snap.StatusHash(),
		NewTxs:     []*wallet.WalletTx{walletTx},
		NewSpent:   []elements.OutPoint{spent},
	}
	require.NoError(t, w.ApplyUpdate(ctx, update))

	txs := w.Transactions()
	require.Len(t, txs, 2)
	require.Equal(t, txid, txs[0].Txid)
	require.Equal(t, wallet.TypeOutgoing, txs[0].Type)
}

// S2: issue a new asset and its reissuance token, reissue more of it, then
// burn some, asserting the issued asset/token ids are deterministic
// functions of the first-selected input and that the burn classifies
// correctly.
func TestScenarioIssueReissueBurn(t *testing.T) {
	ctx := context.Background()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	desc := singleSigDescriptor(t)
	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)

	w := fundedWallet(t, ctx, desc, net, policyAsset, 1_000_000)

	issuanceOutpoint := elements.OutPoint{Txid: elements.Txid{0xaa}, Vout: 0}
	wantEntropy := elements.GenerateAssetEntropy(issuanceOutpoint, elements.ContractHash{})
	wantAssetID := elements.AssetIdFromEntropy(wantEntropy)
	wantTokenID := elements.TokenIdFromEntropy(wantEntropy)

	p, err := builder.New().IssueAsset(1_000, "", 1, "", nil).Finish(w)
	require.NoError(t, err)

	var issuanceInput *pset.Input
	for _, in := range p.Inputs {
		if in.Issuance != nil && !in.Issuance.IsNull() {
			issuanceInput = in
		}
	}
	require.NotNil(t, issuanceInput)
	gotEntropy := issuanceInput.Issuance.AssetEntropy
	require.Equal(t, wantEntropy, gotEntropy)
	require.Equal(t, wantAssetID, elements.AssetIdFromEntropy(gotEntropy))
	require.Equal(t, wantTokenID, elements.TokenIdFromEntropy(gotEntropy))

	issueDetails, err := pset.Details(p, desc, net)
	require.NoError(t, err)
	changeValue := 1_000_000 - issueDetails.Balance.Fee

	sig, err := swsigner.New(testMnemonic, false)
	require.NoError(t, err)
	_, err = sig.Sign(p)
	require.NoError(t, err)
	require.NoError(t, pset.Finalize(p))

	issueTx := p.Extract()
	issueHeight := uint32(101)

	assetWalletOut := &wallet.WalletTxOut{
		OutPoint:      elements.OutPoint{Txid: issueTx.Txid(), Vout: 0},
		Height:        &issueHeight,
		Unblinded:     elements.TxOutSecrets{Asset: wantAssetID, Value: 1_000, AssetBF: [32]byte{0x03}, ValueBF: [32]byte{0x04}},
		WildcardIndex: 1,
		Chain:         descriptor.ChainExternal,
	}
	tokenWalletOut := &wallet.WalletTxOut{
		OutPoint:      elements.OutPoint{Txid: issueTx.Txid(), Vout: 1},
		Height:        &issueHeight,
		Unblinded:     elements.TxOutSecrets{Asset: wantTokenID, Value: 1, AssetBF: [32]byte{0x05}, ValueBF: [32]byte{0x06}},
		WildcardIndex: 2,
		Chain:         descriptor.ChainExternal,
	}
	// changeWalletOut carries back the policy-asset change the issuance
	// spent its funding utxo into, so the reissuance below still has fee
	// funds to select.
	changeWalletOut := &wallet.WalletTxOut{
		OutPoint:      elements.OutPoint{Txid: issueTx.Txid(), Vout: 2},
		Height:        &issueHeight,
		Unblinded:     elements.TxOutSecrets{Asset: policyAsset, Value: changeValue, AssetBF: [32]byte{0x07}, ValueBF: [32]byte{0x08}},
		WildcardIndex: 3,
		Chain:         descriptor.ChainInternal,
	}
	issueWalletTx := &wallet.WalletTx{
		Txid:    issueTx.Txid(),
		Tx:      issueTx,
		Height:  &issueHeight,
		Type:    wallet.ClassifyType(nil, true, false, false),
		Outputs: []*wallet.WalletTxOut{assetWalletOut, tokenWalletOut, changeWalletOut},
	}
	require.Equal(t, wallet.TypeIssuance, issueWalletTx.Type)

	snap := w.Snapshot()
	require.NoError(t, w.ApplyUpdate(ctx, &wallet.Update{
		Version:    1,
		StatusHash: snap.StatusHash(),
		NewTxs:     []*wallet.WalletTx{issueWalletTx},
		NewSpent:   []elements.OutPoint{issuanceOutpoint},
	}))

	reissueP, err := builder.New().ReissueAsset(wantAssetID, 500, issuanceOutpoint).Finish(w)
	require.NoError(t, err)
	var reissuanceInput *pset.Input
	for _, in := range reissueP.Inputs {
		if in.Issuance != nil && in.Issuance.IsReissuance() {
			reissuanceInput = in
		}
	}
	require.NotNil(t, reissuanceInput)
	require.Equal(t, wantAssetID, elements.AssetIdFromEntropy(reissuanceInput.Issuance.AssetEntropy))

	burnP, err := builder.New().AddBurn(200, wantAssetID).Finish(w)
	require.NoError(t, err)
	var burnScript []byte
	for _, out := range burnP.Outputs {
		if len(out.Script) == 1 && out.Script[0] == 0x6a {
			burnScript = out.Script
		}
	}
	require.Equal(t, []byte{0x6a}, burnScript)

	burnType := wallet.ClassifyType(elements.SignedBalance{wantAssetID: -200}, false, false, true)
	require.Equal(t, wallet.TypeBurn, burnType)
}

// S3: a 2-of-2 multisig PSET requires both signers' partial signatures
// before Finalize can move them into the witness stack, and fails with
// only one.
func TestScenarioMultisigCombineFinalize(t *testing.T) {
	signerA, err := swsigner.New(testMnemonic, false)
	require.NoError(t, err)
	signerB, _, err := swsigner.Random(false)
	require.NoError(t, err)

	originA, err := signer.KeyoriginXpub(signerA, signer.Bip84)
	require.NoError(t, err)
	originB, err := signer.KeyoriginXpub(signerB, signer.Bip84)
	require.NoError(t, err)

	descText := "ct(slip77(9aa0dc2b7e04ddf4efd6ceb44307ee1749c5620a06048531da30ac8739b3e12c)," +
		"elwsh(multi(2," + originA + "/<0;1>/*," + originB + "/<0;1>/*)))"
	desc, err := descriptor.Parse(descText)
	require.NoError(t, err)

	ctx := context.Background()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)

	w := fundedWallet(t, ctx, desc, net, policyAsset, 50_000)
	destAddr, err := desc.Address(7, net)
	require.NoError(t, err)

	base, err := builder.New().AddLbtcRecipient(destAddr.Confidential, 5_000).Finish(w)
	require.NoError(t, err)

	pA := clonePSET(base)
	pB := clonePSET(base)

	insA, err := signerA.Sign(pA)
	require.NoError(t, err)
	require.Equal(t, uint32(1), insA)
	insB, err := signerB.Sign(pB)
	require.NoError(t, err)
	require.Equal(t, uint32(1), insB)

	// Finalize fails with only one signer's signature: the witness
	// script demands a 2-of-2 threshold.
	onlyA := clonePSET(base)
	_, err = signerA.Sign(onlyA)
	require.NoError(t, err)
	require.Error(t, pset.Finalize(onlyA))

	combined, err := pset.Combine(pA, pB)
	require.NoError(t, err)
	require.NoError(t, pset.Finalize(combined))
	require.NotEmpty(t, combined.Inputs[0].FinalScriptWitness)
}

// clonePSET deep-copies p so each signer mutates an independent value,
// mirroring how a coordinator hands the same unsigned PSET to multiple
// parties before merging their signatures back with pset.Combine.
func clonePSET(p *pset.PSET) *pset.PSET {
	out := &pset.PSET{Version: p.Version, Locktime: p.Locktime}
	for _, in := range p.Inputs {
		c := *in
		c.PartialSigs = make(map[string][]byte, len(in.PartialSigs))
		for k, v := range in.PartialSigs {
			c.PartialSigs[k] = v
		}
		out.Inputs = append(out.Inputs, &c)
	}
	for _, o := range p.Outputs {
		c := *o
		out.Outputs = append(out.Outputs, &c)
	}
	return out
}

// S4: applying an Update computed against a stale status hash is rejected
// rather than silently accepted.
func TestScenarioStaleUpdateRejected(t *testing.T) {
	ctx := context.Background()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	desc := singleSigDescriptor(t)
	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)

	w := fundedWallet(t, ctx, desc, net, policyAsset, 20_000)
	staleHash := w.Snapshot().StatusHash()

	// Advance the wallet's real state so staleHash no longer matches.
	require.NoError(t, w.ApplyUpdate(ctx, &wallet.Update{
		Version: 0,
		NewTip:  &wallet.Tip{Height: 200},
	}))

	err = w.ApplyUpdate(ctx, &wallet.Update{Version: 1, StatusHash: staleHash})
	require.Error(t, err)
	var staleErr *wallet.StaleUpdateError
	require.ErrorAs(t, err, &staleErr)
}

// S5: a hardware signer whose anti-exfil nonce is tampered with in
// transit is rejected by the host-side commit-then-reveal check instead
// of having its signature silently accepted.
func TestScenarioHwwAntiExfilBitFlip(t *testing.T) {
	sw, err := swsigner.New(testMnemonic, false)
	require.NoError(t, err)
	emu := jade.NewEmulator(sw, jade.NetworkLocaltest, true)
	conn := &tamperingGetSignatureConn{Emulator: emu}

	c := jade.New(conn, jade.NetworkLocaltest)
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Unlock(context.Background()))

	myFp, err := signer.Fingerprint(c)
	require.NoError(t, err)
	var fpU32 uint32
	for _, b := range myFp {
		fpU32 = fpU32<<8 | uint32(b)
	}

	path := []uint32{84 + 1<<31, 1 + 1<<31, 0 + 1<<31, 0, 0}
	xpub, err := sw.DeriveXpub(path)
	require.NoError(t, err)
	pub, err := xpub.ECPubKey()
	require.NoError(t, err)
	pubBytes := pub.SerializeCompressed()

	lbtc := elements.AssetId{0x01}
	fee := uint64(500)
	p := pset.New()
	p.Inputs = []*pset.Input{{
		PrevVout:    0,
		WitnessUtxo: &elements.TxOut{Asset: elements.ExplicitAsset(lbtc), Value: elements.ExplicitValue(100_000), Script: wpkhScript(pubBytes)},
		BIP32Derivations: []*psbt.Bip32Derivation{
			{PubKey: pubBytes, MasterKeyFingerprint: fpU32, Bip32Path: path},
		},
		Sequence: 0xffffffff,
	}}
	p.Outputs = []*pset.Output{
		{Script: wpkhScript(pubBytes), ExplicitAsset: &lbtc, ExplicitValue: uintPtr(99_500)},
		{ExplicitAsset: &lbtc, ExplicitValue: &fee},
	}

	_, err = c.Sign(p)
	require.Error(t, err)
	var jerr *jade.Error
	require.ErrorAs(t, err, &jerr)
	require.Equal(t, jade.KindAntiExfilMismatch, jerr.Kind)
}

func hash160(b []byte) []byte {
	sha := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sha[:])
	return h.Sum(nil)
}

func wpkhScript(pubkey []byte) []byte {
	h := hash160(pubkey)
	out := make([]byte, 0, 22)
	out = append(out, 0x00, 0x14)
	return append(out, h...)
}

func uintPtr(v uint64) *uint64 { return &v }

// tamperingGetSignatureConn wraps an *jade.Emulator, flipping a bit in
// get_signature's revealed anti-exfil nonce before the host reads it,
// simulating an on-the-wire bit flip (or a device trying to swap in a
// different nonce after the fact than the one it committed to).
type tamperingGetSignatureConn struct {
	*jade.Emulator
	pendingGetSignature bool
}

func (c *tamperingGetSignatureConn) Write(p []byte) (int, error) {
	var req jade.Request
	if err := cbor.Unmarshal(p, &req); err == nil {
		c.pendingGetSignature = req.Method == "get_signature"
	}
	return c.Emulator.Write(p)
}

func (c *tamperingGetSignatureConn) Read(p []byte) (int, error) {
	n, err := c.Emulator.Read(p)
	if err != nil || !c.pendingGetSignature {
		return n, err
	}
	c.pendingGetSignature = false

	var resp jade.Response
	if uerr := cbor.Unmarshal(p[:n], &resp); uerr != nil || resp.Result == nil {
		return n, err
	}
	var res jade.GetSignatureResult
	if uerr := cbor.Unmarshal(resp.Result, &res); uerr != nil || len(res.AENonce) == 0 {
		return n, err
	}
	res.AENonce[0] ^= 0xff

	raw, merr := cbor.Marshal(res)
	if merr != nil {
		return n, err
	}
	resp.Result = raw
	tampered, merr := cbor.Marshal(resp)
	if merr != nil {
		return n, err
	}
	return copy(p, tampered), nil
}

// S6: encrypting identical plaintext state through a deterministic-nonce
// store produces byte-identical ciphertext on repeated writes.
func TestScenarioDeterministicEncryptedUpdate(t *testing.T) {
	ctx := context.Background()
	net := elements.Networks[elements.NetworkLocaltestLiquid]
	desc := singleSigDescriptor(t)
	policyAsset, err := net.PolicyAsset()
	require.NoError(t, err)

	key, err := store.DeriveKey(desc.Text)
	require.NoError(t, err)

	addr, err := desc.Address(0, net)
	require.NoError(t, err)
	txid := elements.Txid{0xbb}
	height := uint32(55)
	tx := &wallet.WalletTx{
		Txid:   txid,
		Height: &height,
		Outputs: []*wallet.WalletTxOut{{
			OutPoint:     elements.OutPoint{Txid: txid, Vout: 0},
			ScriptPubkey: addr.Script,
			Unblinded:    elements.TxOutSecrets{Asset: policyAsset, Value: 1_000},
		}},
	}

	backing1 := store.NewMemStore()
	enc1 := store.NewEncryptedStore(backing1, key, true, rand.Reader)
	w1, err := wallet.New(ctx, net.Network, desc, enc1)
	require.NoError(t, err)
	require.NoError(t, w1.ApplyUpdate(ctx, &wallet.Update{Version: 0, NewTxs: []*wallet.WalletTx{tx}}))

	first, ok, err := backing1.Get(ctx, "wallet/state/v1")
	require.NoError(t, err)
	require.True(t, ok)

	// A second, independent wallet applies the exact same update and must
	// serialize to the same plaintext, which the deterministic nonce
	// turns into identical ciphertext.
	backing2 := store.NewMemStore()
	enc2 := store.NewEncryptedStore(backing2, key, true, rand.Reader)
	w2, err := wallet.New(ctx, net.Network, desc, enc2)
	require.NoError(t, err)
	require.NoError(t, w2.ApplyUpdate(ctx, &wallet.Update{Version: 0, NewTxs: []*wallet.WalletTx{tx}}))

	second, ok, err := backing2.Get(ctx, "wallet/state/v1")
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, first, second)
}
