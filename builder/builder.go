package builder

import (
	"crypto/rand"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/psbt"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/pset"
	"github.com/lwkgo/lwk/wallet"
)

// Finish performs coin selection, fee estimation, issuance/reissuance
// output construction, and blinding, and returns the resulting PSET, per
// spec §4.G. It does not sign or broadcast.
func (b *Builder) Finish(w *wallet.Wallet) (*pset.PSET, error) {
	return b.finish(w)
}

// FinishForAmp0 behaves like Finish but additionally returns the
// per-output blinding (ECDH nonce) public keys an AMP0-coordinating
// server needs in order to verify the transaction's blinding before
// countersigning, per spec §4.G.
func (b *Builder) FinishForAmp0(w *wallet.Wallet) (*pset.PSET, [][]byte, error) {
	p, err := b.finish(w)
	if err != nil {
		return nil, nil, err
	}
	nonces := make([][]byte, len(p.Outputs))
	for i, o := range p.Outputs {
		nonces[i] = o.EcdhPubkey
	}
	return p, nonces, nil
}

// resolvedOutput is a recipient/burn request after address resolution
// (script + blinding key) against the wallet's network.
type resolvedOutput struct {
	script      []byte
	blindingKey *btcec.PublicKey
	asset       elements.AssetId
	satoshi     uint64
}

func (b *Builder) finish(w *wallet.Wallet) (*pset.PSET, error) {
	if b.err != nil {
		return nil, b.err
	}

	snap := w.Snapshot()
	desc := snap.Descriptor
	net := elements.Networks[snap.Network]
	policyAsset, err := net.PolicyAsset()
	if err != nil {
		return nil, err
	}

	resolved, err := b.resolveOutputs(net, policyAsset)
	if err != nil {
		return nil, err
	}

	targets := make(map[elements.AssetId]uint64)
	for _, o := range resolved {
		targets[o.asset] += o.satoshi
	}

	var reissuanceTokenID elements.AssetId
	if b.reissuance != nil {
		reissuanceTokenID = elements.TokenIdFromEntropy(reissuanceEntropyFor(b.reissuance))
	}

	fundingTargets := make(map[elements.AssetId]uint64, len(targets)+1)
	for a, v := range targets {
		fundingTargets[a] = v
	}
	if b.reissuance != nil {
		fundingTargets[reissuanceTokenID] += 1
	}

	pool := b.candidatePool(desc, snap)

	fixedOutputCount := len(resolved) + issuanceOutputsCount(b)

	selected, fee, err := selectWithFee(pool, fundingTargets, policyAsset, desc, b.feeRateSatPerVb, fixedOutputCount)
	if err != nil {
		return nil, err
	}

	p := pset.New()

	inputVBFs := make([][32]byte, 0, len(selected))
	for _, c := range selected {
		inputVBFs = append(inputVBFs, c.unblinded.ValueBF)
	}

	issuanceInputIdx := -1
	var issuanceEntropy [32]byte
	var issuedAssetID, issuedTokenID elements.AssetId
	if b.issuance != nil && len(selected) > 0 {
		issuanceInputIdx = 0
		issuanceEntropy = elements.GenerateAssetEntropy(selected[0].outPoint, contractHashOrZero(b.issuance.contractHash))
		issuedAssetID = elements.AssetIdFromEntropy(issuanceEntropy)
		issuedTokenID = elements.TokenIdFromEntropy(issuanceEntropy)
	}

	reissuanceInputIdx := -1
	if b.reissuance != nil {
		for i, c := range selected {
			if c.unblinded.Asset == reissuanceTokenID {
				reissuanceInputIdx = i
				break
			}
		}
		if reissuanceInputIdx == -1 {
			return nil, errMissingReissuanceToken(b.reissuance.assetID)
		}
	}

	for i, c := range selected {
		in, err := buildInput(desc, c)
		if err != nil {
			return nil, err
		}

		switch i {
		case issuanceInputIdx:
			in.Issuance = &elements.Issuance{
				AssetEntropy: issuanceEntropy,
				AssetAmount:  elements.ExplicitValue(b.issuance.satoshiAsset),
				TokenAmount:  elements.NullValue(),
			}
			if b.issuance.satoshiToken > 0 {
				in.Issuance.TokenAmount = elements.ExplicitValue(b.issuance.satoshiToken)
			}
		case reissuanceInputIdx:
			in.Issuance = &elements.Issuance{
				AssetEntropy:       reissuanceEntropyFor(b.reissuance),
				AssetBlindingNonce: c.unblinded.AssetBF,
				AssetAmount:        elements.ExplicitValue(b.reissuance.satoshi),
				TokenAmount:        elements.NullValue(),
			}
		}

		p.Inputs = append(p.Inputs, in)
	}

	changeAmounts := changeAmountsByAsset(selected, targets, policyAsset, fee)
	if b.drainLbtc {
		if extra, ok := changeAmounts[policyAsset]; ok {
			fee += extra
			delete(changeAmounts, policyAsset)
		}
	}
	totalNonFeeOutputs := len(resolved) + issuanceOutputsCount(b) + len(changeAmounts)

	vbfs, err := balanceValueBlindingFactors(totalNonFeeOutputs, inputVBFs)
	if err != nil {
		return nil, err
	}
	vbfIdx := 0
	nextVBF := func() [32]byte {
		v := vbfs[vbfIdx]
		vbfIdx++
		return v
	}

	for _, o := range resolved {
		out := &pset.Output{Script: o.script}
		if err := blindOutput(out, o.asset, o.satoshi, o.blindingKey, nextVBF()); err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, out)
	}

	if b.issuance != nil {
		assetOut, err := issuanceOutput(desc, snap, net, b.issuance.addressAsset, issuedAssetID, b.issuance.satoshiAsset, nextVBF())
		if err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, assetOut)

		if b.issuance.satoshiToken > 0 {
			tokenOut, err := issuanceOutput(desc, snap, net, b.issuance.addressToken, issuedTokenID, b.issuance.satoshiToken, nextVBF())
			if err != nil {
				return nil, err
			}
			p.Outputs = append(p.Outputs, tokenOut)
		}
	}

	if b.reissuance != nil {
		reissueOut, err := issuanceOutput(desc, snap, net, "", b.reissuance.assetID, b.reissuance.satoshi, nextVBF())
		if err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, reissueOut)
	}

	for _, asset := range sortedAssets(changeAmounts) {
		out, err := changeOutput(desc, snap, net, asset, changeAmounts[asset], nextVBF())
		if err != nil {
			return nil, err
		}
		p.Outputs = append(p.Outputs, out)
	}

	p.Outputs = append(p.Outputs, &pset.Output{ExplicitAsset: &policyAsset, ExplicitValue: &fee})

	return p, nil
}

func (b *Builder) resolveOutputs(net elements.NetworkParams, policyAsset elements.AssetId) ([]resolvedOutput, error) {
	var resolved []resolvedOutput
	for _, r := range b.recipients {
		if r.isBurn {
			key, err := randomBlindingKeypair()
			if err != nil {
				return nil, err
			}
			resolved = append(resolved, resolvedOutput{script: []byte{0x6a}, blindingKey: key, asset: r.asset, satoshi: r.satoshi})
			continue
		}

		asset := r.asset
		var zero elements.AssetId
		if asset == zero {
			asset = policyAsset
		}

		addr, err := descriptor.ParseAddress(r.addressText, net)
		if err != nil {
			return nil, errInvalidAddress("%v", err)
		}
		blindKey := addr.BlindingKey
		if blindKey == nil {
			k, err := randomBlindingKeypair()
			if err != nil {
				return nil, err
			}
			blindKey = k
		}
		resolved = append(resolved, resolvedOutput{script: addr.Script, blindingKey: blindKey, asset: asset, satoshi: r.satoshi})
	}
	return resolved, nil
}

func (b *Builder) candidatePool(desc *descriptor.Descriptor, snap *wallet.WalletState) []candidate {
	pool := make([]candidate, 0, len(snap.Utxos())+len(b.external))
	for _, u := range snap.Utxos() {
		pool = append(pool, candidate{
			outPoint:      u.OutPoint,
			txOut:         elements.TxOut{Script: u.ScriptPubkey},
			unblinded:     u.Unblinded,
			scriptKind:    scriptKindFor(desc.Kind),
			confirmed:     u.Height != nil,
			isWalletOwned: true,
			chain:         u.Chain,
			index:         u.WildcardIndex,
		})
	}
	pool = append(pool, externalCandidates(b.external)...)
	return pool
}

// selectWithFee iterates coin selection and fee estimation to a
// fixed point: the fee depends on the final input/output count, which
// depends on how many coins selection needs, which depends on the fee.
func selectWithFee(pool []candidate, fundingTargets map[elements.AssetId]uint64, policyAsset elements.AssetId, desc *descriptor.Descriptor, feeRate float64, fixedOutputCount int) ([]candidate, uint64, error) {
	var selected []candidate
	var fee uint64

	for round := 0; round < 8; round++ {
		want := make(map[elements.AssetId]uint64, len(fundingTargets))
		for a, v := range fundingTargets {
			want[a] = v
		}
		want[policyAsset] += fee

		sel, err := selectCoins(pool, want)
		if err != nil {
			return nil, 0, err
		}
		selected = sel

		changeCount := len(changeAmountsByAsset(selected, fundingTargets, policyAsset, fee))
		vsize := estimateVsize(selected, fixedOutputCount+changeCount, desc.Threshold, len(desc.Keys))
		newFee := feeForVsize(vsize, feeRate)
		if newFee == fee {
			break
		}
		fee = newFee
	}

	return selected, fee, nil
}

func buildInput(desc *descriptor.Descriptor, c candidate) (*pset.Input, error) {
	in := &pset.Input{
		PrevTxid: c.outPoint.Txid,
		PrevVout: c.outPoint.Vout,
		Sequence: 0xfffffffd, // opts into RBF/relative-locktime signaling, matching the teacher's default
	}

	witnessUtxo, err := reconstructWitnessUtxo(desc, c)
	if err != nil {
		return nil, err
	}
	in.WitnessUtxo = witnessUtxo

	switch {
	case c.isWalletOwned:
		derivations, err := bip32DerivationsFor(desc, c.chain, c.index)
		if err != nil {
			return nil, err
		}
		in.BIP32Derivations = derivations
		if desc.Threshold > 0 {
			witnessScript, err := desc.WitnessScript(c.chain, c.index)
			if err != nil {
				return nil, err
			}
			in.WitnessScript = witnessScript
		}
	case len(c.externalDerivation) > 0:
		in.BIP32Derivations = []*psbt.Bip32Derivation{{
			MasterKeyFingerprint: fingerprintUint32(c.externalFingerprint),
			Bip32Path:            c.externalDerivation,
		}}
	}

	return in, nil
}

func randomBlindingKeypair() (*btcec.PublicKey, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return nil, err
	}
	_, pub := btcec.PrivKeyFromBytes(b[:])
	return pub, nil
}

func contractHashOrZero(c *elements.ContractHash) elements.ContractHash {
	if c == nil {
		return elements.ContractHash{}
	}
	return *c
}

func reissuanceEntropyFor(r *reissuanceRequest) [32]byte {
	return elements.GenerateAssetEntropy(r.issuancePrior, elements.ContractHash{})
}

func bip32DerivationsFor(desc *descriptor.Descriptor, chain descriptor.Chain, index uint32) ([]*psbt.Bip32Derivation, error) {
	out := make([]*psbt.Bip32Derivation, 0, len(desc.Keys))
	for i, ke := range desc.Keys {
		path, err := desc.DerivationPath(i, chain, index)
		if err != nil {
			return nil, err
		}
		pub, err := desc.DeriveChildPubkey(i, chain, index)
		if err != nil {
			return nil, err
		}
		out = append(out, &psbt.Bip32Derivation{
			PubKey:               pub.SerializeCompressed(),
			MasterKeyFingerprint: fingerprintUint32(ke.Fingerprint),
			Bip32Path:            path,
		})
	}
	return out, nil
}

func fingerprintUint32(fp [4]byte) uint32 {
	return uint32(fp[0])<<24 | uint32(fp[1])<<16 | uint32(fp[2])<<8 | uint32(fp[3])
}

// reconstructWitnessUtxo builds a confidential TxOut standing in for a
// selected coin's prevout from the wallet's persisted secrets. Real PSET
// construction copies the actual previous-transaction bytes fetched from
// the chain; this toolkit's wallet only persists the unblinded opening
// (spec §4.D), so builder/ re-blinds the persisted asset and value with
// the persisted value-blinding factor under the script's blinding key,
// rather than requiring a redundant chain fetch. blindOutput draws a fresh
// asset-blinding factor, ephemeral key and proof nonces, so the result is
// self-consistent but is not the original prevout and differs between
// calls. For an external utxo the caller already supplied the real TxOut,
// which is used as-is. Documented in DESIGN.md.
func reconstructWitnessUtxo(desc *descriptor.Descriptor, c candidate) (*elements.TxOut, error) {
	if c.external {
		txOut := c.txOut
		return &txOut, nil
	}

	blindKey, err := desc.BlindingKeyForScript(c.txOut.Script)
	if err != nil {
		return nil, err
	}
	if blindKey == nil {
		return &elements.TxOut{
			Asset: elements.ExplicitAsset(c.unblinded.Asset),
			Value: elements.ExplicitValue(c.unblinded.Value),
		}, nil
	}

	out := &pset.Output{}
	if err := blindOutput(out, c.unblinded.Asset, c.unblinded.Value, blindKey.PubKey(), c.unblinded.ValueBF); err != nil {
		return nil, err
	}
	return &elements.TxOut{
		Asset:           elements.ConfidentialAsset(out.AssetCommitment),
		Value:           elements.ConfidentialValueCommitment(out.ValueCommitment),
		Nonce:           out.EcdhPubkey,
		RangeProof:      out.ValueRangeproof,
		SurjectionProof: out.AssetSurjectionProof,
	}, nil
}

func issuanceOutput(desc *descriptor.Descriptor, snap *wallet.WalletState, net elements.NetworkParams, addressText string, asset elements.AssetId, satoshi uint64, vbf [32]byte) (*pset.Output, error) {
	script, blindingKey, derivations, err := resolveOrChangeAddress(desc, snap, net, addressText)
	if err != nil {
		return nil, err
	}

	out := &pset.Output{Script: script, BIP32Derivations: derivations}
	if err := blindOutput(out, asset, satoshi, blindingKey, vbf); err != nil {
		return nil, err
	}
	return out, nil
}

func changeOutput(desc *descriptor.Descriptor, snap *wallet.WalletState, net elements.NetworkParams, asset elements.AssetId, satoshi uint64, vbf [32]byte) (*pset.Output, error) {
	script, blindingKey, derivations, err := resolveOrChangeAddress(desc, snap, net, "")
	if err != nil {
		return nil, err
	}
	out := &pset.Output{Script: script, BIP32Derivations: derivations}
	if err := blindOutput(out, asset, satoshi, blindingKey, vbf); err != nil {
		return nil, err
	}
	return out, nil
}

// resolveOrChangeAddress resolves addressText against net, or (when empty)
// derives the next internal-chain wallet address, returning its BIP32
// derivations alongside the script/blinding key so pset.Details can
// recognize the output as wallet-owned the same way it recognizes wallet
// inputs (buildInput's bip32DerivationsFor), per spec §4.F's balance
// computation needing both sides of a self-change output.
func resolveOrChangeAddress(desc *descriptor.Descriptor, snap *wallet.WalletState, net elements.NetworkParams, addressText string) ([]byte, *btcec.PublicKey, []*psbt.Bip32Derivation, error) {
	var script []byte
	var blindingKey *btcec.PublicKey
	var derivations []*psbt.Bip32Derivation

	if addressText != "" {
		addr, err := descriptor.ParseAddress(addressText, net)
		if err != nil {
			return nil, nil, nil, errInvalidAddress("%v", err)
		}
		script, blindingKey = addr.Script, addr.BlindingKey
	} else {
		idx := uint32(0)
		if snap.LastUsedInternal != nil {
			idx = *snap.LastUsedInternal + 1
		}
		addr, err := desc.Change(idx, net)
		if err != nil {
			return nil, nil, nil, err
		}
		script, blindingKey = addr.Script, addr.BlindingKey
		derivations, err = bip32DerivationsFor(desc, descriptor.ChainInternal, idx)
		if err != nil {
			return nil, nil, nil, err
		}
	}

	if blindingKey == nil {
		k, err := randomBlindingKeypair()
		if err != nil {
			return nil, nil, nil, err
		}
		blindingKey = k
	}
	return script, blindingKey, derivations, nil
}

// changeAmountsByAsset computes, per asset, the leftover between selected
// input value and the requested target (recipients, reissuance token
// consumption, and fee), skipping dust. When drain_lbtc_wallet is set,
// Finish folds the policy-asset entry this returns into the fee instead
// of emitting a change output for it, so no value is lost either way.
func changeAmountsByAsset(selected []candidate, targets map[elements.AssetId]uint64, policyAsset elements.AssetId, fee uint64) map[elements.AssetId]uint64 {
	want := make(map[elements.AssetId]uint64, len(targets))
	for a, v := range targets {
		want[a] = v
	}
	want[policyAsset] += fee

	sums := make(map[elements.AssetId]uint64)
	for _, c := range selected {
		sums[c.unblinded.Asset] += c.unblinded.Value
	}

	out := make(map[elements.AssetId]uint64)
	for asset, sum := range sums {
		leftover := sum - want[asset]
		if leftover >= dustSatoshi {
			out[asset] = leftover
		}
	}
	return out
}

func issuanceOutputsCount(b *Builder) int {
	n := 0
	if b.issuance != nil {
		n++
		if b.issuance.satoshiToken > 0 {
			n++
		}
	}
	if b.reissuance != nil {
		n++
	}
	return n
}

func sortedAssets(m map[elements.AssetId]uint64) []elements.AssetId {
	ids := make([]elements.AssetId, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j].Less(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
	return ids
}
