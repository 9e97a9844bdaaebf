package esplora

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
	"github.com/lwkgo/lwk/unblind"
	"github.com/lwkgo/lwk/wallet"
)

// defaultGapLimit is the number of consecutive unused addresses scanned
// past the last used one before a chain is considered exhausted, matching
// the convention original_source/wollet uses for its own scan loop.
const defaultGapLimit = 20

// ChainBridge implements wallet.BlockchainBackend against an esplora-style
// HTTP API, per spec.md §6. It scans both wildcard chains up to a gap
// limit, unblinding any confidential output it can open with the
// descriptor's own blinding key, and leaves outputs it cannot open
// unblinded (not wallet-owned).
type ChainBridge struct {
	client   *Client
	net      elements.NetworkParams
	gapLimit uint32
}

// NewChainBridge returns a ChainBridge querying client for net, scanning
// gapLimit consecutive unused addresses before stopping (0 selects
// defaultGapLimit).
func NewChainBridge(client *Client, net elements.NetworkParams, gapLimit uint32) *ChainBridge {
	if gapLimit == 0 {
		gapLimit = defaultGapLimit
	}
	return &ChainBridge{client: client, net: net, gapLimit: gapLimit}
}

// scannedAddress is one derived address within the scanned window, keyed
// by script so a transaction's outputs can be matched back to a
// (chain, index) regardless of which address query first surfaced it.
type scannedAddress struct {
	chain descriptor.Chain
	index uint32
	addr  *descriptor.Address
}

// FullScan scans both chains from index 0, per spec §6.
func (b *ChainBridge) FullScan(ctx context.Context, snapshot *wallet.WalletState) (*wallet.Update, error) {
	return b.scan(ctx, snapshot, 0)
}

// FullScanToIndex scans both chains, ensuring at least minIndex addresses
// are covered on each even if that extends past the gap limit — used
// after deriving a fresh receive address so it is covered by the next
// scan before any funds could have landed on it.
func (b *ChainBridge) FullScanToIndex(ctx context.Context, snapshot *wallet.WalletState, minIndex uint32) (*wallet.Update, error) {
	return b.scan(ctx, snapshot, minIndex)
}

// scan fans out the external-chain scan, internal-chain scan, and the two
// tip RPCs concurrently via errgroup, since none of the four depend on one
// another's result; each chain scan gets its own byScript/txs map so the
// goroutines never share mutable state, merged back once the group joins.
func (b *ChainBridge) scan(ctx context.Context, snapshot *wallet.WalletState, minIndex uint32) (*wallet.Update, error) {
	desc := snapshot.Descriptor

	extByScript := make(map[string]scannedAddress)
	extTxs := make(map[string]Transaction)
	intByScript := make(map[string]scannedAddress)
	intTxs := make(map[string]Transaction)
	var lastUsedExternal, lastUsedInternal *uint32
	var height uint32
	var hashHex string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lastUsed, err := b.scanChain(gctx, desc, descriptor.ChainExternal, minIndex, extByScript, extTxs)
		lastUsedExternal = lastUsed
		return err
	})
	g.Go(func() error {
		lastUsed, err := b.scanChain(gctx, desc, descriptor.ChainInternal, minIndex, intByScript, intTxs)
		lastUsedInternal = lastUsed
		return err
	})
	g.Go(func() error {
		h, err := b.client.Tip(gctx)
		if err != nil {
			return fmt.Errorf("esplora: fetch tip: %w", err)
		}
		height = h
		return nil
	})
	g.Go(func() error {
		hh, err := b.client.TipHash(gctx)
		if err != nil {
			return fmt.Errorf("esplora: fetch tip hash: %w", err)
		}
		hashHex = hh
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byScript := make(map[string]scannedAddress, len(extByScript)+len(intByScript))
	for k, v := range extByScript {
		byScript[k] = v
	}
	for k, v := range intByScript {
		byScript[k] = v
	}
	txs := make(map[string]Transaction, len(extTxs)+len(intTxs))
	for k, v := range extTxs {
		txs[k] = v
	}
	for k, v := range intTxs {
		txs[k] = v
	}

	tip, err := parseTip(height, hashHex)
	if err != nil {
		return nil, err
	}

	walletTxs, spent, err := b.buildWalletTxs(txs, byScript, desc)
	if err != nil {
		return nil, err
	}

	return &wallet.Update{
		Version:          1,
		StatusHash:       snapshot.StatusHash(),
		NewTip:           &tip,
		NewTxs:           walletTxs,
		NewSpent:         spent,
		LastUsedExternal: lastUsedExternal,
		LastUsedInternal: lastUsedInternal,
	}, nil
}

// scanChain derives addresses on chain from index 0 until gapLimit
// consecutive ones (past minIndex) have no on-chain history, registering
// every derived address's script in byScript and returning the highest
// used index found (nil if none).
func (b *ChainBridge) scanChain(ctx context.Context, desc *descriptor.Descriptor, chain descriptor.Chain, minIndex uint32, byScript map[string]scannedAddress, txs map[string]Transaction) (*uint32, error) {
	var lastUsed *uint32
	consecutiveEmpty := uint32(0)

	for idx := uint32(0); ; idx++ {
		var addr *descriptor.Address
		var err error
		if chain == descriptor.ChainExternal {
			addr, err = desc.Address(idx, b.net)
		} else {
			addr, err = desc.Change(idx, b.net)
		}
		if err != nil {
			return nil, fmt.Errorf("esplora: derive chain %d index %d: %w", chain, idx, err)
		}
		byScript[hex.EncodeToString(addr.Script)] = scannedAddress{chain: chain, index: idx, addr: addr}

		history, err := b.client.AddressTxs(ctx, addr.Unconfidential)
		if err != nil {
			return nil, fmt.Errorf("esplora: query address history: %w", err)
		}

		if len(history) == 0 {
			consecutiveEmpty++
			if idx >= minIndex && consecutiveEmpty >= b.gapLimit {
				return lastUsed, nil
			}
			continue
		}

		for _, tx := range history {
			txs[tx.TxID] = tx
		}
		consecutiveEmpty = 0
		used := idx
		lastUsed = &used
	}
}

func (b *ChainBridge) buildWalletTxs(txs map[string]Transaction, byScript map[string]scannedAddress, desc *descriptor.Descriptor) ([]*wallet.WalletTx, []elements.OutPoint, error) {
	var walletTxs []*wallet.WalletTx
	var spent []elements.OutPoint

	for _, tx := range txs {
		wtx, txSpent, err := b.buildWalletTx(tx, byScript, desc)
		if err != nil {
			return nil, nil, err
		}
		walletTxs = append(walletTxs, wtx)
		spent = append(spent, txSpent...)
	}
	return walletTxs, spent, nil
}

func (b *ChainBridge) buildWalletTx(tx Transaction, byScript map[string]scannedAddress, desc *descriptor.Descriptor) (*wallet.WalletTx, []elements.OutPoint, error) {
	txid, err := elements.TxidFromDisplayHex(tx.TxID)
	if err != nil {
		return nil, nil, fmt.Errorf("esplora: parse txid %q: %w", tx.TxID, err)
	}

	elemTx := &elements.Tx{Version: tx.Version, Locktime: tx.Locktime}
	balance := make(elements.SignedBalance)
	hasIssuance, hasReissuance, hasBurn := false, false, false
	var spent []elements.OutPoint
	var walletInputs, walletOutputs []*wallet.WalletTxOut

	for _, vin := range tx.Vin {
		prevTxid, err := elements.TxidFromDisplayHex(vin.TxID)
		if err != nil {
			return nil, nil, fmt.Errorf("esplora: parse vin txid %q: %w", vin.TxID, err)
		}
		outPoint := elements.OutPoint{Txid: prevTxid, Vout: vin.Vout}
		elemTx.Inputs = append(elemTx.Inputs, elements.TxIn{PrevOut: outPoint, Sequence: vin.Sequence})

		if vin.Prevout == nil {
			continue
		}
		scriptHex := vin.Prevout.ScriptPubKey
		sa, ok := byScript[scriptHex]
		if !ok {
			continue
		}
		spent = append(spent, outPoint)

		script, err := hex.DecodeString(scriptHex)
		if err != nil {
			return nil, nil, fmt.Errorf("esplora: decode script %q: %w", scriptHex, err)
		}
		txOut, err := voutToTxOut(*vin.Prevout, script)
		if err != nil {
			return nil, nil, err
		}
		secrets, blindErr := rewindForScript(desc, script, txOut)
		if blindErr == nil {
			balance[secrets.Asset] -= int64(secrets.Value)
			walletInputs = append(walletInputs, &wallet.WalletTxOut{
				OutPoint: outPoint, ScriptPubkey: script, Unblinded: secrets,
				WildcardIndex: sa.index, Chain: sa.chain, IsSpent: true, Address: sa.addr.Unconfidential,
			})
		}
	}

	for i, vout := range tx.Vout {
		script, err := hex.DecodeString(vout.ScriptPubKey)
		if err != nil {
			return nil, nil, fmt.Errorf("esplora: decode script %q: %w", vout.ScriptPubKey, err)
		}
		if len(script) == 1 && script[0] == 0x6a {
			hasBurn = true
		}
		txOut, err := voutToTxOut(vout, script)
		if err != nil {
			return nil, nil, err
		}
		elemTx.Outputs = append(elemTx.Outputs, txOut)

		sa, ok := byScript[vout.ScriptPubKey]
		if !ok {
			continue
		}
		secrets, blindErr := rewindForScript(desc, script, txOut)
		if blindErr != nil {
			continue
		}
		balance[secrets.Asset] += int64(secrets.Value)
		var height *uint32
		if tx.Status.Confirmed {
			h := tx.Status.BlockHeight
			height = &h
		}
		walletOutputs = append(walletOutputs, &wallet.WalletTxOut{
			OutPoint:      elements.OutPoint{Txid: txid, Vout: uint32(i)},
			ScriptPubkey:  script,
			Height:        height,
			Unblinded:     secrets,
			WildcardIndex: sa.index,
			Chain:         sa.chain,
			Address:       sa.addr.Unconfidential,
		})
	}

	for id, v := range balance {
		if v == 0 {
			delete(balance, id)
		}
	}

	var height *uint32
	var timestamp *uint32
	if tx.Status.Confirmed {
		h := tx.Status.BlockHeight
		height = &h
		ts := uint32(tx.Status.BlockTime)
		timestamp = &ts
	}

	return &wallet.WalletTx{
		Txid:      txid,
		Tx:        elemTx,
		Height:    height,
		Balance:   balance,
		Fee:       tx.Fee,
		Type:      wallet.ClassifyType(balance, hasIssuance, hasReissuance, hasBurn),
		Timestamp: timestamp,
		Inputs:    walletInputs,
		Outputs:   walletOutputs,
	}, spent, nil
}

// rewindForScript unblinds txOut using desc's blinding key for script,
// per spec §4.C — the same capability unblind.Rewind exposes to the
// builder's own analysis pass.
func rewindForScript(desc *descriptor.Descriptor, script []byte, txOut elements.TxOut) (elements.TxOutSecrets, error) {
	blindKey, err := desc.BlindingKeyForScript(script)
	if err != nil {
		return elements.TxOutSecrets{}, err
	}
	return unblind.Rewind(txOut, blindKey)
}

func voutToTxOut(v Vout, script []byte) (elements.TxOut, error) {
	asset, err := voutAsset(v)
	if err != nil {
		return elements.TxOut{}, err
	}
	value, err := voutValue(v)
	if err != nil {
		return elements.TxOut{}, err
	}
	nonce, err := decodeOptionalHex(v.Nonce)
	if err != nil {
		return elements.TxOut{}, err
	}
	rangeProof, err := decodeOptionalHex(v.RangeProof)
	if err != nil {
		return elements.TxOut{}, err
	}
	surjProof, err := decodeOptionalHex(v.SurjectionProof)
	if err != nil {
		return elements.TxOut{}, err
	}
	return elements.TxOut{
		Asset: asset, Value: value, Script: script,
		Nonce: nonce, RangeProof: rangeProof, SurjectionProof: surjProof,
	}, nil
}

func voutAsset(v Vout) (elements.AssetCommitment, error) {
	switch {
	case v.Asset != "":
		id, err := elements.AssetIdFromDisplayHex(v.Asset)
		if err != nil {
			return elements.AssetCommitment{}, fmt.Errorf("esplora: parse asset %q: %w", v.Asset, err)
		}
		return elements.ExplicitAsset(id), nil
	case v.AssetCommitment != "":
		b, err := hex.DecodeString(v.AssetCommitment)
		if err != nil || len(b) != 33 {
			return elements.AssetCommitment{}, fmt.Errorf("esplora: bad asset commitment %q", v.AssetCommitment)
		}
		var arr [33]byte
		copy(arr[:], b)
		return elements.ConfidentialAsset(arr), nil
	default:
		return elements.NullAsset(), nil
	}
}

func voutValue(v Vout) (elements.ValueCommitment, error) {
	switch {
	case v.Value != nil:
		return elements.ExplicitValue(*v.Value), nil
	case v.ValueCommitment != "":
		b, err := hex.DecodeString(v.ValueCommitment)
		if err != nil || len(b) != 33 {
			return elements.ValueCommitment{}, fmt.Errorf("esplora: bad value commitment %q", v.ValueCommitment)
		}
		var arr [33]byte
		copy(arr[:], b)
		return elements.ConfidentialValueCommitment(arr), nil
	default:
		return elements.NullValue(), nil
	}
}

func decodeOptionalHex(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}

func parseTip(height uint32, hashHex string) (wallet.Tip, error) {
	hashHex = strings.TrimSpace(hashHex)
	b, err := hex.DecodeString(hashHex)
	if err != nil || len(b) != 32 {
		return wallet.Tip{}, fmt.Errorf("esplora: bad tip hash %q", hashHex)
	}
	var out [32]byte
	copy(out[:], b)
	return wallet.Tip{Height: height, BlockHash: out}, nil
}

// Broadcast submits tx, per spec §6's broadcast capability.
func (b *ChainBridge) Broadcast(ctx context.Context, tx *elements.Tx) (elements.Txid, error) {
	rawHex := hex.EncodeToString(tx.Serialize())
	respTxid, err := b.client.Broadcast(ctx, rawHex)
	if err != nil {
		return elements.Txid{}, err
	}
	return elements.TxidFromDisplayHex(strings.TrimSpace(respTxid))
}
