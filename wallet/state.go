package wallet

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"sort"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

// WalletState is the in-memory aggregate described in spec §3: tip,
// ordered transaction map, spent-outpoint set, last-used indices,
// descriptor, and network. It owns its transactions and outputs
// exclusively (spec §9): each WalletTx refers to outputs by OutPoint,
// never by in-memory reference, keeping the aggregate serializable
// without graph walks.
type WalletState struct {
	Tip Tip

	// txOrder records insertion order (newest-last internally; spec's
	// "insertion order defines recency" with Transactions() reversing
	// it to newest-first on read).
	txOrder []elements.Txid
	txs     map[elements.Txid]*WalletTx

	spent map[elements.OutPoint]bool

	LastUsedExternal *uint32
	LastUsedInternal *uint32

	Descriptor *descriptor.Descriptor
	Network    elements.Network
}

// NewState returns an empty WalletState for the given descriptor/network.
func NewState(net elements.Network, desc *descriptor.Descriptor) *WalletState {
	return &WalletState{
		txs:        make(map[elements.Txid]*WalletTx),
		spent:      make(map[elements.OutPoint]bool),
		Descriptor: desc,
		Network:    net,
	}
}

// StatusHash computes the compact fingerprint spec §4.D defines: a hash
// over (tip_height, tip_block_hash, sorted(txid list with heights),
// last_used_external, last_used_internal). Implementations must agree
// bit-for-bit across versions when the version tag is unchanged, so the
// serialization here is a fixed, explicit byte layout rather than
// anything dependent on map iteration order or encoding/json.
func (s *WalletState) StatusHash() []byte {
	h := sha256.New()

	var heightBuf [4]byte
	binary.BigEndian.PutUint32(heightBuf[:], s.Tip.Height)
	h.Write(heightBuf[:])
	h.Write(s.Tip.BlockHash[:])

	ids := make([]elements.Txid, 0, len(s.txs))
	for id := range s.txs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })

	var countBuf [8]byte
	binary.BigEndian.PutUint64(countBuf[:], uint64(len(ids)))
	h.Write(countBuf[:])
	for _, id := range ids {
		h.Write(id[:])
		var hBuf [4]byte
		if height := s.txs[id].Height; height != nil {
			binary.BigEndian.PutUint32(hBuf[:], *height+1) // +1 so 0 means "unconfirmed"
		}
		h.Write(hBuf[:])
	}

	writeOptionalU32(h, s.LastUsedExternal)
	writeOptionalU32(h, s.LastUsedInternal)

	return h.Sum(nil)
}

func writeOptionalU32(h interface{ Write([]byte) (int, error) }, v *uint32) {
	var buf [5]byte
	if v != nil {
		buf[0] = 1
		binary.BigEndian.PutUint32(buf[1:], *v)
	}
	h.Write(buf[:])
}

// ApplyUpdate validates the update's status hash against the wallet's
// current status and, if it matches (or the update is legacy v0),
// monotonically applies it: advances the tip, inserts/updates
// transactions preserving newest-first order, marks outpoints spent, and
// advances last-used indices (never decreases), per spec §4.D.
func (s *WalletState) ApplyUpdate(u *Update) error {
	if u.Version != 0 {
		current := s.StatusHash()
		if !bytes.Equal(u.StatusHash, current) {
			return &StaleUpdateError{Expected: current, Got: u.StatusHash}
		}
	}

	if u.NewTip != nil && u.NewTip.Height >= s.Tip.Height {
		s.Tip = *u.NewTip
	}

	for _, tx := range u.NewTxs {
		if _, exists := s.txs[tx.Txid]; !exists {
			s.txOrder = append(s.txOrder, tx.Txid)
		}
		s.txs[tx.Txid] = tx
	}

	for _, op := range u.NewSpent {
		s.spent[op] = true
		s.markSpent(op)
	}

	s.LastUsedExternal = maxOptional(s.LastUsedExternal, u.LastUsedExternal)
	s.LastUsedInternal = maxOptional(s.LastUsedInternal, u.LastUsedInternal)

	return nil
}

func (s *WalletState) markSpent(op elements.OutPoint) {
	for _, tx := range s.txs {
		for _, out := range tx.Outputs {
			if out != nil && out.OutPoint == op {
				out.IsSpent = true
			}
		}
	}
}

func maxOptional(cur, incoming *uint32) *uint32 {
	if incoming == nil {
		return cur
	}
	if cur == nil || *incoming > *cur {
		v := *incoming
		return &v
	}
	return cur
}

// Balance sums unspent owned outputs' unblinded values per asset, per
// spec §4.D.
func (s *WalletState) Balance() elements.Balance {
	bal := make(elements.Balance)
	for _, out := range s.Txos() {
		if !out.IsSpent {
			bal.Add(out.Unblinded.Asset, out.Unblinded.Value)
		}
	}
	return bal
}

// Transactions returns all wallet transactions newest-first.
func (s *WalletState) Transactions() []*WalletTx {
	out := make([]*WalletTx, 0, len(s.txOrder))
	for i := len(s.txOrder) - 1; i >= 0; i-- {
		out = append(out, s.txs[s.txOrder[i]])
	}
	return out
}

// Txos returns every wallet output ever observed, spent or not.
func (s *WalletState) Txos() []*WalletTxOut {
	var out []*WalletTxOut
	seen := make(map[elements.OutPoint]bool)
	for _, tx := range s.Transactions() {
		for _, o := range tx.Outputs {
			if o == nil || seen[o.OutPoint] {
				continue
			}
			seen[o.OutPoint] = true
			out = append(out, o)
		}
	}
	return out
}

// Utxos returns unspent wallet outputs only.
func (s *WalletState) Utxos() []*WalletTxOut {
	var out []*WalletTxOut
	for _, o := range s.Txos() {
		if !o.IsSpent {
			out = append(out, o)
		}
	}
	return out
}

// Tx looks up a wallet transaction by id.
func (s *WalletState) Tx(id elements.Txid) (*WalletTx, bool) {
	tx, ok := s.txs[id]
	return tx, ok
}
