package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/lightningnetwork/lnd/clock"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

// log is this package's sub-logger; UseLogger installs a real backend,
// following the teacher's wallet/btcwallet package-level logger pattern.
var log = btclog.Disabled

// UseLogger installs l as this package's logger.
func UseLogger(l btclog.Logger) { log = l }

// Store is the persistence capability the wallet consumes, per spec §4.E.
// Concrete implementations (store/ package) are safe for concurrent
// readers and serialize writers.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// BlockchainBackend is the scanning/broadcast capability the wallet
// consumes, per spec §6. Scanners must ensure the returned Update carries
// the status hash of the snapshot they consumed.
type BlockchainBackend interface {
	FullScan(ctx context.Context, snapshot *WalletState) (*Update, error)
	FullScanToIndex(ctx context.Context, snapshot *WalletState, minIndex uint32) (*Update, error)
	Broadcast(ctx context.Context, tx *elements.Tx) (elements.Txid, error)
}

const stateStoreKey = "wallet/state/v1"

// Wallet is the mutually-exclusive-guarded engine wrapping a WalletState,
// following the single-threaded-per-wallet model of spec §5: the teacher's
// wallet/btcwallet.WalletAnchor informs the started/mu lifecycle shape,
// generalized here to guard WalletState rather than a btcwallet handle.
type Wallet struct {
	mu    sync.RWMutex
	state *WalletState

	persister Store
	clk       clock.Clock
}

// New loads persisted state if any, otherwise starts from empty, per spec
// §4.D.
func New(ctx context.Context, net elements.Network, desc *descriptor.Descriptor, persister Store) (*Wallet, error) {
	w := &Wallet{
		state:     NewState(net, desc),
		persister: persister,
		clk:       clock.NewDefaultClock(),
	}

	if persister != nil {
		raw, ok, err := persister.Get(ctx, stateStoreKey)
		if err != nil {
			return nil, err
		}
		if ok {
			state, err := DecodeState(raw, desc)
			if err != nil {
				return nil, err
			}
			w.state = state
		}
	}

	return w, nil
}

// AddressResult is the return value of Address, per spec §4.D.
type AddressResult struct {
	Address *descriptor.Address
	Index   uint32
}

// Address returns the external-chain address at index, or (if index is
// nil) the next index after the wallet's external last-used index, per
// spec §4.D.
func (w *Wallet) Address(ctx context.Context, index *uint32, net elements.NetworkParams) (*AddressResult, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	idx := uint32(0)
	if index != nil {
		idx = *index
	} else if w.state.LastUsedExternal != nil {
		idx = *w.state.LastUsedExternal + 1
	}

	addr, err := w.state.Descriptor.Address(idx, net)
	if err != nil {
		return nil, err
	}
	return &AddressResult{Address: addr, Index: idx}, nil
}

// ApplyUpdate validates and applies u to the wallet's state, persisting on
// success, per spec §4.D/§5 ("only the first succeeds").
func (w *Wallet) ApplyUpdate(ctx context.Context, u *Update) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.state.ApplyUpdate(u); err != nil {
		return err
	}

	if w.persister != nil {
		encoded := EncodeState(w.state)
		if err := w.persister.Put(ctx, stateStoreKey, encoded); err != nil {
			return err
		}
	}

	log.Debugf("applied update: tip=%d txs=%d", w.state.Tip.Height, len(w.state.txOrder))
	return nil
}

// Balance returns the sum of unspent owned outputs' unblinded values per
// asset, per spec §4.D.
func (w *Wallet) Balance() elements.Balance {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Balance()
}

// Transactions returns all wallet transactions newest-first.
func (w *Wallet) Transactions() []*WalletTx {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Transactions()
}

// Utxos returns unspent wallet outputs.
func (w *Wallet) Utxos() []*WalletTxOut {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Utxos()
}

// Txos returns every wallet output ever observed.
func (w *Wallet) Txos() []*WalletTxOut {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state.Txos()
}

// Snapshot returns a read view of the current state for use by a scanner
// (the scanner must not mutate it).
func (w *Wallet) Snapshot() *WalletState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Scan runs one full_scan against backend and applies the resulting
// Update, if any.
func (w *Wallet) Scan(ctx context.Context, backend BlockchainBackend) error {
	snapshot := w.Snapshot()
	update, err := backend.FullScan(ctx, snapshot)
	if err != nil {
		return err
	}
	if update == nil {
		return nil
	}
	return w.ApplyUpdate(ctx, update)
}

// SetClock overrides the wallet's clock.Clock, for tests that need
// WaitForTx's polling to advance on a fake timeline instead of wall time.
func (w *Wallet) SetClock(clk clock.Clock) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.clk = clk
}

// WaitForTx polls, via repeated Scan calls, until txid appears in the
// wallet's transaction set or ctx is cancelled. Not part of the engine's
// core contract (spec §4.D) but specified so its blocking/timeout
// semantics are deterministic; grounded on the teacher's
// wallet/btcwallet.go txMonitor polling loop. Ticks are sourced from the
// wallet's injectable clock.Clock rather than time.NewTicker directly, so
// tests can drive the loop with clock.NewTestClock instead of sleeping.
func (w *Wallet) WaitForTx(ctx context.Context, txid elements.Txid, backend BlockchainBackend, pollInterval time.Duration) error {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	for {
		w.mu.RLock()
		_, ok := w.state.Tx(txid)
		clk := w.clk
		w.mu.RUnlock()
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clk.TickAfter(pollInterval):
			if err := w.Scan(ctx, backend); err != nil {
				return err
			}
		}
	}
}
