// Package walletlog centralizes the btclog sub-logger wiring server/ uses to
// give wallet/ its logger, following the teacher's lnd-derived sub-logger pattern (see
// lightweight-wallet/chain/mempool/chain_bridge.go and wallet/btcwallet/wallet.go,
// both of which hold a package-level btclog.Logger).
package walletlog

import "github.com/btcsuite/btclog"

// Disabled is a logger that drops everything; package-level `log` vars
// default to it until a caller installs a real backend via UseLogger.
var Disabled = btclog.Disabled

// NewSubLogger creates a tagged logger backed by the given backend,
// mirroring how lnd-family projects (including the teacher) derive one
// logger per subsystem from a shared backend.
func NewSubLogger(backend *btclog.Backend, tag string) btclog.Logger {
	if backend == nil {
		return Disabled
	}
	return backend.Logger(tag)
}
