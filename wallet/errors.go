package wallet

import (
	"errors"
	"fmt"
)

// Sentinel errors per package, following the teacher's
// wallet/btcwallet/errors.go convention.
var (
	ErrScriptNotMine = errors.New("wallet: script is not ours")
	ErrMissingUtxo   = errors.New("wallet: outpoint not found among wallet outputs")
)

// StaleUpdateError reports that an Update was computed against a wallet
// status that is no longer current, per spec §4.D/§7.
type StaleUpdateError struct {
	Expected []byte
	Got      []byte
}

func (e *StaleUpdateError) Error() string {
	return fmt.Sprintf("wallet: stale update: expected status %x, got %x", e.Expected, e.Got)
}
