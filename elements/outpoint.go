package elements

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// Txid is a 32-byte transaction id, internal (non-reversed) byte order
// matching chainhash.Hash; display hex is byte-reversed.
type Txid [32]byte

func (t Txid) String() string {
	b := make([]byte, 32)
	copy(b, t[:])
	reverse32(b)
	return hex.EncodeToString(b)
}

// TxidFromDisplayHex parses a byte-reversed display-hex txid.
func TxidFromDisplayHex(s string) (Txid, error) {
	var t Txid
	b, err := hex.DecodeString(s)
	if err != nil {
		return t, err
	}
	if len(b) != 32 {
		return t, ErrInvalidLength
	}
	reverse32(b)
	copy(t[:], b)
	return t, nil
}

// OutPoint identifies a transaction output by its containing transaction
// and output index.
type OutPoint struct {
	Txid Txid
	Vout uint32
}

func (o OutPoint) String() string {
	return fmt.Sprintf("%s:%d", o.Txid, o.Vout)
}

// Less gives a deterministic lexicographic order over OutPoint, used to
// break coin-selection ties per spec (same confirmation status -> lowest
// outpoint first).
func (o OutPoint) Less(other OutPoint) bool {
	if c := bytes.Compare(o.Txid[:], other.Txid[:]); c != 0 {
		return c < 0
	}
	return o.Vout < other.Vout
}
