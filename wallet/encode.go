package wallet

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/lwkgo/lwk/descriptor"
	"github.com/lwkgo/lwk/elements"
)

// StateVersion is the current persisted-state envelope version. EncodeState
// writes:
//
//	version:u8 | flags:u8 | network:length-prefixed utf8
//	            | wallet_descriptor:length-prefixed utf8
//	            | tip:{height:u32, hash:32}
//	            | txs:{count:varint, entries:[...]}
//	            | last_used:{ext, int}, each a presence byte then u32 if present
//	            | spent_outpoints:{count:varint, entries:[outpoint], sorted}
//
// A network name precedes the descriptor, and each last-used index carries
// a presence byte, so the layout is not the bare
// descriptor/tip/txs/u32/u32/outpoints sequence. New fields append after existing ones with a version bump; decoders
// must accept older versions unchanged.
const StateVersion uint8 = 1

// EncodeState serializes a WalletState into the persisted envelope.
func EncodeState(s *WalletState) []byte {
	var buf bytes.Buffer
	buf.WriteByte(StateVersion)
	buf.WriteByte(0) // flags, reserved

	writeLPString(&buf, string(s.Network))
	writeLPString(&buf, s.Descriptor.URLEncoded())

	var heightBuf [4]byte
	binary.BigEndian.PutUint32(heightBuf[:], s.Tip.Height)
	buf.Write(heightBuf[:])
	buf.Write(s.Tip.BlockHash[:])

	writeUvarint(&buf, uint64(len(s.txOrder)))
	for _, id := range s.txOrder {
		encodeTx(&buf, s.txs[id])
	}

	writeOptionalU32Value(&buf, s.LastUsedExternal)
	writeOptionalU32Value(&buf, s.LastUsedInternal)

	spentList := make([]elements.OutPoint, 0, len(s.spent))
	for op := range s.spent {
		spentList = append(spentList, op)
	}
	sort.Slice(spentList, func(i, j int) bool {
		if c := bytes.Compare(spentList[i].Txid[:], spentList[j].Txid[:]); c != 0 {
			return c < 0
		}
		return spentList[i].Vout < spentList[j].Vout
	})
	writeUvarint(&buf, uint64(len(spentList)))
	for _, op := range spentList {
		buf.Write(op.Txid[:])
		var voutBuf [4]byte
		binary.BigEndian.PutUint32(voutBuf[:], op.Vout)
		buf.Write(voutBuf[:])
	}

	return buf.Bytes()
}

// DecodeState deserializes a persisted-state envelope. The caller-supplied
// descriptor is used as-is (the encoded descriptor text is read but not
// compared with it; the live *descriptor.Descriptor value, with its parsed
// keys, is what callers get back, matching how the wallet is always
// constructed with its descriptor already parsed).
func DecodeState(data []byte, desc *descriptor.Descriptor) (*WalletState, error) {
	r := bytes.NewReader(data)

	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version == 0 {
		return nil, fmt.Errorf("wallet: version 0 legacy envelopes are not supported for decode")
	}
	if _, err := r.ReadByte(); err != nil { // flags
		return nil, err
	}

	netStr, err := readLPString(r)
	if err != nil {
		return nil, err
	}
	if _, err := readLPString(r); err != nil { // descriptor text, informational only
		return nil, err
	}

	s := NewState(elements.Network(netStr), desc)

	var heightBuf [4]byte
	if _, err := io.ReadFull(r, heightBuf[:]); err != nil {
		return nil, err
	}
	s.Tip.Height = binary.BigEndian.Uint32(heightBuf[:])
	if _, err := io.ReadFull(r, s.Tip.BlockHash[:]); err != nil {
		return nil, err
	}

	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < count; i++ {
		tx, err := decodeTx(r)
		if err != nil {
			return nil, err
		}
		s.txOrder = append(s.txOrder, tx.Txid)
		s.txs[tx.Txid] = tx
	}

	s.LastUsedExternal, err = readOptionalU32Value(r)
	if err != nil {
		return nil, err
	}
	s.LastUsedInternal, err = readOptionalU32Value(r)
	if err != nil {
		return nil, err
	}

	spentCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < spentCount; i++ {
		var op elements.OutPoint
		if _, err := io.ReadFull(r, op.Txid[:]); err != nil {
			return nil, err
		}
		var voutBuf [4]byte
		if _, err := io.ReadFull(r, voutBuf[:]); err != nil {
			return nil, err
		}
		op.Vout = binary.BigEndian.Uint32(voutBuf[:])
		s.spent[op] = true
	}

	return s, nil
}

func writeLPString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readLPString(r *bytes.Reader) (string, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeOptionalU32Value(buf *bytes.Buffer, v *uint32) {
	if v == nil {
		buf.WriteByte(0)
		return
	}
	buf.WriteByte(1)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], *v)
	buf.Write(b[:])
}

func readOptionalU32Value(r *bytes.Reader) (*uint32, error) {
	present, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	v := binary.BigEndian.Uint32(b[:])
	return &v, nil
}

func encodeTx(buf *bytes.Buffer, tx *WalletTx) {
	buf.Write(tx.Txid[:])
	writeOptionalU32Value(buf, tx.Height)
	var feeBuf [8]byte
	binary.BigEndian.PutUint64(feeBuf[:], tx.Fee)
	buf.Write(feeBuf[:])
	writeLPString(buf, tx.Type)
	writeOptionalU32Value(buf, tx.Timestamp)

	writeUvarint(buf, uint64(len(tx.Balance)))
	for _, asset := range tx.Balance.Sorted() {
		buf.Write(asset[:])
		var v [8]byte
		binary.BigEndian.PutUint64(v[:], uint64(tx.Balance[asset]))
		buf.Write(v[:])
	}

	writeOptionalOuts(buf, tx.Inputs)
	writeOptionalOuts(buf, tx.Outputs)
}

func decodeTx(r *bytes.Reader) (*WalletTx, error) {
	tx := &WalletTx{Balance: make(elements.SignedBalance)}
	if _, err := io.ReadFull(r, tx.Txid[:]); err != nil {
		return nil, err
	}
	var err error
	tx.Height, err = readOptionalU32Value(r)
	if err != nil {
		return nil, err
	}
	var feeBuf [8]byte
	if _, err := io.ReadFull(r, feeBuf[:]); err != nil {
		return nil, err
	}
	tx.Fee = binary.BigEndian.Uint64(feeBuf[:])
	tx.Type, err = readLPString(r)
	if err != nil {
		return nil, err
	}
	tx.Timestamp, err = readOptionalU32Value(r)
	if err != nil {
		return nil, err
	}

	balCount, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < balCount; i++ {
		var asset elements.AssetId
		if _, err := io.ReadFull(r, asset[:]); err != nil {
			return nil, err
		}
		var v [8]byte
		if _, err := io.ReadFull(r, v[:]); err != nil {
			return nil, err
		}
		tx.Balance[asset] = int64(binary.BigEndian.Uint64(v[:]))
	}

	tx.Inputs, err = readOptionalOuts(r)
	if err != nil {
		return nil, err
	}
	tx.Outputs, err = readOptionalOuts(r)
	if err != nil {
		return nil, err
	}

	return tx, nil
}

func writeOptionalOuts(buf *bytes.Buffer, outs []*WalletTxOut) {
	writeUvarint(buf, uint64(len(outs)))
	for _, o := range outs {
		if o == nil {
			buf.WriteByte(0)
			continue
		}
		buf.WriteByte(1)
		buf.Write(o.OutPoint.Txid[:])
		var voutBuf [4]byte
		binary.BigEndian.PutUint32(voutBuf[:], o.OutPoint.Vout)
		buf.Write(voutBuf[:])
		writeUvarint(buf, uint64(len(o.ScriptPubkey)))
		buf.Write(o.ScriptPubkey)
		writeOptionalU32Value(buf, o.Height)
		buf.Write(o.Unblinded.Asset[:])
		var valBuf [8]byte
		binary.BigEndian.PutUint64(valBuf[:], o.Unblinded.Value)
		buf.Write(valBuf[:])
		buf.Write(o.Unblinded.AssetBF[:])
		buf.Write(o.Unblinded.ValueBF[:])
		var idxBuf [4]byte
		binary.BigEndian.PutUint32(idxBuf[:], o.WildcardIndex)
		buf.Write(idxBuf[:])
		buf.WriteByte(byte(o.Chain))
		if o.IsSpent {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeLPString(buf, o.Address)
	}
}

func readOptionalOuts(r *bytes.Reader) ([]*WalletTxOut, error) {
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	outs := make([]*WalletTxOut, count)
	for i := uint64(0); i < count; i++ {
		present, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if present == 0 {
			continue
		}
		o := &WalletTxOut{}
		if _, err := io.ReadFull(r, o.OutPoint.Txid[:]); err != nil {
			return nil, err
		}
		var voutBuf [4]byte
		if _, err := io.ReadFull(r, voutBuf[:]); err != nil {
			return nil, err
		}
		o.OutPoint.Vout = binary.BigEndian.Uint32(voutBuf[:])

		scriptLen, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		o.ScriptPubkey = make([]byte, scriptLen)
		if _, err := io.ReadFull(r, o.ScriptPubkey); err != nil {
			return nil, err
		}

		o.Height, err = readOptionalU32Value(r)
		if err != nil {
			return nil, err
		}

		if _, err := io.ReadFull(r, o.Unblinded.Asset[:]); err != nil {
			return nil, err
		}
		var valBuf [8]byte
		if _, err := io.ReadFull(r, valBuf[:]); err != nil {
			return nil, err
		}
		o.Unblinded.Value = binary.BigEndian.Uint64(valBuf[:])
		if _, err := io.ReadFull(r, o.Unblinded.AssetBF[:]); err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, o.Unblinded.ValueBF[:]); err != nil {
			return nil, err
		}

		var idxBuf [4]byte
		if _, err := io.ReadFull(r, idxBuf[:]); err != nil {
			return nil, err
		}
		o.WildcardIndex = binary.BigEndian.Uint32(idxBuf[:])

		chainByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		o.Chain = descriptor.Chain(chainByte)

		spentByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		o.IsSpent = spentByte == 1

		o.Address, err = readLPString(r)
		if err != nil {
			return nil, err
		}

		outs[i] = o
	}
	return outs, nil
}
