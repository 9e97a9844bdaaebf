package elements

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Serialize encodes tx into the flat byte layout SigHash's helpers
// already define field-by-field: version, varint-counted inputs (each an
// outpoint, issuance and sequence), varint-counted outputs, locktime. This is the
// "raw_txn" jade/'s sign_liquid_tx call sends the device, a simplified
// stand-in for Elements' real witness-bearing wire format (no
// scriptSigs/witness stack fields exist yet at this stage, since signing
// is what produces them) — sufficient for a signer that only needs to
// recompute the same sighash this toolkit's own SigHash already computes
// over these fields.
func (tx *Tx) Serialize() []byte {
	var buf bytes.Buffer
	writeUint32LE(&buf, tx.Version)

	writeVarInt(&buf, uint64(len(tx.Inputs)))
	for _, in := range tx.Inputs {
		writeOutPoint(&buf, in.PrevOut)
		writeIssuance(&buf, in.Issuance)
		writeUint32LE(&buf, in.Sequence)
	}

	writeVarInt(&buf, uint64(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		writeTxOut(&buf, out)
	}

	writeUint32LE(&buf, tx.Locktime)
	return buf.Bytes()
}

// Txid returns tx's double-SHA256 id in internal (non-reversed) byte
// order, matching chainhash.Hash's convention (display form reverses
// it, per Txid.String). Like Serialize, it hashes the simplified
// witness-free encoding this toolkit uses throughout, not Elements'
// real wire format.
func (tx *Tx) Txid() Txid {
	return Txid(chainhash.DoubleHashH(tx.Serialize()))
}

// DeserializeTx reverses Serialize. It exists for a counterparty that only
// ever sees the raw txn bytes over the wire (jade/'s Emulator, standing in
// for a real device) and needs to recompute the same SigHash the host
// already did, rather than trusting a re-sent copy of the original *Tx.
func DeserializeTx(b []byte) (*Tx, error) {
	r := bytes.NewReader(b)
	tx := &Tx{}

	version, err := readUint32LE(r)
	if err != nil {
		return nil, fmt.Errorf("elements: decode version: %w", err)
	}
	tx.Version = version

	numInputs, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("elements: decode input count: %w", err)
	}
	tx.Inputs = make([]TxIn, numInputs)
	for i := range tx.Inputs {
		prevOut, err := readOutPoint(r)
		if err != nil {
			return nil, fmt.Errorf("elements: decode input %d outpoint: %w", i, err)
		}
		issuance, err := readIssuance(r)
		if err != nil {
			return nil, fmt.Errorf("elements: decode input %d issuance: %w", i, err)
		}
		sequence, err := readUint32LE(r)
		if err != nil {
			return nil, fmt.Errorf("elements: decode input %d sequence: %w", i, err)
		}
		tx.Inputs[i] = TxIn{PrevOut: prevOut, Issuance: issuance, Sequence: sequence}
	}

	numOutputs, err := readVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("elements: decode output count: %w", err)
	}
	tx.Outputs = make([]TxOut, numOutputs)
	for i := range tx.Outputs {
		out, err := readTxOut(r)
		if err != nil {
			return nil, fmt.Errorf("elements: decode output %d: %w", i, err)
		}
		tx.Outputs[i] = out
	}

	locktime, err := readUint32LE(r)
	if err != nil {
		return nil, fmt.Errorf("elements: decode locktime: %w", err)
	}
	tx.Locktime = locktime

	return tx, nil
}

func readUint32LE(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readVarInt(r io.Reader) (uint64, error) {
	var first [1]byte
	if _, err := io.ReadFull(r, first[:]); err != nil {
		return 0, err
	}
	switch first[0] {
	case 0xfd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b[:])), nil
	case 0xfe:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b[:])), nil
	case 0xff:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	default:
		return uint64(first[0]), nil
	}
}

func readVarBytes(r io.Reader) ([]byte, error) {
	n, err := readVarInt(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func readOutPoint(r io.Reader) (OutPoint, error) {
	var o OutPoint
	if _, err := io.ReadFull(r, o.Txid[:]); err != nil {
		return o, err
	}
	vout, err := readUint32LE(r)
	if err != nil {
		return o, err
	}
	o.Vout = vout
	return o, nil
}

func readAssetCommitment(r io.Reader) (AssetCommitment, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return AssetCommitment{}, err
	}
	switch tag[0] {
	case 0x00:
		return NullAsset(), nil
	case 0x01:
		var id AssetId
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return AssetCommitment{}, err
		}
		return ExplicitAsset(id), nil
	default:
		// The tag is followed by the full 33-byte commitment.
		var commitment [33]byte
		if _, err := io.ReadFull(r, commitment[:]); err != nil {
			return AssetCommitment{}, err
		}
		return ConfidentialAsset(commitment), nil
	}
}

func readValueCommitment(r io.Reader) (ValueCommitment, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return ValueCommitment{}, err
	}
	switch tag[0] {
	case 0x00:
		return NullValue(), nil
	case 0x01:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return ValueCommitment{}, err
		}
		return ExplicitValue(binary.BigEndian.Uint64(b[:])), nil
	default:
		// The tag is followed by the full 33-byte commitment.
		var commitment [33]byte
		if _, err := io.ReadFull(r, commitment[:]); err != nil {
			return ValueCommitment{}, err
		}
		return ConfidentialValueCommitment(commitment), nil
	}
}

func readIssuance(r io.Reader) (*Issuance, error) {
	var tag [1]byte
	if _, err := io.ReadFull(r, tag[:]); err != nil {
		return nil, err
	}
	if tag[0] == 0x00 {
		return nil, nil
	}
	iss := &Issuance{}
	if _, err := io.ReadFull(r, iss.AssetEntropy[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, iss.AssetBlindingNonce[:]); err != nil {
		return nil, err
	}
	assetAmount, err := readValueCommitment(r)
	if err != nil {
		return nil, err
	}
	iss.AssetAmount = assetAmount
	tokenAmount, err := readValueCommitment(r)
	if err != nil {
		return nil, err
	}
	iss.TokenAmount = tokenAmount
	return iss, nil
}

func readTxOut(r io.Reader) (TxOut, error) {
	asset, err := readAssetCommitment(r)
	if err != nil {
		return TxOut{}, err
	}
	value, err := readValueCommitment(r)
	if err != nil {
		return TxOut{}, err
	}
	nonce, err := readVarBytes(r)
	if err != nil {
		return TxOut{}, err
	}
	script, err := readVarBytes(r)
	if err != nil {
		return TxOut{}, err
	}
	return TxOut{Asset: asset, Value: value, Script: script, Nonce: nonce}, nil
}
