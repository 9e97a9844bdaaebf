package elements

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
)

// SighashAll is the only sighash type this toolkit signs with by default,
// per spec §4.H.
const SighashAll uint32 = 0x01

// SigHash computes the digest a signer signs for input index over tx,
// generalized from Bitcoin's BIP-143 segwit sighash algorithm to Elements'
// confidential value field (spec §4.H): scriptCode is the script-code for
// the input's script kind (the P2PKH-equivalent code for wpkh, the witness
// script for wsh, the redeem script's underlying script for nested wpkh),
// and value is the prevout's value field (explicit or confidential) the
// signature binds to. This is a deliberately simplified stand-in for
// rust-elements' actual sighash (documented in DESIGN.md): it reuses
// BIP-143's prevouts/sequences/outputs hash structure, adds an
// issuance-commitment hash section so issuance/reissuance inputs bind
// their entropy and amounts into the signature, and omits the rangeproof
// hash section real Elements includes, since no input in this toolkit ever
// needs to re-verify a rangeproof as part of its own signature.
func SigHash(tx *Tx, index int, scriptCode []byte, value ValueCommitment, hashType uint32) [32]byte {
	in := tx.Inputs[index]

	var buf bytes.Buffer
	writeUint32LE(&buf, tx.Version)
	hp := hashPrevouts(tx)
	buf.Write(hp[:])
	hs := hashSequences(tx)
	buf.Write(hs[:])
	hi := hashIssuances(tx)
	buf.Write(hi[:])

	writeOutPoint(&buf, in.PrevOut)
	writeVarBytes(&buf, scriptCode)
	writeValueCommitment(&buf, value)
	writeUint32LE(&buf, in.Sequence)
	writeIssuance(&buf, in.Issuance)

	ho := hashOutputs(tx)
	buf.Write(ho[:])

	writeUint32LE(&buf, tx.Locktime)
	writeUint32LE(&buf, hashType)

	return doubleSHA256(buf.Bytes())
}

func hashPrevouts(tx *Tx) [32]byte {
	var buf bytes.Buffer
	for _, in := range tx.Inputs {
		writeOutPoint(&buf, in.PrevOut)
	}
	return doubleSHA256(buf.Bytes())
}

func hashSequences(tx *Tx) [32]byte {
	var buf bytes.Buffer
	for _, in := range tx.Inputs {
		writeUint32LE(&buf, in.Sequence)
	}
	return doubleSHA256(buf.Bytes())
}

func hashIssuances(tx *Tx) [32]byte {
	var buf bytes.Buffer
	for _, in := range tx.Inputs {
		writeIssuance(&buf, in.Issuance)
	}
	return doubleSHA256(buf.Bytes())
}

func hashOutputs(tx *Tx) [32]byte {
	var buf bytes.Buffer
	for _, out := range tx.Outputs {
		writeTxOut(&buf, out)
	}
	return doubleSHA256(buf.Bytes())
}

func writeIssuance(buf *bytes.Buffer, iss *Issuance) {
	if iss == nil {
		buf.WriteByte(0x00)
		return
	}
	buf.WriteByte(0x01)
	buf.Write(iss.AssetEntropy[:])
	buf.Write(iss.AssetBlindingNonce[:])
	writeValueCommitment(buf, iss.AssetAmount)
	writeValueCommitment(buf, iss.TokenAmount)
}

func writeTxOut(buf *bytes.Buffer, out TxOut) {
	writeAssetCommitment(buf, out.Asset)
	writeValueCommitment(buf, out.Value)
	writeVarBytes(buf, out.Nonce)
	writeVarBytes(buf, out.Script)
}

func writeAssetCommitment(buf *bytes.Buffer, a AssetCommitment) {
	switch {
	case a.Null:
		buf.WriteByte(0x00)
	case a.Explicit != nil:
		buf.WriteByte(0x01)
		buf.Write(a.Explicit[:])
	default:
		buf.WriteByte(0x0a)
		buf.Write(a.Conf[:])
	}
}

func writeValueCommitment(buf *bytes.Buffer, v ValueCommitment) {
	switch {
	case v.Null:
		buf.WriteByte(0x00)
	case v.Explicit != nil:
		buf.WriteByte(0x01)
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], *v.Explicit)
		buf.Write(b[:])
	default:
		buf.WriteByte(0x08)
		buf.Write(v.Conf[:])
	}
}

func writeOutPoint(buf *bytes.Buffer, o OutPoint) {
	buf.Write(o.Txid[:])
	writeUint32LE(buf, o.Vout)
}

func writeUint32LE(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeVarInt(buf *bytes.Buffer, n uint64) {
	switch {
	case n < 0xfd:
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(0xfd)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		buf.Write(b[:])
	case n <= 0xffffffff:
		buf.WriteByte(0xfe)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(n))
		buf.Write(b[:])
	default:
		buf.WriteByte(0xff)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], n)
		buf.Write(b[:])
	}
}

func writeVarBytes(buf *bytes.Buffer, b []byte) {
	writeVarInt(buf, uint64(len(b)))
	buf.Write(b)
}

func doubleSHA256(b []byte) [32]byte {
	h1 := sha256.Sum256(b)
	return sha256.Sum256(h1[:])
}
