package elements

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleTx() *Tx {
	var txid Txid
	txid[0] = 0xaa
	asset := ExplicitAsset(AssetId{0x01, 0x02})
	return &Tx{
		Version: 2,
		Inputs: []TxIn{
			{PrevOut: OutPoint{Txid: txid, Vout: 1}, Sequence: 0xfffffffe},
		},
		Outputs: []TxOut{
			{Asset: asset, Value: ExplicitValue(9999), Script: []byte{0x00, 0x14, 0x01, 0x02}},
			{Asset: asset, Value: ExplicitValue(1), Script: nil}, // fee output
		},
		Locktime: 0,
	}
}

func TestTxSerializeDeserializeRoundTrip(t *testing.T) {
	tx := sampleTx()
	encoded := tx.Serialize()

	decoded, err := DeserializeTx(encoded)
	require.NoError(t, err)
	require.Equal(t, tx, decoded)
	require.Equal(t, encoded, decoded.Serialize())
}

func TestTxidIsDeterministicAndSensitiveToContent(t *testing.T) {
	tx := sampleTx()
	id1 := tx.Txid()
	id2 := sampleTx().Txid()
	require.Equal(t, id1, id2)

	other := sampleTx()
	other.Locktime = 1
	require.NotEqual(t, id1, other.Txid())

	require.Len(t, id1.String(), 64)
}
