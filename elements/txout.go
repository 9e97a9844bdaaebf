package elements

// TxOutSecrets holds the recovered plaintext of a confidential output once
// unblinded, per spec §3. An output is explicit iff both blinding factors
// are zero.
type TxOutSecrets struct {
	Asset   AssetId
	Value   uint64
	AssetBF [32]byte
	ValueBF [32]byte
}

// IsExplicit reports whether this output carried no blinding (both
// blinding factors zero).
func (s TxOutSecrets) IsExplicit() bool {
	var zero [32]byte
	return s.AssetBF == zero && s.ValueBF == zero
}

// TxOut is the Elements-specific output shape: asset and value are each
// independently null/explicit/confidential; confidential outputs carry a
// nonce (ECDH pubkey), a range-proof, and a surjection-proof.
type TxOut struct {
	Asset           AssetCommitment
	Value           ValueCommitment
	Script          []byte
	Nonce           []byte
	RangeProof      []byte
	SurjectionProof []byte
}

// IsFee reports whether this output is the (unique, required) fee output:
// empty script, explicit asset and value.
func (o TxOut) IsFee() bool {
	return len(o.Script) == 0 && o.Asset.Explicit != nil && o.Value.Explicit != nil
}

// Issuance carries the per-input issuance/reissuance fields an Elements
// input may set.
type Issuance struct {
	AssetEntropy       [32]byte
	AssetBlindingNonce [32]byte // zero -> issuance; non-zero -> reissuance
	AssetAmount        ValueCommitment
	TokenAmount        ValueCommitment
	IsBlinded          bool
}

// IsNull reports that this input carries no issuance.
func (iss Issuance) IsNull() bool {
	var zero [32]byte
	return iss.AssetEntropy == zero && !iss.IsIssuance() && !iss.IsReissuance()
}

// IsIssuance reports a fresh issuance (zero blinding nonce).
func (iss Issuance) IsIssuance() bool {
	var zero [32]byte
	return iss.AssetBlindingNonce == zero && (iss.AssetAmount.Explicit != nil || iss.AssetAmount.Conf != nil)
}

// IsReissuance reports a reissuance (non-zero blinding nonce, carrying the
// original token's asset-blinding factor).
func (iss Issuance) IsReissuance() bool {
	var zero [32]byte
	return iss.AssetBlindingNonce != zero
}

// TxIn is an Elements input: previous outpoint, optional issuance fields,
// and sequence. It has no scriptSig or witness fields.
type TxIn struct {
	PrevOut  OutPoint
	Issuance *Issuance
	Sequence uint32
}

// Tx is the minimal Elements transaction shape the wallet/builder/pset
// packages operate on.
type Tx struct {
	Version  uint32
	Inputs   []TxIn
	Outputs  []TxOut
	Locktime uint32
}
