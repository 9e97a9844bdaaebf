package builder

import (
	"github.com/lwkgo/lwk/elements"
)

const minFeeRateSatPerVb = 0.1

// defaultFeeRateSatPerVb is the "None uses a default minimum" fallback,
// per spec §4.G.
const defaultFeeRateSatPerVb = 1.0

const dustSatoshi = 1

// recipient is one requested output. Address resolution (parsing the
// address string into a script/blinding pair) is deferred to Finish,
// since the network isn't known until then; burn outputs carry no
// address at all.
type recipient struct {
	addressText string
	satoshi     uint64
	asset       elements.AssetId
	isBurn      bool
}

type issuanceRequest struct {
	satoshiAsset uint64
	addressAsset string // "" asks Finish to send the asset output to a fresh wallet address
	satoshiToken uint64
	addressToken string // "" asks Finish to send the token output to a fresh wallet address
	contractHash *elements.ContractHash
}

type reissuanceRequest struct {
	assetID       elements.AssetId
	satoshi       uint64
	issuancePrior elements.OutPoint // the outpoint that originally issued assetID
}

// ExternalUtxo lets a caller supply a UTXO the builder did not discover via
// scan (spec §4.G add_external_utxos), e.g. for Simplicity script-path
// spends or coordinating a multi-party transaction.
type ExternalUtxo struct {
	OutPoint    elements.OutPoint
	TxOut       elements.TxOut
	Unblinded   elements.TxOutSecrets
	ScriptKind  elements.ScriptKind
	Derivation  []uint32 // empty for a foreign (non-wallet) utxo
	Fingerprint [4]byte
}

// Builder accumulates a chainable transaction build, per spec §4.G. Every
// method returns *Builder so calls compose; Finish performs selection,
// blinding, and PSET assembly.
type Builder struct {
	feeRateSatPerVb float64

	recipients []recipient
	issuance   *issuanceRequest
	reissuance *reissuanceRequest
	drainLbtc  bool
	external   []ExternalUtxo

	err error // sticky: the first construction-time error short-circuits Finish
}

// New returns an empty Builder with the default minimum fee rate.
func New() *Builder {
	return &Builder{feeRateSatPerVb: defaultFeeRateSatPerVb}
}

// FeeRate sets the fee rate in sat/vB; nil resets to the default minimum,
// per spec §4.G. Rates below 0.1 sat/vB are rejected per spec's tie-break
// policy.
func (b *Builder) FeeRate(satPerVb *float64) *Builder {
	if b.err != nil {
		return b
	}
	if satPerVb == nil {
		b.feeRateSatPerVb = defaultFeeRateSatPerVb
		return b
	}
	if *satPerVb < minFeeRateSatPerVb {
		b.err = errInvalidAmount("fee rate %.3f sat/vB is below the minimum %.1f", *satPerVb, minFeeRateSatPerVb)
		return b
	}
	b.feeRateSatPerVb = *satPerVb
	return b
}

// AddRecipient requests an output paying satoshi of asset to address, per
// spec §4.G.
func (b *Builder) AddRecipient(address string, satoshi uint64, asset elements.AssetId) *Builder {
	if b.err != nil {
		return b
	}
	if satoshi == 0 {
		b.err = errInvalidAmount("recipient amount must be non-zero")
		return b
	}
	b.recipients = append(b.recipients, recipient{addressText: address, satoshi: satoshi, asset: asset})
	return b
}

// AddLbtcRecipient requests an output paying satoshi of the network's
// policy asset to address; the asset itself is resolved against the
// network at Finish time, per spec §4.G.
func (b *Builder) AddLbtcRecipient(address string, satoshi uint64) *Builder {
	if b.err != nil {
		return b
	}
	if satoshi == 0 {
		b.err = errInvalidAmount("recipient amount must be non-zero")
		return b
	}
	b.recipients = append(b.recipients, recipient{addressText: address, satoshi: satoshi})
	return b
}

// AddBurn requests a provably-unspendable OP_RETURN output for satoshi of
// asset, per spec §4.G.
func (b *Builder) AddBurn(satoshi uint64, asset elements.AssetId) *Builder {
	if b.err != nil {
		return b
	}
	if satoshi == 0 {
		b.err = errInvalidAmount("burn amount must be non-zero")
		return b
	}
	b.recipients = append(b.recipients, recipient{satoshi: satoshi, asset: asset, isBurn: true})
	return b
}

// IssueAsset requests a new-asset issuance, per spec §4.G: satoshiAsset
// units of the newly-minted asset and satoshiToken units of its
// reissuance token, each sent to addressAsset/addressToken, or to a fresh
// wallet address when the corresponding string is empty. contract, if
// non-nil, is hashed into the issuance entropy per spec §4.B asset-id
// derivation.
func (b *Builder) IssueAsset(satoshiAsset uint64, addressAsset string, satoshiToken uint64, addressToken string, contractHash *elements.ContractHash) *Builder {
	if b.err != nil {
		return b
	}
	if b.issuance != nil {
		b.err = errInvalidAmount("builder already has a pending issuance")
		return b
	}
	if satoshiAsset == 0 {
		b.err = errInvalidAmount("issuance asset amount must be non-zero")
		return b
	}
	b.issuance = &issuanceRequest{
		satoshiAsset: satoshiAsset,
		addressAsset: addressAsset,
		satoshiToken: satoshiToken,
		addressToken: addressToken,
		contractHash: contractHash,
	}
	return b
}

// ReissueAsset requests reissuing satoshi more units of assetID, spending
// the wallet's held reissuance token, per spec §4.G. issuancePrior is the
// outpoint of the transaction that originally issued assetID (needed to
// recompute the issuance entropy).
func (b *Builder) ReissueAsset(assetID elements.AssetId, satoshi uint64, issuancePrior elements.OutPoint) *Builder {
	if b.err != nil {
		return b
	}
	if b.reissuance != nil {
		b.err = errInvalidAmount("builder already has a pending reissuance")
		return b
	}
	if satoshi == 0 {
		b.err = errInvalidAmount("reissuance amount must be non-zero")
		return b
	}
	b.reissuance = &reissuanceRequest{assetID: assetID, satoshi: satoshi, issuancePrior: issuancePrior}
	return b
}

// DrainLbtcWallet requests that every remaining policy-asset satoshi,
// after covering all other recipients, is folded into the transaction
// fee instead of returned to the wallet as a change output, per spec
// §4.G.
func (b *Builder) DrainLbtcWallet() *Builder {
	if b.err != nil {
		return b
	}
	b.drainLbtc = true
	return b
}

// AddExternalUtxos adds caller-supplied utxos the builder did not discover
// via scan, per spec §4.G.
func (b *Builder) AddExternalUtxos(utxos []ExternalUtxo) *Builder {
	if b.err != nil {
		return b
	}
	b.external = append(b.external, utxos...)
	return b
}
