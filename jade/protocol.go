// Package jade implements the hardware-signer protocol core (spec §4.J):
// CBOR request/response framing over a bidirectional byte stream, the
// client-side state machine, the PIN-server authentication handshake, and
// the confidential sign flow. Grounded on original_source/jade/src/protocol.rs
// and original_source/lwk_jade (connection.rs, error.rs, unlock.rs,
// jade_emulator.rs).
package jade

import "github.com/fxamacker/cbor/v2"

// Request is the CBOR envelope every call to the device is wrapped in.
// Per spec §4.J, id is a random string the client must see echoed back
// unchanged; a response carrying a different id is rejected.
type Request struct {
	ID     string `cbor:"id"`
	Method string `cbor:"method"`
	Params any    `cbor:"params,omitempty"`
}

// Response is the CBOR envelope a device reply arrives in. Result is left
// as a RawMessage so the caller can decode it into the type appropriate
// for the method that was called.
type Response struct {
	ID     string          `cbor:"id"`
	Result cbor.RawMessage `cbor:"result,omitempty"`
	Error  *ErrorDetails   `cbor:"error,omitempty"`
}

// ErrorDetails is the device-reported error object, per spec §4.J's "codes
// in the protocol's implementation-defined band map to domain errors."
type ErrorDetails struct {
	Code    int64  `cbor:"code"`
	Message string `cbor:"message"`
	Data    any    `cbor:"data,omitempty"`
}

// AuthUserParams is sent to begin authentication; epoch is the host's Unix
// clock, used by the device to validate its pin-server handshake payload.
type AuthUserParams struct {
	Network string `cbor:"network"`
	Epoch   uint64 `cbor:"epoch"`
}

// EpochParams refreshes the device's notion of wall-clock time.
type EpochParams struct {
	Epoch uint64 `cbor:"epoch"`
}

// EntropyParams feeds host-gathered randomness into the device's RNG pool.
type EntropyParams struct {
	Entropy []byte `cbor:"entropy"`
}

// HandshakeParams is the payload returned by the pin-server's first HTTP
// response (JSON, not CBOR — see pinserver.go), relayed into
// handshake_init.
type HandshakeParams struct {
	Sig string `cbor:"sig" json:"sig"`
	Ske string `cbor:"ske" json:"ske"`
}

// HandshakeCompleteParams is the payload returned by the pin-server's
// second HTTP response (JSON), relayed into handshake_complete.
type HandshakeCompleteParams struct {
	EncryptedKey string `cbor:"encrypted_key" json:"encrypted_key"`
	Hmac         string `cbor:"hmac" json:"hmac"`
}

// GetXpubParams requests the extended public key at path, derived from the
// device's master node.
type GetXpubParams struct {
	Network string   `cbor:"network"`
	Path    []uint32 `cbor:"path"`
}

// GetSignatureParams reveals the host's anti-exfil entropy for one input,
// after the device has already committed to a nonce via tx_input.
type GetSignatureParams struct {
	AEHostEntropy []byte `cbor:"ae_host_entropy"`
}

// DebugSetMnemonicParams seeds a device (real or emulated) deterministically
// for testing; no real hardware honors this outside a debug build.
type DebugSetMnemonicParams struct {
	Mnemonic        string  `cbor:"mnemonic"`
	Passphrase      *string `cbor:"passphrase,omitempty"`
	TemporaryWallet bool    `cbor:"temporary_wallet"`
}

// UpdatePinserverParams points the device at a different pin-server
// deployment, or resets it back to the default.
type UpdatePinserverParams struct {
	ResetDetails     bool   `cbor:"reset_details"`
	ResetCertificate bool   `cbor:"reset_certificate"`
	URLA             string `cbor:"urlA"`
	URLB             string `cbor:"urlB"`
	Pubkey           []byte `cbor:"pubkey"`
	Certificate      string `cbor:"certificate"`
}

// VersionInfoResult is the device's self-description, returned by
// get_version_info; JadeHasPin is the one field spec.md's state machine
// actually branches on (initialized vs. NotInit).
type VersionInfoResult struct {
	JadeVersion    string `cbor:"JADE_VERSION"`
	JadeOtaMaxChunk uint32 `cbor:"JADE_OTA_MAX_CHUNK"`
	JadeConfig     string `cbor:"JADE_CONFIG"`
	BoardType      string `cbor:"BOARD_TYPE"`
	JadeFeatures   string `cbor:"JADE_FEATURES"`
	IdfVersion     string `cbor:"IDF_VERSION"`
	ChipFeatures   string `cbor:"CHIP_FEATURES"`
	Efusemac       string `cbor:"EFUSEMAC"`
	BatteryStatus  uint8  `cbor:"BATTERY_STATUS"`
	JadeState      string `cbor:"JADE_STATE"`
	JadeNetworks   string `cbor:"JADE_NETWORKS"`
	JadeHasPin     bool   `cbor:"JADE_HAS_PIN"`
}

// RegisteredMultisig describes a wallet previously registered on the
// device via register_multisig, as returned by get_registered_multisigs.
type RegisteredMultisig struct {
	Variant           string `cbor:"variant"`
	Sorted            bool   `cbor:"sorted"`
	Threshold         uint32 `cbor:"threshold"`
	NumSigners        uint32 `cbor:"num_signers"`
	MasterBlindingKey []byte `cbor:"master_blinding_key"`
}

// HttpParams describes one step of the pin-server handshake: the urls to
// try (in order), the HTTP method/accept header to use, and the body data.
type HttpParams struct {
	URLs   []string `cbor:"urls"`
	Method string   `cbor:"method"`
	Accept string   `cbor:"accept"`
	Data   any      `cbor:"data"`
}

// HttpRequest wraps HttpParams with the device's hint about which method
// the host should call once the HTTP round trip completes.
type HttpRequest struct {
	Params  HttpParams `cbor:"params"`
	OnReply string     `cbor:"on-reply"`
}

// AuthResult is returned by auth_user (when not already authenticated) and
// by handshake_init: an HTTP request the host must perform against the
// pin-server, whose response body becomes the params for the next call.
type AuthResult struct {
	HTTPRequest HttpRequest `cbor:"http_request"`
}

// HandshakeData is the pin-server's first response body, relayed into
// handshake_init as its result's Data.
type HandshakeData struct {
	Cke               string  `cbor:"cke" json:"cke"`
	EncryptedData     string  `cbor:"encrypted_data" json:"encrypted_data"`
	HmacEncryptedData string  `cbor:"hmac_encrypted_data" json:"hmac_encrypted_data"`
	Ske               string  `cbor:"ske" json:"ske"`
	Error             *string `cbor:"error,omitempty" json:"error,omitempty"`
}

// ChangeAddress identifies, for one non-fee output of a sign_liquid_tx
// call, either a singlesig variant+path or a previously registered
// multisig name+paths, plus whether the device should treat it as change
// needing no user confirmation.
type ChangeAddress struct {
	Variant      string     `cbor:"variant,omitempty"`
	Path         []uint32   `cbor:"path,omitempty"`
	MultisigName string     `cbor:"multisig_name,omitempty"`
	Paths        [][]uint32 `cbor:"paths,omitempty"`
	IsChange     bool       `cbor:"is_change"`
}

// Commitment is the confidential proof bundle for one non-fee output,
// letting the device validate the blinded amount/asset it is being asked
// to sign over without itself running the unblinding math.
type Commitment struct {
	AssetGenerator  []byte `cbor:"asset_generator"`
	AssetID         []byte `cbor:"asset_id"`
	BlindingKey     []byte `cbor:"blinding_key"`
	Value           uint64 `cbor:"value"`
	ValueCommitment []byte `cbor:"value_commitment"`
	ValueBlindProof []byte `cbor:"value_blind_proof"`
	AssetBlindProof []byte `cbor:"asset_blind_proof"`
}

// Entity, Contract, Prevout and AssetInfo describe an asset's issuance
// metadata, letting the device display a human-readable asset name
// instead of a raw 32-byte id.
type Entity struct {
	Domain string `cbor:"domain"`
}

type Contract struct {
	Entity        Entity `cbor:"entity"`
	IssuerPubkey  string `cbor:"issuer_pubkey"`
	Name          string `cbor:"name"`
	Precision     uint8  `cbor:"precision"`
	Ticker        string `cbor:"ticker"`
	Version       uint8  `cbor:"version"`
}

type Prevout struct {
	Txid string `cbor:"txid"`
	Vout uint32 `cbor:"vout"`
}

type AssetInfo struct {
	AssetID         string   `cbor:"asset_id"`
	Contract        Contract `cbor:"contract"`
	IssuancePrevout Prevout  `cbor:"issuance_prevout"`
}

// Summary is one line of the wallet-input/wallet-output breakdown shown
// to the user during confirmation.
type Summary struct {
	AssetID []byte `cbor:"asset_id"`
	Satoshi uint64 `cbor:"satoshi"`
}

// AdditionalInfo supplies the device with enough context to render a
// human-meaningful confirmation screen for the overall transaction.
type AdditionalInfo struct {
	TxType             string    `cbor:"tx_type"`
	WalletInputSummary  []Summary `cbor:"wallet_input_summary"`
	WalletOutputSummary []Summary `cbor:"wallet_output_summary"`
}

// SignLiquidTxParams opens a confidential signing session, per spec §4.J
// step 2. Every []Option-shaped Rust field (change, trusted_commitments)
// becomes a nil-able slice element in Go: a nil *ChangeAddress/*Commitment
// marks the fee output.
type SignLiquidTxParams struct {
	Network            string           `cbor:"network"`
	Txn                []byte           `cbor:"txn"`
	NumInputs          uint32           `cbor:"num_inputs"`
	UseAeSignatures    bool             `cbor:"use_ae_signatures"`
	Change             []*ChangeAddress `cbor:"change"`
	AssetInfo          []AssetInfo      `cbor:"asset_info"`
	TrustedCommitments []*Commitment    `cbor:"trusted_commitments"`
	AdditionalInfo     *AdditionalInfo  `cbor:"additional_info,omitempty"`
}

// TxInputParams is sent once per input, in order, per spec §4.J step 3.
// ae_host_commitment binds the device to a nonce before it learns the raw
// entropy that commitment hides (see antiexfil.go).
type TxInputParams struct {
	IsWitness        bool    `cbor:"is_witness"`
	ScriptCode       []byte  `cbor:"script"`
	ValueCommitment  []byte  `cbor:"value_commitment"`
	Path             []uint32 `cbor:"path"`
	Sighash          *uint32  `cbor:"sighash"`
	AEHostCommitment []byte   `cbor:"ae_host_commitment"`
}

// TxInputResult is tx_input's reply: a per-input anti-exfil signer
// commitment, per spec §4.J step 3. See antiexfil.go for how this binds
// to the signature get_signature later returns.
type TxInputResult struct {
	SignerCommitment []byte `cbor:"signer_commitment"`
}

// GetSignatureResult is get_signature's reply: the signature itself plus
// the anti-exfil nonce/tag pair that lets the host verify, per spec §4.J
// step 4, that the revealed nonce matches the commitment tx_input returned
// and that the tag binds that nonce to this signature.
type GetSignatureResult struct {
	Signature []byte `cbor:"signature"`
	AENonce   []byte `cbor:"ae_signer_nonce"`
	AETag     []byte `cbor:"ae_signature_tag"`
}

// GetReceiveAddressParams requests a display-on-device address for user
// verification, per spec §4.J's get_receive_address bullet.
type GetReceiveAddressParams struct {
	Network      string     `cbor:"network"`
	Variant      string     `cbor:"variant,omitempty"`
	Path         []uint32   `cbor:"path,omitempty"`
	MultisigName string     `cbor:"multisig_name,omitempty"`
	Paths        [][]uint32 `cbor:"paths,omitempty"`
}

// MultisigSigner is one cosigner entry of a RegisterMultisigParams
// descriptor: its fingerprint and xpub, so the device can later re-derive
// and display the same wallet's addresses independently.
type MultisigSigner struct {
	Fingerprint []byte `cbor:"fingerprint"`
	Xpub        string `cbor:"xpub"`
	Path        []uint32 `cbor:"derivation_path,omitempty"`
}

// MultisigDescriptor is the Jade-native shape a wsh(multi/sortedmulti)
// descriptor is serialized into before register_multisig, per spec §4.J's
// "enumerates signers, threshold, sorted/unsorted, and the SLIP-77 key."
type MultisigDescriptor struct {
	Variant           string           `cbor:"variant"`
	Sorted            bool             `cbor:"sorted"`
	Threshold         uint32           `cbor:"threshold"`
	Signers           []MultisigSigner `cbor:"signers"`
	MasterBlindingKey []byte           `cbor:"master_blinding_key"`
}

// RegisterMultisigParams names and registers a multisig wallet ahead of
// any sign_liquid_tx call that references it by MultisigName.
type RegisterMultisigParams struct {
	Network      string             `cbor:"network"`
	MultisigName string             `cbor:"multisig_name"`
	Descriptor   MultisigDescriptor `cbor:"descriptor"`
}
