package jade

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/fxamacker/cbor/v2"
)

// Network selects which Elements/Liquid network a device session targets.
type Network string

const (
	NetworkLiquid        Network = "liquid"
	NetworkTestnetLiquid Network = "liquid-testnet"
	NetworkLocaltest     Network = "liquid-localtest"
)

// State is the client-visible device state, per spec §4.J's state
// machine diagram.
type State int

const (
	StateLocked State = iota
	StateUnknown
	StateAuthFlow
	StateReady
	StateNotInit
)

// DefaultTimeout is the overall per-call timeout spec §4.J specifies a
// default of: "a configurable overall timeout (default 60s) terminates
// the request with Timeout."
const DefaultTimeout = 60 * time.Second

// Client drives the hardware-signer protocol over a Connection. It
// satisfies signer.Signer, so it plugs into builder/ signing exactly like
// swsigner.Signer does. Grounded on original_source/jade/src/lib.rs's
// Jade struct and original_source/lwk_jade/src/unlock.rs's auth flow.
type Client struct {
	mu      sync.Mutex
	conn    Connection
	network Network
	timeout time.Duration
	state   State
}

// New wraps conn in a Client targeting network. The connection is assumed
// already open; Connect performs the initial handshake.
func New(conn Connection, network Network) *Client {
	return &Client{conn: conn, network: network, timeout: DefaultTimeout, state: StateLocked}
}

// SetTimeout overrides the default per-call timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

// State reports the client's current view of the device's state.
func (c *Client) State() State { return c.state }

// IsMainnet implements signer.Signer.
func (c *Client) IsMainnet() bool { return c.network == NetworkLiquid }

// Connect queries the device's version info and transitions from Locked
// to either Unknown (initialized, needs auth) or NotInit, per spec §4.J.
func (c *Client) Connect(ctx context.Context) error {
	info, err := c.VersionInfo(ctx)
	if err != nil {
		return err
	}
	c.state = StateUnknown
	if !info.JadeHasPin {
		c.state = StateNotInit
		return nil
	}
	return nil
}

// Unlock runs the full auth_user → handshake_init → handshake_complete
// PIN-server dance described in spec §4.J, transitioning to Ready on
// success. If the device reports it is already authenticated, the
// handshake is skipped entirely. Grounded directly on
// original_source/lwk_jade/src/unlock.rs.
func (c *Client) Unlock(ctx context.Context) error {
	c.state = StateAuthFlow

	already, result, err := c.AuthUser(ctx)
	if err != nil {
		return err
	}
	if result == nil {
		if !already {
			c.state = StateNotInit
			return NotInitialized()
		}
		c.state = StateReady
		return nil
	}

	handshakeParams, err := postJSON(ctx, result.urls(), nil)
	if err != nil {
		return err
	}
	var hp HandshakeParams
	if err := json.Unmarshal(handshakeParams, &hp); err != nil {
		return fmt.Errorf("jade: decode handshake_init params: %w", err)
	}

	initResult, err := c.HandshakeInit(ctx, hp)
	if err != nil {
		return err
	}
	completeBody, err := postJSON(ctx, initResult.urls(), initResult.data())
	if err != nil {
		return err
	}
	var cp HandshakeCompleteParams
	if err := json.Unmarshal(completeBody, &cp); err != nil {
		return fmt.Errorf("jade: decode handshake_complete params: %w", err)
	}

	ok, err := c.HandshakeComplete(ctx, cp)
	if err != nil {
		return err
	}
	if !ok {
		c.state = StateLocked
		return WrongPin()
	}
	c.state = StateReady
	return nil
}

func (r *AuthResult) urls() []string { return r.HTTPRequest.Params.URLs }
func (r *AuthResult) data() any      { return r.HTTPRequest.Params.Data }

// Ping checks the device is responsive.
func (c *Client) Ping(ctx context.Context) error {
	return c.call(ctx, "ping", nil, nil)
}

// Logout ends the current session.
func (c *Client) Logout(ctx context.Context) error {
	var out bool
	return c.call(ctx, "logout", nil, &out)
}

// VersionInfo returns the device's self-description.
func (c *Client) VersionInfo(ctx context.Context) (*VersionInfoResult, error) {
	var out VersionInfoResult
	if err := c.call(ctx, "get_version_info", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetEpoch refreshes the device's clock, per spec §4.J's "opportunistic
// calls made on connect to keep the device's clock and RNG fresh."
func (c *Client) SetEpoch(ctx context.Context, epoch uint64) error {
	var out bool
	return c.call(ctx, "set_epoch", EpochParams{Epoch: epoch}, &out)
}

// AddEntropy feeds host randomness into the device's RNG pool.
func (c *Client) AddEntropy(ctx context.Context, entropy []byte) error {
	var out bool
	return c.call(ctx, "add_entropy", EntropyParams{Entropy: entropy}, &out)
}

// AuthUser begins authentication. If the device is already authenticated
// it returns (already, nil, nil); otherwise it returns (false, result,
// nil) and the caller must drive the handshake via result's urls/data.
func (c *Client) AuthUser(ctx context.Context) (already bool, result *AuthResult, err error) {
	params := AuthUserParams{Network: string(c.network), Epoch: uint64(clockNow().Unix())}

	var raw cbor.RawMessage
	if err := c.call(ctx, "auth_user", params, &raw); err != nil {
		return false, nil, err
	}
	var boolResult bool
	if err := cbor.Unmarshal(raw, &boolResult); err == nil {
		return boolResult, nil, nil
	}
	var ar AuthResult
	if err := cbor.Unmarshal(raw, &ar); err != nil {
		return false, nil, fmt.Errorf("jade: decode auth_user result: %w", err)
	}
	return false, &ar, nil
}

// HandshakeInit relays the pin-server's first response into the device.
func (c *Client) HandshakeInit(ctx context.Context, params HandshakeParams) (*AuthResult, error) {
	var out AuthResult
	if err := c.call(ctx, "handshake_init", params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// HandshakeComplete relays the pin-server's second response into the
// device; a false result means WrongPin.
func (c *Client) HandshakeComplete(ctx context.Context, params HandshakeCompleteParams) (bool, error) {
	var out bool
	if err := c.call(ctx, "handshake_complete", params, &out); err != nil {
		return false, err
	}
	return out, nil
}

// GetMasterFingerprint returns the device's BIP-32 master fingerprint.
func (c *Client) GetMasterFingerprint(ctx context.Context) ([4]byte, error) {
	var raw []byte
	if err := c.call(ctx, "get_master_fingerprint", nil, &raw); err != nil {
		return [4]byte{}, err
	}
	var out [4]byte
	if len(raw) != 4 {
		return out, newError(KindUnexpectedResult, "master fingerprint was not 4 bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// GetXpubAt requests the extended public key at path, satisfying
// signer.Signer.DeriveXpub.
func (c *Client) GetXpubAt(ctx context.Context, path []uint32) (*hdkeychain.ExtendedKey, error) {
	var xpub string
	params := GetXpubParams{Network: string(c.network), Path: path}
	if err := c.call(ctx, "get_xpub", params, &xpub); err != nil {
		return nil, err
	}
	return hdkeychain.NewKeyFromString(xpub)
}

// DeriveXpub implements signer.Signer with a background context and the
// client's configured timeout.
func (c *Client) DeriveXpub(path []uint32) (*hdkeychain.ExtendedKey, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.GetXpubAt(ctx, path)
}

// Slip77MasterBlindingKey implements signer.Signer.
func (c *Client) Slip77MasterBlindingKey() ([32]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	var raw []byte
	if err := c.call(ctx, "get_master_blinding_key", nil, &raw); err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	if len(raw) != 32 {
		return out, newError(KindUnexpectedResult, "master blinding key was not 32 bytes")
	}
	copy(out[:], raw)
	return out, nil
}

// GetReceiveAddress requests a display-on-device address for the given
// path or registered multisig, per spec §4.J.
func (c *Client) GetReceiveAddress(ctx context.Context, params GetReceiveAddressParams) (string, error) {
	params.Network = string(c.network)
	var addr string
	if err := c.call(ctx, "get_receive_address", params, &addr); err != nil {
		return "", err
	}
	return addr, nil
}

// RegisterMultisig registers a multisig wallet under name, per spec §4.J:
// "must precede any multisig sign."
func (c *Client) RegisterMultisig(ctx context.Context, name string, descriptor MultisigDescriptor) error {
	params := RegisterMultisigParams{Network: string(c.network), MultisigName: name, Descriptor: descriptor}
	var ok bool
	if err := c.call(ctx, "register_multisig", params, &ok); err != nil {
		return err
	}
	if !ok {
		return newError(KindNotRegistered, "device rejected register_multisig")
	}
	return nil
}

// call sends one request and decodes its result into out (nil to discard
// the result). It holds the client lock for the duration of the
// round-trip, per spec §4.J's "device is single-user; the core wraps it
// in a mutually-exclusive session."
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	id, err := randomID()
	if err != nil {
		return err
	}
	req := Request{ID: id, Method: method, Params: params}
	buf, err := cbor.Marshal(req)
	if err != nil {
		return fmt.Errorf("jade: encode %s request: %w", method, err)
	}
	if err := writeAll(c.conn, buf); err != nil {
		return fmt.Errorf("jade: write %s request: %w", method, err)
	}

	resp, err := readResponse(ctx, c.conn)
	if err != nil {
		return err
	}
	if resp.ID != req.ID {
		return newError(KindMismatchingResponseID, fmt.Sprintf("expected %s, got %s", req.ID, resp.ID))
	}
	if resp.Error != nil {
		return deviceError(resp.Error)
	}
	if out == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return newError(KindUnexpectedResult, method+" returned no result")
	}
	if err := cbor.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("jade: decode %s result: %w", method, err)
	}
	return nil
}

func writeAll(w Connection, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func randomID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("jade: generate request id: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// clockNow is a seam over time.Now so tests can't be made flaky by it;
// production always uses the real clock.
var clockNow = time.Now
