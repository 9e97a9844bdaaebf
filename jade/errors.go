package jade

import (
	"fmt"
	"strings"
)

// Kind tags a jade Error with the spec §7/§4.J taxonomy entry it belongs
// to. Grounded on original_source/lwk_jade/src/error.rs's Error enum,
// collapsed onto this codebase's Kind-tagged struct pattern.
type Kind string

const (
	KindWrongPin                 Kind = "WrongPin"
	KindUserRefused               Kind = "UserRefused"
	KindDeviceLocked              Kind = "DeviceLocked"
	KindNotInitialized            Kind = "NotInitialized"
	KindTimeout                   Kind = "Timeout"
	KindNoUsableURL               Kind = "NoUsableUrl"
	KindHTTPStatus                Kind = "HttpStatus"
	KindDeviceError                Kind = "DeviceError"
	KindMismatchingResponseID      Kind = "MismatchingResponseId"
	KindUnexpectedResult          Kind = "UnexpectedResult"
	KindMissingWitnessUtxoInInput  Kind = "MissingWitnessUtxoInInput"
	KindNonConfidentialInput       Kind = "NonConfidentialInput"
	KindMissingBip32DerivInput     Kind = "MissingBip32DerivInput"
	KindMissingWitnessScript       Kind = "MissingWitnessScript"
	KindUnsupportedScriptPubkeyType Kind = "UnsupportedScriptPubkeyType"
	KindAntiExfilMismatch          Kind = "AntiExfilMismatch"
	KindNotRegistered              Kind = "NotRegistered"
)

// Error is the structured error type jade-package failures surface.
type Error struct {
	Kind  Kind
	Index int
	Msg   string
}

func (e *Error) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("jade: %s(input %d): %s", e.Kind, e.Index, e.Msg)
	}
	return fmt.Sprintf("jade: %s: %s", e.Kind, e.Msg)
}

func newError(kind Kind, msg string) error {
	return &Error{Kind: kind, Index: -1, Msg: msg}
}

func newInputError(kind Kind, index int, msg string) error {
	return &Error{Kind: kind, Index: index, Msg: msg}
}

// WrongPin is returned when handshake_complete reports failure, per spec
// §4.J ("false here signals WrongPin").
func WrongPin() error { return newError(KindWrongPin, "incorrect pin") }

// NotInitialized is returned when auth_user's already-authenticated reply
// is false: the device has no wallet set up and the user declined to do
// so on-screen.
func NotInitialized() error {
	return newError(KindNotInitialized, "device is not initialized")
}

// Timeout is returned when the overall per-call timeout (spec §4.J,
// default 60s) elapses before a response arrives.
func Timeout() error { return newError(KindTimeout, "timed out waiting for device response") }

// deviceError maps a device-reported CBOR error object to a domain error,
// per spec §4.J's "codes in the protocol's implementation-defined band map
// to domain errors." Codes are implementation-defined and not published
// anywhere in the retrieval pack, so only the always-present textual
// signals (the message itself) are pattern-matched; anything unrecognized
// surfaces as a generic DeviceError carrying the raw code and message.
func deviceError(d *ErrorDetails) error {
	msg := strings.ToLower(d.Message)
	switch {
	case strings.Contains(msg, "pin"):
		return &Error{Kind: KindWrongPin, Index: -1, Msg: d.Message}
	case strings.Contains(msg, "declin"), strings.Contains(msg, "refus"), strings.Contains(msg, "denied"):
		return &Error{Kind: KindUserRefused, Index: -1, Msg: d.Message}
	case strings.Contains(msg, "locked"):
		return &Error{Kind: KindDeviceLocked, Index: -1, Msg: d.Message}
	default:
		return &Error{Kind: KindDeviceError, Index: -1, Msg: fmt.Sprintf("code %d: %s", d.Code, d.Message)}
	}
}
