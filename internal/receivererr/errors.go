// Package receivererr is the closed error taxonomy of §7: transport,
// frame, signaling-key, ratchet and semantic faults the receive pipeline can
// raise. Errors are built with github.com/pkg/errors so an "error" event
// keeps the stack of where it was raised, not just the final Wrap site.
package receivererr

import (
	"fmt"

	"github.com/pkg/errors"

	"e2ereceiver/internal/model"
)

// Sentinel kinds usable with errors.Is after Wrap/WithMessage chaining.
var (
	// Transport (§7a)
	ErrConnectionClosed  = errors.New("connection closed")
	ErrUnmatchedResponse = errors.New("unmatched response")

	// Frame (§7b)
	ErrUnknownMessageType = errors.New("unknown message type")

	// Signaling-key (§7c)
	ErrBadEncryptedEnvelope = errors.New("bad encrypted websocket message")

	// Ratchet (§7d)
	ErrInvalidPadding     = errors.New("invalid padding")
	ErrUnknownIdentityKey = errors.New("unknown identity key")
	ErrNoSession          = errors.New("no session for address")

	// Semantic (§7e)
	ErrEmptyContent      = errors.New("empty content")
	ErrEmptySyncMessage  = errors.New("empty sync message")
	ErrInvalidSyncSource = errors.New("invalid sync source")
	ErrSelfDeviceSync    = errors.New("sync message from own device")
	ErrUnknownFlags      = errors.New("unknown flags")
	ErrUnknownGroupType  = errors.New("unknown group type")
)

// ConnectionClosedError carries the close code/reason that failed a pending
// outgoing request or a live decrypt-in-flight (§4.1 close semantics).
type ConnectionClosedError struct {
	Code   int
	Reason string
}

func (e *ConnectionClosedError) Error() string {
	return fmt.Sprintf("connection closed: code=%d reason=%q", e.Code, e.Reason)
}

func (e *ConnectionClosedError) Is(target error) bool {
	return target == ErrConnectionClosed
}

// TransportStatusError wraps a non-2xx RESPONSE frame (§4.1 correlation).
type TransportStatusError struct {
	Status  uint16
	Message string
}

func (e *TransportStatusError) Error() string {
	return fmt.Sprintf("transport error: status=%d message=%q", e.Status, e.Message)
}

// IncomingIdentityKeyError is raised when a PREKEY_BUNDLE envelope's sender
// identity key does not match a previously trusted key for that address
// (§4.5). It is replayable: once the consumer has updated the identity
// store, TryMessageAgain reruns the prekey path using the fields below.
type IncomingIdentityKeyError struct {
	Address     model.Address
	Ciphertext  []byte
	IdentityKey []byte
	EphemeralPub []byte
}

func (e *IncomingIdentityKeyError) Error() string {
	return fmt.Sprintf("unknown identity key for %s", e.Address)
}

// UnpadError wraps ErrInvalidPadding with the offending buffer length.
func UnpadError(length int) error {
	return errors.Wrapf(ErrInvalidPadding, "length=%d", length)
}
