// Package errs defines the error kinds shared by the REST client, the wire
// protocol parsers, the STOMP transport and the session.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can route it without string matching
type Kind int

const (
	KindUnknown      Kind = iota
	KindNetwork           // REST request failed or returned a non-success status
	KindPayloadShape      // Response body did not match any known shape
	KindTransport         // WebSocket / STOMP connection failure
	KindProtocol          // Malformed event received over a subscription
	KindTimedOut          // Bounded request deadline expired
	KindProvision         // User provisioning did not return 201 Created
)

// String returns a string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindPayloadShape:
		return "payload shape"
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindTimedOut:
		return "timed out"
	case KindProvision:
		return "provision"
	default:
		return "unknown"
	}
}

// Error is a kinded error carrying the operation that produced it
type Error struct {
	Kind   Kind
	Op     string
	Status int // HTTP status, zero when not applicable
	Err    error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// E wraps err with a kind and the operation name
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Status wraps err with a kind, the operation name and an HTTP status
func Status(kind Kind, op string, status int, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: status, Err: err}
}

// KindOf returns the kind of the outermost *Error in err's chain
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Is reports whether any *Error in err's chain has the given kind
func Is(err error, kind Kind) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Kind == kind {
			return true
		}
		err = e.Err
	}
	return false
}

// StatusOf returns the HTTP status recorded in err's chain, or zero
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}
