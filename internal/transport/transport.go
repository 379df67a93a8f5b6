// Package transport defines the boundary to the mechanism that carries
// call envelopes between the two processes. The engine assumes the
// transport is reliable, ordered, and synchronous: one response per
// request, connectivity failures surfaced as a distinguishable error
// rather than a silent timeout.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjawa/zugbruecke/internal/wire"
)

// ErrorCode categorizes transport failures.
type ErrorCode string

const (
	// CodeUnavailable indicates a connectivity failure: the other side
	// is unreachable or the connection is closed.
	CodeUnavailable ErrorCode = "UNAVAILABLE"

	// CodeProtocol indicates the other side answered with something
	// that does not decode as a response envelope.
	CodeProtocol ErrorCode = "PROTOCOL"
)

// Error is a transport-level failure. It aborts the affected call only;
// directive sets and registries are unaffected.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transport %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("transport %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransportError returns true if the error is a transport Error.
// Uses errors.As to handle wrapped errors.
func IsTransportError(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Transport carries forward calls from the initiator to the remote
// host. SendCall blocks until the response envelope or a failure
// arrives; there is no mid-flight abort beyond context cancellation
// before the send.
type Transport interface {
	SendCall(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error)
	Close() error
}

// Handler is the receiving side of forward calls.
type Handler interface {
	HandleCall(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error)
}

// CallbackHandler is the receiving side of callback invocations: the
// initiator process, answering for the callbacks it registered.
type CallbackHandler interface {
	HandleCallback(ctx context.Context, stubID string, env *wire.Envelope) (*wire.Envelope, error)
}

// CallbackInvoker is the sending side of callback invocations: the
// remote host, calling back into the initiator.
type CallbackInvoker interface {
	InvokeCallback(ctx context.Context, stubID string, env *wire.Envelope) (*wire.Envelope, error)
}
