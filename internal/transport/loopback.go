package transport

import (
	"context"
	"sync/atomic"

	"github.com/anjawa/zugbruecke/internal/wire"
)

// Loopback couples an initiator and a host inside one process. Calls
// cross a real codec boundary (envelopes are encoded and re-decoded),
// so each side holds an independent tree exactly as it would over a
// socket. Used by tests and by embedded hosts.
type Loopback struct {
	host   Handler
	client CallbackHandler
	codec  wire.Codec
	closed atomic.Bool
}

// NewLoopback creates a loopback transport dispatching forward calls to
// host. The callback handler may be nil when the host never invokes
// callbacks.
func NewLoopback(host Handler, client CallbackHandler) *Loopback {
	return &Loopback{host: host, client: client, codec: wire.DefaultCodec}
}

// BindCallbackHandler installs the callback handler after construction.
// Needed when client and transport reference each other.
func (l *Loopback) BindCallbackHandler(client CallbackHandler) {
	l.client = client
}

// SendCall implements Transport.
func (l *Loopback) SendCall(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
	if l.closed.Load() {
		return nil, &Error{Code: CodeUnavailable, Message: "loopback closed"}
	}
	req, err := l.recode(env)
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "encode request", Err: err}
	}

	resp, err := l.host.HandleCall(ctx, req)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Message: "host failed", Err: err}
	}
	out, err := l.recode(resp)
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "decode response", Err: err}
	}
	return out, nil
}

// InvokeCallback implements CallbackInvoker for the host side of the
// pair.
func (l *Loopback) InvokeCallback(ctx context.Context, stubID string, env *wire.Envelope) (*wire.Envelope, error) {
	if l.closed.Load() {
		return nil, &Error{Code: CodeUnavailable, Message: "loopback closed"}
	}
	if l.client == nil {
		return nil, &Error{Code: CodeUnavailable, Message: "no callback handler bound"}
	}
	req, err := l.recode(env)
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "encode callback request", Err: err}
	}

	resp, err := l.client.HandleCallback(ctx, stubID, req)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Message: "callback handler failed", Err: err}
	}
	out, err := l.recode(resp)
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "decode callback response", Err: err}
	}
	return out, nil
}

// Close implements Transport. Subsequent calls fail with UNAVAILABLE.
func (l *Loopback) Close() error {
	l.closed.Store(true)
	return nil
}

// recode round-trips an envelope through the codec, producing the
// independent copy the other side would decode off the wire.
func (l *Loopback) recode(env *wire.Envelope) (*wire.Envelope, error) {
	data, err := l.codec.Encode(env)
	if err != nil {
		return nil, err
	}
	var out wire.Envelope
	if err := l.codec.Decode(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
