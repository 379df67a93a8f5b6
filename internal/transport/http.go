package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	gorillarpc "github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"

	"github.com/anjawa/zugbruecke/internal/wire"
)

// The two processes each run one HTTP JSON-RPC server: the host serves
// forward calls, the initiator serves callback invocations. This is the
// classic two-server split for bidirectional traffic over a
// request/response protocol.

// CallPayload carries an encoded envelope through JSON-RPC.
type CallPayload struct {
	Envelope json.RawMessage `json:"envelope"`
}

// CallbackPayload additionally names the callback stub.
type CallbackPayload struct {
	StubID   string          `json:"stub_id"`
	Envelope json.RawMessage `json:"envelope"`
}

// SessionService is the JSON-RPC service surface of the host side.
type SessionService struct {
	handler Handler
	codec   wire.Codec
}

// Call handles one forward call.
func (s *SessionService) Call(r *http.Request, args *CallPayload, reply *CallPayload) error {
	var env wire.Envelope
	if err := s.codec.Decode(args.Envelope, &env); err != nil {
		return fmt.Errorf("decode request envelope: %w", err)
	}

	resp, err := s.handler.HandleCall(r.Context(), &env)
	if err != nil {
		return err
	}

	data, err := s.codec.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode response envelope: %w", err)
	}
	reply.Envelope = data
	return nil
}

// NewServer builds the host-side HTTP handler serving forward calls at
// method "Session.Call".
func NewServer(h Handler) http.Handler {
	s := gorillarpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	// Registration only fails for malformed services; this one is fixed.
	if err := s.RegisterService(&SessionService{handler: h, codec: wire.DefaultCodec}, "Session"); err != nil {
		panic(fmt.Sprintf("transport: register session service: %v", err))
	}
	return s
}

// CallbackService is the JSON-RPC service surface of the initiator
// side, answering for registered callback stubs.
type CallbackService struct {
	handler CallbackHandler
	codec   wire.Codec
}

// Invoke handles one callback invocation from the host.
func (s *CallbackService) Invoke(r *http.Request, args *CallbackPayload, reply *CallPayload) error {
	var env wire.Envelope
	if err := s.codec.Decode(args.Envelope, &env); err != nil {
		return fmt.Errorf("decode callback envelope: %w", err)
	}

	resp, err := s.handler.HandleCallback(r.Context(), args.StubID, &env)
	if err != nil {
		return err
	}

	data, err := s.codec.Encode(resp)
	if err != nil {
		return fmt.Errorf("encode callback response: %w", err)
	}
	reply.Envelope = data
	return nil
}

// NewCallbackServer builds the initiator-side HTTP handler serving
// callback invocations at method "Callback.Invoke".
func NewCallbackServer(h CallbackHandler) http.Handler {
	s := gorillarpc.NewServer()
	s.RegisterCodec(json2.NewCodec(), "application/json")
	if err := s.RegisterService(&CallbackService{handler: h, codec: wire.DefaultCodec}, "Callback"); err != nil {
		panic(fmt.Sprintf("transport: register callback service: %v", err))
	}
	return s
}

// HTTPTransport sends forward calls to a host's Session service.
type HTTPTransport struct {
	url    string
	client *http.Client
	codec  wire.Codec
}

// NewHTTPTransport creates a transport posting to the given URL.
func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{
		url: url,
		client: &http.Client{
			// No overall timeout: a foreign routine may legitimately
			// run long, and SendCall blocks until it returns.
			Timeout: 0,
		},
		codec: wire.DefaultCodec,
	}
}

// SendCall implements Transport.
func (t *HTTPTransport) SendCall(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
	return postEnvelope(ctx, t.client, t.codec, t.url, "Session.Call", func(data json.RawMessage) any {
		return &CallPayload{Envelope: data}
	}, env)
}

// Close implements Transport.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}

// HTTPCallbackInvoker sends callback invocations to the initiator's
// Callback service. Used by the host process.
type HTTPCallbackInvoker struct {
	url    string
	client *http.Client
	codec  wire.Codec
}

// NewHTTPCallbackInvoker creates an invoker posting to the given URL.
func NewHTTPCallbackInvoker(url string) *HTTPCallbackInvoker {
	return &HTTPCallbackInvoker{
		url:    url,
		client: &http.Client{Timeout: 0},
		codec:  wire.DefaultCodec,
	}
}

// InvokeCallback implements CallbackInvoker.
func (i *HTTPCallbackInvoker) InvokeCallback(ctx context.Context, stubID string, env *wire.Envelope) (*wire.Envelope, error) {
	return postEnvelope(ctx, i.client, i.codec, i.url, "Callback.Invoke", func(data json.RawMessage) any {
		return &CallbackPayload{StubID: stubID, Envelope: data}
	}, env)
}

// postEnvelope performs one synchronous JSON-RPC exchange.
func postEnvelope(ctx context.Context, client *http.Client, codec wire.Codec, url, method string, wrap func(json.RawMessage) any, env *wire.Envelope) (*wire.Envelope, error) {
	data, err := codec.Encode(env)
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "encode envelope", Err: err}
	}

	body, err := json2.EncodeClientRequest(method, wrap(data))
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "encode client request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{Code: CodeUnavailable, Message: "post " + method, Err: err}
	}
	defer drainAndClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Code: CodeUnavailable, Message: fmt.Sprintf("%s returned status %d", method, resp.StatusCode)}
	}

	var reply CallPayload
	if err := json2.DecodeClientResponse(resp.Body, &reply); err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "decode client response", Err: err}
	}

	var out wire.Envelope
	if err := codec.Decode(reply.Envelope, &out); err != nil {
		return nil, &Error{Code: CodeProtocol, Message: "decode response envelope", Err: err}
	}
	return &out, nil
}

// drainAndClose empties a response body before closing so the
// connection can be reused.
func drainAndClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

var _ Transport = (*HTTPTransport)(nil)
var _ CallbackInvoker = (*HTTPCallbackInvoker)(nil)
var _ Transport = (*Loopback)(nil)
var _ CallbackInvoker = (*Loopback)(nil)
