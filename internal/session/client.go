package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/anjawa/zugbruecke/internal/ctypes"
	"github.com/anjawa/zugbruecke/internal/memsync"
	"github.com/anjawa/zugbruecke/internal/store"
	"github.com/anjawa/zugbruecke/internal/transport"
	"github.com/anjawa/zugbruecke/internal/wire"
)

// CallbackImpl is a locally implemented callback. It executes against a
// materialized call tree; buffer mutations become visible to the remote
// caller after the response leg.
type CallbackImpl func(ctx context.Context, call *wire.Call) error

type callbackStub struct {
	signature string
	pipeline  *memsync.Pipeline
	impl      CallbackImpl
}

// Client is the initiator side of a session: it registers routine
// signatures with their synchronization directives, invokes routines
// across the transport, and answers callback invocations arriving from
// the remote host.
//
// Each client owns its own type and converter registries, so
// registrations never leak between independent sessions.
type Client struct {
	types     *ctypes.Registry
	convs     *memsync.ConverterRegistry
	syncer    *memsync.Synchronizer
	ids       memsync.IDGenerator
	transport transport.Transport

	mu        sync.RWMutex
	routines  map[string]*memsync.Pipeline
	callbacks map[string]*callbackStub
	rec       *store.Store
}

// NewClient creates a client sending calls over the given transport.
func NewClient(tr transport.Transport) *Client {
	return NewClientWithIDs(tr, UUIDSource{})
}

// NewClientWithIDs creates a client with an explicit identifier source.
// Used by tests that need deterministic call and segment IDs.
func NewClientWithIDs(tr transport.Transport, ids memsync.IDGenerator) *Client {
	return &Client{
		types:     ctypes.NewRegistry(),
		convs:     memsync.NewConverterRegistry(),
		syncer:    memsync.NewSynchronizer(ids),
		ids:       ids,
		transport: tr,
		routines:  make(map[string]*memsync.Pipeline),
		callbacks: make(map[string]*callbackStub),
	}
}

// SetRecorder enables best-effort trace recording. A nil store disables
// it.
func (c *Client) SetRecorder(st *store.Store) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec = st
}

// RegisterStruct declares a composite type so directives can size its
// elements.
func (c *Client) RegisterStruct(name ctypes.Tag, fields []ctypes.StructField) error {
	return c.types.RegisterStruct(name, fields)
}

// RegisterConverter installs a custom byte-level converter.
func (c *Client) RegisterConverter(conv *memsync.Converter) error {
	return c.convs.Register(conv)
}

// RegisterRoutine binds a routine name to its synchronization
// directives. Directive validation happens here, not at call time.
func (c *Client) RegisterRoutine(name string, raw []memsync.RawDirective) error {
	set, err := memsync.CompileSet(c.types, c.convs, raw)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.routines[name]; exists {
		return &DuplicateRegistrationError{Kind: "routine", Name: name}
	}
	c.routines[name] = memsync.NewPipeline(c.syncer, set)

	slog.Debug("routine registered", "routine", name, "directives", len(raw))
	return nil
}

// RegisterCallback binds a local implementation to a callback signature
// and returns the reference to pass as a call argument. The remote host
// must have the same signature registered with matching directives.
func (c *Client) RegisterCallback(signature string, impl CallbackImpl, raw []memsync.RawDirective) (wire.CallbackRef, error) {
	set, err := memsync.CompileSet(c.types, c.convs, raw)
	if err != nil {
		return wire.CallbackRef{}, err
	}

	stubID := c.ids.NewID()
	c.mu.Lock()
	c.callbacks[stubID] = &callbackStub{
		signature: signature,
		pipeline:  memsync.NewPipeline(c.syncer, set),
		impl:      impl,
	}
	c.mu.Unlock()

	slog.Debug("callback registered", "signature", signature, "stub_id", stubID)
	return wire.CallbackRef{StubID: stubID, Signature: signature}, nil
}

// Invoke runs one forward call. The invoking goroutine blocks until the
// response has been written back; on return, every synchronized buffer
// in args reflects the remote side's mutations and the returned value
// is the routine's result.
func (c *Client) Invoke(ctx context.Context, routine string, args ...wire.Value) (wire.Value, error) {
	c.mu.RLock()
	p, ok := c.routines[routine]
	c.mu.RUnlock()
	if !ok {
		return nil, &UnknownRoutineError{Name: routine}
	}

	callID := c.ids.NewID()
	call := &wire.Call{Args: args}
	slog.Debug("invoking routine", "routine", routine, "call_id", callID)

	send := func(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
		c.record(ctx, store.DirectionForward, store.LegRequest, env)
		resp, err := c.transport.SendCall(ctx, env)
		if err != nil {
			return nil, err
		}
		c.record(ctx, store.DirectionForward, store.LegResponse, resp)
		return resp, nil
	}

	if err := p.RunOutbound(ctx, callID, routine, call, send); err != nil {
		return nil, err
	}
	return call.Return, nil
}

// HandleCallback implements transport.CallbackHandler: the host is
// calling back into one of this client's registered stubs. The pipeline
// roles are simply swapped; there is no callback-specific
// synchronization code.
func (c *Client) HandleCallback(ctx context.Context, stubID string, env *wire.Envelope) (*wire.Envelope, error) {
	c.mu.RLock()
	stub, ok := c.callbacks[stubID]
	c.mu.RUnlock()
	if !ok {
		return nil, &UnknownCallbackError{StubID: stubID}
	}

	slog.Debug("serving callback", "signature", stub.signature, "stub_id", stubID, "call_id", env.CallID)
	return stub.pipeline.ServeInbound(ctx, env, func(ctx context.Context, call *wire.Call) error {
		return stub.impl(ctx, call)
	})
}

// Close releases the transport.
func (c *Client) Close() error {
	return c.transport.Close()
}

// record writes one trace row. Failures are logged and swallowed; the
// trace never fails a call.
func (c *Client) record(ctx context.Context, direction, leg string, env *wire.Envelope) {
	c.mu.RLock()
	rec := c.rec
	c.mu.RUnlock()
	if rec == nil {
		return
	}
	if err := rec.RecordLeg(ctx, traceLeg(direction, leg, env)); err != nil {
		slog.Warn("trace recording failed", "call_id", env.CallID, "leg", leg, "error", err)
	}
}

// traceLeg flattens an envelope into a trace row.
func traceLeg(direction, leg string, env *wire.Envelope) store.Leg {
	var totalBytes int
	for _, seg := range env.Segments {
		totalBytes += len(seg.Bytes)
	}
	data, err := wire.DefaultCodec.Encode(env)
	if err != nil {
		data = []byte("{}")
	}
	return store.Leg{
		CallID:    env.CallID,
		Routine:   env.Routine,
		Direction: direction,
		Leg:       leg,
		Segments:  len(env.Segments),
		Bytes:     totalBytes,
		Envelope:  data,
	}
}

var _ transport.CallbackHandler = (*Client)(nil)
