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

// RoutineImpl executes a routine against a materialized call tree. The
// invocation handle lets the implementation call back into the
// initiator for callback references it received as arguments.
type RoutineImpl func(ctx context.Context, inv *Invocation, call *wire.Call) error

type hostRoutine struct {
	pipeline *memsync.Pipeline
	impl     RoutineImpl
}

// Host is the responding side of a session: it serves forward calls
// against registered routine implementations and originates callback
// invocations on their behalf.
type Host struct {
	types   *ctypes.Registry
	convs   *memsync.ConverterRegistry
	syncer  *memsync.Synchronizer
	ids     memsync.IDGenerator
	invoker transport.CallbackInvoker

	mu           sync.RWMutex
	routines     map[string]*hostRoutine
	callbackSigs map[string]*memsync.Pipeline
	rec          *store.Store
}

// NewHost creates a host. The invoker may be nil when no routine ever
// calls back; BindInvoker installs it later for transports that need
// the host first.
func NewHost(invoker transport.CallbackInvoker) *Host {
	return NewHostWithIDs(invoker, UUIDSource{})
}

// NewHostWithIDs creates a host with an explicit identifier source.
func NewHostWithIDs(invoker transport.CallbackInvoker, ids memsync.IDGenerator) *Host {
	return &Host{
		types:        ctypes.NewRegistry(),
		convs:        memsync.NewConverterRegistry(),
		syncer:       memsync.NewSynchronizer(ids),
		ids:          ids,
		invoker:      invoker,
		routines:     make(map[string]*hostRoutine),
		callbackSigs: make(map[string]*memsync.Pipeline),
	}
}

// BindInvoker installs the callback invoker after construction. Needed
// when host and transport reference each other.
func (h *Host) BindInvoker(invoker transport.CallbackInvoker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invoker = invoker
}

// SetRecorder enables best-effort trace recording. A nil store disables
// it.
func (h *Host) SetRecorder(st *store.Store) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rec = st
}

// RegisterStruct declares a composite type so directives can size its
// elements.
func (h *Host) RegisterStruct(name ctypes.Tag, fields []ctypes.StructField) error {
	return h.types.RegisterStruct(name, fields)
}

// RegisterConverter installs a custom byte-level converter.
func (h *Host) RegisterConverter(conv *memsync.Converter) error {
	return h.convs.Register(conv)
}

// RegisterRoutine binds a routine name to its directives and local
// implementation. The directives must match the initiator's
// registration for the same routine.
func (h *Host) RegisterRoutine(name string, raw []memsync.RawDirective, impl RoutineImpl) error {
	set, err := memsync.CompileSet(h.types, h.convs, raw)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.routines[name]; exists {
		return &DuplicateRegistrationError{Kind: "routine", Name: name}
	}
	h.routines[name] = &hostRoutine{
		pipeline: memsync.NewPipeline(h.syncer, set),
		impl:     impl,
	}

	slog.Debug("routine registered", "routine", name, "directives", len(raw))
	return nil
}

// RegisterCallbackSignature binds a callback signature to its
// directives so routines can invoke references carrying it.
func (h *Host) RegisterCallbackSignature(signature string, raw []memsync.RawDirective) error {
	set, err := memsync.CompileSet(h.types, h.convs, raw)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.callbackSigs[signature]; exists {
		return &DuplicateRegistrationError{Kind: "callback signature", Name: signature}
	}
	h.callbackSigs[signature] = memsync.NewPipeline(h.syncer, set)
	return nil
}

// HandleCall implements transport.Handler: materialize the request, run
// the routine, capture the response. Implementation failures travel in
// the response envelope; only infrastructure failures surface as
// errors.
func (h *Host) HandleCall(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
	h.mu.RLock()
	rt, ok := h.routines[env.Routine]
	h.mu.RUnlock()
	if !ok {
		return nil, &UnknownRoutineError{Name: env.Routine}
	}

	slog.Debug("serving call", "routine", env.Routine, "call_id", env.CallID)
	h.record(ctx, store.DirectionForward, store.LegRequest, env)

	resp, err := rt.pipeline.ServeInbound(ctx, env, func(ctx context.Context, call *wire.Call) error {
		return rt.impl(ctx, &Invocation{host: h}, call)
	})
	if err != nil {
		return nil, err
	}

	h.record(ctx, store.DirectionForward, store.LegResponse, resp)
	return resp, nil
}

// record writes one trace row. Failures are logged and swallowed.
func (h *Host) record(ctx context.Context, direction, leg string, env *wire.Envelope) {
	h.mu.RLock()
	rec := h.rec
	h.mu.RUnlock()
	if rec == nil {
		return
	}
	if err := rec.RecordLeg(ctx, traceLeg(direction, leg, env)); err != nil {
		slog.Warn("trace recording failed", "call_id", env.CallID, "leg", leg, "error", err)
	}
}

// Invocation is the per-call handle passed to routine implementations.
type Invocation struct {
	host *Host
}

// InvokeCallback calls back into the initiator through a callback
// reference received as an argument. It blocks until the callback's
// response leg has been written back into the given call tree, exactly
// like a forward call with the roles swapped.
func (inv *Invocation) InvokeCallback(ctx context.Context, ref wire.CallbackRef, call *wire.Call) (wire.Value, error) {
	h := inv.host

	h.mu.RLock()
	p, sigOK := h.callbackSigs[ref.Signature]
	invoker := h.invoker
	h.mu.RUnlock()
	if !sigOK {
		return nil, &UnknownRoutineError{Name: ref.Signature}
	}
	if invoker == nil {
		return nil, &transport.Error{Code: transport.CodeUnavailable, Message: "no callback invoker bound"}
	}

	callID := h.ids.NewID()
	slog.Debug("invoking callback", "signature", ref.Signature, "stub_id", ref.StubID, "call_id", callID)

	send := func(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error) {
		h.record(ctx, store.DirectionCallback, store.LegRequest, env)
		resp, err := invoker.InvokeCallback(ctx, ref.StubID, env)
		if err != nil {
			return nil, err
		}
		h.record(ctx, store.DirectionCallback, store.LegResponse, resp)
		return resp, nil
	}

	if err := p.RunOutbound(ctx, callID, ref.Signature, call, send); err != nil {
		return nil, err
	}
	return call.Return, nil
}

var _ transport.Handler = (*Host)(nil)
