package memsync

import (
	"context"
	"fmt"

	"github.com/anjawa/zugbruecke/internal/wire"
)

// SendFunc carries an outbound envelope to the other side and blocks
// until the response envelope arrives. Supplied by the transport for
// forward calls and by the callback invoker for the reverse direction.
type SendFunc func(ctx context.Context, env *wire.Envelope) (*wire.Envelope, error)

// InvokeFunc executes the local implementation of a routine or callback
// against a materialized call tree. Mutations to the tree's buffers and
// slots become visible to the remote side after the response leg.
type InvokeFunc func(ctx context.Context, call *wire.Call) error

// RemoteError carries a failure reported by the other side of a call.
type RemoteError struct {
	Routine string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Routine, e.Message)
}

// Pipeline binds a synchronizer to one signature's directive set. Both
// call directions are instances of the same pipeline: a forward call
// runs RunOutbound on the initiator and ServeInbound on the responder;
// a callback swaps the roles. There is no special-cased reverse path.
type Pipeline struct {
	sync *Synchronizer
	set  *Set
}

// NewPipeline creates a pipeline for one signature.
func NewPipeline(sync *Synchronizer, set *Set) *Pipeline {
	return &Pipeline{sync: sync, set: set}
}

// Set returns the pipeline's directive set.
func (p *Pipeline) Set() *Set { return p.set }

// RunOutbound executes the initiator side of one call: capture, send,
// block, write back. The initiating goroutine suspends in send until
// the response arrives; write-back only happens once the full response
// envelope is in hand.
func (p *Pipeline) RunOutbound(ctx context.Context, callID, routine string, call *wire.Call, send SendFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	env, state, err := p.sync.CaptureOutbound(p.set, call)
	if err != nil {
		return fmt.Errorf("outbound leg: %w", err)
	}
	env.CallID = callID
	env.Routine = routine

	resp, err := send(ctx, env)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return &RemoteError{Routine: routine, Message: resp.Error}
	}

	if err := p.sync.ApplyInbound(p.set, call, state, resp); err != nil {
		return fmt.Errorf("inbound leg: %w", err)
	}
	return nil
}

// ServeInbound executes the responder side of one call: materialize the
// tree, run the local implementation, capture the response. An
// implementation error is reported through the response envelope rather
// than as a transport failure, so the initiator can distinguish the
// two.
func (p *Pipeline) ServeInbound(ctx context.Context, env *wire.Envelope, invoke InvokeFunc) (*wire.Envelope, error) {
	call, state, err := p.sync.MaterializeInbound(p.set, env)
	if err != nil {
		return nil, fmt.Errorf("materialize request: %w", err)
	}

	if err := invoke(ctx, call); err != nil {
		return &wire.Envelope{
			CallID:  env.CallID,
			Routine: env.Routine,
			Error:   err.Error(),
		}, nil
	}

	resp, err := p.sync.CaptureResponse(p.set, call, state)
	if err != nil {
		return nil, fmt.Errorf("capture response: %w", err)
	}
	resp.CallID = env.CallID
	resp.Routine = env.Routine
	return resp, nil
}
