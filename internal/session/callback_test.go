package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjawa/zugbruecke/internal/memsync"
	"github.com/anjawa/zugbruecke/internal/wire"
)

func TestCallback_RoundTrip(t *testing.T) {
	client, host := newPair(t)

	cbDirectives := []memsync.RawDirective{
		{Pointer: []any{0}, Length: []any{1}},
	}
	routineDirectives := []memsync.RawDirective{
		{Pointer: []any{0}, Length: []any{1}},
	}

	var callbackRan bool
	ref, err := client.RegisterCallback("increment_all", func(ctx context.Context, call *wire.Call) error {
		callbackRan = true
		buf := call.Args[0].(*wire.Buffer)
		for i := range buf.Bytes {
			buf.Bytes[i]++
		}
		call.Return = wire.Null{}
		return nil
	}, cbDirectives)
	require.NoError(t, err)
	assert.Equal(t, "increment_all", ref.Signature)
	assert.NotEmpty(t, ref.StubID)

	require.NoError(t, host.RegisterCallbackSignature("increment_all", cbDirectives))
	require.NoError(t, host.RegisterRoutine("apply", routineDirectives,
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			buf := call.Args[0].(*wire.Buffer)
			cb := call.Args[2].(wire.CallbackRef)

			// The callback runs against this side's live buffer: its
			// mutations land here, then travel home on the response leg.
			cbCall := &wire.Call{Args: []wire.Value{buf, call.Args[1]}}
			if _, err := inv.InvokeCallback(ctx, cb, cbCall); err != nil {
				return err
			}
			call.Return = wire.Null{}
			return nil
		}))
	require.NoError(t, client.RegisterRoutine("apply", routineDirectives))

	buf := &wire.Buffer{Bytes: []byte{10, 20, 30}}
	_, err = client.Invoke(context.Background(), "apply", buf, wire.Int(3), ref)
	require.NoError(t, err)

	assert.True(t, callbackRan)
	assert.Equal(t, []byte{11, 21, 31}, buf.Bytes)
}

func TestCallback_Nested(t *testing.T) {
	client, host := newPair(t)

	directives := []memsync.RawDirective{
		{Pointer: []any{0}, Length: []any{1}},
	}

	// Inner forward routine invoked from inside the callback. The whole
	// chain runs synchronously on one goroutine over the loopback.
	require.NoError(t, host.RegisterRoutine("add_ten", directives,
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			buf := call.Args[0].(*wire.Buffer)
			for i := range buf.Bytes {
				buf.Bytes[i] += 10
			}
			call.Return = wire.Null{}
			return nil
		}))
	require.NoError(t, client.RegisterRoutine("add_ten", directives))

	ref, err := client.RegisterCallback("reenter", func(ctx context.Context, call *wire.Call) error {
		buf := call.Args[0].(*wire.Buffer)
		if _, err := client.Invoke(ctx, "add_ten", buf, call.Args[1]); err != nil {
			return err
		}
		call.Return = wire.Null{}
		return nil
	}, directives)
	require.NoError(t, err)

	require.NoError(t, host.RegisterCallbackSignature("reenter", directives))
	require.NoError(t, host.RegisterRoutine("outer", directives,
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			buf := call.Args[0].(*wire.Buffer)
			cb := call.Args[2].(wire.CallbackRef)
			cbCall := &wire.Call{Args: []wire.Value{buf, call.Args[1]}}
			if _, err := inv.InvokeCallback(ctx, cb, cbCall); err != nil {
				return err
			}
			call.Return = wire.Null{}
			return nil
		}))
	require.NoError(t, client.RegisterRoutine("outer", directives))

	buf := &wire.Buffer{Bytes: []byte{1, 2}}
	_, err = client.Invoke(context.Background(), "outer", buf, wire.Int(2), ref)
	require.NoError(t, err)

	assert.Equal(t, []byte{11, 12}, buf.Bytes)
}

func TestCallback_UnknownStub(t *testing.T) {
	client, host := newPair(t)

	directives := []memsync.RawDirective{}
	require.NoError(t, host.RegisterCallbackSignature("ghost_sig", directives))
	require.NoError(t, host.RegisterRoutine("call_ghost", directives,
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			bogus := wire.CallbackRef{StubID: "no-such-stub", Signature: "ghost_sig"}
			_, err := inv.InvokeCallback(ctx, bogus, &wire.Call{})
			return err
		}))
	require.NoError(t, client.RegisterRoutine("call_ghost", directives))

	_, err := client.Invoke(context.Background(), "call_ghost")
	require.Error(t, err)

	// The stub lookup fails on the client side, travels back to the
	// host routine, and reaches the initiator as a remote failure.
	var re *memsync.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Error(), "no-such-stub")
}

func TestCallback_UnregisteredSignature(t *testing.T) {
	client, host := newPair(t)

	require.NoError(t, host.RegisterRoutine("call_unbound", nil,
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			ref := wire.CallbackRef{StubID: "stub-1", Signature: "never_registered"}
			_, err := inv.InvokeCallback(ctx, ref, &wire.Call{})
			return err
		}))
	require.NoError(t, client.RegisterRoutine("call_unbound", nil))

	_, err := client.Invoke(context.Background(), "call_unbound")
	require.Error(t, err)

	var re *memsync.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Error(), "never_registered")
}
