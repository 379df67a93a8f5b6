package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjawa/zugbruecke/internal/ctypes"
	"github.com/anjawa/zugbruecke/internal/memsync"
	"github.com/anjawa/zugbruecke/internal/store"
	"github.com/anjawa/zugbruecke/internal/testutil"
	"github.com/anjawa/zugbruecke/internal/transport"
	"github.com/anjawa/zugbruecke/internal/wire"
)

// newPair wires a client and host over an in-process loopback with
// deterministic IDs.
func newPair(t *testing.T) (*Client, *Host) {
	t.Helper()
	host := NewHostWithIDs(nil, testutil.NewFixedIDs("host"))
	lb := transport.NewLoopback(host, nil)
	host.BindInvoker(lb)
	client := NewClientWithIDs(lb, testutil.NewFixedIDs("client"))
	lb.BindCallbackHandler(client)
	t.Cleanup(func() { client.Close() })
	return client, host
}

func bufferDirective() []memsync.RawDirective {
	return []memsync.RawDirective{
		{Pointer: []any{0}, Length: []any{1}},
	}
}

func TestInvoke_ReversesBuffer(t *testing.T) {
	client, host := newPair(t)

	require.NoError(t, host.RegisterRoutine("reverse", bufferDirective(),
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			buf := call.Args[0].(*wire.Buffer)
			for i, j := 0, len(buf.Bytes)-1; i < j; i, j = i+1, j-1 {
				buf.Bytes[i], buf.Bytes[j] = buf.Bytes[j], buf.Bytes[i]
			}
			call.Return = wire.Int(int64(len(buf.Bytes)))
			return nil
		}))
	require.NoError(t, client.RegisterRoutine("reverse", bufferDirective()))

	buf := &wire.Buffer{Bytes: []byte{1, 2, 3, 4, 5}}
	ret, err := client.Invoke(context.Background(), "reverse", buf, wire.Int(5))
	require.NoError(t, err)

	assert.Equal(t, wire.Int(5), ret)
	assert.Equal(t, []byte{5, 4, 3, 2, 1}, buf.Bytes)
}

func TestInvoke_NullTerminatedString(t *testing.T) {
	client, host := newPair(t)

	directives := []memsync.RawDirective{
		{Pointer: []any{0}, NullTerminated: true},
	}
	require.NoError(t, host.RegisterRoutine("replace_letter", directives,
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			buf := call.Args[0].(*wire.Buffer)
			from := byte(call.Args[1].(wire.Int))
			to := byte(call.Args[2].(wire.Int))
			for i, b := range buf.Bytes {
				if b == 0 {
					break
				}
				if b == from {
					buf.Bytes[i] = to
				}
			}
			call.Return = wire.Null{}
			return nil
		}))
	require.NoError(t, client.RegisterRoutine("replace_letter", directives))

	// Short string in a much larger caller-owned buffer: only the
	// scanned prefix travels, the rest of the buffer stays untouched.
	buf := &wire.Buffer{Bytes: make([]byte, 128)}
	copy(buf.Bytes, "zategahuba\x00")

	_, err := client.Invoke(context.Background(), "replace_letter", buf, wire.Int('a'), wire.Int('e'))
	require.NoError(t, err)

	end := bytes.IndexByte(buf.Bytes, 0)
	require.Equal(t, 10, end)
	assert.Equal(t, "zetegehube", string(buf.Bytes[:end]))
	assert.Equal(t, make([]byte, 117), buf.Bytes[11:])
}

func TestInvoke_UnknownRoutine(t *testing.T) {
	client, _ := newPair(t)

	_, err := client.Invoke(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, IsUnknownRoutine(err))
}

func TestInvoke_HostMissingRoutine(t *testing.T) {
	client, _ := newPair(t)

	// Registered on the client only: the host rejects it and the
	// failure surfaces as a transport error, not a remote error.
	require.NoError(t, client.RegisterRoutine("ghost", nil))
	_, err := client.Invoke(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, transport.IsTransportError(err))
}

func TestInvoke_RemoteErrorSkipsWriteBack(t *testing.T) {
	client, host := newPair(t)

	require.NoError(t, host.RegisterRoutine("explode", bufferDirective(),
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			// Mutations before the failure must never reach the caller.
			buf := call.Args[0].(*wire.Buffer)
			for i := range buf.Bytes {
				buf.Bytes[i] = 0xFF
			}
			return errors.New("division by zero")
		}))
	require.NoError(t, client.RegisterRoutine("explode", bufferDirective()))

	buf := &wire.Buffer{Bytes: []byte{1, 2, 3}}
	_, err := client.Invoke(context.Background(), "explode", buf, wire.Int(3))
	require.Error(t, err)

	var re *memsync.RemoteError
	require.ErrorAs(t, err, &re)
	assert.Contains(t, re.Error(), "division by zero")
	assert.Equal(t, []byte{1, 2, 3}, buf.Bytes)
}

func TestRegisterRoutine_Duplicate(t *testing.T) {
	client, _ := newPair(t)

	require.NoError(t, client.RegisterRoutine("dup", nil))
	err := client.RegisterRoutine("dup", nil)
	require.Error(t, err)
	assert.True(t, IsDuplicateRegistration(err))
}

func TestRegisterRoutine_InvalidDirectives(t *testing.T) {
	client, _ := newPair(t)

	err := client.RegisterRoutine("bad", []memsync.RawDirective{
		{Pointer: []any{0}, Length: []any{1}, Lengths: [][]any{{1}}, Combine: "x0"},
	})
	require.Error(t, err)
	assert.True(t, memsync.IsConfigurationError(err))
}

func TestRegistryIsolation(t *testing.T) {
	clientA, _ := newPair(t)
	clientB, _ := newPair(t)

	require.NoError(t, clientA.RegisterStruct("point", []ctypes.StructField{
		{Name: "x", Type: ctypes.Float64},
		{Name: "y", Type: ctypes.Float64},
	}))

	structDirective := []memsync.RawDirective{
		{Pointer: []any{0}, Length: []any{1}, ElementType: "point"},
	}
	require.NoError(t, clientA.RegisterRoutine("distances", structDirective))

	// The type registration must not leak into the other session.
	err := clientB.RegisterRoutine("distances", structDirective)
	require.Error(t, err)
	assert.True(t, ctypes.IsUnknownType(err))
}

func TestRegisterRoutine_Concurrent(t *testing.T) {
	client, _ := newPair(t)

	var wg sync.WaitGroup
	errs := make([]error, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = client.RegisterRoutine(fmt.Sprintf("routine_%02d", i), bufferDirective())
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "routine_%02d", i)
	}
}

func TestTraceRecorder(t *testing.T) {
	client, host := newPair(t)

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	defer st.Close()
	client.SetRecorder(st)

	require.NoError(t, host.RegisterRoutine("noop", bufferDirective(),
		func(ctx context.Context, inv *Invocation, call *wire.Call) error {
			call.Return = wire.Null{}
			return nil
		}))
	require.NoError(t, client.RegisterRoutine("noop", bufferDirective()))

	buf := &wire.Buffer{Bytes: []byte{9, 9}}
	_, err = client.Invoke(context.Background(), "noop", buf, wire.Int(2))
	require.NoError(t, err)

	legs, err := st.LegsByRoutine(context.Background(), "noop")
	require.NoError(t, err)
	require.Len(t, legs, 2)
	assert.Equal(t, store.LegRequest, legs[0].Leg)
	assert.Equal(t, store.LegResponse, legs[1].Leg)
	assert.Equal(t, 1, legs[0].Segments)
	assert.Equal(t, 2, legs[0].Bytes)
	assert.Equal(t, legs[0].CallID, legs[1].CallID)
}
