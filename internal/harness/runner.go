package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"

	"github.com/anjawa/zugbruecke/internal/session"
	"github.com/anjawa/zugbruecke/internal/store"
	"github.com/anjawa/zugbruecke/internal/testutil"
	"github.com/anjawa/zugbruecke/internal/transport"
	"github.com/anjawa/zugbruecke/internal/wire"
)

// Result holds the observable outcome of one scenario execution.
type Result struct {
	// Return is the routine's return value.
	Return wire.Value

	// Args are the caller-side arguments after write-back.
	Args []wire.Value

	// Trace is the recorded envelope log, request leg first.
	Trace []store.Leg
}

// Run executes a scenario against a fresh loopback client/host pair.
// Identifiers are deterministic so traces are stable across runs: the
// call ID is "call-0001" and segment IDs count up from "seg-0001".
func Run(scenario *Scenario) (*Result, error) {
	behavior, ok := behaviors[scenario.Behavior]
	if !ok {
		return nil, fmt.Errorf("unknown behavior %q", scenario.Behavior)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	host := session.NewHostWithIDs(nil, testutil.NewFixedIDs("host"))
	lb := transport.NewLoopback(host, nil)
	host.BindInvoker(lb)
	client := session.NewClientWithIDs(lb, &callSegmentIDs{
		calls:    testutil.NewFixedIDs("call"),
		segments: testutil.NewFixedIDs("seg"),
	})
	lb.BindCallbackHandler(client)
	client.SetRecorder(st)

	if err := host.RegisterRoutine(scenario.Routine, scenario.Directives, behavior(scenario.Payload)); err != nil {
		return nil, fmt.Errorf("host registration: %w", err)
	}
	if err := client.RegisterRoutine(scenario.Routine, scenario.Directives); err != nil {
		return nil, fmt.Errorf("client registration: %w", err)
	}

	args, err := buildArgs(scenario.Args)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	ret, err := client.Invoke(ctx, scenario.Routine, args...)
	if err != nil {
		return nil, fmt.Errorf("invoke %s: %w", scenario.Routine, err)
	}

	trace, err := st.Recent(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	// Recent is newest-first; present the trace in call order.
	for i, j := 0, len(trace)-1; i < j; i, j = i+1, j-1 {
		trace[i], trace[j] = trace[j], trace[i]
	}

	return &Result{Return: ret, Args: args, Trace: trace}, nil
}

// callSegmentIDs hands out call IDs and segment IDs from separate
// sequences, so adding a directive never renumbers the call.
type callSegmentIDs struct {
	calls    *testutil.FixedIDs
	segments *testutil.FixedIDs
	first    bool
}

func (g *callSegmentIDs) NewID() string {
	if !g.first {
		g.first = true
		return g.calls.NewID()
	}
	return g.segments.NewID()
}

// Verify asserts the scenario's expect clauses against a result.
func Verify(t *testing.T, scenario *Scenario, result *Result) {
	t.Helper()

	if scenario.Expect.ReturnInt != nil {
		assert.Equal(t, wire.Int(*scenario.Expect.ReturnInt), result.Return, "return value")
	}

	for idx, want := range scenario.Expect.Buffers {
		buf, ok := result.Args[idx].(*wire.Buffer)
		if !assert.True(t, ok, "argument %d is not a buffer", idx) {
			continue
		}
		wantBytes := make([]byte, len(want))
		for i, b := range want {
			wantBytes[i] = byte(b)
		}
		assert.Equal(t, wantBytes, buf.Bytes, "argument %d content", idx)
	}

	for idx, want := range scenario.Expect.Texts {
		buf, ok := result.Args[idx].(*wire.Buffer)
		if !assert.True(t, ok, "argument %d is not a buffer", idx) {
			continue
		}
		end := bytes.IndexByte(buf.Bytes, 0)
		if !assert.GreaterOrEqual(t, end, 0, "argument %d has no terminator", idx) {
			continue
		}
		assert.Equal(t, want, string(buf.Bytes[:end]), "argument %d text", idx)
	}
}

// legSnapshot is the golden-file form of one trace row. Timestamps are
// dropped; everything else in a leg is deterministic.
type legSnapshot struct {
	Direction string          `json:"direction"`
	Leg       string          `json:"leg"`
	Routine   string          `json:"routine"`
	CallID    string          `json:"call_id"`
	Segments  int             `json:"segments"`
	Bytes     int             `json:"bytes"`
	Envelope  json.RawMessage `json:"envelope"`
}

// AssertGolden compares a result's trace against
// testdata/golden/{scenario.Name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	snapshots := make([]legSnapshot, len(result.Trace))
	for i, leg := range result.Trace {
		snapshots[i] = legSnapshot{
			Direction: leg.Direction,
			Leg:       leg.Leg,
			Routine:   leg.Routine,
			CallID:    leg.CallID,
			Segments:  leg.Segments,
			Bytes:     leg.Bytes,
			Envelope:  json.RawMessage(leg.Envelope),
		}
	}

	data, err := json.Marshal(snapshots)
	if err != nil {
		return fmt.Errorf("marshal trace snapshot: %w", err)
	}
	data = append(data, '\n')

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}

// buildArgs converts argument specs into a live argument list.
func buildArgs(specs []ArgSpec) ([]wire.Value, error) {
	args := make([]wire.Value, len(specs))
	for i, spec := range specs {
		switch {
		case spec.Int != nil:
			args[i] = wire.Int(*spec.Int)

		case spec.Buffer != nil:
			b := make([]byte, len(spec.Buffer))
			for j, v := range spec.Buffer {
				b[j] = byte(v)
			}
			args[i] = &wire.Buffer{Bytes: b}

		case spec.Text != nil:
			size := len(*spec.Text) + 1
			if spec.Capacity > size {
				size = spec.Capacity
			}
			b := make([]byte, size)
			copy(b, *spec.Text)
			args[i] = &wire.Buffer{Bytes: b}

		case spec.Null:
			args[i] = wire.Null{}

		default:
			return nil, fmt.Errorf("args[%d]: empty argument spec", i)
		}
	}
	return args, nil
}
