package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen_Pragmas(t *testing.T) {
	st := openTestStore(t)

	// In-memory databases report journal_mode "memory"; the other
	// pragmas must hold regardless.
	assert.NoError(t, st.verifyPragma("synchronous", "1"))
	assert.NoError(t, st.verifyPragma("foreign_keys", "1"))
	assert.NoError(t, st.verifyPragma("busy_timeout", "5000"))
}

func TestRecordLeg_RoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	leg := Leg{
		CallID:    "call-1",
		Routine:   "gauss_elimination",
		Direction: DirectionForward,
		Leg:       LegRequest,
		Segments:  2,
		Bytes:     48,
		Envelope:  []byte(`{"call_id":"call-1"}`),
	}
	require.NoError(t, st.RecordLeg(ctx, leg))

	got, err := st.LegsByCall(ctx, "call-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "gauss_elimination", got[0].Routine)
	assert.Equal(t, DirectionForward, got[0].Direction)
	assert.Equal(t, 2, got[0].Segments)
	assert.Equal(t, 48, got[0].Bytes)
	assert.JSONEq(t, `{"call_id":"call-1"}`, string(got[0].Envelope))
	assert.NotEmpty(t, got[0].CreatedAt)
}

func TestRecordLeg_Idempotent(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	leg := Leg{
		CallID:    "call-2",
		Routine:   "strip_diacritics",
		Direction: DirectionForward,
		Leg:       LegRequest,
		Envelope:  []byte(`{}`),
	}
	require.NoError(t, st.RecordLeg(ctx, leg))
	require.NoError(t, st.RecordLeg(ctx, leg))

	got, err := st.LegsByCall(ctx, "call-2")
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRecordLeg_InvalidDirection(t *testing.T) {
	st := openTestStore(t)

	err := st.RecordLeg(context.Background(), Leg{
		CallID:    "call-3",
		Routine:   "x",
		Direction: "sideways",
		Leg:       LegRequest,
		Envelope:  []byte(`{}`),
	})
	assert.Error(t, err)
}

func TestLegsByRoutine_Order(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	for i, leg := range []string{LegRequest, LegResponse} {
		require.NoError(t, st.RecordLeg(ctx, Leg{
			CallID:    "call-4",
			Routine:   "bubblesort",
			Direction: DirectionForward,
			Leg:       leg,
			Segments:  i,
			Envelope:  []byte(`{}`),
		}))
	}
	// A different routine must not leak into the result.
	require.NoError(t, st.RecordLeg(ctx, Leg{
		CallID:    "call-5",
		Routine:   "other",
		Direction: DirectionCallback,
		Leg:       LegRequest,
		Envelope:  []byte(`{}`),
	}))

	got, err := st.LegsByRoutine(ctx, "bubblesort")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, LegRequest, got[0].Leg)
	assert.Equal(t, LegResponse, got[1].Leg)

	recent, err := st.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "call-5", recent[0].CallID)
}
