package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjawa/zugbruecke/internal/store"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	sc, err := LoadScenario(filepath.Join("testdata", name+".yaml"))
	require.NoError(t, err)
	return sc
}

func TestScenarios(t *testing.T) {
	for _, name := range []string{
		"noop_roundtrip",
		"reverse_small",
		"fill_matrix",
		"replace_letter",
		"write_string",
	} {
		t.Run(name, func(t *testing.T) {
			sc := loadTestScenario(t, name)
			result, err := Run(sc)
			require.NoError(t, err)
			Verify(t, sc, result)
		})
	}
}

func TestRun_TraceShape(t *testing.T) {
	sc := loadTestScenario(t, "reverse_small")
	result, err := Run(sc)
	require.NoError(t, err)

	require.Len(t, result.Trace, 2)
	assert.Equal(t, store.LegRequest, result.Trace[0].Leg)
	assert.Equal(t, store.LegResponse, result.Trace[1].Leg)
	assert.Equal(t, store.DirectionForward, result.Trace[0].Direction)
	assert.Equal(t, "call-0001", result.Trace[0].CallID)
	assert.Equal(t, result.Trace[0].CallID, result.Trace[1].CallID)
	assert.Equal(t, 1, result.Trace[0].Segments)
	assert.Equal(t, 5, result.Trace[0].Bytes)
	assert.Equal(t, 5, result.Trace[1].Bytes)
}

func TestGolden_NoopRoundTrip(t *testing.T) {
	sc := loadTestScenario(t, "noop_roundtrip")
	result, err := Run(sc)
	require.NoError(t, err)

	require.NoError(t, AssertGolden(t, sc, result))
}

func TestRun_DeterministicTrace(t *testing.T) {
	sc := loadTestScenario(t, "noop_roundtrip")

	first, err := Run(sc)
	require.NoError(t, err)
	second, err := Run(sc)
	require.NoError(t, err)

	require.Len(t, second.Trace, len(first.Trace))
	for i := range first.Trace {
		assert.JSONEq(t, string(first.Trace[i].Envelope), string(second.Trace[i].Envelope))
	}
}
