package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anjawa/zugbruecke/internal/wire"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  []any
		want string
	}{
		{"single index", []any{0}, "0"},
		{"index then name", []any{0, "field_a"}, "0/field_a"},
		{"return anchored", []any{"RETURN"}, "RETURN"},
		{"return then index", []any{"RETURN", 1, "len"}, "RETURN/1/len"},
		{"json numbers", []any{float64(2), "data"}, "2/data"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.String())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  []any
	}{
		{"empty", nil},
		{"negative index", []any{-1}},
		{"return mid-path", []any{0, "RETURN"}},
		{"fractional index", []any{float64(1.5)}},
		{"unsigned index out of range", []any{uint64(1) << 63}},
		{"empty name", []any{0, ""}},
		{"bool step", []any{true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.Error(t, err)
		})
	}
}

func TestReturnAnchored(t *testing.T) {
	p, err := Parse([]any{"RETURN", 0})
	require.NoError(t, err)
	assert.True(t, p.ReturnAnchored())

	p, err = Parse([]any{0})
	require.NoError(t, err)
	assert.False(t, p.ReturnAnchored())
}

func TestResolve_Argument(t *testing.T) {
	call := &wire.Call{Args: []wire.Value{wire.Int(7), wire.Str("x")}}

	slot, err := Resolve(call, Path{Index(1)})
	require.NoError(t, err)
	assert.Equal(t, wire.Str("x"), slot.Value())

	slot.Set(wire.Str("y"))
	assert.Equal(t, wire.Str("y"), call.Args[1])
}

func TestResolve_NestedAggregate(t *testing.T) {
	buf := &wire.Buffer{Bytes: []byte("abc")}
	call := &wire.Call{Args: []wire.Value{
		&wire.Aggregate{Fields: []wire.Field{
			{Name: "len", Value: wire.Int(3)},
			{Name: "field_a", Value: buf},
		}},
	}}

	slot, err := Resolve(call, Path{Index(0), Name("field_a")})
	require.NoError(t, err)
	assert.Same(t, buf, slot.Value())

	// Positional addressing of aggregate fields works too.
	slot, err = Resolve(call, Path{Index(0), Index(0)})
	require.NoError(t, err)
	assert.Equal(t, wire.Int(3), slot.Value())
}

func TestResolve_ArrayOfStructs(t *testing.T) {
	call := &wire.Call{Args: []wire.Value{
		&wire.Array{Elems: []wire.Value{
			&wire.Aggregate{Fields: []wire.Field{{Name: "n", Value: wire.Int(1)}}},
			&wire.Aggregate{Fields: []wire.Field{{Name: "n", Value: wire.Int(2)}}},
		}},
	}}

	slot, err := Resolve(call, Path{Index(0), Index(1), Name("n")})
	require.NoError(t, err)
	assert.Equal(t, wire.Int(2), slot.Value())

	slot.Set(wire.Int(9))
	inner := call.Args[0].(*wire.Array).Elems[1].(*wire.Aggregate)
	assert.Equal(t, wire.Int(9), inner.Fields[0].Value)
}

func TestResolve_Return(t *testing.T) {
	call := &wire.Call{Args: []wire.Value{}, Return: wire.Int(42)}

	slot, err := Resolve(call, Path{Return()})
	require.NoError(t, err)
	assert.Equal(t, wire.Int(42), slot.Value())
}

func TestResolve_ReturnBeforeProduced(t *testing.T) {
	call := &wire.Call{Args: []wire.Value{wire.Int(1)}}

	_, err := Resolve(call, Path{Return()})
	require.Error(t, err)

	var pe *Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 0, pe.StepIndex)
}

func TestResolve_Errors(t *testing.T) {
	call := &wire.Call{Args: []wire.Value{
		&wire.Aggregate{Fields: []wire.Field{{Name: "a", Value: wire.Int(1)}}},
		wire.Int(5),
	}}

	tests := []struct {
		name string
		p    Path
		step int
	}{
		{"arg index out of range", Path{Index(2)}, 0},
		{"unknown field", Path{Index(0), Name("missing")}, 1},
		{"field index out of range", Path{Index(0), Index(3)}, 1},
		{"descend into scalar", Path{Index(1), Index(0)}, 1},
		{"name as first step", Path{Name("a")}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Resolve(call, tt.p)
			require.Error(t, err)

			var pe *Error
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.step, pe.StepIndex)
		})
	}
}
