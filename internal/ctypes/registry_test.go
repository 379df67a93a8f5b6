package ctypes

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeOf_Builtins(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		tag  Tag
		size int
	}{
		{UInt8, 1},
		{Int16, 2},
		{Int32, 4},
		{Int64, 8},
		{Float32, 4},
		{Float64, 8},
		{Char, 1},
		{WChar, 2},
		{Pointer, 8},
	}

	for _, tt := range tests {
		got, err := r.SizeOf(tt.tag)
		require.NoError(t, err, "tag %s", tt.tag)
		assert.Equal(t, tt.size, got, "tag %s", tt.tag)
	}
}

func TestSizeOf_Unknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.SizeOf("vertex")
	require.Error(t, err)
	assert.True(t, IsUnknownType(err))

	var ue *UnknownTypeError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, Tag("vertex"), ue.Tag)
}

func TestRegisterStruct_Padding(t *testing.T) {
	r := NewRegistry()

	// struct { int8; int32; int8 } -> 1 + pad(3) + 4 + 1 + pad(3) = 12
	err := r.RegisterStruct("padded", []StructField{
		{Name: "a", Type: Int8},
		{Name: "b", Type: Int32},
		{Name: "c", Type: Int8},
	})
	require.NoError(t, err)

	size, err := r.SizeOf("padded")
	require.NoError(t, err)
	assert.Equal(t, 12, size)

	align, err := r.AlignOf("padded")
	require.NoError(t, err)
	assert.Equal(t, 4, align)
}

func TestRegisterStruct_Packed(t *testing.T) {
	r := NewRegistry()

	// struct { int16; int16 } -> 4, no padding needed
	require.NoError(t, r.RegisterStruct("point16", []StructField{
		{Name: "x", Type: Int16},
		{Name: "y", Type: Int16},
	}))

	size, err := r.SizeOf("point16")
	require.NoError(t, err)
	assert.Equal(t, 4, size)
}

func TestRegisterStruct_Nested(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterStruct("inner", []StructField{
		{Name: "x", Type: Float64},
		{Name: "tag", Type: Char},
	}))
	// inner: 8 + 1 + pad(7) = 16, align 8

	size, err := r.SizeOf("inner")
	require.NoError(t, err)
	require.Equal(t, 16, size)

	require.NoError(t, r.RegisterStruct("outer", []StructField{
		{Name: "flag", Type: Char},
		{Name: "body", Type: "inner"},
	}))
	// outer: 1 + pad(7) + 16 = 24, align 8

	size, err = r.SizeOf("outer")
	require.NoError(t, err)
	assert.Equal(t, 24, size)
}

func TestRegisterStruct_UnknownField(t *testing.T) {
	r := NewRegistry()

	err := r.RegisterStruct("broken", []StructField{
		{Name: "x", Type: "no_such_type"},
	})
	require.Error(t, err)
	assert.True(t, IsUnknownType(err))

	// A failed registration must not leave a partial entry behind.
	assert.False(t, r.Known("broken"))
}

func TestRegisterStruct_Duplicate(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.RegisterStruct("vec", []StructField{{Name: "x", Type: Int32}}))
	err := r.RegisterStruct("vec", []StructField{{Name: "x", Type: Int64}})
	assert.Error(t, err)

	// Original registration survives.
	size, err := r.SizeOf("vec")
	require.NoError(t, err)
	assert.Equal(t, 4, size)
}

func TestRegisterStruct_Empty(t *testing.T) {
	r := NewRegistry()
	assert.Error(t, r.RegisterStruct("empty", nil))
	assert.Error(t, r.RegisterStruct("", []StructField{{Name: "x", Type: Int8}}))
}

func TestRegistry_ConcurrentReads(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.RegisterStruct("vec2", []StructField{
		{Name: "x", Type: Float32},
		{Name: "y", Type: Float32},
	}))

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				size, err := r.SizeOf("vec2")
				if err != nil || size != 8 {
					t.Errorf("SizeOf(vec2) = %d, %v", size, err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
