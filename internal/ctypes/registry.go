// Package ctypes maps foreign type tags to the byte sizes and alignments
// the foreign ABI expects. The layout rules are a fixed external
// contract: a registered struct must occupy exactly the bytes the
// foreign routine believes it occupies.
package ctypes

import (
	"errors"
	"fmt"
	"sync"
)

// Tag identifies a fundamental or user-registered aggregate type.
type Tag string

// Built-in fundamental type tags.
const (
	Int8    Tag = "int8"
	UInt8   Tag = "uint8"
	Int16   Tag = "int16"
	UInt16  Tag = "uint16"
	Int32   Tag = "int32"
	UInt32  Tag = "uint32"
	Int64   Tag = "int64"
	UInt64  Tag = "uint64"
	Float32 Tag = "float32"
	Float64 Tag = "float64"
	Char    Tag = "char"
	WChar   Tag = "wchar" // double-byte character unit
	CBool   Tag = "bool"
	Pointer Tag = "pointer" // 64-bit foreign sides
)

// UnknownTypeError reports a type tag with no registration.
type UnknownTypeError struct {
	Tag Tag
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type tag %q", e.Tag)
}

// IsUnknownType returns true if the error is an UnknownTypeError.
// Uses errors.As to handle wrapped errors.
func IsUnknownType(err error) bool {
	var ue *UnknownTypeError
	return errors.As(err, &ue)
}

// StructField declares one member of a foreign struct, in declaration
// order.
type StructField struct {
	Name string
	Type Tag
}

type typeInfo struct {
	size  int
	align int
}

// Registry maps type tags to sizes. Reads are concurrent; registration
// is serialized by the internal lock and should complete before call
// traffic begins.
type Registry struct {
	mu    sync.RWMutex
	types map[Tag]typeInfo
}

// NewRegistry returns a registry seeded with the built-in fundamental
// tags.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[Tag]typeInfo, 16)}
	for tag, info := range builtins {
		r.types[tag] = info
	}
	return r
}

var builtins = map[Tag]typeInfo{
	Int8:    {1, 1},
	UInt8:   {1, 1},
	Int16:   {2, 2},
	UInt16:  {2, 2},
	Int32:   {4, 4},
	UInt32:  {4, 4},
	Int64:   {8, 8},
	UInt64:  {8, 8},
	Float32: {4, 4},
	Float64: {8, 8},
	Char:    {1, 1},
	WChar:   {2, 2},
	CBool:   {1, 1},
	Pointer: {8, 8},
}

// SizeOf returns the byte size of one item of the given type.
func (r *Registry) SizeOf(tag Tag) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.types[tag]
	if !ok {
		return 0, &UnknownTypeError{Tag: tag}
	}
	return info.size, nil
}

// AlignOf returns the alignment requirement of the given type.
func (r *Registry) AlignOf(tag Tag) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.types[tag]
	if !ok {
		return 0, &UnknownTypeError{Tag: tag}
	}
	return info.align, nil
}

// Known reports whether the tag is registered.
func (r *Registry) Known(tag Tag) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[tag]
	return ok
}

// RegisterStruct registers an aggregate tag with a size computed from
// its declared fields using C struct layout: each field is aligned to
// its own alignment, and the total is padded to the widest field
// alignment. All field types must already be registered.
func (r *Registry) RegisterStruct(name Tag, fields []StructField) error {
	if name == "" {
		return fmt.Errorf("struct tag must not be empty")
	}
	if len(fields) == 0 {
		return fmt.Errorf("struct %q: at least one field required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return fmt.Errorf("type tag %q already registered", name)
	}

	offset := 0
	maxAlign := 1
	for _, f := range fields {
		info, ok := r.types[f.Type]
		if !ok {
			return &UnknownTypeError{Tag: f.Type}
		}
		offset = alignUp(offset, info.align)
		offset += info.size
		if info.align > maxAlign {
			maxAlign = info.align
		}
	}
	size := alignUp(offset, maxAlign)

	r.types[name] = typeInfo{size: size, align: maxAlign}
	return nil
}

func alignUp(n, align int) int {
	rem := n % align
	if rem == 0 {
		return n
	}
	return n + align - rem
}
