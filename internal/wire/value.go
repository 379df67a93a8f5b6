package wire

import (
	"encoding/json"
	"fmt"
)

// Value is a sealed interface over everything a call tree can hold.
// Only the types in this file implement it.
//
// Scalars travel by value. Buffer is the one identity-bearing kind: it is
// the caller-owned byte region behind a pointer argument, and write-back
// mutates it in place. Buffers never appear on the wire; the synchronizer
// replaces them with SegmentRef before an envelope is encoded.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null represents an absent or NULL-pointer value.
type Null struct{}

func (Null) value() {}

// Int represents a signed integer argument. Always int64 on the tree;
// the declared foreign type governs its width on the foreign side.
type Int int64

func (Int) value() {}

// Uint represents an unsigned integer argument.
type Uint uint64

func (Uint) value() {}

// Float represents a floating-point argument.
type Float float64

func (Float) value() {}

// Bool represents a boolean argument.
type Bool bool

func (Bool) value() {}

// Str represents an immutable string argument (passed by value, never
// synchronized - synchronized character data lives in a Buffer).
type Str string

func (Str) value() {}

// Buffer is a mutable byte region owned by exactly one side of a call.
// It stands in for a pointer target: two processes each hold their own
// Buffer instance for the same logical memory, and the synchronizer
// copies bytes between them around the call.
type Buffer struct {
	// Bytes is the live content. Write-back copies into this slice (or
	// replaces it, for callee-allocated segments that start empty).
	Bytes []byte

	// Capacity hints how many bytes the foreign side may produce when
	// Bytes starts empty. Zero means "same as len(Bytes)".
	Capacity int
}

func (*Buffer) value() {}

// Len returns the usable byte capacity of the buffer.
func (b *Buffer) Len() int {
	if len(b.Bytes) > b.Capacity {
		return len(b.Bytes)
	}
	return b.Capacity
}

// Field is one named member of an Aggregate. Order is significant: it is
// the foreign struct's declaration order, and index steps may address
// fields positionally.
type Field struct {
	Name  string
	Value Value
}

// Aggregate represents a struct passed by value: an ordered sequence of
// named sub-slots.
type Aggregate struct {
	Fields []Field
}

func (*Aggregate) value() {}

// FieldByName returns the index of the named field, or -1.
func (a *Aggregate) FieldByName(name string) int {
	for i := range a.Fields {
		if a.Fields[i].Name == name {
			return i
		}
	}
	return -1
}

// Array represents a bounded array passed by value: an ordered sequence
// of same-typed sub-slots. Bounded arrays carry their own length, so they
// never need a memsync directive.
type Array struct {
	Elems []Value
}

func (*Array) value() {}

// SegmentRef replaces a Buffer in a transmitted tree. The ID resolves
// against the envelope's segment list.
type SegmentRef struct {
	SegmentID string
}

func (SegmentRef) value() {}

// CallbackRef replaces a callback argument in a transmitted tree. The
// foreign side invokes the callback through the stub ID; Signature names
// the callback signature whose directive set governs the reversed legs.
type CallbackRef struct {
	StubID    string
	Signature string
}

func (CallbackRef) value() {}

// Call is one live argument/return tree. It is constructed fresh per
// call attempt and discarded when the call completes.
type Call struct {
	Args []Value

	// Return is nil until the call has produced a result.
	Return Value
}

// Clone produces a deep copy of v. Buffer contents are copied too, so a
// clone shares no mutable state with the original tree.
func Clone(v Value) Value {
	switch val := v.(type) {
	case nil:
		return nil
	case Null, Int, Uint, Float, Bool, Str, SegmentRef, CallbackRef:
		return val
	case *Buffer:
		b := make([]byte, len(val.Bytes))
		copy(b, val.Bytes)
		return &Buffer{Bytes: b, Capacity: val.Capacity}
	case *Aggregate:
		fields := make([]Field, len(val.Fields))
		for i, f := range val.Fields {
			fields[i] = Field{Name: f.Name, Value: Clone(f.Value)}
		}
		return &Aggregate{Fields: fields}
	case *Array:
		elems := make([]Value, len(val.Elems))
		for i, e := range val.Elems {
			elems[i] = Clone(e)
		}
		return &Array{Elems: elems}
	default:
		panic(fmt.Sprintf("wire: unknown Value type %T", v))
	}
}

// CloneValues deep-copies a slice of values.
func CloneValues(vs []Value) []Value {
	out := make([]Value, len(vs))
	for i, v := range vs {
		out[i] = Clone(v)
	}
	return out
}

// jsonValue is the tagged wire form of a Value.
type jsonValue struct {
	Kind      string       `json:"k"`
	Int       *int64       `json:"i,omitempty"`
	Uint      *uint64      `json:"u,omitempty"`
	Float     *float64     `json:"f,omitempty"`
	Bool      *bool        `json:"b,omitempty"`
	Str       *string      `json:"s,omitempty"`
	Fields    []jsonField  `json:"fields,omitempty"`
	Elems     []*jsonValue `json:"elems,omitempty"`
	SegmentID string       `json:"segment_id,omitempty"`
	StubID    string       `json:"stub_id,omitempty"`
	Signature string       `json:"signature,omitempty"`
	Bytes     string       `json:"bytes,omitempty"`
	Capacity  int          `json:"capacity,omitempty"`
}

type jsonField struct {
	Name  string     `json:"name"`
	Value *jsonValue `json:"value"`
}

func toJSONValue(v Value) (*jsonValue, error) {
	switch val := v.(type) {
	case Null:
		return &jsonValue{Kind: "null"}, nil
	case Int:
		i := int64(val)
		return &jsonValue{Kind: "int", Int: &i}, nil
	case Uint:
		u := uint64(val)
		return &jsonValue{Kind: "uint", Uint: &u}, nil
	case Float:
		f := float64(val)
		return &jsonValue{Kind: "float", Float: &f}, nil
	case Bool:
		b := bool(val)
		return &jsonValue{Kind: "bool", Bool: &b}, nil
	case Str:
		s := string(val)
		return &jsonValue{Kind: "str", Str: &s}, nil
	case *Buffer:
		// Buffers are process-local. Encoding one means a synchronizer
		// bug: the pointer slot was not replaced by a SegmentRef.
		return nil, fmt.Errorf("wire: buffer cannot be encoded; expected a segment reference")
	case *Aggregate:
		fields := make([]jsonField, len(val.Fields))
		for i, f := range val.Fields {
			jv, err := toJSONValue(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			fields[i] = jsonField{Name: f.Name, Value: jv}
		}
		return &jsonValue{Kind: "struct", Fields: fields}, nil
	case *Array:
		elems := make([]*jsonValue, len(val.Elems))
		for i, e := range val.Elems {
			jv, err := toJSONValue(e)
			if err != nil {
				return nil, fmt.Errorf("elem %d: %w", i, err)
			}
			elems[i] = jv
		}
		return &jsonValue{Kind: "array", Elems: elems}, nil
	case SegmentRef:
		return &jsonValue{Kind: "segment", SegmentID: val.SegmentID}, nil
	case CallbackRef:
		return &jsonValue{Kind: "callback", StubID: val.StubID, Signature: val.Signature}, nil
	default:
		return nil, fmt.Errorf("wire: unknown Value type %T", v)
	}
}

func fromJSONValue(jv *jsonValue) (Value, error) {
	if jv == nil {
		return nil, fmt.Errorf("wire: missing value")
	}
	switch jv.Kind {
	case "null":
		return Null{}, nil
	case "int":
		if jv.Int == nil {
			return nil, fmt.Errorf("wire: int value missing payload")
		}
		return Int(*jv.Int), nil
	case "uint":
		if jv.Uint == nil {
			return nil, fmt.Errorf("wire: uint value missing payload")
		}
		return Uint(*jv.Uint), nil
	case "float":
		if jv.Float == nil {
			return nil, fmt.Errorf("wire: float value missing payload")
		}
		return Float(*jv.Float), nil
	case "bool":
		if jv.Bool == nil {
			return nil, fmt.Errorf("wire: bool value missing payload")
		}
		return Bool(*jv.Bool), nil
	case "str":
		if jv.Str == nil {
			return nil, fmt.Errorf("wire: str value missing payload")
		}
		return Str(*jv.Str), nil
	case "struct":
		fields := make([]Field, len(jv.Fields))
		for i, f := range jv.Fields {
			v, err := fromJSONValue(f.Value)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", f.Name, err)
			}
			fields[i] = Field{Name: f.Name, Value: v}
		}
		return &Aggregate{Fields: fields}, nil
	case "array":
		elems := make([]Value, len(jv.Elems))
		for i, e := range jv.Elems {
			v, err := fromJSONValue(e)
			if err != nil {
				return nil, fmt.Errorf("elem %d: %w", i, err)
			}
			elems[i] = v
		}
		return &Array{Elems: elems}, nil
	case "segment":
		return SegmentRef{SegmentID: jv.SegmentID}, nil
	case "callback":
		return CallbackRef{StubID: jv.StubID, Signature: jv.Signature}, nil
	default:
		return nil, fmt.Errorf("wire: unknown value kind %q", jv.Kind)
	}
}

// MarshalValue encodes a single Value to its wire JSON form.
func MarshalValue(v Value) ([]byte, error) {
	jv, err := toJSONValue(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jv)
}

// UnmarshalValue decodes a single Value from its wire JSON form.
func UnmarshalValue(data []byte) (Value, error) {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return nil, err
	}
	return fromJSONValue(&jv)
}
