// Package path locates slots inside a call's argument/return tree.
//
// A path is a sequence of structural coordinates: a non-negative index
// (into the positional argument list, an array, or an aggregate's fields
// by position), a field name, or the RETURN sentinel as first step. The
// same path resolves independently on each side of a call against that
// side's own tree instance, which is how pointer identity survives the
// address-space boundary without ever transmitting an address.
package path

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/anjawa/zugbruecke/internal/wire"
)

// ReturnMarker is the directive vocabulary spelling of the return-value
// anchor. Only legal as the first step.
const ReturnMarker = "RETURN"

// StepKind discriminates the step variants.
type StepKind int

const (
	// StepIndex addresses a positional slot.
	StepIndex StepKind = iota + 1
	// StepName addresses an aggregate field by name.
	StepName
	// StepReturn addresses the routine's return slot.
	StepReturn
)

// Step is one coordinate in a path.
type Step struct {
	Kind  StepKind
	Index int
	Name  string
}

// Index constructs an index step.
func Index(i int) Step { return Step{Kind: StepIndex, Index: i} }

// Name constructs a field-name step.
func Name(n string) Step { return Step{Kind: StepName, Name: n} }

// Return constructs the return-anchor step.
func Return() Step { return Step{Kind: StepReturn} }

// Path is an ordered sequence of steps.
type Path []Step

// Parse converts the raw declaration vocabulary (integers, strings, the
// RETURN sentinel) into a Path. This is the form directive configuration
// files use.
func Parse(raw []any) (Path, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty path")
	}
	p := make(Path, 0, len(raw))
	for i, step := range raw {
		switch v := step.(type) {
		case int:
			if v < 0 {
				return nil, fmt.Errorf("step %d: negative index %d", i, v)
			}
			p = append(p, Index(v))
		case int64:
			if v < 0 {
				return nil, fmt.Errorf("step %d: negative index %d", i, v)
			}
			p = append(p, Index(int(v)))
		case uint64:
			if v > math.MaxInt {
				return nil, fmt.Errorf("step %d: index %d out of range", i, v)
			}
			p = append(p, Index(int(v)))
		case float64:
			// JSON decoding yields float64 for numbers.
			if v != float64(int(v)) || v < 0 {
				return nil, fmt.Errorf("step %d: index must be a non-negative integer, got %v", i, v)
			}
			p = append(p, Index(int(v)))
		case string:
			if v == ReturnMarker {
				if i != 0 {
					return nil, fmt.Errorf("step %d: %s only legal as first step", i, ReturnMarker)
				}
				p = append(p, Return())
				continue
			}
			if v == "" {
				return nil, fmt.Errorf("step %d: empty field name", i)
			}
			p = append(p, Name(v))
		default:
			return nil, fmt.Errorf("step %d: unsupported step type %T", i, step)
		}
	}
	return p, nil
}

// String renders the path for diagnostics, e.g. "RETURN/0/field_a".
func (p Path) String() string {
	var sb strings.Builder
	for i, s := range p {
		if i > 0 {
			sb.WriteByte('/')
		}
		switch s.Kind {
		case StepIndex:
			sb.WriteString(strconv.Itoa(s.Index))
		case StepName:
			sb.WriteString(s.Name)
		case StepReturn:
			sb.WriteString(ReturnMarker)
		}
	}
	return sb.String()
}

// ReturnAnchored reports whether the path starts at the return slot.
func (p Path) ReturnAnchored() bool {
	return len(p) > 0 && p[0].Kind == StepReturn
}

// Error reports a path that does not resolve against a live tree shape.
// Per-call and non-recoverable for that call.
type Error struct {
	Path Path
	// StepIndex is the offset of the failing step.
	StepIndex int
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("path %s: step %d: %s", e.Path, e.StepIndex, e.Reason)
}

// Slot is a resolved, mutable location inside a call tree.
type Slot struct {
	get func() wire.Value
	set func(wire.Value)
}

// Value reads the slot.
func (s Slot) Value() wire.Value { return s.get() }

// Set writes the slot.
func (s Slot) Set(v wire.Value) { s.set(v) }

// Resolve walks the path against a live call tree and returns the
// addressed slot. Resolution fails with *Error if any step does not
// exist in the tree's shape, including RETURN against a call that has
// not produced a return slot yet.
func Resolve(call *wire.Call, p Path) (Slot, error) {
	if len(p) == 0 {
		return Slot{}, &Error{Path: p, StepIndex: 0, Reason: "empty path"}
	}

	var slot Slot
	first := p[0]
	switch first.Kind {
	case StepIndex:
		if first.Index >= len(call.Args) {
			return Slot{}, &Error{Path: p, StepIndex: 0,
				Reason: fmt.Sprintf("argument index %d out of range (%d arguments)", first.Index, len(call.Args))}
		}
		i := first.Index
		slot = Slot{
			get: func() wire.Value { return call.Args[i] },
			set: func(v wire.Value) { call.Args[i] = v },
		}
	case StepReturn:
		if call.Return == nil {
			return Slot{}, &Error{Path: p, StepIndex: 0, Reason: "call has no return slot"}
		}
		slot = Slot{
			get: func() wire.Value { return call.Return },
			set: func(v wire.Value) { call.Return = v },
		}
	case StepName:
		return Slot{}, &Error{Path: p, StepIndex: 0, Reason: "first step must be an argument index or RETURN"}
	}

	for si := 1; si < len(p); si++ {
		step := p[si]
		next, err := descend(slot, step)
		if err != nil {
			return Slot{}, &Error{Path: p, StepIndex: si, Reason: err.Error()}
		}
		slot = next
	}
	return slot, nil
}

// descend moves one step deeper from the value currently in slot.
func descend(slot Slot, step Step) (Slot, error) {
	switch container := slot.Value().(type) {
	case *wire.Aggregate:
		idx := -1
		switch step.Kind {
		case StepName:
			idx = container.FieldByName(step.Name)
			if idx < 0 {
				return Slot{}, fmt.Errorf("aggregate has no field %q", step.Name)
			}
		case StepIndex:
			if step.Index >= len(container.Fields) {
				return Slot{}, fmt.Errorf("field index %d out of range (%d fields)", step.Index, len(container.Fields))
			}
			idx = step.Index
		case StepReturn:
			return Slot{}, fmt.Errorf("RETURN only legal as first step")
		}
		i := idx
		return Slot{
			get: func() wire.Value { return container.Fields[i].Value },
			set: func(v wire.Value) { container.Fields[i].Value = v },
		}, nil

	case *wire.Array:
		if step.Kind != StepIndex {
			return Slot{}, fmt.Errorf("array requires an index step")
		}
		if step.Index >= len(container.Elems) {
			return Slot{}, fmt.Errorf("array index %d out of range (%d elements)", step.Index, len(container.Elems))
		}
		i := step.Index
		return Slot{
			get: func() wire.Value { return container.Elems[i] },
			set: func(v wire.Value) { container.Elems[i] = v },
		}, nil

	default:
		return Slot{}, fmt.Errorf("cannot descend into %T", container)
	}
}
