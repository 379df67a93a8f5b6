package memsync

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/anjawa/zugbruecke/internal/combiner"
	"github.com/anjawa/zugbruecke/internal/ctypes"
	"github.com/anjawa/zugbruecke/internal/path"
)

// RawDirective is the declaration form of one synchronization rule, as
// it appears in configuration. Paths use the integer / field-name /
// "RETURN" vocabulary.
type RawDirective struct {
	// Pointer locates the pointer-valued slot.
	Pointer []any `yaml:"pointer" json:"pointer"`

	// Length locates a single integer item count. Mutually exclusive
	// with Lengths.
	Length []any `yaml:"length,omitempty" json:"length,omitempty"`

	// Lengths locates a tuple of numeric inputs combined by Combine.
	Lengths [][]any `yaml:"lengths,omitempty" json:"lengths,omitempty"`

	// Combine is the combining function source (an expression over
	// x0..x{N-1} where N = len(Lengths)). Required with Lengths.
	Combine string `yaml:"combine,omitempty" json:"combine,omitempty"`

	// NullTerminated switches length determination to a terminator scan.
	NullTerminated bool `yaml:"null_terminated,omitempty" json:"null_terminated,omitempty"`

	// WideChar selects double-byte character units for scans and string
	// conversion.
	WideChar bool `yaml:"wide_char,omitempty" json:"wide_char,omitempty"`

	// ElementType sizes one item. Defaults to uint8.
	ElementType string `yaml:"element_type,omitempty" json:"element_type,omitempty"`

	// Converter names a registered custom converter for user-defined
	// array/aggregate wrapping of the segment bytes.
	Converter string `yaml:"converter,omitempty" json:"converter,omitempty"`

	// CalleeAllocated marks a segment the foreign side fills from
	// scratch: no bytes travel outbound, only a capacity hint.
	CalleeAllocated bool `yaml:"callee_allocated,omitempty" json:"callee_allocated,omitempty"`
}

// ParseDirectivesYAML decodes a directive list from YAML configuration.
func ParseDirectivesYAML(data []byte) ([]RawDirective, error) {
	var raw []RawDirective
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigurationError{Directive: -1, Message: fmt.Sprintf("parse YAML: %v", err)}
	}
	return raw, nil
}

// LoadDirectives reads a YAML directive list from r.
func LoadDirectives(r io.Reader) ([]RawDirective, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return ParseDirectivesYAML(data)
}

// lengthKind discriminates the length-determination strategies. The
// fixed-array strategy is transparent and never reaches the directive
// machinery: bounded arrays carry their own length.
type lengthKind int

const (
	// lengthNone: no computed length; only legal with a terminator scan
	// or a callee-allocated segment with a capacity source.
	lengthNone lengthKind = iota
	// lengthSingle: read one integer slot.
	lengthSingle
	// lengthTuple: combine several numeric slots through a function.
	lengthTuple
)

// Directive is the compiled, validated form of one rule. Immutable
// after compilation and shared by every invocation of the signature.
type Directive struct {
	Pointer         path.Path
	NullTerminated  bool
	WideChar        bool
	ElementType     ctypes.Tag
	ElemSize        int
	CalleeAllocated bool

	lenKind  lengthKind
	lenPaths []path.Path
	lenFn    *combiner.Func

	conv *Converter
}

// ReturnAnchored reports whether the directive only participates in the
// inbound leg.
func (d *Directive) ReturnAnchored() bool {
	return d.Pointer.ReturnAnchored()
}

// CustomConverter returns the directive's custom converter, or nil.
func (d *Directive) CustomConverter() *Converter { return d.conv }

// Set is a compiled directive set owned by one routine or callback
// signature. Resolved once at registration and reused, read-only, for
// every invocation.
type Set struct {
	directives []*Directive
}

// Directives returns the compiled directives in declaration order.
func (s *Set) Directives() []*Directive {
	return s.directives
}

// Empty reports whether the set synchronizes nothing.
func (s *Set) Empty() bool {
	return s == nil || len(s.directives) == 0
}

// CompileSet validates and compiles a raw directive list against the
// type and converter registries. All configuration errors surface here,
// at registration time, never at call time.
func CompileSet(types *ctypes.Registry, convs *ConverterRegistry, raw []RawDirective) (*Set, error) {
	set := &Set{directives: make([]*Directive, 0, len(raw))}
	seen := make(map[string]int, len(raw))

	for i, rd := range raw {
		d, err := compileDirective(types, convs, rd)
		if err != nil {
			if ce, ok := err.(*ConfigurationError); ok {
				ce.Directive = i
				return nil, ce
			}
			// Keep typed errors (unknown type tags) intact for errors.As.
			return nil, fmt.Errorf("directive %d: %w", i, err)
		}

		key := d.Pointer.String()
		if prev, dup := seen[key]; dup {
			return nil, &ConfigurationError{
				Directive: i,
				Message:   fmt.Sprintf("duplicate pointer path %s (already used by directive %d)", key, prev),
			}
		}
		seen[key] = i

		set.directives = append(set.directives, d)
	}
	return set, nil
}

func compileDirective(types *ctypes.Registry, convs *ConverterRegistry, rd RawDirective) (*Directive, error) {
	ptr, err := path.Parse(rd.Pointer)
	if err != nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("pointer path: %v", err)}
	}

	d := &Directive{
		Pointer:         ptr,
		NullTerminated:  rd.NullTerminated,
		WideChar:        rd.WideChar,
		CalleeAllocated: rd.CalleeAllocated,
	}

	// Element type. Wide-char directives default to the double-byte
	// character unit; everything else to the single-byte unsigned type.
	elem := ctypes.Tag(rd.ElementType)
	if elem == "" {
		if rd.WideChar {
			elem = ctypes.WChar
		} else {
			elem = ctypes.UInt8
		}
	}
	size, err := types.SizeOf(elem)
	if err != nil {
		// Unregistered tag referenced by a directive: fatal to
		// registering this signature.
		return nil, err
	}
	d.ElementType = elem
	d.ElemSize = size

	if rd.WideChar && size != 2 {
		return nil, &ConfigurationError{
			Message: fmt.Sprintf("wide_char requires a double-byte element type, %s is %d bytes", elem, size),
		}
	}

	// Length strategy.
	switch {
	case len(rd.Length) > 0 && len(rd.Lengths) > 0:
		return nil, &ConfigurationError{Message: "length and lengths are mutually exclusive"}

	case len(rd.Length) > 0:
		if rd.Combine != "" {
			return nil, &ConfigurationError{Message: "combine requires a lengths tuple, not a single length path"}
		}
		p, err := path.Parse(rd.Length)
		if err != nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("length path: %v", err)}
		}
		d.lenKind = lengthSingle
		d.lenPaths = []path.Path{p}

	case len(rd.Lengths) > 0:
		if rd.Combine == "" {
			return nil, &ConfigurationError{Message: "lengths tuple requires a combine function"}
		}
		paths := make([]path.Path, len(rd.Lengths))
		for j, rawPath := range rd.Lengths {
			p, err := path.Parse(rawPath)
			if err != nil {
				return nil, &ConfigurationError{Message: fmt.Sprintf("lengths[%d]: %v", j, err)}
			}
			paths[j] = p
		}
		fn, err := combiner.Compile(rd.Combine, len(paths))
		if err != nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("combine: %v", err)}
		}
		d.lenKind = lengthTuple
		d.lenPaths = paths
		d.lenFn = fn

	default:
		if !rd.NullTerminated {
			// Neither a length spec nor a terminator: nothing could ever
			// size this segment.
			return nil, &ConfigurationError{Message: "directive needs a length, a lengths tuple, or null_terminated"}
		}
		d.lenKind = lengthNone
	}

	if rd.Converter != "" {
		conv, err := convs.Get(rd.Converter)
		if err != nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("converter: %v", err)}
		}
		d.conv = conv
	}

	return d, nil
}
