package memsync

import (
	"fmt"
	"sync"

	"golang.org/x/text/encoding/unicode"

	"github.com/anjawa/zugbruecke/internal/wire"
)

// Converter presents segment bytes as a structured value and back. It
// serves user-defined array/aggregate wrapping: the routine
// implementation (or the callback implementation) sees a wire.Value
// built by FromBytes instead of raw bytes.
type Converter struct {
	Name string

	// FromBytes builds a value from raw segment bytes.
	FromBytes func(b []byte, elemSize int) (wire.Value, error)

	// ToBytes flattens a value back into segment bytes.
	ToBytes func(v wire.Value, elemSize int) ([]byte, error)
}

// ConverterRegistry holds named converters. Read-mostly after setup,
// safe for concurrent reads.
type ConverterRegistry struct {
	mu sync.RWMutex
	m  map[string]*Converter
}

// NewConverterRegistry returns a registry seeded with the built-in
// converters.
func NewConverterRegistry() *ConverterRegistry {
	r := &ConverterRegistry{m: make(map[string]*Converter, 4)}
	r.m[utf16Converter.Name] = utf16Converter
	return r
}

// Register adds a converter. Duplicate names are rejected.
func (r *ConverterRegistry) Register(c *Converter) error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("converter needs a name")
	}
	if c.FromBytes == nil || c.ToBytes == nil {
		return fmt.Errorf("converter %q needs FromBytes and ToBytes", c.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.m[c.Name]; exists {
		return fmt.Errorf("converter %q already registered", c.Name)
	}
	r.m[c.Name] = c
	return nil
}

// Get returns the named converter.
func (r *ConverterRegistry) Get(name string) (*Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.m[name]
	if !ok {
		return nil, fmt.Errorf("no converter named %q", name)
	}
	return c, nil
}

// utf16Converter presents double-byte character segments as Go strings.
// Wide-char buffers on the foreign side are UTF-16LE.
var utf16Converter = &Converter{
	Name: "utf16le",
	FromBytes: func(b []byte, elemSize int) (wire.Value, error) {
		if elemSize != 2 {
			return nil, fmt.Errorf("utf16le converter requires 2-byte elements, got %d", elemSize)
		}
		// Drop the terminator element if present.
		if len(b) >= 2 && b[len(b)-1] == 0 && b[len(b)-2] == 0 {
			b = b[:len(b)-2]
		}
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		s, err := dec.Bytes(b)
		if err != nil {
			return nil, fmt.Errorf("decode UTF-16LE: %w", err)
		}
		return wire.Str(string(s)), nil
	},
	ToBytes: func(v wire.Value, elemSize int) ([]byte, error) {
		if elemSize != 2 {
			return nil, fmt.Errorf("utf16le converter requires 2-byte elements, got %d", elemSize)
		}
		s, ok := v.(wire.Str)
		if !ok {
			return nil, fmt.Errorf("utf16le converter requires a string value, got %T", v)
		}
		enc := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder()
		b, err := enc.Bytes([]byte(string(s)))
		if err != nil {
			return nil, fmt.Errorf("encode UTF-16LE: %w", err)
		}
		// Re-append the terminator element.
		return append(b, 0, 0), nil
	},
}
