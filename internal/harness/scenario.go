package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/anjawa/zugbruecke/internal/memsync"
)

// Scenario defines one conformance test case: a routine signature with
// its directives, the simulated foreign behavior serving it, the input
// arguments, and the expected state after the call returns.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are stored
	// under testdata/golden/{Name}.golden.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Routine is the registered routine name.
	Routine string `yaml:"routine"`

	// Behavior names the simulated foreign implementation.
	Behavior string `yaml:"behavior"`

	// Payload parameterizes behaviors that produce content (write_string).
	Payload string `yaml:"payload,omitempty"`

	// Directives is the routine's synchronization rule list, in the same
	// declaration form used by real registrations.
	Directives []memsync.RawDirective `yaml:"directives,omitempty"`

	// Args are the call arguments.
	Args []ArgSpec `yaml:"args"`

	// Expect describes the post-call state.
	Expect ExpectSpec `yaml:"expect"`
}

// ArgSpec declares one argument. Exactly one of the value fields must
// be set.
type ArgSpec struct {
	// Int is a scalar integer argument.
	Int *int64 `yaml:"int,omitempty"`

	// Buffer is a byte buffer argument given as a list of byte values.
	Buffer []int `yaml:"buffer,omitempty"`

	// Text is a buffer argument holding a terminated string. Capacity
	// pads the buffer beyond the text and its terminator.
	Text *string `yaml:"text,omitempty"`

	// Capacity sizes a Text buffer. Ignored for other argument kinds.
	Capacity int `yaml:"capacity,omitempty"`

	// Null is an explicit NULL pointer argument. The key avoids the
	// reserved YAML null scalar.
	Null bool `yaml:"is_null,omitempty"`
}

// ExpectSpec describes the expected post-call state. All checks are
// optional; absent fields are not validated.
type ExpectSpec struct {
	// ReturnInt is the expected integer return value.
	ReturnInt *int64 `yaml:"return_int,omitempty"`

	// Buffers maps argument index to expected full buffer content.
	Buffers map[int][]int `yaml:"buffers,omitempty"`

	// Texts maps argument index to the expected terminated string.
	Texts map[int]string `yaml:"texts,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields
// are rejected so typos fail loudly instead of silently validating
// nothing.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Routine == "" {
		return fmt.Errorf("routine is required")
	}
	if s.Behavior == "" {
		return fmt.Errorf("behavior is required")
	}
	if _, ok := behaviors[s.Behavior]; !ok {
		return fmt.Errorf("unknown behavior %q", s.Behavior)
	}

	for i, arg := range s.Args {
		if err := validateArg(i, &arg); err != nil {
			return err
		}
	}

	for idx := range s.Expect.Buffers {
		if err := expectIndexInRange(idx, len(s.Args)); err != nil {
			return err
		}
	}
	for idx := range s.Expect.Texts {
		if err := expectIndexInRange(idx, len(s.Args)); err != nil {
			return err
		}
	}
	return nil
}

func validateArg(index int, a *ArgSpec) error {
	set := 0
	if a.Int != nil {
		set++
	}
	if a.Buffer != nil {
		set++
	}
	if a.Text != nil {
		set++
	}
	if a.Null {
		set++
	}
	if set != 1 {
		return fmt.Errorf("args[%d]: exactly one of int, buffer, text, is_null is required", index)
	}
	for i, b := range a.Buffer {
		if b < 0 || b > 255 {
			return fmt.Errorf("args[%d]: buffer[%d] value %d out of byte range", index, i, b)
		}
	}
	return nil
}

func expectIndexInRange(idx, n int) error {
	if idx < 0 || idx >= n {
		return fmt.Errorf("expect: argument index %d out of range (have %d args)", idx, n)
	}
	return nil
}
