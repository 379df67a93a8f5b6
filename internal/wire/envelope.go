package wire

import (
	"encoding/json"
	"fmt"
)

// Segment is one side-channel byte payload attached to an envelope. The
// ID is referenced by a SegmentRef inside the argument/return tree.
type Segment struct {
	ID string `json:"segment_id"`

	// Bytes is the captured content. Empty for callee-allocated segments
	// on the outbound leg.
	Bytes []byte `json:"bytes"`

	// Capacity is the byte capacity the receiving side should allocate
	// when Bytes is empty or shorter than the writable region.
	Capacity int `json:"capacity,omitempty"`
}

// Envelope is the logical wire shape of one call or one callback
// invocation: the argument tree, the optional return tree, and the
// segment payloads referenced from inside them.
type Envelope struct {
	CallID    string    `json:"call_id"`
	Routine   string    `json:"routine"`
	Arguments []Value   `json:"-"`
	Return    Value     `json:"-"`
	Segments  []Segment `json:"segments"`

	// Error carries a remote failure back to the initiator. A response
	// envelope with Error set has no usable tree or segments.
	Error string `json:"error,omitempty"`
}

// SegmentByID returns the segment with the given ID, or nil.
func (e *Envelope) SegmentByID(id string) *Segment {
	for i := range e.Segments {
		if e.Segments[i].ID == id {
			return &e.Segments[i]
		}
	}
	return nil
}

// jsonEnvelope is the encoded form; trees are converted to tagged values.
type jsonEnvelope struct {
	CallID    string       `json:"call_id"`
	Routine   string       `json:"routine"`
	Arguments []*jsonValue `json:"arguments"`
	Return    *jsonValue   `json:"return,omitempty"`
	Segments  []Segment    `json:"segments"`
	Error     string       `json:"error,omitempty"`
}

// MarshalJSON implements json.Marshaler for Envelope.
func (e *Envelope) MarshalJSON() ([]byte, error) {
	je := jsonEnvelope{
		CallID:   e.CallID,
		Routine:  e.Routine,
		Segments: e.Segments,
		Error:    e.Error,
	}
	je.Arguments = make([]*jsonValue, len(e.Arguments))
	for i, a := range e.Arguments {
		jv, err := toJSONValue(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		je.Arguments[i] = jv
	}
	if e.Return != nil {
		jv, err := toJSONValue(e.Return)
		if err != nil {
			return nil, fmt.Errorf("return: %w", err)
		}
		je.Return = jv
	}
	return json.Marshal(je)
}

// UnmarshalJSON implements json.Unmarshaler for Envelope.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	var je jsonEnvelope
	if err := json.Unmarshal(data, &je); err != nil {
		return err
	}
	e.CallID = je.CallID
	e.Routine = je.Routine
	e.Segments = je.Segments
	e.Error = je.Error
	e.Arguments = make([]Value, len(je.Arguments))
	for i, jv := range je.Arguments {
		v, err := fromJSONValue(jv)
		if err != nil {
			return fmt.Errorf("argument %d: %w", i, err)
		}
		e.Arguments[i] = v
	}
	e.Return = nil
	if je.Return != nil {
		v, err := fromJSONValue(je.Return)
		if err != nil {
			return fmt.Errorf("return: %w", err)
		}
		e.Return = v
	}
	return nil
}

// Codec converts envelopes to and from transport bytes.
type Codec interface {
	Encode(env *Envelope) ([]byte, error)
	Decode(data []byte, env *Envelope) error
}

// JSONCodec is the default JSON-based codec.
type JSONCodec struct{}

func (JSONCodec) Encode(env *Envelope) ([]byte, error) {
	return json.Marshal(env)
}

func (JSONCodec) Decode(data []byte, env *Envelope) error {
	return json.Unmarshal(data, env)
}

// DefaultCodec is used when no codec is specified.
var DefaultCodec Codec = JSONCodec{}
