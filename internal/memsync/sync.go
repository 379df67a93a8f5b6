package memsync

import (
	"fmt"

	"github.com/anjawa/zugbruecke/internal/path"
	"github.com/anjawa/zugbruecke/internal/wire"
)

// IDGenerator produces segment identifiers. Implemented by the
// session's UUID generator in production and by a deterministic
// generator in tests.
type IDGenerator interface {
	NewID() string
}

// Synchronizer runs the pre-call capture and post-call write-back for a
// directive set. It holds no per-call state: everything ephemeral lives
// in the CallState returned by the capture primitives, so independent
// calls never share mutable state.
type Synchronizer struct {
	ids IDGenerator
}

// NewSynchronizer creates a synchronizer using the given segment ID
// source.
func NewSynchronizer(ids IDGenerator) *Synchronizer {
	return &Synchronizer{ids: ids}
}

// CallState is the ephemeral per-call record linking directives to the
// segments and counts of the outbound leg. Discarded when the call
// completes.
type CallState struct {
	// counts holds the outbound item count per pointer path, or -1 when
	// the count was unknown outbound (callee-allocated terminator case).
	counts map[string]int

	// segIDs holds the segment ID per pointer path, so the response leg
	// reuses the request's identifiers.
	segIDs map[string]string
}

func newCallState() *CallState {
	return &CallState{
		counts: make(map[string]int, 4),
		segIDs: make(map[string]string, 4),
	}
}

// CaptureOutbound runs the initiator's pre-call leg: it clones the
// argument tree for transmission, replaces every directive's pointer
// slot with a segment reference, and captures the addressed bytes as
// side-channel segments. The caller's own tree is left untouched; it is
// the write-back target of the inbound leg.
//
// RETURN-anchored directives are skipped: their segments only exist
// once the remote call has produced a result.
func (s *Synchronizer) CaptureOutbound(set *Set, call *wire.Call) (*wire.Envelope, *CallState, error) {
	env := &wire.Envelope{Arguments: wire.CloneValues(call.Args)}
	state := newCallState()
	if set.Empty() {
		return env, state, nil
	}

	envCall := &wire.Call{Args: env.Arguments}

	for _, d := range set.Directives() {
		if d.ReturnAnchored() {
			continue
		}
		key := d.Pointer.String()

		srcSlot, err := path.Resolve(call, d.Pointer)
		if err != nil {
			return nil, nil, err
		}

		switch src := srcSlot.Value().(type) {
		case wire.Null:
			// NULL pointer: nothing to synchronize, transmitted as-is.
			continue

		case *wire.Buffer:
			seg := wire.Segment{ID: s.ids.NewID()}
			count := -1

			if d.NullTerminated && !d.CalleeAllocated {
				n, err := scanTerminator(src.Bytes, d.ElemSize, key)
				if err != nil {
					return nil, nil, err
				}
				count = n
			} else if n, ok, err := d.itemCount(call); err != nil {
				return nil, nil, err
			} else if ok {
				count = n
			}

			switch {
			case d.CalleeAllocated:
				// Zero-capacity outbound capture: the foreign side fills
				// the buffer from scratch. Only a capacity hint travels.
				if count >= 0 {
					seg.Capacity = count * d.ElemSize
				} else {
					seg.Capacity = src.Len()
				}

			case count >= 0:
				byteLen := count * d.ElemSize
				if byteLen > len(src.Bytes) {
					return nil, nil, &LengthComputationError{
						Pointer: key,
						Message: fmt.Sprintf("computed length %d bytes exceeds buffer of %d bytes", byteLen, len(src.Bytes)),
					}
				}
				seg.Bytes = append([]byte(nil), src.Bytes[:byteLen]...)
				// The callee may legitimately grow a null-terminated
				// string up to the caller's full buffer.
				if d.NullTerminated {
					seg.Capacity = src.Len()
				}

			default:
				return nil, nil, &LengthComputationError{
					Pointer: key,
					Message: "no length could be computed for the outbound leg",
				}
			}

			state.counts[key] = count
			state.segIDs[key] = seg.ID
			env.Segments = append(env.Segments, seg)

			dstSlot, err := path.Resolve(envCall, d.Pointer)
			if err != nil {
				return nil, nil, err
			}
			dstSlot.Set(wire.SegmentRef{SegmentID: seg.ID})

		default:
			return nil, nil, &path.Error{
				Path:      d.Pointer,
				StepIndex: len(d.Pointer) - 1,
				Reason:    fmt.Sprintf("pointer path addresses %T, not a buffer", src),
			}
		}
	}

	env.Arguments = envCall.Args
	return env, state, nil
}

// ApplyInbound runs the initiator's post-call leg: it writes the
// response envelope's segment bytes back into the caller's original
// buffers and installs the return value. This is the step that makes
// callee mutations visible to the caller; nothing is written until the
// full response envelope is in hand, so the caller never observes a
// partial write.
func (s *Synchronizer) ApplyInbound(set *Set, call *wire.Call, state *CallState, resp *wire.Envelope) error {
	respCall := &wire.Call{Args: resp.Arguments, Return: resp.Return}

	// Install the return tree first so RETURN-anchored directives have
	// a caller-side slot to patch.
	if call.Return == nil && resp.Return != nil {
		call.Return = wire.Clone(resp.Return)
	}

	if set.Empty() {
		return nil
	}

	for _, d := range set.Directives() {
		key := d.Pointer.String()

		refSlot, err := path.Resolve(respCall, d.Pointer)
		if err != nil {
			return err
		}

		ref, ok := refSlot.Value().(wire.SegmentRef)
		if !ok {
			if _, isNull := refSlot.Value().(wire.Null); isNull {
				// Remote side reports a NULL pointer; nothing to write.
				continue
			}
			return &path.Error{
				Path:      d.Pointer,
				StepIndex: len(d.Pointer) - 1,
				Reason:    fmt.Sprintf("response holds %T, not a segment reference", refSlot.Value()),
			}
		}
		seg := resp.SegmentByID(ref.SegmentID)
		if seg == nil {
			return fmt.Errorf("memsync: response references unknown segment %q", ref.SegmentID)
		}

		writeLen, err := s.inboundLength(d, key, respCall, seg)
		if err != nil {
			return err
		}

		dstSlot, err := path.Resolve(call, d.Pointer)
		if err != nil {
			return err
		}

		switch dst := dstSlot.Value().(type) {
		case wire.SegmentRef:
			// RETURN-anchored slot cloned from the response: the caller
			// had no buffer here, so write-back creates one.
			dstSlot.Set(&wire.Buffer{Bytes: append([]byte(nil), seg.Bytes[:writeLen]...)})

		case *wire.Buffer:
			if writeLen == 0 {
				// Empty segment: no write-back performed.
				continue
			}
			if writeLen <= len(dst.Bytes) {
				copy(dst.Bytes[:writeLen], seg.Bytes[:writeLen])
			} else if len(dst.Bytes) == 0 {
				// Callee-allocated: the caller starts with no content.
				dst.Bytes = append([]byte(nil), seg.Bytes[:writeLen]...)
			} else {
				return &LengthComputationError{
					Pointer: key,
					Message: fmt.Sprintf("inbound length %d bytes exceeds caller buffer of %d bytes", writeLen, len(dst.Bytes)),
				}
			}

		default:
			return &path.Error{
				Path:      d.Pointer,
				StepIndex: len(d.Pointer) - 1,
				Reason:    fmt.Sprintf("caller slot holds %T, not a buffer", dst),
			}
		}
	}
	return nil
}

// inboundLength determines how many bytes of the received segment are
// written back. The count is always recomputed against the returned
// tree, never carried over from the outbound leg: an output length
// parameter may legitimately shrink or grow the segment.
func (s *Synchronizer) inboundLength(d *Directive, key string, respCall *wire.Call, seg *wire.Segment) (int, error) {
	if d.NullTerminated {
		// Caller-side length is unknown until the foreign side has
		// produced the bytes: scan the received content.
		n, err := scanTerminator(seg.Bytes, d.ElemSize, key)
		if err != nil {
			return 0, err
		}
		return n * d.ElemSize, nil
	}

	count, ok, err := d.itemCount(respCall)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &LengthComputationError{
			Pointer: key,
			Message: "no length could be computed for the inbound leg",
		}
	}

	writeLen := count * d.ElemSize
	if writeLen > len(seg.Bytes) {
		// The returned length outgrew the returned bytes. Either the
		// foreign side mutated a length argument without resizing the
		// segment (undefined behavior, rejected) or the envelope is
		// corrupt.
		return 0, &LengthComputationError{
			Pointer: key,
			Message: fmt.Sprintf("inbound count %d (%d bytes) exceeds received segment of %d bytes", count, writeLen, len(seg.Bytes)),
		}
	}
	return writeLen, nil
}

// MaterializeInbound runs the receiving side of the pre-call leg: it
// reconstructs a live call tree from the envelope, allocating a local
// buffer for every segment reference. Callee-allocated segments come up
// zero-filled at their capacity hint.
func (s *Synchronizer) MaterializeInbound(set *Set, env *wire.Envelope) (*wire.Call, *CallState, error) {
	call := &wire.Call{Args: env.Arguments}
	state := newCallState()
	if set.Empty() {
		return call, state, nil
	}

	for _, d := range set.Directives() {
		if d.ReturnAnchored() {
			continue
		}
		key := d.Pointer.String()

		slot, err := path.Resolve(call, d.Pointer)
		if err != nil {
			return nil, nil, err
		}
		ref, ok := slot.Value().(wire.SegmentRef)
		if !ok {
			if _, isNull := slot.Value().(wire.Null); isNull {
				continue
			}
			return nil, nil, &path.Error{
				Path:      d.Pointer,
				StepIndex: len(d.Pointer) - 1,
				Reason:    fmt.Sprintf("request holds %T, not a segment reference", slot.Value()),
			}
		}
		seg := env.SegmentByID(ref.SegmentID)
		if seg == nil {
			return nil, nil, fmt.Errorf("memsync: request references unknown segment %q", ref.SegmentID)
		}

		size := len(seg.Bytes)
		if seg.Capacity > size {
			size = seg.Capacity
		}
		bytes := make([]byte, size)
		copy(bytes, seg.Bytes)

		slot.Set(&wire.Buffer{Bytes: bytes, Capacity: size})
		state.segIDs[key] = seg.ID
		if d.NullTerminated || len(seg.Bytes) == 0 {
			state.counts[key] = -1
		} else {
			state.counts[key] = len(seg.Bytes) / d.ElemSize
		}
	}
	return call, state, nil
}

// CaptureResponse runs the receiving side of the post-call leg: after
// the local implementation has executed against the materialized tree,
// it re-captures every directive's (possibly mutated) buffer into the
// response envelope, including RETURN-anchored directives, which get
// fresh segment IDs.
func (s *Synchronizer) CaptureResponse(set *Set, call *wire.Call, state *CallState) (*wire.Envelope, error) {
	resp := &wire.Envelope{Arguments: wire.CloneValues(call.Args)}
	if call.Return != nil {
		resp.Return = wire.Clone(call.Return)
	}
	if set.Empty() {
		return resp, nil
	}

	respCall := &wire.Call{Args: resp.Arguments, Return: resp.Return}

	for _, d := range set.Directives() {
		key := d.Pointer.String()

		srcSlot, err := path.Resolve(call, d.Pointer)
		if err != nil {
			return nil, err
		}
		buf, ok := srcSlot.Value().(*wire.Buffer)
		if !ok {
			if _, isNull := srcSlot.Value().(wire.Null); isNull {
				continue
			}
			return nil, &path.Error{
				Path:      d.Pointer,
				StepIndex: len(d.Pointer) - 1,
				Reason:    fmt.Sprintf("local slot holds %T, not a buffer", srcSlot.Value()),
			}
		}

		var byteLen int
		if d.NullTerminated {
			n, err := scanTerminator(buf.Bytes, d.ElemSize, key)
			if err != nil {
				return nil, err
			}
			byteLen = n * d.ElemSize
		} else {
			count, ok, err := d.itemCount(call)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, &LengthComputationError{
					Pointer: key,
					Message: "no length could be computed for the response leg",
				}
			}
			byteLen = count * d.ElemSize
			if byteLen > len(buf.Bytes) {
				return nil, &LengthComputationError{
					Pointer: key,
					Message: fmt.Sprintf("response length %d bytes exceeds local buffer of %d bytes", byteLen, len(buf.Bytes)),
				}
			}
		}

		segID, tracked := state.segIDs[key]
		if !tracked {
			segID = s.ids.NewID()
		}

		dstSlot, err := path.Resolve(respCall, d.Pointer)
		if err != nil {
			return nil, err
		}
		dstSlot.Set(wire.SegmentRef{SegmentID: segID})

		resp.Segments = append(resp.Segments, wire.Segment{
			ID:    segID,
			Bytes: append([]byte(nil), buf.Bytes[:byteLen]...),
		})
	}

	resp.Arguments = respCall.Args
	resp.Return = respCall.Return
	return resp, nil
}

// Decode presents segment or buffer bytes through the directive's
// custom converter, falling back to a plain byte copy when none is
// configured.
func (d *Directive) Decode(b []byte) (wire.Value, error) {
	if d.conv != nil {
		return d.conv.FromBytes(b, d.ElemSize)
	}
	return &wire.Buffer{Bytes: append([]byte(nil), b...)}, nil
}

// Encode flattens a converted value back into raw bytes via the
// directive's custom converter.
func (d *Directive) Encode(v wire.Value) ([]byte, error) {
	if d.conv == nil {
		if buf, ok := v.(*wire.Buffer); ok {
			return append([]byte(nil), buf.Bytes...), nil
		}
		return nil, fmt.Errorf("memsync: no converter configured for %s", d.Pointer)
	}
	return d.conv.ToBytes(v, d.ElemSize)
}
