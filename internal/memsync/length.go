package memsync

import (
	"fmt"
	"math"

	"github.com/anjawa/zugbruecke/internal/path"
	"github.com/anjawa/zugbruecke/internal/wire"
)

// itemCount computes the directive's item count against a live tree.
// Returns (count, true) when a count could be computed, or (0, false)
// for scan-only directives, whose count is only known from the bytes.
func (d *Directive) itemCount(call *wire.Call) (int, bool, error) {
	switch d.lenKind {
	case lengthNone:
		return 0, false, nil

	case lengthSingle:
		n, err := readNumeric(call, d.lenPaths[0])
		if err != nil {
			return 0, false, err
		}
		if n < 0 {
			return 0, false, &LengthComputationError{
				Pointer: d.Pointer.String(),
				Message: fmt.Sprintf("length path %s holds negative count %d", d.lenPaths[0], n),
			}
		}
		count, err := d.checkedCount(n)
		if err != nil {
			return 0, false, err
		}
		return count, true, nil

	case lengthTuple:
		args := make([]int64, len(d.lenPaths))
		for i, p := range d.lenPaths {
			n, err := readNumeric(call, p)
			if err != nil {
				return 0, false, err
			}
			args[i] = n
		}
		n, err := d.lenFn.Eval(args)
		if err != nil {
			return 0, false, &LengthComputationError{
				Pointer: d.Pointer.String(),
				Message: "combining function failed",
				Err:     err,
			}
		}
		count, err := d.checkedCount(n)
		if err != nil {
			return 0, false, err
		}
		return count, true, nil

	default:
		return 0, false, fmt.Errorf("memsync: unknown length kind %d", d.lenKind)
	}
}

// checkedCount converts a non-negative count to int, rejecting counts
// whose byte length (count times element size) would wrap. Every
// multiplication downstream relies on this bound.
func (d *Directive) checkedCount(n int64) (int, error) {
	if n > int64(math.MaxInt/d.ElemSize) {
		return 0, &LengthComputationError{
			Pointer: d.Pointer.String(),
			Message: fmt.Sprintf("count %d with %d-byte elements overflows the addressable range", n, d.ElemSize),
		}
	}
	return int(n), nil
}

// readNumeric resolves a length path to an integer value.
func readNumeric(call *wire.Call, p path.Path) (int64, error) {
	slot, err := path.Resolve(call, p)
	if err != nil {
		return 0, err
	}
	switch v := slot.Value().(type) {
	case wire.Int:
		return int64(v), nil
	case wire.Uint:
		return int64(v), nil
	case wire.Float:
		// Foreign sides sometimes declare lengths as doubles; accept
		// exact integers only.
		if float64(int64(v)) != float64(v) {
			return 0, &LengthComputationError{
				Pointer: p.String(),
				Message: fmt.Sprintf("length value %v is not an integer", float64(v)),
			}
		}
		return int64(v), nil
	default:
		return 0, &LengthComputationError{
			Pointer: p.String(),
			Message: fmt.Sprintf("length path addresses %T, not a numeric slot", v),
		}
	}
}

// scanTerminator returns the item count of a zero-terminated element
// sequence, terminator included. The scan is bounded by the buffer
// itself; running off the end without a terminator is a
// corrupted-buffer condition.
func scanTerminator(b []byte, elemSize int, pointer string) (int, error) {
	if elemSize <= 0 {
		return 0, fmt.Errorf("memsync: element size %d", elemSize)
	}
	items := len(b) / elemSize
	for i := 0; i < items; i++ {
		zero := true
		for j := i * elemSize; j < (i+1)*elemSize; j++ {
			if b[j] != 0 {
				zero = false
				break
			}
		}
		if zero {
			return i + 1, nil
		}
	}
	return 0, &TerminatorNotFoundError{Pointer: pointer, Scanned: len(b)}
}
