package harness

import (
	"context"
	"fmt"

	"github.com/anjawa/zugbruecke/internal/session"
	"github.com/anjawa/zugbruecke/internal/wire"
)

// Behavior builds a simulated foreign implementation, parameterized by
// the scenario's payload string.
type Behavior func(payload string) session.RoutineImpl

// behaviors is the named behavior catalog available to scenarios.
var behaviors = map[string]Behavior{
	"noop":           noopBehavior,
	"reverse":        reverseBehavior,
	"fill_sequence":  fillSequenceBehavior,
	"replace_letter": replaceLetterBehavior,
	"write_string":   writeStringBehavior,
}

// noopBehavior touches nothing and returns zero.
func noopBehavior(string) session.RoutineImpl {
	return func(ctx context.Context, inv *session.Invocation, call *wire.Call) error {
		call.Return = wire.Int(0)
		return nil
	}
}

// reverseBehavior reverses the first buffer argument in place.
func reverseBehavior(string) session.RoutineImpl {
	return func(ctx context.Context, inv *session.Invocation, call *wire.Call) error {
		buf, err := bufferArg(call, 0)
		if err != nil {
			return err
		}
		for i, j := 0, len(buf.Bytes)-1; i < j; i, j = i+1, j-1 {
			buf.Bytes[i], buf.Bytes[j] = buf.Bytes[j], buf.Bytes[i]
		}
		call.Return = wire.Int(int64(len(buf.Bytes)))
		return nil
	}
}

// fillSequenceBehavior overwrites the first buffer argument with
// 0, 1, 2, ...
func fillSequenceBehavior(string) session.RoutineImpl {
	return func(ctx context.Context, inv *session.Invocation, call *wire.Call) error {
		buf, err := bufferArg(call, 0)
		if err != nil {
			return err
		}
		for i := range buf.Bytes {
			buf.Bytes[i] = byte(i)
		}
		call.Return = wire.Int(int64(len(buf.Bytes)))
		return nil
	}
}

// replaceLetterBehavior substitutes one byte for another in the first
// buffer argument, up to its terminator. Arguments 1 and 2 carry the
// old and new byte values.
func replaceLetterBehavior(string) session.RoutineImpl {
	return func(ctx context.Context, inv *session.Invocation, call *wire.Call) error {
		buf, err := bufferArg(call, 0)
		if err != nil {
			return err
		}
		if len(call.Args) < 3 {
			return fmt.Errorf("replace_letter needs buffer, old and new arguments")
		}
		from, ok := call.Args[1].(wire.Int)
		if !ok {
			return fmt.Errorf("argument 1: expected int, got %T", call.Args[1])
		}
		to, ok := call.Args[2].(wire.Int)
		if !ok {
			return fmt.Errorf("argument 2: expected int, got %T", call.Args[2])
		}
		for i, b := range buf.Bytes {
			if b == 0 {
				break
			}
			if b == byte(from) {
				buf.Bytes[i] = byte(to)
			}
		}
		call.Return = wire.Null{}
		return nil
	}
}

// writeStringBehavior writes the scenario payload, terminated, into the
// first buffer argument.
func writeStringBehavior(payload string) session.RoutineImpl {
	return func(ctx context.Context, inv *session.Invocation, call *wire.Call) error {
		buf, err := bufferArg(call, 0)
		if err != nil {
			return err
		}
		if len(payload)+1 > len(buf.Bytes) {
			return fmt.Errorf("payload of %d bytes does not fit buffer of %d bytes", len(payload)+1, len(buf.Bytes))
		}
		n := copy(buf.Bytes, payload)
		buf.Bytes[n] = 0
		call.Return = wire.Int(int64(len(payload)))
		return nil
	}
}

func bufferArg(call *wire.Call, index int) (*wire.Buffer, error) {
	if index >= len(call.Args) {
		return nil, fmt.Errorf("argument %d: missing", index)
	}
	buf, ok := call.Args[index].(*wire.Buffer)
	if !ok {
		return nil, fmt.Errorf("argument %d: expected buffer, got %T", index, call.Args[index])
	}
	return buf, nil
}
