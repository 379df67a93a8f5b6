// Package combiner compiles user-supplied length-combining functions.
//
// A combining function arrives as configuration (source text), not as
// compiled code, so it is never executed as arbitrary logic. The source
// is compiled as a CUE expression over a fixed set of integer inputs
// named x0..x{N-1}. CUE gives exactly the sandbox the use cases need:
// bounded arithmetic, no imports, no ambient access, not
// Turing-complete. References to anything outside the declared inputs
// fail at compile time, which surfaces arity mismatches during
// signature registration rather than mid-call.
package combiner

import (
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// Func is a compiled combining function of fixed arity. Evaluation is
// deterministic: the same inputs always produce the same count, which
// the synchronizer relies on when it re-invokes the function on both
// legs of a call.
type Func struct {
	src   string
	arity int

	mu  sync.Mutex
	ctx *cue.Context
}

// Compile parses src as a CUE expression over inputs x0..x{arity-1}.
// Compile errors, references to undeclared identifiers, and expressions
// that cannot produce a number are all rejected here, at registration
// time.
func Compile(src string, arity int) (*Func, error) {
	if strings.TrimSpace(src) == "" {
		return nil, fmt.Errorf("combining function source is empty")
	}
	if arity < 1 {
		return nil, fmt.Errorf("combining function needs at least one input, got arity %d", arity)
	}

	ctx := cuecontext.New()

	scope := ctx.CompileString(abstractScope(arity))
	if err := scope.Err(); err != nil {
		return nil, fmt.Errorf("build input scope: %w", err)
	}

	v := ctx.CompileString(src, cue.Scope(scope))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile combining function %q: %w", src, err)
	}
	if v.IncompleteKind()&cue.NumberKind == 0 {
		return nil, fmt.Errorf("combining function %q does not produce a number (kind %v)", src, v.IncompleteKind())
	}

	return &Func{src: src, arity: arity, ctx: ctx}, nil
}

// Arity returns the number of inputs the function accepts.
func (f *Func) Arity() int { return f.arity }

// Source returns the original expression text.
func (f *Func) Source() string { return f.src }

// Eval applies the function to the given inputs and returns the item
// count. The result must be a concrete non-negative integer.
func (f *Func) Eval(args []int64) (int64, error) {
	if len(args) != f.arity {
		return 0, fmt.Errorf("combining function expects %d inputs, got %d", f.arity, len(args))
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	scope := f.ctx.CompileString(concreteScope(args))
	if err := scope.Err(); err != nil {
		return 0, fmt.Errorf("build input values: %w", err)
	}

	v := f.ctx.CompileString(f.src, cue.Scope(scope))
	if err := v.Err(); err != nil {
		return 0, fmt.Errorf("evaluate combining function: %w", err)
	}

	n, err := v.Int64()
	if err != nil {
		return 0, fmt.Errorf("combining function result is not a concrete integer: %w", err)
	}
	if n < 0 {
		return 0, fmt.Errorf("combining function returned negative count %d", n)
	}
	return n, nil
}

func abstractScope(arity int) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i := 0; i < arity; i++ {
		fmt.Fprintf(&sb, "x%d: int, ", i)
	}
	sb.WriteString("}")
	return sb.String()
}

func concreteScope(args []int64) string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, a := range args {
		fmt.Fprintf(&sb, "x%d: %d, ", i, a)
	}
	sb.WriteString("}")
	return sb.String()
}
