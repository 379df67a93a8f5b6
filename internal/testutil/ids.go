// Package testutil provides deterministic test doubles for the
// engine's generated identifiers.
package testutil

import (
	"fmt"
	"sync/atomic"
)

// FixedIDs is a deterministic ID generator for tests. Unlike the
// production UUID generator, it yields a predictable sequence so
// envelopes and golden files are stable across runs.
type FixedIDs struct {
	prefix string
	n      atomic.Int64
}

// NewFixedIDs creates a generator producing "<prefix>-0001",
// "<prefix>-0002", ...
func NewFixedIDs(prefix string) *FixedIDs {
	return &FixedIDs{prefix: prefix}
}

// NewID returns the next ID in the sequence. Safe for concurrent use.
func (f *FixedIDs) NewID() string {
	return fmt.Sprintf("%s-%04d", f.prefix, f.n.Add(1))
}
