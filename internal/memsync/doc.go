// Package memsync implements the memory-synchronization protocol that
// lets pointer arguments behave like shared memory across an
// address-space boundary.
//
// A directive declares where a pointer lives inside a call's
// argument/return tree and how to size the memory it addresses: from a
// sibling slot, from a combining function over several slots, or by
// scanning for a zero terminator. Directive sets are compiled and
// validated once per routine or callback signature; per call, the
// synchronizer captures the addressed bytes into the outbound envelope
// and writes the returned bytes back into the caller's own buffers.
//
// Mutating a length-producing argument on the foreign side without
// resizing the segment accordingly is undefined behavior: the inbound
// leg recomputes lengths against the returned tree and aborts the call
// when the result no longer fits the received segment.
package memsync
