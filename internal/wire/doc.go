// Package wire models the call trees and envelopes that cross the
// process boundary.
//
// A Call is the live argument/return tree on one side of a call. An
// Envelope is its transmitted form: pointer targets (Buffer values) are
// replaced by SegmentRef coordinates, and the raw bytes ride alongside
// in the envelope's segment list. Addresses never cross the boundary;
// each side resolves the same structural coordinates against its own
// tree instance.
package wire
