// Package harness runs declarative conformance scenarios against a
// client/host pair joined by an in-process loopback. A scenario names a
// routine, its synchronization directives, a simulated foreign behavior
// and the expected post-call state; the runner executes the call with
// deterministic identifiers so envelope traces can be compared against
// golden files.
package harness
