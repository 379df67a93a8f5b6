package memsync

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a malformed directive set. Detected at
// signature registration; registering the signature fails and is never
// retried automatically - it indicates a programming error in the
// directive configuration.
type ConfigurationError struct {
	// Directive is the index of the offending directive, or -1 when the
	// problem spans the whole set.
	Directive int

	// Message is a human-readable description.
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Directive >= 0 {
		return fmt.Sprintf("memsync directive %d: %s", e.Directive, e.Message)
	}
	return fmt.Sprintf("memsync directives: %s", e.Message)
}

// IsConfigurationError returns true if the error is a ConfigurationError.
// Uses errors.As to handle wrapped errors.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// LengthComputationError reports a per-call failure to produce a valid
// item count: the combining function failed or returned an invalid
// count, a length path held a non-numeric value, or the two legs of the
// call disagree about a length in a way write-back cannot honor. The
// call is aborted; registry and directive state are unaffected.
type LengthComputationError struct {
	// Pointer identifies the directive by its pointer path.
	Pointer string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

func (e *LengthComputationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("length for %s: %s: %v", e.Pointer, e.Message, e.Err)
	}
	return fmt.Sprintf("length for %s: %s", e.Pointer, e.Message)
}

func (e *LengthComputationError) Unwrap() error { return e.Err }

// IsLengthError returns true if the error is a LengthComputationError.
func IsLengthError(err error) bool {
	var le *LengthComputationError
	return errors.As(err, &le)
}

// TerminatorNotFoundError reports a terminator scan that exhausted the
// buffer without finding a zero element. Treated as a corrupted-buffer
// condition; the call is aborted.
type TerminatorNotFoundError struct {
	// Pointer identifies the directive by its pointer path.
	Pointer string

	// Scanned is the number of bytes examined.
	Scanned int
}

func (e *TerminatorNotFoundError) Error() string {
	return fmt.Sprintf("no terminator in %d bytes for %s", e.Scanned, e.Pointer)
}

// IsTerminatorError returns true if the error is a TerminatorNotFoundError.
func IsTerminatorError(err error) bool {
	var te *TerminatorNotFoundError
	return errors.As(err, &te)
}
