package session

import (
	"errors"
	"fmt"
)

// UnknownRoutineError indicates an invocation of a routine name that
// was never registered.
type UnknownRoutineError struct {
	Name string
}

func (e *UnknownRoutineError) Error() string {
	return fmt.Sprintf("session: unknown routine %q", e.Name)
}

// IsUnknownRoutine returns true if the error is an UnknownRoutineError.
func IsUnknownRoutine(err error) bool {
	var ure *UnknownRoutineError
	return errors.As(err, &ure)
}

// UnknownCallbackError indicates a callback invocation referencing a
// stub this side never registered.
type UnknownCallbackError struct {
	StubID string
}

func (e *UnknownCallbackError) Error() string {
	return fmt.Sprintf("session: unknown callback stub %q", e.StubID)
}

// IsUnknownCallback returns true if the error is an
// UnknownCallbackError.
func IsUnknownCallback(err error) bool {
	var uce *UnknownCallbackError
	return errors.As(err, &uce)
}

// DuplicateRegistrationError indicates a second registration under a
// name already taken.
type DuplicateRegistrationError struct {
	Kind string
	Name string
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("session: %s %q already registered", e.Kind, e.Name)
}

// IsDuplicateRegistration returns true if the error is a
// DuplicateRegistrationError.
func IsDuplicateRegistration(err error) bool {
	var dre *DuplicateRegistrationError
	return errors.As(err, &dre)
}
