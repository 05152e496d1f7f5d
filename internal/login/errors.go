// internal/login/errors.go
package login

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports settings that make an attempt impossible. It is raised
// before any browser is started.
type ConfigurationError struct {
	Missing []string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: missing " + strings.Join(e.Missing, ", ")
}

// PreconditionReason explains a refused action.
type PreconditionReason string

// FieldNotReady means a form field did not resolve to a visible, enabled element.
const FieldNotReady PreconditionReason = "field_not_ready"

// PreconditionError is the submitter's refusal to act on the current page. Field is
// the role of the element ("username", "password"), never its contents.
type PreconditionError struct {
	Reason PreconditionReason
	Field  string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s (%s)", e.Reason, e.Field)
}

// DriverError wraps a failure of the browser automation engine.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("driver error during %s: %v", e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// driverErr wraps err as a DriverError unless it already is one.
func driverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DriverError
	if errors.As(err, &de) {
		return err
	}
	return &DriverError{Op: op, Err: err}
}

// FatalError ends an attempt. Cause is one of ConfigurationError, PreconditionError
// or DriverError and is reachable through errors.As.
type FatalError struct {
	State State
	Cause error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("login attempt failed in state %s: %v", e.State, e.Cause)
}

func (e *FatalError) Unwrap() error { return e.Cause }
