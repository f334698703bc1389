package model

import "fmt"

// InputError represents a malformed or missing required field. The caller
// must fix the document and resubmit.
type InputError struct {
	Field   string
	Message string
	Cause   error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid input %s: %s (%v)", e.Field, e.Message, e.Cause)
	}
	return fmt.Sprintf("invalid input %s: %s", e.Field, e.Message)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// NewInputError creates a new input error
func NewInputError(field, message string, cause error) *InputError {
	return &InputError{Field: field, Message: message, Cause: cause}
}

// ImmutabilityViolationError is returned on any attempt to mutate a sealed
// document. It is always surfaced, never swallowed.
type ImmutabilityViolationError struct {
	InvoiceNumber string
	Field         string
}

func (e *ImmutabilityViolationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invoice %s is sealed: cannot modify %s", e.InvoiceNumber, e.Field)
	}
	return fmt.Sprintf("invoice %s is sealed and immutable", e.InvoiceNumber)
}

// NewImmutabilityViolation creates a new immutability violation error
func NewImmutabilityViolation(number, field string) *ImmutabilityViolationError {
	return &ImmutabilityViolationError{InvoiceNumber: number, Field: field}
}

// ToleranceError reports a divergence between a caller-declared amount and
// the derived amount beyond the configured policy. The engine never silently
// corrects declared figures.
type ToleranceError struct {
	Line      int
	Declared  string
	Computed  string
	Tolerance string
}

func (e *ToleranceError) Error() string {
	return fmt.Sprintf("line %d: declared gross %s differs from computed %s beyond tolerance %s",
		e.Line, e.Declared, e.Computed, e.Tolerance)
}

// TransitionError reports an illegal lifecycle transition.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal state transition %s -> %s", e.From, e.To)
}
