package engine

import (
	"errors"
	"fmt"
)

// Eligibility errors are caller mistakes; the caller may retry with corrected input.
var (
	ErrNotEligible     = errors.New("user is not eligible to decide this stage")
	ErrAlreadyDecided  = errors.New("stage outcome already decided")
	ErrInvalidDecision = errors.New("decision must be APPROVED or REJECTED")
)

var (
	// ErrNoWorkflowAssigned means the subject's group has no active workflow assignment.
	// The subject is in the terminal no-workflow state.
	ErrNoWorkflowAssigned = errors.New("no workflow assigned to group")

	// ErrInvalidArgument is returned for empty identifiers
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvariantViolation is wrapped by every *InvariantViolation
	ErrInvariantViolation = errors.New("invariant violation")
)

// ConfigurationError reports a malformed workflow template
type ConfigurationError struct {
	TemplateID int64
	Reason     string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: template %d: %s", e.TemplateID, e.Reason)
}

// InvariantViolation signals an ordering guarantee that was about to be broken.
// The enclosing transaction is always rolled back.
type InvariantViolation struct {
	Op     string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation in %s: %s", e.Op, e.Detail)
}

func (e *InvariantViolation) Unwrap() error {
	return ErrInvariantViolation
}

func violation(op, format string, args ...interface{}) error {
	return &InvariantViolation{Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsEligibilityError reports whether err is one of the eligibility errors
func IsEligibilityError(err error) bool {
	return errors.Is(err, ErrNotEligible) ||
		errors.Is(err, ErrAlreadyDecided) ||
		errors.Is(err, ErrInvalidDecision)
}
