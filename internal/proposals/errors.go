package proposals

import (
	"errors"
	"fmt"
)

var (
	ErrProposalNotFound    = errors.New("proposals: proposal not found")
	ErrNegotiationNotFound = errors.New("proposals: negotiation not found")
	ErrPropertyNotFound    = errors.New("proposals: property not found")
	ErrClientNotFound      = errors.New("proposals: client not found")

	ErrAlreadyApproved      = errors.New("proposals: proposal has already been approved")
	ErrAlreadyRejected      = errors.New("proposals: proposal has already been rejected")
	ErrCancelled            = errors.New("proposals: proposal has been cancelled")
	ErrCompleted            = errors.New("proposals: proposal has been completed")
	ErrAlreadyUnderAnalysis = errors.New("proposals: proposal is already under analysis")
	ErrInvalidTransition    = errors.New("proposals: transition not allowed from current status")

	ErrInvalidStatus       = errors.New("proposals: invalid negotiation status")
	ErrNegotiationClosed   = errors.New("proposals: negotiation already answered")
	ErrOpenProposalExists  = errors.New("proposals: client already has an open proposal for this property")
	ErrPropertyUnavailable = errors.New("proposals: property is not available")
	ErrConcurrentUpdate    = errors.New("proposals: proposal was modified concurrently")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("proposals: validation failed")

	errDuplicateNumber = errors.New("proposals: duplicate proposal number")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("proposals: invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

// TransitionError describes a refused lifecycle operation.
type TransitionError struct {
	Op     string
	Status Status
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s %s proposal: %v", e.Op, e.Status, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// terminalError maps a terminal status onto its descriptive sentinel.
func terminalError(s Status) error {
	switch s {
	case StatusApproved:
		return ErrAlreadyApproved
	case StatusRejected:
		return ErrAlreadyRejected
	case StatusCancelled:
		return ErrCancelled
	case StatusCompleted:
		return ErrCompleted
	}
	return nil
}

// IsNotFound reports whether err refers to a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProposalNotFound) ||
		errors.Is(err, ErrNegotiationNotFound) ||
		errors.Is(err, ErrPropertyNotFound) ||
		errors.Is(err, ErrClientNotFound)
}

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool {
	for _, target := range []error{
		ErrAlreadyApproved, ErrAlreadyRejected, ErrCancelled, ErrCompleted,
		ErrAlreadyUnderAnalysis, ErrInvalidTransition, ErrInvalidStatus,
		ErrNegotiationClosed, ErrOpenProposalExists, ErrPropertyUnavailable,
		ErrConcurrentUpdate,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// outcome labels err for metrics.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case IsNotFound(err):
		return "not_found"
	case IsConflict(err):
		return "conflict"
	default:
		return "error"
	}
}
