package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for collaborator failures. Adapters return them wrapped in a
// CollaboratorError so callers can match either the kind or the details.
var (
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrCollaboratorTimeout     = errors.New("collaborator timed out")
	ErrCollaboratorMalformed   = errors.New("collaborator returned unparsable output")
	ErrPolicyStore             = errors.New("policy store failure")
)

// CollaboratorError reports a failed call to an external collaborator.
type CollaboratorError struct {
	Collaborator string
	Op           string
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// NewCollaboratorError classifies err. Context deadlines become
// ErrCollaboratorTimeout; errors that already carry a sentinel keep it;
// everything else is ErrCollaboratorUnavailable.
func NewCollaboratorError(collaborator, op string, err error) *CollaboratorError {
	var existing *CollaboratorError
	if errors.As(err, &existing) {
		return existing
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		err = fmt.Errorf("%w: %w", ErrCollaboratorTimeout, err)
	case errors.Is(err, ErrCollaboratorTimeout),
		errors.Is(err, ErrCollaboratorMalformed),
		errors.Is(err, ErrCollaboratorUnavailable),
		errors.Is(err, ErrPolicyStore):
	default:
		err = fmt.Errorf("%w: %w", ErrCollaboratorUnavailable, err)
	}
	return &CollaboratorError{Collaborator: collaborator, Op: op, Err: err}
}

// ErrInvalidRequest marks caller input that cannot be processed.
var ErrInvalidRequest = errors.New("invalid request")
