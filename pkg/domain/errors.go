package domain

import (
	"errors"
	"fmt"
)

// Lookup errors.
var (
	ErrWorkflowNotFound = errors.New("workflow not found")
	ErrDocumentNotFound = errors.New("document not found")
	ErrVersionNotFound  = errors.New("document version not found")
	ErrFeedbackNotFound = errors.New("feedback not found")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrGraphNotFound    = errors.New("stage graph not found")
)

// Validation errors: the caller misread the current state. Never retried.
var (
	ErrWrongRole             = errors.New("actor role is not assigned to this stage")
	ErrNoSuchTransition      = errors.New("no transition for this action")
	ErrActionNotPermitted    = errors.New("action not permitted in this stage")
	ErrJustificationRequired = errors.New("override requires a justification")
	ErrAmbiguousStage        = errors.New("several stages are active; specify one")
	ErrStageNotActive        = errors.New("stage is not active")
	ErrBranchComplete        = errors.New("branch already completed")
	ErrWorkflowActive        = errors.New("document already has an active workflow")
	ErrWorkflowCompleted     = errors.New("workflow is completed")
	ErrWorkflowSuperseded    = errors.New("a newer workflow exists for this document")
	ErrInvalidAction         = errors.New("invalid action")
	ErrInvalidGraph          = errors.New("invalid stage graph")
	ErrMalformedAnchor       = errors.New("malformed anchor")
	ErrAmbiguousAnchor       = errors.New("anchor text matches more than once")
	ErrDocumentExists        = errors.New("document already exists")
	ErrFeedbackClosed        = errors.New("feedback is closed")
	ErrConflictResolved      = errors.New("conflict already resolved")
	ErrInvalidDecision       = errors.New("invalid conflict decision")
	ErrInvalidFeedback       = errors.New("invalid feedback item")
	ErrInvalidRequest        = errors.New("invalid request")
	ErrUnauthenticated       = errors.New("unknown actor token")
)

// ErrStaleAnchor means the snippet is absent from the body. It is a per-item
// failure and does not affect other feedback.
var ErrStaleAnchor = errors.New("anchor text not found")

// Concurrency errors. ErrVersionConflict and ErrStaleRevision are retried once
// internally; a second loss surfaces as ErrContention.
var (
	ErrVersionConflict = errors.New("document version changed concurrently")
	ErrStaleRevision   = errors.New("workflow revision changed concurrently")
	ErrContention      = errors.New("lost a concurrent update twice; reload and retry")
)

var validationErrors = []error{
	ErrWrongRole, ErrNoSuchTransition, ErrActionNotPermitted, ErrJustificationRequired,
	ErrAmbiguousStage, ErrStageNotActive, ErrBranchComplete, ErrWorkflowActive,
	ErrWorkflowCompleted, ErrWorkflowSuperseded, ErrInvalidAction, ErrInvalidGraph, ErrMalformedAnchor,
	ErrAmbiguousAnchor, ErrDocumentExists, ErrFeedbackClosed, ErrConflictResolved,
	ErrInvalidDecision, ErrInvalidFeedback, ErrInvalidRequest,
}

// IsValidation reports whether err is a caller-side validation error.
func IsValidation(err error) bool {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err is one of the lookup errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound) ||
		errors.Is(err, ErrDocumentNotFound) ||
		errors.Is(err, ErrVersionNotFound) ||
		errors.Is(err, ErrFeedbackNotFound) ||
		errors.Is(err, ErrConflictNotFound) ||
		errors.Is(err, ErrGraphNotFound)
}

// RejectionError explains why an advance was refused.
type RejectionError struct {
	Stage  StageID
	Action Action
	Role   Role
	Err    error
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("cannot %s in stage %q as %q: %v", e.Action, e.Stage, e.Role, e.Err)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}
