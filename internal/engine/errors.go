package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/cloister/internal/model"
)

// ErrorKind categorizes the outcome of a turn that did not commit.
type ErrorKind string

const (
	// KindUnauthorized: the actor's role does not allow the operation.
	KindUnauthorized ErrorKind = "UNAUTHORIZED"

	// KindSessionDesynchronized: the session is missing or lacks staged
	// fields needed by the step.
	KindSessionDesynchronized ErrorKind = "SESSION_DESYNCHRONIZED"

	// KindUniquenessConflict: the staged code already exists in the store.
	KindUniquenessConflict ErrorKind = "UNIQUENESS_CONFLICT"

	// KindAlreadyRetired: retirement raced with another retirement.
	KindAlreadyRetired ErrorKind = "ALREADY_RETIRED"

	// KindNotFound: no code matches the request.
	KindNotFound ErrorKind = "NOT_FOUND"

	// KindGenerationExhausted: no free code could be drawn.
	KindGenerationExhausted ErrorKind = "GENERATION_EXHAUSTED"

	// KindTransportDegraded: a message could not be sent, edited or deleted.
	KindTransportDegraded ErrorKind = "TRANSPORT_DEGRADED"

	// KindInternal: the store or another dependency failed unexpectedly.
	KindInternal ErrorKind = "INTERNAL"
)

// WorkflowError is the error returned by HandleUpdate for every turn that
// ended without its happy-path effect.
type WorkflowError struct {
	Kind     ErrorKind
	Workflow model.Workflow
	Message  string
	Err      error
}

// Error implements the error interface.
func (e *WorkflowError) Error() string {
	prefix := string(e.Kind)
	if e.Workflow != "" {
		prefix = fmt.Sprintf("%s (%s)", e.Kind, e.Workflow)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap returns the underlying cause.
func (e *WorkflowError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a WorkflowError of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind ErrorKind) bool {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind == kind
	}
	return false
}

// KindOf returns the kind of a WorkflowError, or KindInternal for any other
// non-nil error.
func KindOf(err error) ErrorKind {
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Kind
	}
	return KindInternal
}

func newError(kind ErrorKind, wf model.Workflow, msg string, err error) *WorkflowError {
	return &WorkflowError{Kind: kind, Workflow: wf, Message: msg, Err: err}
}
