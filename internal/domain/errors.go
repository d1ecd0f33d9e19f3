package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business-level errors that can occur in the system.
// These errors are used across layers to communicate specific failure conditions.
var (
	// Reconciliation error kinds
	ErrSpecValidation        = errors.New("invalid sandbox specification")
	ErrResourceConflict      = errors.New("resource conflict")
	ErrBuild                 = errors.New("image build failed")
	ErrStart                 = errors.New("container failed to start")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrTimeout               = errors.New("operation timed out")
	ErrCanceled              = errors.New("reconciliation canceled")

	// Lookup errors
	ErrNotFound          = errors.New("not found")
	ErrContainerNotFound = fmt.Errorf("container %w", ErrNotFound)
	ErrImageNotFound     = fmt.Errorf("image %w", ErrNotFound)
	ErrVolumeNotFound    = fmt.Errorf("volume %w", ErrNotFound)
	ErrNetworkNotFound   = fmt.Errorf("network %w", ErrNotFound)

	// Lock errors
	ErrLockHeld = errors.New("sandbox is locked by another reconciliation")
)

// Phase names the reconciliation step that failed.
type Phase string

const (
	PhaseValidate     Phase = "validate"
	PhaseLock         Phase = "lock"
	PhaseObserve      Phase = "observe"
	PhasePreflight    Phase = "preflight"
	PhaseDependencies Phase = "dependencies"
	PhaseImage        Phase = "image"
	PhaseReplace      Phase = "replace"
	PhaseCreate       Phase = "create"
	PhaseStart        Phase = "start"
	PhaseRemove       Phase = "remove"
	PhaseStatus       Phase = "status"
)

// ReconcileError reports a failure with the sandbox name and failing phase.
// errors.Is matches both the Kind sentinel and the underlying cause.
type ReconcileError struct {
	Sandbox string
	Phase   Phase
	Kind    error
	Err     error
}

func (e *ReconcileError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sandbox %s: %s: %v", e.Sandbox, e.Phase, e.Kind)
	}
	return fmt.Sprintf("sandbox %s: %s: %v: %v", e.Sandbox, e.Phase, e.Kind, e.Err)
}

func (e *ReconcileError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Retryable reports whether the caller may retry the same reconciliation unchanged.
func (e *ReconcileError) Retryable() bool {
	return errors.Is(e.Kind, ErrTimeout) || errors.Is(e.Kind, ErrDependencyUnavailable)
}

// NewReconcileError builds a ReconcileError, picking the kind from err when it
// already carries one and falling back to fallback otherwise.
func NewReconcileError(sandbox string, phase Phase, fallback, err error) *ReconcileError {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re
	}
	return &ReconcileError{
		Sandbox: sandbox,
		Phase:   phase,
		Kind:    KindOf(err, fallback),
		Err:     err,
	}
}

// KindOf returns the reconciliation error kind carried by err, or fallback.
func KindOf(err, fallback error) error {
	for _, kind := range []error{
		ErrSpecValidation,
		ErrResourceConflict,
		ErrBuild,
		ErrStart,
		ErrDependencyUnavailable,
		ErrTimeout,
		ErrCanceled,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return fallback
}

// IsRetryable reports whether err is a retryable reconciliation failure.
func IsRetryable(err error) bool {
	var re *ReconcileError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDependencyUnavailable)
}
