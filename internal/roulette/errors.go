package roulette

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidNumber indicates the submitted token is not one of the 38
	// playable numbers.
	ErrInvalidNumber = errors.New("roulette: invalid number, enter 0, 00 or 1-36")
	// ErrDailyLimitExceeded indicates the target date already holds the
	// maximum number of submissions.
	ErrDailyLimitExceeded = errors.New("roulette: daily submission limit reached")
	// ErrOutOfWindow indicates the viewed date is outside the entry window;
	// results can only be recorded for the current day.
	ErrOutOfWindow = errors.New("roulette: submissions are only accepted for the current day")
	// ErrSectorResolutionFailed indicates a valid number could not be mapped
	// to a sector. Unreachable while the validity set and the partition stay
	// in sync; kept as an invariant check.
	ErrSectorResolutionFailed = errors.New("roulette: could not resolve sector for number")
)

// FailureKind classifies backend failures into the categories the UI reports.
type FailureKind string

const (
	FailurePermissionDenied   FailureKind = "permission_denied"
	FailureUnavailable        FailureKind = "unavailable"
	FailureUnauthenticated    FailureKind = "unauthenticated"
	FailureFailedPrecondition FailureKind = "failed_precondition"
	FailureUnknown            FailureKind = "unknown"
)

// StoreError wraps a backend failure with its mapped kind.
type StoreError struct {
	Kind FailureKind
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError builds a StoreError, defaulting to FailureUnknown.
func NewStoreError(kind FailureKind, err error) *StoreError {
	if kind == "" {
		kind = FailureUnknown
	}
	return &StoreError{Kind: kind, Err: err}
}

// KindOf extracts the failure kind from an error chain.
func KindOf(err error) FailureKind {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Kind
	}
	return FailureUnknown
}

// UserMessage renders the user-facing message for a failure kind.
func UserMessage(kind FailureKind) string {
	switch kind {
	case FailurePermissionDenied:
		return "No permission to read data. Check the backend access rules."
	case FailureUnavailable:
		return "Backend service unavailable. Try again later."
	case FailureUnauthenticated:
		return "Not authenticated. Sign in again."
	case FailureFailedPrecondition:
		return "Database index unavailable. Check the configuration."
	default:
		return "Error receiving realtime data."
	}
}
