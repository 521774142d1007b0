package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrLockHeld        = errors.New("lock already held")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session has a run in progress")
	ErrInvalidBid      = errors.New("bid amount must be positive")
	ErrRunCancelled    = errors.New("run cancelled before it started")
	// ErrTooManyAttempts is returned once a session has used up its PIN
	// attempts for the current window.
	ErrTooManyAttempts = errors.New("too many attempts")

	// ErrNetwork marks transport-level failures (timeouts, connectivity).
	// Re-running the failed step is always safe.
	ErrNetwork = errors.New("network failure")
	// ErrServerRejection marks any non-2xx response.
	ErrServerRejection = errors.New("server rejection")
	// ErrAuthentication marks a rejected credential or PIN check.
	ErrAuthentication = errors.New("authentication failure")
	// ErrOutbid marks a placement rejected because a higher maximum bid
	// already stands. It is a bidding outcome, not a failure.
	ErrOutbid = errors.New("outbid")

	ErrNotAuthenticated = errors.New("no user credentials")
	ErrNoBidder         = errors.New("bidder id not set")
	ErrMissingField     = errors.New("missing required field")
)

// RejectionType values the auction API uses in error bodies.
const (
	RejectionTypeOutbid = "outbid"
)

// RejectionError is a non-2xx response with the server-provided detail.
type RejectionError struct {
	Status  int
	Type    string
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d", e.Status)
	}
	if e.Type == "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP %d: %s (%s)", e.Status, e.Message, e.Type)
}

// Is lets callers match rejections against the taxonomy sentinels.
func (e *RejectionError) Is(target error) bool {
	switch target {
	case ErrServerRejection:
		return true
	case ErrAuthentication:
		return e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden
	case ErrOutbid:
		return e.Type == RejectionTypeOutbid
	}
	return false
}

// StepError is the single failure an orchestrator reports. Step is the
// human-readable context of the step that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + " " + e.Err.Error()
}

func (e *StepError) Unwrap() error { return e.Err }

// Retryable reports whether re-running the failed step may succeed.
func Retryable(err error) bool {
	return errors.Is(err, ErrNetwork)
}
