// -----------------------------------------------------------------------
// Harness error taxonomy
// Step-local errors (not found, not interactable, mismatch, timeout) are
// recorded as Failed; session, drift and runner errors abort as Errored.
// -----------------------------------------------------------------------

package models

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SessionStartError means the browser could not be launched or the target was unreachable.
// Fatal for the whole run.
type SessionStartError struct {
	Target string
	Err    error
}

func (e *SessionStartError) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("session start failed (target %s): %v", e.Target, e.Err)
	}
	return fmt.Sprintf("session start failed: %v", e.Err)
}

func (e *SessionStartError) Unwrap() error { return e.Err }

// SelectorDriftError means a selector that matched in a previous passing run no longer matches.
// Fatal for the scenario: the UI contract changed and the scenario is stale.
type SelectorDriftError struct {
	Scenario string
	Selector string
	LastSeen time.Time
}

func (e *SelectorDriftError) Error() string {
	return fmt.Sprintf("selector drift: %q matched in scenario %q on %s but matches nothing now",
		e.Selector, e.Scenario, e.LastSeen.Format(time.RFC3339))
}

// ElementNotFoundError means a query that needs at least one element matched none.
type ElementNotFoundError struct {
	Selector string
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s", e.Selector)
}

// ElementNotInteractableError means the element exists but is hidden or disabled.
type ElementNotInteractableError struct {
	Selector string
	Visible  bool
	Enabled  bool
}

func (e *ElementNotInteractableError) Error() string {
	return fmt.Sprintf("element not interactable: %s (visible=%t enabled=%t)", e.Selector, e.Visible, e.Enabled)
}

// AssertionMismatchError means observed state disagrees with the declared expectation.
type AssertionMismatchError struct {
	What     string
	Expected string
	Actual   string
}

func (e *AssertionMismatchError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.What, e.Expected, e.Actual)
}

// TimeoutExceededError means a retryUntil condition never held within its budget.
// LastState carries the final observed state for diagnosis.
type TimeoutExceededError struct {
	Timeout   time.Duration
	Attempts  int
	LastState string
	Err       error // last condition error, usually a mismatch or not-found
}

func (e *TimeoutExceededError) Error() string {
	msg := fmt.Sprintf("condition not met within %s after %d attempts", e.Timeout, e.Attempts)
	if e.LastState != "" {
		msg += " (last state: " + e.LastState + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TimeoutExceededError) Unwrap() error { return e.Err }

// ErrorKind returns the short taxonomy name of err, or "error" for anything unclassified.
func ErrorKind(err error) string {
	var (
		startErr     *SessionStartError
		driftErr     *SelectorDriftError
		notFound     *ElementNotFoundError
		notInteract  *ElementNotInteractableError
		mismatch     *AssertionMismatchError
		timeoutError *TimeoutExceededError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &startErr):
		return "SessionStartError"
	case errors.As(err, &driftErr):
		return "SelectorDriftError"
	case errors.As(err, &timeoutError):
		return "TimeoutExceededError"
	case errors.As(err, &notInteract):
		return "ElementNotInteractableError"
	case errors.As(err, &notFound):
		return "ElementNotFoundError"
	case errors.As(err, &mismatch):
		return "AssertionMismatchError"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "Cancelled"
	default:
		return "error"
	}
}

// Classify maps a step error to the status it produces.
// Step-local errors are Failed; everything else means the harness broke and is Errored.
func Classify(err error) StepStatus {
	if err == nil {
		return StepStatusPassed
	}
	switch ErrorKind(err) {
	case "TimeoutExceededError":
		// A retry that ran out because the scenario was cancelled is a harness failure.
		if errors.Is(err, context.Canceled) {
			return StepStatusErrored
		}
		return StepStatusFailed
	case "ElementNotFoundError", "ElementNotInteractableError", "AssertionMismatchError":
		return StepStatusFailed
	default:
		return StepStatusErrored
	}
}

// IsRunFatal reports whether err must abort the whole run rather than one scenario.
func IsRunFatal(err error) bool {
	var startErr *SessionStartError
	return errors.As(err, &startErr)
}
