package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/vigil/internal/models"
)

// DefaultPollInterval is used when a retry declares no poll interval
const DefaultPollInterval = 250 * time.Millisecond

// Condition is one attempt of a polled check. state describes what was observed
// and is attached to the timeout error of the final attempt.
type Condition func(ctx context.Context) (state string, err error)

// RetryUntil polls cond until it succeeds or timeout elapses.
// The call returns within timeout plus one poll interval: the last attempt runs
// under a context that expires at that bound.
func RetryUntil(ctx context.Context, timeout, poll time.Duration, cond Condition) (int, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	deadline := time.Now().Add(timeout)
	attemptCtx, cancel := context.WithDeadline(ctx, deadline.Add(poll))
	defer cancel()

	var (
		attempts  int
		lastErr   error
		lastState string
	)
	timedOut := func() error {
		return &models.TimeoutExceededError{
			Timeout:   timeout,
			Attempts:  attempts,
			LastState: lastState,
			Err:       lastErr,
		}
	}

	for {
		attempts++
		state, err := cond(attemptCtx)
		if err == nil {
			return attempts, nil
		}
		if ctx.Err() != nil {
			return attempts, fmt.Errorf("retry interrupted after %d attempts: %w", attempts, ctx.Err())
		}
		if attemptCtx.Err() != nil {
			// The attempt was cut off by the retry bound; keep the last real observation
			if lastErr == nil {
				lastErr, lastState = err, state
			}
			return attempts, timedOut()
		}
		if !retryable(err) {
			return attempts, err
		}
		lastErr, lastState = err, state

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return attempts, timedOut()
		}
		wait := poll
		if wait > remaining {
			wait = remaining
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, fmt.Errorf("retry interrupted after %d attempts: %w", attempts, ctx.Err())
		case <-timer.C:
		}
	}
}

// retryable reports whether another attempt can change the outcome.
// Only step-local failures are polled; harness errors and drift return at once
// so they are classified Errored rather than hidden behind a timeout.
func retryable(err error) bool {
	var (
		notFound        *models.ElementNotFoundError
		notInteractable *models.ElementNotInteractableError
		mm              *models.AssertionMismatchError
	)
	return errors.As(err, &notFound) || errors.As(err, &notInteractable) || errors.As(err, &mm)
}
