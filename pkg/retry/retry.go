// Package retry wraps backoff with the two shapes the publish pipeline
// needs: bounded retry of transient failures and bounded status polling.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"postpilot/internal/models"
)

// ErrNotReady is returned by a poll operation whose remote side has not
// reached a terminal state yet.
var ErrNotReady = errors.New("not ready")

// Do runs op up to maxAttempts times with exponential backoff, stopping
// early when ctx is done or op returns a permanent error. Errors of type
// models.ProtocolError and models.ValidationError are permanent.
func Do(ctx context.Context, maxAttempts uint64, op func() error) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(classify(op), b)
}

// Poll runs op every interval up to maxAttempts times until it stops
// returning ErrNotReady. Budget exhaustion becomes a models.TimeoutError
// for step, so a hung remote can never block a run past its deadline.
func Poll(ctx context.Context, step string, interval time.Duration, maxAttempts uint64, op func() error) error {
	if maxAttempts == 0 {
		maxAttempts = 1
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(interval), maxAttempts-1), ctx)
	err := backoff.Retry(classify(op), b)
	if errors.Is(err, ErrNotReady) {
		return &models.TimeoutError{Step: step, Waited: time.Duration(maxAttempts) * interval}
	}
	return err
}

// classify marks non-retryable taxonomy errors as permanent so backoff
// stops immediately instead of burning the attempt budget.
func classify(op func() error) func() error {
	return func() error {
		err := op()
		if err == nil {
			return nil
		}
		var pe *models.ProtocolError
		var ve *models.ValidationError
		if errors.As(err, &pe) || errors.As(err, &ve) {
			return backoff.Permanent(err)
		}
		return err
	}
}
