// Package retry holds the request retry policy used by the API client.
package retry

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Predicate decides whether an attempt outcome should be retried.
type Predicate func(resp *http.Response, err error) bool

// Policy retries an attempt a bounded number of times with a fixed pause between
// attempts. No jitter, no growth.
type Policy struct {
	MaxAttempts int
	Delay       time.Duration
	RetryOn     Predicate
	// Notify runs before each pause with the attempt number that just failed.
	Notify func(attempt int, resp *http.Response, err error, wait time.Duration)
}

// Default is three attempts, five seconds apart, on 429 or transport failure.
func Default() Policy {
	return Policy{
		MaxAttempts: 3,
		Delay:       5 * time.Second,
		RetryOn:     Any(OnStatus(http.StatusTooManyRequests), OnTransportError),
	}
}

// OnStatus retries responses carrying any of the given status codes.
func OnStatus(codes ...int) Predicate {
	return func(resp *http.Response, err error) bool {
		if err != nil || resp == nil {
			return false
		}
		for _, c := range codes {
			if resp.StatusCode == c {
				return true
			}
		}
		return false
	}
}

// OnTransportError retries requests that never produced a response.
func OnTransportError(resp *http.Response, err error) bool {
	return err != nil && resp == nil
}

// Any retries when at least one of preds does.
func Any(preds ...Predicate) Predicate {
	return func(resp *http.Response, err error) bool {
		for _, p := range preds {
			if p != nil && p(resp, err) {
				return true
			}
		}
		return false
	}
}

var errRetryableResponse = errors.New("retryable response")

// Do runs fn until it succeeds, the predicate rejects the outcome, or attempts run out.
// When attempts run out on a retryable response (not an error), that last response is
// returned with a nil error and the caller inspects its status.
func (p Policy) Do(ctx context.Context, fn func(attempt int) (*http.Response, error)) (*http.Response, error) {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryOn := p.RetryOn
	if retryOn == nil {
		retryOn = func(*http.Response, error) bool { return false }
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Delay), uint64(attempts-1)),
		ctx,
	)

	var (
		resp    *http.Response
		lastErr error
		attempt int
	)
	op := func() error {
		if resp != nil {
			discard(resp)
			resp = nil
		}
		attempt++
		r, err := fn(attempt)
		resp, lastErr = r, err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return backoff.Permanent(ctxErr)
		}
		if retryOn(r, err) {
			if err != nil {
				return err
			}
			return errRetryableResponse
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}
	notify := func(_ error, wait time.Duration) {
		if p.Notify != nil {
			p.Notify(attempt, resp, lastErr, wait)
		}
	}

	err := backoff.RetryNotify(op, b, notify)
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, errRetryableResponse):
		return resp, nil
	default:
		if resp != nil {
			discard(resp)
		}
		return nil, err
	}
}

func discard(resp *http.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
