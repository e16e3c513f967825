package retry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy is the single retry/backoff configuration shared by fetch, AI and
// storage write paths. Zero values fall back to sensible defaults.
type Policy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Default is the policy used for outbound network calls.
var Default = Policy{
	MaxTries:        4,
	InitialInterval: 500 * time.Millisecond,
	MaxInterval:     10 * time.Second,
}

// Do runs op with exponential backoff until it succeeds, returns a permanent
// error, or the attempt cap is reached.
func (p Policy) Do(ctx context.Context, op func() error) error {
	maxTries := p.MaxTries
	if maxTries == 0 {
		maxTries = Default.MaxTries
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, op()
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(maxTries))
	return err
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		bo.InitialInterval = p.InitialInterval
	} else {
		bo.InitialInterval = Default.InitialInterval
	}
	if p.MaxInterval > 0 {
		bo.MaxInterval = p.MaxInterval
	} else {
		bo.MaxInterval = Default.MaxInterval
	}
	bo.Multiplier = 2
	return bo
}

// Permanent marks err as non-retryable for Policy.Do.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// StatusError captures a non-2xx HTTP response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// RetryableStatus reports whether an HTTP status is transient: 5xx and 429
// are retried, other 4xx are permanent input errors.
func RetryableStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// CheckStatus converts a non-2xx response into an error, marking
// non-retryable statuses permanent so Policy.Do fails fast on them.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := &StatusError{Code: resp.StatusCode, Status: resp.Status}
	if RetryableStatus(resp.StatusCode) {
		return err
	}
	return Permanent(err)
}
