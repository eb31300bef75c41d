package jobs

import (
	"errors"
	"strings"
	"time"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/embedding"
)

type retryAfterError struct {
	err   error
	delay time.Duration
}

func (e *retryAfterError) Error() string { return e.err.Error() }
func (e *retryAfterError) Unwrap() error { return e.err }

// RetryAfter asks the runner to redeliver the job after delay, attempts
// permitting.
func RetryAfter(err error, delay time.Duration) error {
	return &retryAfterError{err: err, delay: delay}
}

type unrecoverableError struct {
	err error
}

func (e *unrecoverableError) Error() string { return e.err.Error() }
func (e *unrecoverableError) Unwrap() error { return e.err }

// Unrecoverable marks a job failure that must not be retried.
func Unrecoverable(err error) error {
	return &unrecoverableError{err: err}
}

// IsUnrecoverable reports whether err was marked with Unrecoverable.
func IsUnrecoverable(err error) bool {
	var u *unrecoverableError
	return errors.As(err, &u)
}

type supersededError struct {
	err error
}

func (e *supersededError) Error() string { return e.err.Error() }
func (e *supersededError) Unwrap() error { return e.err }

// Superseded marks a job whose target was reset while it ran, such as a
// chunk re-queued by re-ingestion. The runner restarts the job with fresh
// attempts instead of retrying or failing it.
func Superseded(err error) error {
	return &supersededError{err: err}
}

// IsSuperseded reports whether err was marked with Superseded.
func IsSuperseded(err error) bool {
	var s *supersededError
	return errors.As(err, &s)
}

// RetryDelay returns the delay requested with RetryAfter.
func RetryDelay(err error) (time.Duration, bool) {
	var r *retryAfterError
	if errors.As(err, &r) {
		return r.delay, true
	}
	return 0, false
}

// Backoff is capped exponential backoff.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff matches the embedding retry policy.
var DefaultBackoff = Backoff{Base: time.Second, Max: 60 * time.Second}

// Delay returns min(Max, Base * 2^attemptsMade).
func (b Backoff) Delay(attemptsMade int) time.Duration {
	if attemptsMade < 0 {
		attemptsMade = 0
	}
	d := b.Base
	for i := 0; i < attemptsMade; i++ {
		if b.Max > 0 && d >= b.Max/2 {
			return b.Max
		}
		d *= 2
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

var transientCodes = map[string]bool{
	embedding.CodeTimeout:      true,
	embedding.CodeConnReset:    true,
	embedding.CodeConnRefused:  true,
	embedding.CodeBrokenPipe:   true,
	embedding.CodeDNSTemporary: true,
}

var transientMessages = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"timeout",
	"temporarily unavailable",
}

// IsTransient classifies an embedding failure. Only the EmbeddingError
// fields are inspected; anything else is permanent.
func IsTransient(err error) bool {
	var ee *domain.EmbeddingError
	if !errors.As(err, &ee) {
		return false
	}

	switch {
	case ee.StatusCode == 429, ee.StatusCode == 408:
		return true
	case ee.StatusCode >= 500 && ee.StatusCode <= 599:
		return true
	case transientCodes[ee.TransportCode]:
		return true
	}

	msg := strings.ToLower(ee.Message)
	for _, m := range transientMessages {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
