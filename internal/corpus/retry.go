package corpus

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 500 * time.Millisecond
)

// RetryPolicy bounds how often a transient storage failure is retried before
// the run aborts. Zero values fall back to the defaults.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

func (p RetryPolicy) attempts() int {
	if p.Attempts <= 0 {
		return defaultRetryAttempts
	}
	return p.Attempts
}

func (p RetryPolicy) backoff() time.Duration {
	if p.Backoff <= 0 {
		return defaultRetryBackoff
	}
	return p.Backoff
}

// do runs fn, retrying transient failures with exponential backoff. The last
// error is returned once attempts are exhausted; non-transient errors abort
// immediately.
func (p RetryPolicy) do(ctx context.Context, logger zerolog.Logger, label string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) {
			return err
		}
		if attempt == p.attempts() {
			break
		}
		wait := p.backoff() * (1 << (attempt - 1))
		logger.Warn().
			Err(err).
			Str("op", label).
			Int("attempt", attempt).
			Dur("backoff", wait).
			Msg("transient storage failure, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return err
}
