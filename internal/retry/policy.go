// Package retry implements the at-most-once retry predicate every failed
// invocation is checked against before a new attempt is made.
package retry

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/muyun12/iceproxy"
	"github.com/muyun12/iceproxy/internal/config"
	"github.com/muyun12/iceproxy/internal/reference"
)

// Policy decides whether a failed invocation may be retried and, if so,
// how long to wait before the next attempt. Delay growth is delegated to
// backoff.ExponentialBackOff rather than hand-rolled, so jitter and the
// interval cap behave the way the rest of this runtime's retrying
// collaborators already do.
type Policy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
}

// DefaultPolicy matches a conservative client: a handful of attempts with
// short, capped exponential backoff.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxAttempts:     5,
		InitialInterval: 10 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Multiplier:      2.0,
	}
}

// PolicyFromConfig builds a Policy from a deployment's retry configuration,
// so the same knobs a config file exposes govern the retry behavior every
// proxy built through bootstrap.NewProxy actually uses.
func PolicyFromConfig(cfg config.RetryConfig) *Policy {
	return &Policy{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: time.Duration(cfg.InitialIntervalMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.MaxIntervalMS) * time.Millisecond,
		Multiplier:      cfg.Multiplier,
	}
}

func (p *Policy) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0.2
	return b
}

// CheckRetry decides whether the invocation that failed with err, for an
// operation of the given mode, having already been attempted cnt times,
// should be retried.
//
// Retrying is permitted only when err is a LocalError (application-level
// failures and unknown user exceptions are never safe to retry blindly)
// and, additionally:
//   - the request was never actually sent, or
//   - the operation is Nonmutating or Idempotent and therefore safe to
//     repeat regardless of whether it reached the server, or
//   - the connection closed gracefully (the server guarantees any request
//     already accepted was not partially processed), or
//   - the server reported the object no longer exists, which is a
//     terminal-but-safe-to-retry condition when the caller's next attempt
//     may re-resolve through a locator.
//
// It returns the delay before the next attempt, the incremented attempt
// count, and a nil error when retrying is permitted; otherwise it returns
// the original err unchanged so the caller can propagate it.
func (p *Policy) CheckRetry(err error, mode reference.OperationMode, cnt int) (time.Duration, int, error) {
	if !p.retryable(err, mode) {
		return 0, cnt, err
	}
	if cnt >= p.MaxAttempts {
		return 0, cnt, err
	}

	b := p.newBackOff()
	var delay time.Duration
	for i := 0; i <= cnt; i++ {
		delay = b.NextBackOff()
	}
	return delay, cnt + 1, nil
}

func (p *Policy) retryable(err error, mode reference.OperationMode) bool {
	var localErr *iceproxy.LocalError
	if !errors.As(err, &localErr) {
		return false
	}
	if !localErr.Sent {
		return true
	}
	if mode.RetryableSent() {
		return true
	}
	switch localErr.Kind {
	case iceproxy.GracefulClose, iceproxy.ObjectNotExist:
		return true
	default:
		return false
	}
}
