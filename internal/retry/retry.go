// Package retry wraps a single unreliable call with bounded
// exponential-backoff retries for transient failures.
package retry

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand/v2"
	"net"
	"syscall"
	"time"
)

// ErrTransient marks an error as retryable. Collaborators wrap expected
// transient conditions (e.g. an automation service poll deadline) with it.
var ErrTransient = errors.New("transient failure")

// Transient reports whether an error is worth retrying. Only timeouts and
// connection failures qualify; everything else propagates immediately.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Policy is a bounded exponential-backoff retry policy. The zero value is
// not usable; use New for defaults.
type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// New returns a Policy with defaults applied for non-positive fields.
func New(attempts int, base, maxDelay time.Duration) Policy {
	if attempts <= 0 {
		attempts = 3
	}
	if base <= 0 {
		base = 2 * time.Second
	}
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	return Policy{Attempts: attempts, BaseDelay: base, MaxDelay: maxDelay}
}

// Do runs op, retrying transient failures up to the attempt ceiling. The
// final attempt's error propagates unchanged. Non-transient errors and
// context cancellation stop retries immediately.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; ; attempt++ {
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Transient(lastErr) || attempt >= p.Attempts {
			return lastErr
		}
		timer := time.NewTimer(p.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

// delay returns a full-jitter exponential delay for retry attempt n
// (1-indexed), capped at MaxDelay.
func (p Policy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt-1))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(rand.Float64() * d) //nolint:gosec // jitter intentionally uses non-crypto rand
}
