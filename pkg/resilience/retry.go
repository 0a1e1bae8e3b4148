package resilience

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries = 2
	DefaultRetryBase  = 250 * time.Millisecond
	DefaultRetryCap   = 5 * time.Second
)

// Retryer wraps a single remote call with bounded exponential backoff. Only
// transient failures are retried; everything else surfaces immediately.
type Retryer struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseDelay is the first backoff interval; each retry doubles it.
	BaseDelay time.Duration
	// MaxDelay caps the backoff interval.
	MaxDelay time.Duration
	// Classify overrides the default Transient classifier when set.
	Classify func(error) bool
}

func (r Retryer) withDefaults() Retryer {
	if r.MaxRetries <= 0 {
		r.MaxRetries = DefaultMaxRetries
	}
	if r.BaseDelay <= 0 {
		r.BaseDelay = DefaultRetryBase
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = DefaultRetryCap
	}
	return r
}

// Do runs op, retrying transient failures up to MaxRetries times with
// exponential backoff. The delay before attempt n is min(base*2^n, cap).
// Cancellation of ctx stops the sequence between attempts.
func (r Retryer) Do(ctx context.Context, op func(context.Context) error) error {
	r = r.withDefaults()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.BaseDelay
	bo.MaxInterval = r.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0

	var policy backoff.BackOff = backoff.WithMaxRetries(bo, uint64(r.MaxRetries))
	policy = backoff.WithContext(policy, ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !r.classify(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy)
}

func (r Retryer) classify(err error) bool {
	if r.Classify != nil {
		return r.Classify(err)
	}
	return Transient(err)
}

// Transient reports whether err belongs to the retryable failure classes:
// timeouts and connection-level drops. Cancellation, circuit rejections, and
// application-level errors are permanent.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}
