package retry

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Controller executes operations under a Policy, logging every attempt and
// backoff delay.
type Controller struct {
	policy Policy
	log    *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger overrides the controller's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// NewController constructs a Controller. SetDefaults is invoked on policy
// if it has not already been applied by the caller.
func NewController(policy Policy, opts ...Option) *Controller {
	policy.SetDefaults()
	c := &Controller{policy: policy, log: slog.Default()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Attempts reports the number of invocations a Policy allows: one initial
// attempt plus MaxRetries retries.
func (p Policy) Attempts() int { return p.MaxRetries + 1 }

// Execute runs op under c's retry policy. On success it returns op's
// result and the number of attempts made (1 means it succeeded with no
// retry). On a non-retryable error, or once retries are exhausted, it
// returns the final error from op unwrapped (never backoff's internal
// permanent-error wrapper).
//
// Execute is a free function, not a Controller method, because Go methods
// cannot carry their own type parameters.
func Execute[T any](ctx context.Context, c *Controller, label string, op func(ctx context.Context) (T, error)) (T, int, error) {
	attempt := 0

	bo := &backoff.ExponentialBackOff{
		InitialInterval:     c.policy.InitialDelay,
		MaxInterval:         c.policy.MaxDelay,
		Multiplier:          c.policy.ExponentialBase,
		RandomizationFactor: 0,
	}
	bo.Reset()

	wrapped := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				c.log.Info("retry: succeeded after retry", "label", label, "attempt", attempt)
			}
			return v, nil
		}
		if !c.policy.Retryable(err) {
			c.log.Warn("retry: non-retryable failure", "label", label, "attempt", attempt, "error", err)
			return v, backoff.Permanent(err)
		}
		c.log.Warn("retry: retryable failure", "label", label, "attempt", attempt, "error", err)
		return v, err
	}

	notify := func(err error, delay time.Duration) {
		c.log.Info("retry: backing off", "label", label, "attempt", attempt, "delay", delay, "error", err)
	}

	v, err := backoff.Retry(ctx, wrapped,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(c.policy.Attempts())),
		backoff.WithNotify(notify),
	)
	return v, attempt, err
}
