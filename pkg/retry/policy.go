// Package retry implements the Retry/Backoff Controller (spec §4.7): a
// bounded-retry wrapper with exponential backoff and caller-classified
// retryability, built directly on github.com/cenkalti/backoff/v5 — which
// kadirpekel-hector already lists as a dependency but never imports from
// any .go file. This module is the first real, direct use of it.
package retry

import (
	"fmt"
	"time"
)

// Policy mirrors spec §4.8's retry_policy configuration surface.
type Policy struct {
	MaxRetries      int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	ExponentialBase float64

	// Retryable classifies an error returned by the wrapped operation.
	// A nil Retryable treats every error as non-retryable.
	Retryable func(error) bool
}

// SetDefaults fills zero-valued fields with the policy's defaults,
// matching the SetDefaults()/Validate() idiom of
// kadirpekel-hector/pkg/checkpoint/config.go.
func (p *Policy) SetDefaults() {
	if p.MaxRetries == 0 {
		p.MaxRetries = 3
	}
	if p.InitialDelay == 0 {
		p.InitialDelay = 200 * time.Millisecond
	}
	if p.MaxDelay == 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.ExponentialBase == 0 {
		p.ExponentialBase = 2
	}
	if p.Retryable == nil {
		p.Retryable = func(error) bool { return false }
	}
}

// Validate checks the policy for internal consistency.
func (p *Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry: max_retries must be >= 0, got %d", p.MaxRetries)
	}
	if p.InitialDelay < 0 || p.MaxDelay < 0 {
		return fmt.Errorf("retry: delays must be non-negative")
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("retry: max_delay must be >= initial_delay")
	}
	if p.ExponentialBase < 1 {
		return fmt.Errorf("retry: exponential_base must be >= 1, got %f", p.ExponentialBase)
	}
	return nil
}
