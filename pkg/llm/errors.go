package llm

import "fmt"

// Kind classifies a Generator failure, per spec §4.3/§7. The Retry
// Controller (pkg/retry) decides retryability solely from Kind.
type Kind string

const (
	// KindRateLimited is a retryable-transient failure: the provider is
	// throttling requests.
	KindRateLimited Kind = "RateLimited"
	// KindTimeout is a retryable-transient failure: the call did not
	// complete within the provider's or caller's deadline.
	KindTimeout Kind = "Timeout"
	// KindNetworkError is a retryable-transient failure: a transport-level
	// error occurred.
	KindNetworkError Kind = "NetworkError"
	// KindProviderError is retryable only when Retryable is explicitly set
	// (retryable-idempotent-safe in spec §7).
	KindProviderError Kind = "ProviderError"
	// KindInvalidRequest is non-retryable: the request itself was malformed.
	KindInvalidRequest Kind = "InvalidRequest"
)

// Error is the single typed error the Generator interface returns,
// carrying a machine-readable Kind the Retry Controller classifies on.
type Error struct {
	Kind      Kind
	Message   string
	Retryable bool // only consulted when Kind == KindProviderError
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm: %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// IsRetryable reports whether the retry policy's default classification
// (ignoring any caller-supplied retry_on_errors allowlist) would retry
// this error kind.
func (e *Error) IsRetryable() bool {
	switch e.Kind {
	case KindRateLimited, KindTimeout, KindNetworkError:
		return true
	case KindProviderError:
		return e.Retryable
	default:
		return false
	}
}
