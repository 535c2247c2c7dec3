package content

import (
	"errors"
	"fmt"

	"contentplane/internal/store"
)

// ProviderErrorKind classifies generative provider failures.
type ProviderErrorKind string

const (
	RateLimited     ProviderErrorKind = "rate_limited"
	InvalidResponse ProviderErrorKind = "invalid_response"
	Timeout         ProviderErrorKind = "timeout"
	Unauthorized    ProviderErrorKind = "unauthorized"
)

// ProviderError is returned by Generator implementations.
type ProviderError struct {
	Kind    ProviderErrorKind
	Message string
	Err     error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Kind, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether another attempt may succeed.
func (e *ProviderError) Retryable() bool {
	return e.Kind == RateLimited || e.Kind == Timeout
}

// Reason maps the kind to the failure reason recorded on the artifact.
func (e *ProviderError) Reason() string {
	switch e.Kind {
	case RateLimited:
		return store.ReasonProviderRateLimited
	case Timeout:
		return store.ReasonProviderTimeout
	case Unauthorized:
		return store.ReasonProviderUnauthorized
	default:
		return store.ReasonProviderInvalidResponse
	}
}

// FormatError reports generated output that does not match the requested shape.
type FormatError struct {
	ContentType store.ContentType
	Reason      string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s content: %s", e.ContentType, e.Reason)
}

// IsRetryable reports whether err is a provider failure worth retrying.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable()
}

// RetryableReason reports whether an artifact failure reason is transient.
func RetryableReason(reason string) bool {
	return reason == store.ReasonProviderRateLimited || reason == store.ReasonProviderTimeout
}
