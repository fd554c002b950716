package ai

import "errors"

// Provider failures are reported as one of these, wrapped with the provider
// name and operation. The job pipeline retries all three alike.
var (
	// ErrProviderUnavailable covers transport errors, non-2xx replies and an
	// open circuit breaker.
	ErrProviderUnavailable = errors.New("ai provider unavailable")
	ErrInferenceTimeout    = errors.New("ai inference timeout")
	// ErrInvalidResponse means the provider answered without usable text.
	ErrInvalidResponse = errors.New("ai provider returned invalid response")
)
