package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimit means the model endpoint answered 429.
	ErrRateLimit = errors.New("provider rate limited")

	// ErrProviderDown covers 5xx answers, transport failures and empty
	// completions.
	ErrProviderDown = errors.New("provider unavailable")

	// ErrUnauthorized means the endpoint rejected the API key.
	ErrUnauthorized = errors.New("provider rejected credentials")

	// ErrNoProvider is returned when no completer module is configured.
	ErrNoProvider = errors.New("no provider configured")
)

// StatusError is a non-200 answer from a model endpoint. Err is one of
// the sentinels above when the status maps to one.
type StatusError struct {
	Code int
	Body string
	Err  error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: HTTP %d: %s", e.Err, e.Code, e.Body)
	}
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return e.Err }

// IsRetryable reports whether the error is transient. The bot never
// retries on its own; the gateway answers 503 instead of 502 for these.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrProviderDown)
}
