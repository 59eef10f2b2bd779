package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ConfigError means a provider is missing required configuration, most
// often a credential. Fatal to that provider's availability only.
type ConfigError struct {
	Provider string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s not configured: %s", e.Provider, e.Reason)
}

// TransportError means the provider could not be reached at all.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s unreachable: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// TimeoutError means the provider exceeded its deadline. Kept distinct
// from TransportError so callers can map it to a gateway timeout status.
type TimeoutError struct {
	Provider string
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out: %v", e.Provider, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// UpstreamError is a non-2xx response from a provider. Body is raw
// provider output and must stay log-only, never user-visible.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s API error %d: %s", e.Provider, e.Status, e.Body)
}

// BothFailedError reports that the preferred and the fallback provider
// both failed. The message cites both causes for diagnosability.
type BothFailedError struct {
	Primary  error
	Fallback error
}

func (e *BothFailedError) Error() string {
	return fmt.Sprintf("all providers failed: primary: %v; fallback: %v", e.Primary, e.Fallback)
}

func (e *BothFailedError) Unwrap() error { return e.Primary }

// classifyTransport wraps an http.Client error as a timeout or a plain
// transport failure.
func classifyTransport(providerID string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Provider: providerID, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Provider: providerID, Err: err}
	}
	return &TransportError{Provider: providerID, Err: err}
}
