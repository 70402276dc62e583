package provider

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRateLimited = errors.New("rate limited")
	ErrNotFound    = errors.New("not found")
	ErrTimeout     = errors.New("timed out")
	ErrUnavailable = errors.New("unavailable")
	ErrBadResponse = errors.New("bad response")
)

// ProviderError describes a failed provider call
type ProviderError struct {
	Op         string
	Provider   string
	StatusCode int
	Err        error
	temporary  bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Temporary reports whether repeating the call may succeed
func (e *ProviderError) Temporary() bool { return e.temporary }

// IsTemporary reports whether err carries a temporary ProviderError
func IsTemporary(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Temporary()
}

func statusError(op, provider string, code int) *ProviderError {
	pe := &ProviderError{Op: op, Provider: provider, StatusCode: code}
	switch {
	case code == http.StatusTooManyRequests:
		pe.Err, pe.temporary = ErrRateLimited, true
	case code == http.StatusNotFound || code == http.StatusGone:
		pe.Err = ErrNotFound
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		pe.Err, pe.temporary = ErrTimeout, true
	case code >= 500:
		pe.Err, pe.temporary = ErrUnavailable, true
	case code == http.StatusForbidden:
		pe.Err = fmt.Errorf("%w: access denied", ErrUnavailable)
	default:
		pe.Err = fmt.Errorf("%w: unexpected status", ErrBadResponse)
	}
	return pe
}
