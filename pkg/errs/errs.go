// Package errs defines the error taxonomy shared by the signing core, the
// transport and the client.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks caller input that is self-contradictory or out of range.
	ErrValidation = errors.New("validation error")
	// ErrInvalidNumericInput marks a value the numeric normalizer rejected.
	ErrInvalidNumericInput = fmt.Errorf("%w: invalid numeric input", ErrValidation)
	// ErrContractNotFound marks a symbol missing from the contract table.
	ErrContractNotFound = fmt.Errorf("%w: contract not found", ErrValidation)
	// ErrNoCredential marks a signing attempt with no key or secret configured.
	ErrNoCredential = errors.New("no signing credential configured")
	// ErrDeserialization marks a response that matches no known shape.
	ErrDeserialization = errors.New("deserialization error")
	// ErrMaintenance marks an exchange that reports a maintenance window.
	ErrMaintenance = errors.New("exchange under maintenance")
	// ErrTransport marks a connection level failure.
	ErrTransport = errors.New("transport error")
)

// HTTP status kinds. HTTPError.Is matches these so callers can write
// errors.Is(err, errs.ErrRateLimited).
var (
	ErrBadRequest         = errors.New("bad request")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrNotFound           = errors.New("not found")
	ErrRateLimited        = errors.New("rate limited")
	ErrClientStatus       = errors.New("client error status")
	ErrInternalServer     = errors.New("internal server error")
	ErrBadGateway         = errors.New("bad gateway")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrGatewayTimeout     = errors.New("gateway timeout")
	ErrServerStatus       = errors.New("server error status")
)

// Validationf builds an ErrValidation with a formatted detail.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// HTTPError is a non-2xx response from the exchange.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Message)
}

func (e *HTTPError) Kind() error {
	switch {
	case e.Status == 400:
		return ErrBadRequest
	case e.Status == 401:
		return ErrUnauthorized
	case e.Status == 403:
		return ErrForbidden
	case e.Status == 404:
		return ErrNotFound
	case e.Status == 429:
		return ErrRateLimited
	case e.Status >= 400 && e.Status < 500:
		return ErrClientStatus
	case e.Status == 500:
		return ErrInternalServer
	case e.Status == 502:
		return ErrBadGateway
	case e.Status == 503:
		return ErrServiceUnavailable
	case e.Status == 504:
		return ErrGatewayTimeout
	default:
		return ErrServerStatus
	}
}

func (e *HTTPError) Is(target error) bool {
	return target == e.Kind()
}

// Temporary reports whether retrying the same request may succeed.
func (e *HTTPError) Temporary() bool {
	return e.Status >= 500
}

// RateLimitError is a 429 carrying the exchange's limiter state.
type RateLimitError struct {
	HTTPError
	Name           string
	Count          int
	Limit          int
	WindowDuration string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited on %s: %d/%d per %s: %s", e.Name, e.Count, e.Limit, e.WindowDuration, e.Message)
}

// ExchangeError is a per-operation rejection reported inside a response body.
type ExchangeError struct {
	Code    int
	Status  string
	Message string
}

func (e *ExchangeError) Error() string {
	return FormatExchangeMessage(e.Code, e.Status, e.Message)
}

// FormatExchangeMessage renders "[code] status: message", the form the
// exchange uses in its own error reports.
func FormatExchangeMessage(code int, status, message string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d]", code)
	if status != "" {
		b.WriteString(" ")
		b.WriteString(status)
	}
	if message != "" {
		b.WriteString(": ")
		b.WriteString(message)
	}
	return b.String()
}

// DeserializationError carries the record that could not be classified.
type DeserializationError struct {
	Record string
	Reason string
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrDeserialization, e.Reason, e.Record)
}

func (e *DeserializationError) Unwrap() error { return ErrDeserialization }
