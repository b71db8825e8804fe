package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the category of an error
type ErrorType string

const (
	// ErrorTypeHTTP represents HTTP-related errors (status codes, etc.)
	ErrorTypeHTTP ErrorType = "http"

	// ErrorTypeNetwork represents network-related errors (connection issues, timeouts, etc.)
	ErrorTypeNetwork ErrorType = "network"

	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeAuthentication represents authentication errors
	ErrorTypeAuthentication ErrorType = "authentication"

	// ErrorTypeParsing represents malformed payloads, symbols or missing required fields
	ErrorTypeParsing ErrorType = "parsing"

	// ErrorTypeValidation represents rejected user input (invalid parameters, etc.)
	ErrorTypeValidation ErrorType = "validation"

	// ErrorTypeConfiguration represents a misconfigured registry. Always fatal before fetching.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeExchange represents venue-reported errors
	ErrorTypeExchange ErrorType = "exchange"

	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// ExchangeError is the base error type for all venue-related errors
type ExchangeError struct {
	Type        ErrorType
	Code        string
	Message     string
	Venue       string
	StatusCode  int
	RawResponse []byte
	Timestamp   time.Time
	Retriable   bool
	Cause       error
}

// Error returns the error message
func (e *ExchangeError) Error() string {
	prefix := fmt.Sprintf("[%s:%s]", e.Type, e.Code)
	if e.Venue != "" {
		prefix = fmt.Sprintf("[%s:%s:%s]", e.Venue, e.Type, e.Code)
	}
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s %s (HTTP %d)", prefix, msg, e.StatusCode)
	}
	return fmt.Sprintf("%s %s", prefix, msg)
}

// Unwrap returns the underlying cause of the error
func (e *ExchangeError) Unwrap() error {
	return e.Cause
}

// IsRetriable returns whether the error is retriable
func (e *ExchangeError) IsRetriable() bool {
	return e.Retriable
}

// ParseJSON parses the error body as JSON
func (e *ExchangeError) ParseJSON(v interface{}) error {
	return json.Unmarshal(e.RawResponse, v)
}

// WithVenue tags the error with the venue that produced it.
func (e *ExchangeError) WithVenue(venue string) *ExchangeError {
	e.Venue = venue
	return e
}

// NewExchangeError creates a new exchange error
func NewExchangeError(errType ErrorType, code string, message string, cause error) *ExchangeError {
	return &ExchangeError{
		Type:      errType,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(code string, message string, cause error, retriable bool) *ExchangeError {
	return &ExchangeError{
		Type:      ErrorTypeNetwork,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
		Retriable: retriable,
		Cause:     cause,
	}
}

// NewExchangeHTTPError creates a new HTTP error categorized by status code
func NewExchangeHTTPError(statusCode int, body []byte, message string) *ExchangeError {
	retriable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	errType := ErrorTypeHTTP
	code := fmt.Sprintf("http_%d", statusCode)

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusTeapot:
		errType = ErrorTypeRateLimit
		code = "rate_limit_exceeded"
	case http.StatusUnauthorized, http.StatusForbidden:
		errType = ErrorTypeAuthentication
		code = "authentication_failed"
	}

	return &ExchangeError{
		Type:        errType,
		Code:        code,
		Message:     message,
		StatusCode:  statusCode,
		RawResponse: body,
		Timestamp:   time.Now(),
		Retriable:   retriable,
	}
}

// NewParsingError creates a new parsing error
func NewParsingError(message string, cause error, rawData []byte) *ExchangeError {
	return &ExchangeError{
		Type:        ErrorTypeParsing,
		Code:        "parse_error",
		Message:     message,
		Timestamp:   time.Now(),
		Cause:       cause,
		RawResponse: rawData,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(code string, message string) *ExchangeError {
	return &ExchangeError{
		Type:      ErrorTypeValidation,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewConfigurationError creates a new configuration error
func NewConfigurationError(code string, message string) *ExchangeError {
	return &ExchangeError{
		Type:      ErrorTypeConfiguration,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func errorType(err error) (ErrorType, bool) {
	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		return "", false
	}
	return exchangeErr.Type, true
}

func isType(err error, types ...ErrorType) bool {
	t, ok := errorType(err)
	if !ok {
		return false
	}
	for _, candidate := range types {
		if t == candidate {
			return true
		}
	}
	return false
}

// IsNetworkError checks if the error is a network error
func IsNetworkError(err error) bool { return isType(err, ErrorTypeNetwork) }

// IsHTTPError checks if the error is an HTTP error
func IsHTTPError(err error) bool { return isType(err, ErrorTypeHTTP) }

// IsRateLimitError checks if the error is a rate limit error
func IsRateLimitError(err error) bool { return isType(err, ErrorTypeRateLimit) }

// IsAuthenticationError checks if the error is an authentication error
func IsAuthenticationError(err error) bool { return isType(err, ErrorTypeAuthentication) }

// IsParsingError checks if the error is a parsing error
func IsParsingError(err error) bool { return isType(err, ErrorTypeParsing) }

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool { return isType(err, ErrorTypeValidation) }

// IsConfigurationError checks if the error is a configuration error
func IsConfigurationError(err error) bool { return isType(err, ErrorTypeConfiguration) }

// IsTransportError reports whether a single venue call failed in transit or was
// refused by the venue. Errors that carry no ExchangeError are treated as transport
// failures too, since they come from the HTTP layer.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	t, ok := errorType(err)
	if !ok {
		return true
	}
	switch t {
	case ErrorTypeHTTP, ErrorTypeNetwork, ErrorTypeRateLimit, ErrorTypeAuthentication, ErrorTypeExchange:
		return true
	default:
		return false
	}
}

// IsRetriable checks if the error is retriable
func IsRetriable(err error) bool {
	var exchangeErr *ExchangeError
	if !errors.As(err, &exchangeErr) {
		return false
	}
	return exchangeErr.IsRetriable()
}
