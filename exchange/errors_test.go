package exchange

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPErrorCategories(t *testing.T) {
	tests := []struct {
		status    int
		errType   ErrorType
		retriable bool
	}{
		{http.StatusTooManyRequests, ErrorTypeRateLimit, true},
		{http.StatusTeapot, ErrorTypeRateLimit, false},
		{http.StatusUnauthorized, ErrorTypeAuthentication, false},
		{http.StatusForbidden, ErrorTypeAuthentication, false},
		{http.StatusBadRequest, ErrorTypeHTTP, false},
		{http.StatusBadGateway, ErrorTypeHTTP, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := NewExchangeHTTPError(tt.status, nil, "boom")
			assert.Equal(t, tt.errType, err.Type)
			assert.Equal(t, tt.retriable, IsRetriable(err))
			assert.True(t, IsTransportError(err))
		})
	}
}

func TestPredicatesSeeThroughWrapping(t *testing.T) {
	base := NewConfigurationError("unknown_venue", "unknown venue id \"x\"").WithVenue("x")
	wrapped := fmt.Errorf("resolve: %w", base)

	assert.True(t, IsConfigurationError(wrapped))
	assert.False(t, IsTransportError(wrapped))
	assert.False(t, IsValidationError(wrapped))
	assert.Contains(t, wrapped.Error(), "[x:configuration:unknown_venue]")
}

func TestTransportErrorClassification(t *testing.T) {
	assert.False(t, IsTransportError(nil))
	assert.True(t, IsTransportError(errors.New("dial tcp: connection refused")))
	assert.True(t, IsTransportError(NewNetworkError("timeout", "timeout", nil, true)))
	assert.False(t, IsTransportError(NewParsingError("bad json", nil, []byte("{"))))
	assert.False(t, IsTransportError(NewValidationError("too_small", "amount too small")))
}

func TestErrorMessageIncludesCauseAndStatus(t *testing.T) {
	err := NewNetworkError("request_failed", "GET /api/v3/account", errors.New("eof"), true).WithVenue("binance")
	assert.Equal(t, "[binance:network:request_failed] GET /api/v3/account: eof", err.Error())
	assert.ErrorIs(t, err, err.Cause)

	httpErr := NewExchangeHTTPError(http.StatusBadRequest, []byte(`{"code":-1100,"msg":"bad"}`), "-1100: bad")
	assert.Equal(t, "[http:http_400] -1100: bad (HTTP 400)", httpErr.Error())

	var body struct {
		Code int `json:"code"`
	}
	assert.NoError(t, httpErr.ParseJSON(&body))
	assert.Equal(t, -1100, body.Code)
}
