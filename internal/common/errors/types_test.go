package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appError *AppError
		want     string
	}{
		{
			name:     "basic error",
			appError: &AppError{Type: ErrTypeConfig, Message: "configuration is invalid"},
			want:     "config: configuration is invalid",
		},
		{
			name:     "error with code",
			appError: &AppError{Type: ErrTypeAuth, Message: "authentication failed", Code: "HTTP401"},
			want:     "authentication: authentication failed: code=HTTP401",
		},
		{
			name:     "error with cause",
			appError: ConnectionError("fastly api unreachable", errors.New("network timeout")),
			want:     "connection: fastly api unreachable: cause=network timeout",
		},
		{
			name: "context keys are sorted",
			appError: ValidationError("bad snippet").
				WithContext("version", 4).
				WithContext("service", "abc"),
			want: "validation: bad snippet: context={service=abc, version=4}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.appError.Error())
		})
	}
}

func TestFromHTTPStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorType
	}{
		{http.StatusUnauthorized, ErrTypeAuth},
		{http.StatusForbidden, ErrTypeAuth},
		{http.StatusNotFound, ErrTypeNotFound},
		{http.StatusTooManyRequests, ErrTypeRateLimit},
		{http.StatusBadRequest, ErrTypeValidation},
		{http.StatusUnprocessableEntity, ErrTypeValidation},
		{http.StatusInternalServerError, ErrTypeUpstream},
		{http.StatusBadGateway, ErrTypeUpstream},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := FromHTTPStatus(tt.status, "request failed")
			assert.Equal(t, tt.want, err.Type)
			assert.Equal(t, fmt.Sprintf("HTTP%d", tt.status), err.Code)
		})
	}
}

func TestIsTypeAndGetType(t *testing.T) {
	wrapped := fmt.Errorf("clone step: %w", NotFoundError("service"))

	assert.True(t, IsType(wrapped, ErrTypeNotFound))
	assert.False(t, IsType(wrapped, ErrTypeAuth))
	assert.False(t, IsType(nil, ErrTypeAuth))
	assert.False(t, IsType(errors.New("plain"), ErrTypeInternal))

	assert.Equal(t, ErrTypeNotFound, GetType(wrapped))
	assert.Equal(t, ErrTypeInternal, GetType(errors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ConnectionError("fastly api unreachable", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, "timeout during activate", TimeoutError("activate", nil).Message)
	assert.Equal(t, "rate limit exceeded for fastly api", RateLimitError("fastly api").Message)
	assert.Equal(t, ErrTypeInternal, InternalError("boom", cause).Type)
}
