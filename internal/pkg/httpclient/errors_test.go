package httpclient

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNotFoundErr(t *testing.T) {
	err := &Error{
		Method:     http.MethodGet,
		URL:        "http://127.0.0.1:8500/v1/health/service/api",
		StatusCode: http.StatusNotFound,
		Status:     "404 Not Found",
	}

	assert.True(t, IsNotFoundErr(err))
	assert.True(t, IsNotFoundErr(fmt.Errorf("query failed: %w", err)))
	assert.False(t, IsNotFoundErr(fmt.Errorf("plain error")))

	err.StatusCode = http.StatusInternalServerError
	assert.False(t, IsNotFoundErr(err))
}

func TestIsHTTPStatusCodeRetryable(t *testing.T) {
	assert.False(t, IsHTTPStatusCodeRetryable(http.StatusOK))
	assert.False(t, IsHTTPStatusCodeRetryable(http.StatusBadRequest))
	assert.False(t, IsHTTPStatusCodeRetryable(http.StatusNotFound))
	assert.True(t, IsHTTPStatusCodeRetryable(http.StatusTooManyRequests))
	assert.True(t, IsHTTPStatusCodeRetryable(http.StatusInternalServerError))
	assert.True(t, IsHTTPStatusCodeRetryable(http.StatusServiceUnavailable))
}
