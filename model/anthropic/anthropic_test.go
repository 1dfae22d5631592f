package anthropic

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/supportflow/model"
)

func apiErr(status int) error {
	req := httptest.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	return &anthropic.Error{
		Request:    req,
		Response:   &http.Response{StatusCode: status},
		StatusCode: status,
	}
}

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"rate limited", apiErr(http.StatusTooManyRequests), true},
		{"request timeout", apiErr(http.StatusRequestTimeout), true},
		{"server error", apiErr(http.StatusServiceUnavailable), true},
		{"auth failure", apiErr(http.StatusUnauthorized), false},
		{"invalid request", apiErr(http.StatusBadRequest), false},
		{"transport failure", errors.New("dial tcp: connection refused"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, model.IsTransient(classifyErr(tt.err)))
		})
	}
}
