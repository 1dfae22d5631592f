package openai

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/supportflow/model"
)

func apiErr(status int) error {
	req := httptest.NewRequest(http.MethodPost, "https://api.openai.com/v1/chat/completions", nil)
	return &openai.Error{
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
		{"server error", apiErr(http.StatusInternalServerError), true},
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
