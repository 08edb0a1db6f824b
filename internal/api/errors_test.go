package api

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/npezzotti/medchat/internal/chat"
	"github.com/stretchr/testify/assert"
)

func TestApiError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewInternalServerError(cause)

	assert.Equal(t, "internal server error: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "not found", NewNotFoundError().Error())
	assert.Equal(t, "too many requests", NewTooManyRequestsError().Message)
}

func Test_errorFromService(t *testing.T) {
	tcases := []struct {
		name       string
		err        error
		statusCode int
	}{
		{name: "validation", err: fmt.Errorf("%w: content is required", chat.ErrValidation), statusCode: http.StatusBadRequest},
		{name: "not found", err: fmt.Errorf("%w: room r1", chat.ErrNotFound), statusCode: http.StatusNotFound},
		{name: "access denied", err: fmt.Errorf("%w: room r1", chat.ErrAccessDenied), statusCode: http.StatusForbidden},
		{name: "not sender", err: fmt.Errorf("%w: %w: message m1", chat.ErrNotFound, chat.ErrAccessDenied), statusCode: http.StatusNotFound},
		{name: "store failure", err: errors.New("db error"), statusCode: http.StatusInternalServerError},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			apiErr := errorFromService(tc.err)
			assert.Equal(t, tc.statusCode, apiErr.StatusCode)
			assert.Equal(t, lower(http.StatusText(tc.statusCode)), apiErr.Message)
			assert.ErrorIs(t, apiErr, tc.err)
		})
	}
}
