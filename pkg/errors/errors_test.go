package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := WrapError(cause, ErrCodeInternal, "storage unavailable", http.StatusInternalServerError)

	assert.ErrorIs(t, appErr, cause)
	assert.Contains(t, appErr.Error(), "storage unavailable")
	assert.Contains(t, appErr.Error(), "connection refused")
}

func TestGetAppErrorThroughChain(t *testing.T) {
	appErr := NewNotFoundError("stream")
	wrapped := fmt.Errorf("handler failed: %w", appErr)

	got := GetAppError(wrapped)
	require.NotNil(t, got)
	assert.Equal(t, ErrCodeNotFound, got.Code)
	assert.Equal(t, http.StatusNotFound, got.HTTPStatus)

	assert.Nil(t, GetAppError(errors.New("plain")))
}

func TestConstructorStatuses(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, NewInvalidInputError("x").HTTPStatus)
	assert.Equal(t, http.StatusUnauthorized, NewUnauthorizedError("x").HTTPStatus)
	assert.Equal(t, http.StatusForbidden, NewForbiddenError("x").HTTPStatus)
	assert.Equal(t, http.StatusConflict, NewConflictError("x").HTTPStatus)
	assert.Equal(t, http.StatusTooManyRequests, NewRateLimitError().HTTPStatus)
}
