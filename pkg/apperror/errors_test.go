package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", ErrNotFound, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load profile: %w", ErrNotFound), http.StatusNotFound},
		{"invalid input", ErrInvalidInput, http.StatusBadRequest},
		{"conflict", ErrConflict, http.StatusConflict},
		{"moderation", ErrModerationBlocked, http.StatusUnprocessableEntity},
		{"network", ErrNetwork, http.StatusServiceUnavailable},
		{"rate limit", ErrRateLimitExceeded, http.StatusTooManyRequests},
		{"app error code wins", New(http.StatusTeapot, "short and stout", nil), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatus(tt.err))
		})
	}
}

func TestWrapKeepsSentinel(t *testing.T) {
	err := Wrap(ErrNotFound, "user not found")

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, "user not found", err.Error())
	assert.Equal(t, http.StatusNotFound, err.Code)
}

func TestFromDB(t *testing.T) {
	assert.NoError(t, FromDB(nil, "noop"))
	assert.ErrorIs(t, FromDB(gorm.ErrRecordNotFound, "find"), ErrNotFound)
	assert.ErrorIs(t, FromDB(gorm.ErrDuplicatedKey, "insert"), ErrConflict)

	other := errors.New("connection reset")
	assert.ErrorIs(t, FromDB(other, "query"), other)
}
