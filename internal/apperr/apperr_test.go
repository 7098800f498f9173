package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err      error
		expected int
	}{
		{Unauthenticated("unauthorized"), http.StatusUnauthorized},
		{Forbidden("not your notification"), http.StatusForbidden},
		{NotFound("receiver not found"), http.StatusNotFound},
		{Validation("content is required"), http.StatusBadRequest},
		{Internal("failed to save", errors.New("boom")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", Forbidden("nope")), http.StatusForbidden},
	}

	for _, test := range tests {
		assert.Equal(t, test.expected, Status(test.err), test.err.Error())
	}
}

func TestPublicMessageHidesInternalCause(t *testing.T) {
	err := Internal("failed to save", errors.New("pq: connection refused"))
	assert.Equal(t, "something went wrong", PublicMessage(err, "something went wrong"))
	assert.Equal(t, "receiver not found", PublicMessage(NotFound("receiver not found"), "x"))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Internal("outer", cause)
	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, KindInternal))
	assert.False(t, Is(nil, KindInternal))
}
