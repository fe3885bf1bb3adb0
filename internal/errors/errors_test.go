package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByCode(t *testing.T) {
	err := RemoteWrite("favorites", fmt.Errorf("connection refused"))

	assert.True(t, Is(err, ErrRemoteWriteFailed))
	assert.False(t, Is(err, ErrRemoteReadFailed))
	assert.Equal(t, "write favorites: connection refused", err.Error())
}

func TestError_UnwrapReachesCause(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := TransactionAborted("favorites", cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ErrTransactionAborted))
}

func TestError_WrappedInFmtStillMatches(t *testing.T) {
	err := fmt.Errorf("toggle: %w", ErrOffline)
	assert.True(t, Is(err, ErrOffline))
}

func TestPartialBatchFailure(t *testing.T) {
	err := PartialBatchFailure("downloads", 2, 5)

	assert.Equal(t, "2 of 5 downloads failed", err.Error())
	assert.Equal(t, map[string]int{"failed": 2, "total": 5}, err.Details)
	assert.True(t, Is(err, ErrPartialBatchFailure))
}

func TestCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeAuthRequired, http.StatusUnauthorized},
		{CodeOffline, http.StatusServiceUnavailable},
		{CodeRemoteWriteFailed, http.StatusBadGateway},
		{CodeRetriesExhausted, http.StatusBadGateway},
		{CodeValidation, http.StatusBadRequest},
		{CodeNotFound, http.StatusNotFound},
		{CodeTransactionAborted, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}
