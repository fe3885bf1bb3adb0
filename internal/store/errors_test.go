package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/store"
)

func TestErrNotFound_MatchesDomainCode(t *testing.T) {
	err := fmt.Errorf("get item: %w", store.ErrNotFound)

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, store.IsUniqueViolation(errors.New("constraint failed: UNIQUE constraint failed: favorites.owner_id")))
	assert.False(t, store.IsUniqueViolation(errors.New("no such table")))
	assert.False(t, store.IsUniqueViolation(nil))
}
