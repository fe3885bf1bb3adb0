package validation_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/validation"
)

type TestRequest struct {
	ItemID string `json:"item_id" validate:"required,max=64"`
	Token  string `json:"access_token,omitempty" validate:"omitempty,jwt"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	err := v.Validate(TestRequest{ItemID: "t1", Limit: 20})
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name      string
		req       TestRequest
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing required field",
			req:       TestRequest{},
			wantField: "item_id",
			wantMsg:   "is required",
		},
		{
			name:      "id too long",
			req:       TestRequest{ItemID: string(make([]byte, 65))},
			wantField: "item_id",
			wantMsg:   "must not exceed 64 characters",
		},
		{
			name:      "malformed token",
			req:       TestRequest{ItemID: "t1", Token: "not-a-token"},
			wantField: "access_token",
			wantMsg:   "must be a JWT",
		},
		{
			name:      "limit out of range",
			req:       TestRequest{ItemID: "t1", Limit: 101},
			wantField: "limit",
			wantMsg:   "must be less than or equal to 100",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			require.Error(t, err)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)

			var domainErr *domainerrors.Error
			require.True(t, errors.As(err, &domainErr))
			assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())

			details, ok := domainErr.Details.(map[string]string)
			require.True(t, ok)
			assert.Equal(t, tt.wantMsg, details[tt.wantField])
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(TestRequest{})
	require.Error(t, err)

	var domainErr *domainerrors.Error
	require.True(t, errors.As(err, &domainErr))
	details := domainErr.Details.(map[string]string)

	// JSON tag name, not the struct field name.
	assert.Contains(t, details, "item_id")
	assert.NotContains(t, details, "ItemID")
}

type addRequest struct {
	ItemID string `json:"item_id" validate:"required,entityid"`
}

func TestValidator_EntityID(t *testing.T) {
	v := validation.New()

	valid := []string{"t1", "item_01HX", "a:b.c-d", "550e8400-e29b-41d4-a716-446655440000"}
	for _, id := range valid {
		assert.NoError(t, v.Validate(addRequest{ItemID: id}), id)
	}

	invalid := []string{"", "../etc", "a/b", `a\b`, ".hidden", "a..b", string(make([]byte, 129))}
	for _, id := range invalid {
		assert.Error(t, v.Validate(addRequest{ItemID: id}), id)
	}
}

func TestValidator_ValidateID(t *testing.T) {
	v := validation.New()

	require.NoError(t, v.ValidateID("collection_id", "c1"))

	err := v.ValidateID("collection_id", "../c1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	var domainErr *domainerrors.Error
	require.True(t, errors.As(err, &domainErr))
	details := domainErr.Details.(map[string]string)
	assert.Contains(t, details, "collection_id")
	assert.Equal(t, "invalid collection_id", domainErr.Message)
}
