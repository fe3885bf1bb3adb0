package remote

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticToken string

func (s staticToken) AccessToken() string { return string(s) }

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := New(Config{
		BaseURL:   server.URL,
		APIKey:    "anon-key",
		RateLimit: -1,
	}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func writeEnvelope(w http.ResponseWriter, status int, data any, apiErr *APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	raw, _ := json.Marshal(data)
	_ = json.NewEncoder(w).Encode(envelope{Data: raw, Error: apiErr})
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com"}, nil, nil)
	assert.Error(t, err)
}

func TestClient_ListCatalogItems(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/v1/items", r.URL.Path)
		assert.Equal(t, "anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer anon-key", r.Header.Get("Authorization"))
		assert.Empty(t, r.Header.Get("Idempotency-Key"))
		writeEnvelope(w, http.StatusOK, []map[string]any{
			{"id": "t1", "title": "One", "like_count": 3},
			{"id": "t2", "title": "Two"},
		}, nil)
	})

	items, err := client.ListCatalogItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "t1", items[0].ID)
	assert.Equal(t, 3, items[0].LikeCount)
}

func TestClient_EnvelopeErrorCheckedBeforeData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusOK, []map[string]any{{"id": "t1"}},
			&APIError{Code: "PGRST301", Message: "jwt expired"})
	})

	items, err := client.ListCatalogItems(context.Background())
	assert.Nil(t, items)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusOK, apiErr.StatusCode())
	assert.Equal(t, "jwt expired", apiErr.Message)
}

func TestClient_StatusWithoutEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := client.ListFeaturedMedia(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
}

func TestClient_WritesCarryIdempotencyKey(t *testing.T) {
	var keys []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		var body itemRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "t9", body.ItemID)
		assert.Equal(t, "/v1/owners/u1/favorites", r.URL.Path)
		writeEnvelope(w, http.StatusCreated, map[string]any{"owner_id": "u1", "item_id": "t9"}, nil)
	})

	ctx := WithIdempotencyKey(context.Background(), "fixed-key")
	fav, err := client.AddFavorite(ctx, "u1", "t9")
	require.NoError(t, err)
	assert.Equal(t, "t9", fav.ItemID)

	_, err = client.AddFavorite(context.Background(), "u1", "t9")
	require.NoError(t, err)

	require.Len(t, keys, 2)
	assert.Equal(t, "fixed-key", keys[0])
	assert.NotEmpty(t, keys[1])
	assert.NotEqual(t, "fixed-key", keys[1])
}

func TestClient_TokenSourceOverridesAPIKey(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		writeEnvelope(w, http.StatusOK, likeCount{LikeCount: 7}, nil)
	})
	client.SetTokenSource(staticToken("user-token"))

	n, err := client.GetLikeCount(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestClient_RecommendationsRPC(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/rpc/get_recommendations", r.URL.Path)
		var body recommendationsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "u1", body.OwnerID)
		assert.Equal(t, 10, body.Limit)
		writeEnvelope(w, http.StatusOK, []map[string]any{{"id": "t3"}, {"id": "t1"}}, nil)
	})

	items, err := client.GetRecommendations(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "t3", items[0].ID)
}

func TestClient_TrendingLimitQuery(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		writeEnvelope(w, http.StatusOK, []any{}, nil)
	})

	items, err := client.ListTrending(context.Background(), 25)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestClient_DeleteWithEmptyBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/collections/c1/items/t1", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.RemoveCollectionItem(context.Background(), "c1", "t1"))
}

func TestClient_BreakerOpensOnServerErrors(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		writeEnvelope(w, http.StatusInternalServerError, nil, &APIError{Message: "boom"})
	})

	for range 5 {
		_, err := client.ListCatalogItems(context.Background())
		require.Error(t, err)
	}
	assert.Equal(t, "open", client.BreakerState())

	_, err := client.ListCatalogItems(context.Background())
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))
	assert.Equal(t, int32(5), hits.Load())
}

func TestClient_ClientErrorsDoNotTripBreaker(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		writeEnvelope(w, http.StatusNotFound, nil, &APIError{Message: "no such row"})
	})

	for range 8 {
		_, err := client.GetLikeCount(context.Background(), "missing")
		require.Error(t, err)
	}
	assert.Equal(t, "closed", client.BreakerState())
}

func TestClient_Health(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/health", r.URL.Path)
		if !healthy.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	assert.NoError(t, client.Health(context.Background()))
	healthy.Store(false)
	assert.Error(t, client.Health(context.Background()))
}
