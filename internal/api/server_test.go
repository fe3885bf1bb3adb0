package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goccy/go-json"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-sync/internal/bulk"
	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/http/response"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/mutation"
	"github.com/listenupapp/listenup-sync/internal/network"
	"github.com/listenupapp/listenup-sync/internal/offline"
	"github.com/listenupapp/listenup-sync/internal/orchestrator"
	"github.com/listenupapp/listenup-sync/internal/remote/remotetest"
	"github.com/listenupapp/listenup-sync/internal/retry"
	"github.com/listenupapp/listenup-sync/internal/session"
	"github.com/listenupapp/listenup-sync/internal/store/kv"
	"github.com/listenupapp/listenup-sync/internal/store/sqlite"
	"github.com/listenupapp/listenup-sync/internal/syncer"
)

type testServer struct {
	server  *Server
	remote  *remotetest.Fake
	network *network.Monitor
	offline *offline.Service
}

// setupTestServer wires the daemon's real components around an in-memory remote.
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.Discard()

	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("audio:" + r.URL.Path))
	}))
	t.Cleanup(assets.Close)

	fake := remotetest.New()
	fake.SeedItems(
		domain.CatalogItem{ID: "t1", Title: "One", AudioURL: assets.URL + "/t1.mp3"},
		domain.CatalogItem{ID: "t2", Title: "Two", AudioURL: assets.URL + "/t2.mp3"},
		domain.CatalogItem{ID: "t3", Title: "Three", AudioURL: assets.URL + "/t3.mp3"},
	)
	fake.SeedTrending("t3", "t1")
	fake.SeedRecommendations("owner-1", "t2")
	fake.SeedFavorites("owner-1", "t1", "t2")
	fake.SeedCollections("owner-1", domain.Collection{ID: "c1", Name: "Road trip", Members: []domain.CollectionMembership{
		{ID: "m1", ItemID: "t1"},
	}})

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "sync.db"), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	kvStore, err := kv.OpenInMemory(log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = kvStore.Close() })

	c := cache.New(log)
	sess, err := session.New(kvStore, nil, log)
	require.NoError(t, err)
	monitor := network.New(nil, nil, log, network.Options{InitialOnline: true})

	runners := syncer.All(syncer.Deps{Remote: fake, Store: st, Cache: c, Logger: log},
		syncer.Limits{Recommendations: 10, Trending: 10})
	orch := orchestrator.New(runners, monitor, sess, kvStore, nil, log, orchestrator.Options{MinVisible: -1})
	t.Cleanup(orch.Stop)

	mutations := mutation.New(fake, st, c, monitor, sess,
		retry.New(retry.Options{BaseDelay: time.Millisecond}), log)

	svc, err := offline.NewService(st, t.TempDir(), c, log, offline.Options{})
	require.NoError(t, err)

	server := NewServer(Deps{
		Store:     st,
		Cache:     c,
		Sync:      orch,
		Mutations: mutations,
		Session:   sess,
		Network:   monitor,
		Offline:   svc,
		Bulk:      bulk.NewRegistry(svc, st, sess, c, nil, log),
	}, log)

	return &testServer{server: server, remote: fake, network: monitor, offline: svc}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.server.ServeHTTP(w, req)
	return w
}

// signIn signs owner-1 in and runs a full sync.
func (ts *testServer) signIn(t *testing.T) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/v1/session", SignInRequest{AccessToken: signToken(t, "owner-1")})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodPost, "/api/v1/sync?wait=true", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func signToken(t *testing.T, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte("server-secret"))
	require.NoError(t, err)
	return token
}

// decodeData unmarshals the envelope's data field into out.
func decodeData(t *testing.T, w *httptest.ResponseRecorder, out any) response.Envelope {
	t.Helper()
	var raw struct {
		response.Envelope
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	if out != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, out))
	}
	return raw.Envelope
}

func TestHealthCheck(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var health HealthResponse
	decodeData(t, w, &health)
	assert.Equal(t, "healthy", health.Status)
	assert.True(t, health.Online)
	assert.False(t, health.SignedIn)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "listenup_network_online")
}

func TestSession(t *testing.T) {
	ts := setupTestServer(t)

	t.Run("rejects malformed token", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/session", SignInRequest{AccessToken: "nope"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "VALIDATION", decodeData(t, w, nil).Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/session", map[string]string{"token": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("sign in and out", func(t *testing.T) {
		w := ts.do(t, http.MethodPost, "/api/v1/session", SignInRequest{AccessToken: signToken(t, "owner-1")})
		require.Equal(t, http.StatusOK, w.Code)
		var sess SessionResponse
		decodeData(t, w, &sess)
		assert.Equal(t, SessionResponse{OwnerID: "owner-1", SignedIn: true}, sess)

		w = ts.do(t, http.MethodDelete, "/api/v1/session", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = ts.do(t, http.MethodGet, "/api/v1/session", nil)
		decodeData(t, w, &sess)
		assert.False(t, sess.SignedIn)
	})
}

func TestSyncAndRead(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	var state domain.SyncState
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/sync", nil), &state)
	assert.False(t, state.IsSyncing)
	assert.Empty(t, state.Error)
	assert.NotNil(t, state.LastSyncTime)

	var trending []domain.CatalogItem
	w := ts.do(t, http.MethodGet, "/api/v1/sections/trending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decodeData(t, w, &trending)
	require.Len(t, trending, 2)
	assert.Equal(t, "t3", trending[0].ID)
	assert.Equal(t, "t1", trending[1].ID)

	var recs []domain.CatalogItem
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/sections/recommendations", nil), &recs)
	require.Len(t, recs, 1)
	assert.Equal(t, "t2", recs[0].ID)

	var favorites []domain.CatalogItem
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/favorites", nil), &favorites)
	assert.Len(t, favorites, 2)

	var collections []domain.Collection
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/collections", nil), &collections)
	require.Len(t, collections, 1)
	assert.Equal(t, "Road trip", collections[0].Name)

	w = ts.do(t, http.MethodGet, "/api/v1/sections/popular", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSignedOutRequests(t *testing.T) {
	ts := setupTestServer(t)

	for _, path := range []string{"/api/v1/favorites", "/api/v1/collections", "/api/v1/sections/recommendations"} {
		w := ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}

	w := ts.do(t, http.MethodPost, "/api/v1/favorites/t1/toggle", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_REQUIRED", decodeData(t, w, nil).Code)
}

func TestToggleFavorite(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	var fav FavoriteResponse
	w := ts.do(t, http.MethodPost, "/api/v1/favorites/t3/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &fav)
	assert.Equal(t, FavoriteResponse{ItemID: "t3", Favorite: true}, fav)
	assert.Contains(t, ts.remote.FavoriteIDs("owner-1"), "t3")
	assert.Equal(t, 1, ts.remote.LikeCount("t3"))

	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/favorites/t3", nil), &fav)
	assert.True(t, fav.Favorite)

	var favorites []domain.CatalogItem
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/favorites", nil), &favorites)
	assert.Len(t, favorites, 3)
}

func TestToggleFavorite_Offline(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	w := ts.do(t, http.MethodPut, "/api/v1/network", map[string]bool{"online": false})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/favorites/t3/toggle", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "OFFLINE", decodeData(t, w, nil).Code)
	assert.Zero(t, ts.remote.Calls(remotetest.MethodAddFavorite))
}

func TestCollectionItems(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	w := ts.do(t, http.MethodPost, "/api/v1/collections/c1/items", AddItemRequest{ItemID: "t2"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created domain.CollectionMembership
	decodeData(t, w, &created)
	assert.Equal(t, "t2", created.ItemID)
	assert.NotEmpty(t, created.ID)

	w = ts.do(t, http.MethodPost, "/api/v1/collections/c1/items", AddItemRequest{ItemID: "t2"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "duplicate")

	w = ts.do(t, http.MethodPost, "/api/v1/collections/c1/items", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code, "missing item_id")

	var members []domain.CollectionMembership
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/collections/c1/items", nil), &members)
	assert.Len(t, members, 2)

	w = ts.do(t, http.MethodDelete, "/api/v1/collections/c1/items/t1", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"t2"}, ts.remote.MemberItemIDs("c1"))

	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/collections/c1/items", nil), &members)
	require.Len(t, members, 1)
	assert.Equal(t, "t2", members[0].ItemID)
}

func TestBulkDownloads(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	var state BulkResponse
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/downloads/favorites", nil), &state)
	assert.Equal(t, bulk.ScopeFavorites, state.Scope)
	assert.Equal(t, domain.DownloadStatusNone, state.Status)

	w := ts.do(t, http.MethodPost, "/api/v1/downloads/favorites", nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Eventually(t, func() bool {
		decodeData(t, ts.do(t, http.MethodGet, "/api/v1/downloads/favorites", nil), &state)
		return state.Status == domain.DownloadStatusAll && !state.IsDownloading
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, state.DownloadedCount)
	assert.Equal(t, domain.Progress{Current: 2, Total: 2}, state.Progress)

	var coll BulkResponse
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/downloads/collections/c1", nil), &coll)
	assert.Equal(t, bulk.CollectionScope("c1"), coll.Scope)
	assert.Equal(t, domain.DownloadStatusAll, coll.Status, "t1 came with the favorites")

	var downloaded []domain.CatalogItem
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/downloads", nil), &downloaded)
	assert.Len(t, downloaded, 2)

	var storage StorageResponse
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/storage", nil), &storage)
	assert.Positive(t, storage.SizeBytes)
	assert.Equal(t, 2, storage.Items)

	w = ts.do(t, http.MethodDelete, "/api/v1/storage", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/storage", nil), &storage)
	assert.Zero(t, storage.SizeBytes)
	assert.False(t, ts.offline.IsDownloaded(context.Background(), "t1"))
}

func TestCatalogAndPlays(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	var items []domain.CatalogItem
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/catalog", nil), &items)
	assert.Len(t, items, 3)

	var item domain.CatalogItem
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/catalog/t2", nil), &item)
	assert.Equal(t, "Two", item.Title)
	assert.Nil(t, item.LastPlayedAt)

	w := ts.do(t, http.MethodPost, "/api/v1/catalog/t2/play", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &item)
	assert.Equal(t, 1, item.LocalPlayCount)
	assert.NotNil(t, item.LastPlayedAt)

	// The cached read reflects the play.
	decodeData(t, ts.do(t, http.MethodGet, "/api/v1/catalog/t2", nil), &item)
	assert.Equal(t, 1, item.LocalPlayCount)

	w = ts.do(t, http.MethodGet, "/api/v1/catalog/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPost, "/api/v1/catalog/missing/play", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetCollection(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	var collection domain.Collection
	w := ts.do(t, http.MethodGet, "/api/v1/collections/c1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeData(t, w, &collection)
	assert.Equal(t, "Road trip", collection.Name)

	w = ts.do(t, http.MethodGet, "/api/v1/collections/nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMalformedIDs(t *testing.T) {
	ts := setupTestServer(t)
	ts.signIn(t)

	tests := []struct {
		method string
		path   string
		body   any
	}{
		{http.MethodGet, "/api/v1/catalog/a..b", nil},
		{http.MethodGet, "/api/v1/collections/-c1", nil},
		{http.MethodPost, "/api/v1/collections/c1/items", AddItemRequest{ItemID: "../t1"}},
		{http.MethodGet, "/api/v1/downloads/collections/c..1", nil},
	}
	for _, tt := range tests {
		w := ts.do(t, tt.method, tt.path, tt.body)
		assert.Equal(t, http.StatusBadRequest, w.Code, tt.path)
	}
	assert.Equal(t, []string{"t1"}, ts.remote.MemberItemIDs("c1"))
}
