package offline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/logger"
	"github.com/listenupapp/listenup-sync/internal/store"
	"github.com/listenupapp/listenup-sync/internal/store/sqlite"
)

type assetServer struct {
	*httptest.Server
	hits atomic.Int32
}

func newAssetServer(t *testing.T) *assetServer {
	t.Helper()
	s := &assetServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/audio/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("audio:" + r.URL.Path))
	})
	mux.HandleFunc("/thumbs/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		_, _ = w.Write([]byte("jpeg"))
	})
	mux.HandleFunc("/broken/", func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		http.Error(w, "gone", http.StatusNotFound)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestService(t *testing.T, items ...domain.CatalogItem) (*Service, *sqlite.Store, *cache.Cache) {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.Open(filepath.Join(t.TempDir(), "offline.db"), logger.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if len(items) > 0 {
		require.NoError(t, st.Transaction(ctx, func(tx store.Tx) error {
			return tx.UpsertCatalogItems(ctx, items)
		}))
	}

	c := cache.New(logger.Discard())
	svc, err := NewService(st, t.TempDir(), c, logger.Discard(), Options{})
	require.NoError(t, err)
	return svc, st, c
}

func TestService_DownloadAndDelete(t *testing.T) {
	srv := newAssetServer(t)
	item := domain.CatalogItem{
		ID:           "t1",
		Title:        "One",
		AudioURL:     srv.URL + "/audio/t1.mp3",
		ThumbnailURL: srv.URL + "/thumbs/t1.jpg",
	}
	svc, st, c := newTestService(t, item)
	ctx := context.Background()

	assert.False(t, svc.IsDownloaded(ctx, "t1"))

	c.Set(cache.NewKey(cache.EntityDownloads), []string{})

	res := svc.Download(ctx, item)
	require.True(t, res.Success, "%v", res.Error)
	assert.Positive(t, res.Size)
	assert.True(t, svc.IsDownloaded(ctx, "t1"))

	_, ok := c.Get(cache.NewKey(cache.EntityDownloads))
	assert.False(t, ok, "downloads cache invalidated")

	stored, err := st.GetCatalogItem(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, ".mp3", filepath.Ext(stored.LocalAudioPath))
	assert.Equal(t, ".jpg", filepath.Ext(stored.LocalThumbnailPath))
	assert.NotNil(t, stored.DownloadedAt)

	all, err := svc.GetAllDownloaded(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "t1", all[0].ID)

	size, err := svc.GetDownloadedSize()
	require.NoError(t, err)
	assert.Equal(t, res.Size+int64(len("jpeg")), size)

	del := svc.Delete(ctx, "t1")
	require.True(t, del.Success, "%v", del.Error)
	assert.False(t, svc.IsDownloaded(ctx, "t1"))

	size, err = svc.GetDownloadedSize()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestService_DownloadFailures(t *testing.T) {
	srv := newAssetServer(t)

	t.Run("missing audio url", func(t *testing.T) {
		svc, _, _ := newTestService(t, domain.CatalogItem{ID: "t1"})
		res := svc.Download(context.Background(), domain.CatalogItem{ID: "t1"})
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Error, domainerrors.ErrValidation)
	})

	t.Run("audio status error", func(t *testing.T) {
		item := domain.CatalogItem{ID: "t1", AudioURL: srv.URL + "/broken/t1.mp3"}
		svc, _, _ := newTestService(t, item)

		res := svc.Download(context.Background(), item)
		assert.False(t, res.Success)
		assert.ErrorContains(t, res.Error, "unexpected status 404")
		assert.False(t, svc.IsDownloaded(context.Background(), "t1"))
	})

	t.Run("thumbnail failure is not fatal", func(t *testing.T) {
		item := domain.CatalogItem{
			ID:           "t1",
			AudioURL:     srv.URL + "/audio/t1.mp3",
			ThumbnailURL: srv.URL + "/broken/t1.jpg",
		}
		svc, st, _ := newTestService(t, item)

		res := svc.Download(context.Background(), item)
		require.True(t, res.Success, "%v", res.Error)

		stored, err := st.GetCatalogItem(context.Background(), "t1")
		require.NoError(t, err)
		assert.Empty(t, stored.LocalThumbnailPath)
	})

	t.Run("item not in local catalog", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		item := domain.CatalogItem{ID: "ghost", AudioURL: srv.URL + "/audio/ghost.mp3"}

		res := svc.Download(context.Background(), item)
		assert.False(t, res.Success)
		assert.ErrorIs(t, res.Error, domainerrors.ErrNotFound)

		size, err := svc.GetDownloadedSize()
		require.NoError(t, err)
		assert.Zero(t, size, "files removed when bookkeeping fails")
	})

	t.Run("oversized audio", func(t *testing.T) {
		item := domain.CatalogItem{ID: "t1", AudioURL: srv.URL + "/audio/t1.mp3"}
		svc, _, _ := newTestService(t, item)
		svc.opts.MaxAudioSize = 4

		res := svc.Download(context.Background(), item)
		assert.False(t, res.Success)
		assert.ErrorContains(t, res.Error, "exceeds 4 bytes")
	})
}

func TestService_IsDownloadedRequiresFile(t *testing.T) {
	srv := newAssetServer(t)
	item := domain.CatalogItem{ID: "t1", AudioURL: srv.URL + "/audio/t1.mp3"}
	svc, _, _ := newTestService(t, item)
	ctx := context.Background()

	require.True(t, svc.Download(ctx, item).Success)
	require.NoError(t, svc.audio.Delete("t1"))

	assert.False(t, svc.IsDownloaded(ctx, "t1"))
	all, err := svc.GetAllDownloaded(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestService_ClearAll(t *testing.T) {
	srv := newAssetServer(t)
	items := []domain.CatalogItem{
		{ID: "t1", AudioURL: srv.URL + "/audio/t1.mp3"},
		{ID: "t2", AudioURL: srv.URL + "/audio/t2.mp3"},
	}
	svc, _, _ := newTestService(t, items...)
	ctx := context.Background()

	for _, item := range items {
		require.True(t, svc.Download(ctx, item).Success)
	}

	require.NoError(t, svc.ClearAll(ctx))

	for _, item := range items {
		assert.False(t, svc.IsDownloaded(ctx, item.ID))
	}
	size, err := svc.GetDownloadedSize()
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestExtension(t *testing.T) {
	tests := []struct {
		url         string
		contentType string
		want        string
	}{
		{"https://cdn.example.com/a/track.MP3", "", ".mp3"},
		{"https://cdn.example.com/a/track", "image/png", ".png"},
		{"https://cdn.example.com/a/track", "", ".bin"},
		{"https://cdn.example.com/a/track.verylongext", "", ".bin"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			u, err := url.Parse(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.want, extension(u, tt.contentType))
		})
	}
}
