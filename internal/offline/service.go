// Package offline keeps catalog items playable without connectivity.
package offline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/listenupapp/listenup-sync/internal/cache"
	"github.com/listenupapp/listenup-sync/internal/domain"
	domainerrors "github.com/listenupapp/listenup-sync/internal/errors"
	"github.com/listenupapp/listenup-sync/internal/ratelimit"
	"github.com/listenupapp/listenup-sync/internal/store"
)

const (
	// DefaultMaxAudioSize limits a single audio download.
	DefaultMaxAudioSize = 1 << 30 // 1GB

	// DefaultMaxThumbnailSize limits a single thumbnail download.
	DefaultMaxThumbnailSize = 10 * 1024 * 1024 // 10MB

	// DefaultTimeout bounds one asset download, audio and thumbnail included.
	DefaultTimeout = 10 * time.Minute
)

// Result is the outcome of one download or delete.
type Result struct {
	Success bool  // Whether the operation completed
	Size    int64 // Bytes written, downloads only
	Error   error // Set when Success is false
}

// Options configures a Service.
type Options struct {
	MaxAudioSize     int64
	MaxThumbnailSize int64
	Timeout          time.Duration
	HTTPClient       *http.Client

	// Limiter throttles downloads per host. Nil disables throttling.
	Limiter *ratelimit.KeyedRateLimiter
}

// Service downloads item assets to disk and records them in the local store.
type Service struct {
	store  store.Store
	audio  *Files
	thumbs *Files
	cache  *cache.Cache
	client *http.Client
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates the audio and thumbnail directories under basePath.
// c may be nil.
func NewService(st store.Store, basePath string, c *cache.Cache, logger *slog.Logger, opts Options) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxAudioSize <= 0 {
		opts.MaxAudioSize = DefaultMaxAudioSize
	}
	if opts.MaxThumbnailSize <= 0 {
		opts.MaxThumbnailSize = DefaultMaxThumbnailSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	audio, err := NewFiles(basePath, "audio")
	if err != nil {
		return nil, err
	}
	thumbs, err := NewFiles(basePath, "thumbnails")
	if err != nil {
		return nil, err
	}

	return &Service{
		store:  st,
		audio:  audio,
		thumbs: thumbs,
		cache:  c,
		client: client,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}, nil
}

// IsDownloaded reports whether the store records a download for itemID and its audio
// file is still on disk.
func (s *Service) IsDownloaded(ctx context.Context, itemID string) bool {
	item, err := s.store.GetCatalogItem(ctx, itemID)
	if err != nil {
		if !domainerrors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to read item", "item_id", itemID, "error", err)
		}
		return false
	}
	return item.IsDownloaded() && s.audio.Exists(item.LocalAudioPath)
}

// Download fetches the item's audio and, when present, its thumbnail. A failed thumbnail
// is logged and does not fail the download.
func (s *Service) Download(ctx context.Context, item domain.CatalogItem) Result {
	if item.AudioURL == "" {
		return Result{Error: domainerrors.Validation("item has no audio URL")}
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	audioPath, size, err := s.fetch(ctx, s.audio, item.ID, item.AudioURL, s.opts.MaxAudioSize)
	if err != nil {
		return Result{Error: fmt.Errorf("download audio: %w", err)}
	}

	var thumbPath string
	if item.ThumbnailURL != "" {
		thumbPath, _, err = s.fetch(ctx, s.thumbs, item.ID, item.ThumbnailURL, s.opts.MaxThumbnailSize)
		if err != nil {
			s.logger.Warn("failed to download thumbnail", "item_id", item.ID, "error", err)
			thumbPath = ""
		}
	}

	if err := s.store.MarkDownloaded(ctx, item.ID, audioPath, thumbPath, s.now().UTC()); err != nil {
		s.removeFiles(item.ID)
		if errors.Is(err, store.ErrNotFound) {
			err = domainerrors.NotFoundf("item %s is not in the local catalog", item.ID)
		}
		return Result{Error: err}
	}

	s.invalidate(item.ID)
	s.logger.Info("downloaded item", "item_id", item.ID, "size", size)
	return Result{Success: true, Size: size}
}

// Delete removes the item's files and forgets the download.
func (s *Service) Delete(ctx context.Context, itemID string) Result {
	if err := s.audio.Delete(itemID); err != nil {
		return Result{Error: fmt.Errorf("delete audio: %w", err)}
	}
	if err := s.thumbs.Delete(itemID); err != nil {
		return Result{Error: fmt.Errorf("delete thumbnail: %w", err)}
	}
	if err := s.store.ClearDownload(ctx, itemID); err != nil {
		return Result{Error: err}
	}

	s.invalidate(itemID)
	s.logger.Debug("deleted download", "item_id", itemID)
	return Result{Success: true}
}

// GetAllDownloaded returns the downloaded items whose audio is still on disk.
func (s *Service) GetAllDownloaded(ctx context.Context) ([]domain.CatalogItem, error) {
	items, err := s.store.ListDownloadedItems(ctx)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, item := range items {
		if s.audio.Exists(item.LocalAudioPath) {
			out = append(out, item)
		}
	}
	return out, nil
}

// GetDownloadedSize returns the bytes used by downloaded files.
func (s *Service) GetDownloadedSize() (int64, error) {
	audio, err := s.audio.Size()
	if err != nil {
		return 0, err
	}
	thumbs, err := s.thumbs.Size()
	if err != nil {
		return 0, err
	}
	return audio + thumbs, nil
}

// ClearAll removes every downloaded file and download record.
func (s *Service) ClearAll(ctx context.Context) error {
	if err := s.audio.Clear(); err != nil {
		return fmt.Errorf("clear audio: %w", err)
	}
	if err := s.thumbs.Clear(); err != nil {
		return fmt.Errorf("clear thumbnails: %w", err)
	}
	if err := s.store.ClearAllDownloads(ctx); err != nil {
		return err
	}
	if s.cache != nil {
		s.cache.Invalidate(cache.EntityDownloads)
		s.cache.Invalidate(cache.EntityItem)
	}
	s.logger.Info("cleared all downloads")
	return nil
}

func (s *Service) fetch(ctx context.Context, files *Files, itemID, rawURL string, limit int64) (string, int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", 0, fmt.Errorf("parse url: %w", err)
	}
	if s.opts.Limiter != nil {
		if err := s.opts.Limiter.Wait(ctx, u.Host); err != nil {
			return "", 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength > limit {
		return "", 0, fmt.Errorf("download exceeds %d bytes", limit)
	}

	return files.Save(itemID, extension(u, resp.Header.Get("Content-Type")), resp.Body, limit)
}

func (s *Service) removeFiles(itemID string) {
	if err := s.audio.Delete(itemID); err != nil {
		s.logger.Warn("failed to remove audio", "item_id", itemID, "error", err)
	}
	if err := s.thumbs.Delete(itemID); err != nil {
		s.logger.Warn("failed to remove thumbnail", "item_id", itemID, "error", err)
	}
}

func (s *Service) invalidate(itemID string) {
	if s.cache == nil {
		return
	}
	s.cache.Invalidate(cache.EntityDownloads)
	s.cache.Invalidate(cache.EntityItem, itemID)
}

// extension picks a file extension from the URL path, then the content type.
func extension(u *url.URL, contentType string) string {
	if ext := path.Ext(u.Path); ext != "" && len(ext) <= 5 {
		return strings.ToLower(ext)
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			return exts[0]
		}
	}
	return ".bin"
}
