package sqlite

import (
	"context"
	"time"

	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// MarkDownloaded records local file paths for an item.
// Returns store.ErrNotFound if the item is not in the local catalog.
func (s *Store) MarkDownloaded(ctx context.Context, itemID, audioPath, thumbnailPath string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET
			local_audio_path = ?,
			local_thumbnail_path = ?,
			downloaded_at = ?
		WHERE id = ?`,
		audioPath, nullString(thumbnailPath), formatTime(at), itemID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ClearDownload forgets the local files of one item.
func (s *Store) ClearDownload(ctx context.Context, itemID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET
			local_audio_path = NULL,
			local_thumbnail_path = NULL,
			downloaded_at = NULL
		WHERE id = ?`, itemID)
	return err
}

// ClearAllDownloads forgets the local files of every item.
func (s *Store) ClearAllDownloads(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET
			local_audio_path = NULL,
			local_thumbnail_path = NULL,
			downloaded_at = NULL
		WHERE downloaded_at IS NOT NULL`)
	return err
}

// ListDownloadedItems returns items with local files, most recently downloaded first.
func (s *Store) ListDownloadedItems(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+`
		FROM catalog_items c
		WHERE c.downloaded_at IS NOT NULL
		ORDER BY c.downloaded_at DESC, c.id`)
	if err != nil {
		return nil, err
	}
	return collectCatalogItems(rows)
}
