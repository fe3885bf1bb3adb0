package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// catalogColumns must match the scan order in scanCatalogItem.
const catalogColumns = `c.id, c.owner_id, c.title, c.author, c.audio_url, c.thumbnail_url, c.duration_ms,
	c.like_count, c.play_count, c.created_at, c.local_audio_path, c.local_thumbnail_path,
	c.downloaded_at, c.last_played_at, c.local_play_count`

func scanCatalogItem(scanner interface{ Scan(dest ...any) error }) (*domain.CatalogItem, error) {
	var (
		item           domain.CatalogItem
		thumbnailURL   sql.NullString
		createdAt      string
		localAudio     sql.NullString
		localThumbnail sql.NullString
		downloadedAt   sql.NullString
		lastPlayedAt   sql.NullString
	)

	err := scanner.Scan(
		&item.ID,
		&item.OwnerID,
		&item.Title,
		&item.Author,
		&item.AudioURL,
		&thumbnailURL,
		&item.DurationMs,
		&item.LikeCount,
		&item.PlayCount,
		&createdAt,
		&localAudio,
		&localThumbnail,
		&downloadedAt,
		&lastPlayedAt,
		&item.LocalPlayCount,
	)
	if err != nil {
		return nil, err
	}

	item.ThumbnailURL = thumbnailURL.String
	item.LocalAudioPath = localAudio.String
	item.LocalThumbnailPath = localThumbnail.String

	item.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if item.DownloadedAt, err = parseNullableTime(downloadedAt); err != nil {
		return nil, fmt.Errorf("parse downloaded_at: %w", err)
	}
	if item.LastPlayedAt, err = parseNullableTime(lastPlayedAt); err != nil {
		return nil, fmt.Errorf("parse last_played_at: %w", err)
	}

	return &item, nil
}

func collectCatalogItems(rows *sql.Rows) ([]domain.CatalogItem, error) {
	defer rows.Close()

	var items []domain.CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// UpsertCatalogItems inserts items, or on id conflict rewrites the remote columns only.
// id, owner_id, created_at and every device bookkeeping column are left untouched.
func (t *Tx) UpsertCatalogItems(ctx context.Context, items []domain.CatalogItem) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO catalog_items (
			id, owner_id, title, author, audio_url, thumbnail_url, duration_ms,
			like_count, play_count, created_at, synced_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			audio_url = excluded.audio_url,
			thumbnail_url = excluded.thumbnail_url,
			duration_ms = excluded.duration_ms,
			like_count = excluded.like_count,
			play_count = excluded.play_count,
			synced_at = excluded.synced_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	syncedAt := formatTime(t.now())
	for i := range items {
		item := &items[i]
		createdAt := item.CreatedAt
		if createdAt.IsZero() {
			createdAt = t.now()
		}
		_, err := stmt.ExecContext(ctx,
			item.ID,
			item.OwnerID,
			item.Title,
			item.Author,
			item.AudioURL,
			nullString(item.ThumbnailURL),
			item.DurationMs,
			item.LikeCount,
			item.PlayCount,
			formatTime(createdAt),
			syncedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert catalog item %s: %w", item.ID, err)
		}
	}
	return nil
}

// GetLikeCount returns the local like counter. Returns store.ErrNotFound if the item is not local.
func (t *Tx) GetLikeCount(ctx context.Context, itemID string) (int, error) {
	var count int
	err := t.tx.QueryRowContext(ctx,
		`SELECT like_count FROM catalog_items WHERE id = ?`, itemID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	return count, err
}

// SetLikeCount overwrites the local like counter. Missing items are ignored.
func (t *Tx) SetLikeCount(ctx context.Context, itemID string, count int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE catalog_items SET like_count = ? WHERE id = ?`, count, itemID)
	return err
}

// GetCatalogItem retrieves an item by ID. Returns store.ErrNotFound if it does not exist.
func (s *Store) GetCatalogItem(ctx context.Context, id string) (*domain.CatalogItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items c WHERE c.id = ?`, id)

	item, err := scanCatalogItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return item, err
}

// ListCatalogItems returns every local item, newest first.
func (s *Store) ListCatalogItems(ctx context.Context) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+catalogColumns+` FROM catalog_items c ORDER BY c.created_at DESC, c.id`)
	if err != nil {
		return nil, err
	}
	return collectCatalogItems(rows)
}

// ListCatalogItemIDs returns every local item id.
func (s *Store) ListCatalogItemIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM catalog_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordPlay stamps last_played_at and bumps the device play counter.
func (s *Store) RecordPlay(ctx context.Context, itemID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE catalog_items SET
			last_played_at = ?,
			local_play_count = local_play_count + 1
		WHERE id = ?`,
		formatTime(at), itemID,
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
