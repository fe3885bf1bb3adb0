package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/listenupapp/listenup-sync/internal/domain"
)

// UpsertFeaturedMedia inserts entries or rewrites every non-id column on conflict.
func (t *Tx) UpsertFeaturedMedia(ctx context.Context, media []domain.FeaturedMedia) error {
	if len(media) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO featured_media (id, title, author, description, category, media_path, thumbnail_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			author = excluded.author,
			description = excluded.description,
			category = excluded.category,
			media_path = excluded.media_path,
			thumbnail_path = excluded.thumbnail_path`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range media {
		_, err := stmt.ExecContext(ctx,
			m.ID,
			m.Title,
			m.Author,
			nullString(m.Description),
			m.Category,
			m.MediaPath,
			nullString(m.ThumbnailPath),
		)
		if err != nil {
			return fmt.Errorf("upsert featured media %s: %w", m.ID, err)
		}
	}
	return nil
}

// DeleteFeaturedMediaExcept removes entries whose id is not in keepIDs.
func (t *Tx) DeleteFeaturedMediaExcept(ctx context.Context, keepIDs []string) (int64, error) {
	return t.deleteExcept(ctx, `
		DELETE FROM featured_media
		WHERE id NOT IN (SELECT value FROM json_each(?))`,
		keepIDs)
}

// ListFeaturedMedia returns all featured entries grouped by category.
func (s *Store) ListFeaturedMedia(ctx context.Context) ([]domain.FeaturedMedia, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, author, description, category, media_path, thumbnail_path
		FROM featured_media
		ORDER BY category, title, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var media []domain.FeaturedMedia
	for rows.Next() {
		var (
			m           domain.FeaturedMedia
			description sql.NullString
			thumbnail   sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.Title, &m.Author, &description, &m.Category, &m.MediaPath, &thumbnail); err != nil {
			return nil, err
		}
		m.Description = description.String
		m.ThumbnailPath = thumbnail.String
		media = append(media, m)
	}
	return media, rows.Err()
}
