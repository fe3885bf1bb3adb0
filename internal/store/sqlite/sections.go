package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// ReplaceSection stores itemIDs under key, replacing any previous list.
func (t *Tx) ReplaceSection(ctx context.Context, key string, itemIDs []string) error {
	ids, err := idSet(itemIDs)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO section_cache (key, item_ids, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			item_ids = excluded.item_ids,
			updated_at = excluded.updated_at`,
		key, ids, formatTime(t.now()),
	)
	return err
}

// GetSection returns the stored ranking for key. Returns store.ErrNotFound if never synced.
func (s *Store) GetSection(ctx context.Context, key string) (*domain.SectionCache, error) {
	var (
		raw       string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT item_ids, updated_at FROM section_cache WHERE key = ?`, key,
	).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	section := &domain.SectionCache{Key: key}
	if err := json.Unmarshal([]byte(raw), &section.ItemIDs); err != nil {
		return nil, fmt.Errorf("decode section %s: %w", key, err)
	}
	if section.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return section, nil
}

// ListSectionItems joins a section's ranking with the catalog, keeping the stored order.
// Ids without a local item are skipped.
func (s *Store) ListSectionItems(ctx context.Context, key string) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+`
		FROM section_cache sc, json_each(sc.item_ids) AS ord
		JOIN catalog_items c ON c.id = ord.value
		WHERE sc.key = ?
		ORDER BY ord.key`, key)
	if err != nil {
		return nil, err
	}
	return collectCatalogItems(rows)
}
