package sqlite

import (
	"context"
	"fmt"

	"github.com/listenupapp/listenup-sync/internal/domain"
)

// UpsertFavorites inserts favorites; on (owner_id, item_id) conflict only favorited_at changes.
func (t *Tx) UpsertFavorites(ctx context.Context, favorites []domain.Favorite) error {
	if len(favorites) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO favorites (owner_id, item_id, favorited_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id, item_id) DO UPDATE SET
			favorited_at = excluded.favorited_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range favorites {
		if _, err := stmt.ExecContext(ctx, f.OwnerID, f.ItemID, formatTime(f.FavoritedAt)); err != nil {
			return fmt.Errorf("upsert favorite %s/%s: %w", f.OwnerID, f.ItemID, err)
		}
	}
	return nil
}

// DeleteFavoritesExcept removes the owner's favorites whose item id is not in keepItemIDs.
func (t *Tx) DeleteFavoritesExcept(ctx context.Context, ownerID string, keepItemIDs []string) (int64, error) {
	return t.deleteExcept(ctx, `
		DELETE FROM favorites
		WHERE owner_id = ?
		  AND item_id NOT IN (SELECT value FROM json_each(?))`,
		keepItemIDs, ownerID)
}

// InsertFavorite records a single favorite. Re-inserting an existing pair is a no-op.
func (t *Tx) InsertFavorite(ctx context.Context, f domain.Favorite) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO favorites (owner_id, item_id, favorited_at)
		VALUES (?, ?, ?)
		ON CONFLICT(owner_id, item_id) DO NOTHING`,
		f.OwnerID, f.ItemID, formatTime(f.FavoritedAt),
	)
	return err
}

// DeleteFavorite removes a single favorite. Deleting a missing pair is a no-op.
func (t *Tx) DeleteFavorite(ctx context.Context, ownerID, itemID string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM favorites WHERE owner_id = ? AND item_id = ?`, ownerID, itemID)
	return err
}

// IsFavorite reports whether the owner has favorited the item.
func (s *Store) IsFavorite(ctx context.Context, ownerID, itemID string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM favorites WHERE owner_id = ? AND item_id = ?)`,
		ownerID, itemID,
	).Scan(&exists)
	return exists == 1, err
}

// ListFavorites returns the owner's favorite rows, most recent first.
func (s *Store) ListFavorites(ctx context.Context, ownerID string) ([]domain.Favorite, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner_id, item_id, favorited_at
		FROM favorites
		WHERE owner_id = ?
		ORDER BY favorited_at DESC, item_id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var favorites []domain.Favorite
	for rows.Next() {
		var (
			f           domain.Favorite
			favoritedAt string
		)
		if err := rows.Scan(&f.OwnerID, &f.ItemID, &favoritedAt); err != nil {
			return nil, err
		}
		if f.FavoritedAt, err = parseTime(favoritedAt); err != nil {
			return nil, err
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// ListFavoriteItems joins the owner's favorites with the catalog, most recent favorite first.
// Favorites whose item has not been synced yet are omitted.
func (s *Store) ListFavoriteItems(ctx context.Context, ownerID string) ([]domain.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+catalogColumns+`
		FROM favorites f
		JOIN catalog_items c ON c.id = f.item_id
		WHERE f.owner_id = ?
		ORDER BY f.favorited_at DESC, c.id`, ownerID)
	if err != nil {
		return nil, err
	}
	return collectCatalogItems(rows)
}
