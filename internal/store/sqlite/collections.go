package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/listenupapp/listenup-sync/internal/domain"
	"github.com/listenupapp/listenup-sync/internal/store"
)

// collectionColumns must match the scan order in scanCollection.
const collectionColumns = `id, owner_id, name, is_public, cover_path, created_at`

func scanCollection(scanner interface{ Scan(dest ...any) error }) (*domain.Collection, error) {
	var (
		c         domain.Collection
		isPublic  int
		coverPath sql.NullString
		createdAt string
	)

	err := scanner.Scan(&c.ID, &c.OwnerID, &c.Name, &isPublic, &coverPath, &createdAt)
	if err != nil {
		return nil, err
	}

	c.IsPublic = isPublic != 0
	c.CoverPath = coverPath.String
	c.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertCollections inserts collections; on id conflict only name, visibility and cover change.
// owner_id is never rewritten.
func (t *Tx) UpsertCollections(ctx context.Context, collections []domain.Collection) error {
	if len(collections) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO collections (id, owner_id, name, is_public, cover_path, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			is_public = excluded.is_public,
			cover_path = excluded.cover_path`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range collections {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = t.now()
		}
		_, err := stmt.ExecContext(ctx,
			c.ID,
			c.OwnerID,
			c.Name,
			boolToInt(c.IsPublic),
			nullString(c.CoverPath),
			formatTime(createdAt),
		)
		if err != nil {
			return fmt.Errorf("upsert collection %s: %w", c.ID, err)
		}
	}
	return nil
}

// DeleteCollectionsExcept removes the owner's collections not in keepIDs.
// Their memberships go with them through the foreign key cascade.
func (t *Tx) DeleteCollectionsExcept(ctx context.Context, ownerID string, keepIDs []string) (int64, error) {
	return t.deleteExcept(ctx, `
		DELETE FROM collections
		WHERE owner_id = ?
		  AND id NOT IN (SELECT value FROM json_each(?))`,
		keepIDs, ownerID)
}

// UpsertMemberships inserts membership rows; on id conflict only added_at changes.
// collection_id and item_id are never rewritten.
func (t *Tx) UpsertMemberships(ctx context.Context, memberships []domain.CollectionMembership) error {
	if len(memberships) == 0 {
		return nil
	}

	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO collection_items (id, collection_id, item_id, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			added_at = excluded.added_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, m := range memberships {
		addedAt := m.AddedAt
		if addedAt.IsZero() {
			addedAt = t.now()
		}
		if _, err := stmt.ExecContext(ctx, m.ID, m.CollectionID, m.ItemID, formatTime(addedAt)); err != nil {
			return fmt.Errorf("upsert membership %s: %w", m.ID, err)
		}
	}
	return nil
}

// DeleteMembershipsExcept removes memberships of one collection whose id is not in keepIDs.
// Rows of other collections are never touched.
func (t *Tx) DeleteMembershipsExcept(ctx context.Context, collectionID string, keepIDs []string) (int64, error) {
	return t.deleteExcept(ctx, `
		DELETE FROM collection_items
		WHERE collection_id = ?
		  AND id NOT IN (SELECT value FROM json_each(?))`,
		keepIDs, collectionID)
}

// DeleteMembershipByItem removes every membership of itemID in the collection.
func (t *Tx) DeleteMembershipByItem(ctx context.Context, collectionID, itemID string) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM collection_items WHERE collection_id = ? AND item_id = ?`, collectionID, itemID)
	return err
}

// GetCollection retrieves a collection with its members.
// Returns store.ErrNotFound if the collection does not exist.
func (s *Store) GetCollection(ctx context.Context, id string) (*domain.Collection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)

	c, err := scanCollection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Members, err = s.ListCollectionMembers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	return c, nil
}

// ListCollections returns the owner's collections ordered by name. Members are not loaded.
func (s *Store) ListCollections(ctx context.Context, ownerID string) ([]domain.Collection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE owner_id = ? ORDER BY name, id`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var collections []domain.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		collections = append(collections, *c)
	}
	return collections, rows.Err()
}

// ListCollectionMembers returns a collection's memberships in the order they were added,
// with the catalog item attached when it is present locally.
func (s *Store) ListCollectionMembers(ctx context.Context, collectionID string) ([]domain.CollectionMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.collection_id, m.item_id, m.added_at, `+catalogColumns+`
		FROM collection_items m
		LEFT JOIN catalog_items c ON c.id = m.item_id
		WHERE m.collection_id = ?
		ORDER BY m.added_at, m.id`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []domain.CollectionMembership
	for rows.Next() {
		var (
			m       domain.CollectionMembership
			addedAt string
			item    nullableCatalogRow
		)
		dest := append([]any{&m.ID, &m.CollectionID, &m.ItemID, &addedAt}, item.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		if m.AddedAt, err = parseTime(addedAt); err != nil {
			return nil, err
		}
		if m.Item, err = item.toItem(); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// nullableCatalogRow scans the catalog side of a LEFT JOIN.
type nullableCatalogRow struct {
	id, ownerID, title, author, audioURL, thumbnailURL sql.NullString
	durationMs, likeCount, playCount, localPlayCount   sql.NullInt64
	createdAt, localAudio, localThumbnail              sql.NullString
	downloadedAt, lastPlayedAt                         sql.NullString
}

func (r *nullableCatalogRow) dest() []any {
	return []any{
		&r.id, &r.ownerID, &r.title, &r.author, &r.audioURL, &r.thumbnailURL, &r.durationMs,
		&r.likeCount, &r.playCount, &r.createdAt, &r.localAudio, &r.localThumbnail,
		&r.downloadedAt, &r.lastPlayedAt, &r.localPlayCount,
	}
}

func (r *nullableCatalogRow) toItem() (*domain.CatalogItem, error) {
	if !r.id.Valid {
		return nil, nil
	}
	item := &domain.CatalogItem{
		ID:                 r.id.String,
		OwnerID:            r.ownerID.String,
		Title:              r.title.String,
		Author:             r.author.String,
		AudioURL:           r.audioURL.String,
		ThumbnailURL:       r.thumbnailURL.String,
		DurationMs:         r.durationMs.Int64,
		LikeCount:          int(r.likeCount.Int64),
		PlayCount:          int(r.playCount.Int64),
		LocalAudioPath:     r.localAudio.String,
		LocalThumbnailPath: r.localThumbnail.String,
		LocalPlayCount:     int(r.localPlayCount.Int64),
	}

	var err error
	if item.CreatedAt, err = parseTime(r.createdAt.String); err != nil {
		return nil, err
	}
	if item.DownloadedAt, err = parseNullableTime(r.downloadedAt); err != nil {
		return nil, err
	}
	if item.LastPlayedAt, err = parseNullableTime(r.lastPlayedAt); err != nil {
		return nil, err
	}
	return item, nil
}
