package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"provenance-go/internal/research"
)

const snapshotColumns = `id, project_id, researcher_id, title, description, query_state_json, rights_state_json,
	metadata_json, item_count, status, hash_sha256, citation_id, frozen_at, created_at`

func scanSnapshot(r rowScanner) (*research.Snapshot, error) {
	var s research.Snapshot
	if err := r.Scan(&s.ID, &s.ProjectID, &s.ResearcherID, &s.Title, &s.Description, &s.QueryState, &s.RightsState,
		&s.Metadata, &s.ItemCount, &s.Status, &s.Hash, &s.CitationID, &s.FrozenAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

const snapshotItemColumns = `id, snapshot_id, object_id, object_type, culture, slug, metadata_version_json,
	rights_snapshot_json, sort_order, created_at`

func scanSnapshotItem(r rowScanner) (*research.SnapshotItem, error) {
	var it research.SnapshotItem
	if err := r.Scan(&it.ID, &it.SnapshotID, &it.ObjectID, &it.ObjectType, &it.Culture, &it.Slug, &it.MetadataVersion,
		&it.RightsSnapshot, &it.SortOrder, &it.CreatedAt); err != nil {
		return nil, err
	}
	return &it, nil
}

func findSnapshot(ctx context.Context, q querier, id int64) (*research.Snapshot, error) {
	s, err := scanSnapshot(q.QueryRowContext(ctx, "SELECT "+snapshotColumns+" FROM snapshots WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return s, nil
}

func listSnapshotItems(ctx context.Context, q querier, snapshotID int64) ([]*research.SnapshotItem, error) {
	return queryList(ctx, q, scanSnapshotItem,
		"SELECT "+snapshotItemColumns+" FROM snapshot_items WHERE snapshot_id = ? ORDER BY sort_order, id", snapshotID)
}

func insertSnapshotItem(ctx context.Context, q querier, it *research.SnapshotItem) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO snapshot_items (snapshot_id, object_id, object_type, culture, slug, metadata_version_json,
			rights_snapshot_json, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.SnapshotID, it.ObjectID, it.ObjectType, it.Culture, it.Slug, it.MetadataVersion,
		it.RightsSnapshot, it.SortOrder, it.CreatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func recountItems(ctx context.Context, q querier, snapshotID int64) error {
	_, err := q.ExecContext(ctx,
		"UPDATE snapshots SET item_count = (SELECT COUNT(*) FROM snapshot_items WHERE snapshot_id = ?) WHERE id = ?",
		snapshotID, snapshotID)
	return err
}

// sealSnapshot stores the hash and citation computed by seal over the
// snapshot's stored items.
func sealSnapshot(ctx context.Context, q querier, id int64, seal research.SealFunc) error {
	snap, err := findSnapshot(ctx, q, id)
	if err != nil {
		return fmt.Errorf("reloading snapshot: %w", err)
	}
	items, err := listSnapshotItems(ctx, q, id)
	if err != nil {
		return fmt.Errorf("listing snapshot items: %w", err)
	}
	hash, citation, err := seal(snap, items)
	if err != nil {
		return fmt.Errorf("sealing snapshot: %w", err)
	}
	if _, err := q.ExecContext(ctx, "UPDATE snapshots SET hash_sha256 = ?, citation_id = ? WHERE id = ?", hash, citation, id); err != nil {
		return fmt.Errorf("storing snapshot hash: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) CreateSnapshot(ctx context.Context, snap *research.Snapshot) (*research.Snapshot, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (project_id, researcher_id, title, description, query_state_json, rights_state_json,
			metadata_json, item_count, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		snap.ProjectID, snap.ResearcherID, snap.Title, snap.Description, snap.QueryState, snap.RightsState,
		snap.Metadata, snap.Status, snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot id: %w", err)
	}
	return s.FindSnapshot(ctx, id)
}

func (s *SQLiteDatabase) FindSnapshot(ctx context.Context, id int64) (*research.Snapshot, error) {
	snap, err := findSnapshot(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	return snap, nil
}

func (s *SQLiteDatabase) ListProjectSnapshots(ctx context.Context, projectID int64) ([]*research.Snapshot, error) {
	list, err := queryList(ctx, s.db, scanSnapshot,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE project_id = ? ORDER BY created_at DESC, id DESC", projectID)
	if err != nil {
		return nil, fmt.Errorf("listing project snapshots: %w", err)
	}
	return list, nil
}

func (s *SQLiteDatabase) ListSnapshotsByStatus(ctx context.Context, status research.SnapshotStatus) ([]*research.Snapshot, error) {
	list, err := queryList(ctx, s.db, scanSnapshot,
		"SELECT "+snapshotColumns+" FROM snapshots WHERE status = ? ORDER BY id", status)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots by status: %w", err)
	}
	return list, nil
}

func (s *SQLiteDatabase) ListSnapshotItems(ctx context.Context, snapshotID int64) ([]*research.SnapshotItem, error) {
	items, err := listSnapshotItems(ctx, s.db, snapshotID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot items: %w", err)
	}
	return items, nil
}

func (s *SQLiteDatabase) ListSnapshotItemsPage(ctx context.Context, snapshotID int64, offset, limit int) ([]*research.SnapshotItem, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshot_items WHERE snapshot_id = ?", snapshotID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting snapshot items: %w", err)
	}
	items, err := queryList(ctx, s.db, scanSnapshotItem,
		"SELECT "+snapshotItemColumns+" FROM snapshot_items WHERE snapshot_id = ? ORDER BY sort_order, id LIMIT ? OFFSET ?",
		snapshotID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing snapshot items: %w", err)
	}
	return items, total, nil
}

func (s *SQLiteDatabase) InsertFrozenSnapshot(ctx context.Context, snap *research.Snapshot, items []*research.SnapshotItem, seal research.SealFunc) (*research.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO snapshots (project_id, researcher_id, title, description, query_state_json, rights_state_json,
			metadata_json, item_count, status, frozen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'frozen', ?, ?)`,
		snap.ProjectID, snap.ResearcherID, snap.Title, snap.Description, snap.QueryState, snap.RightsState,
		snap.Metadata, len(items), snap.FrozenAt, snap.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading snapshot id: %w", err)
	}

	for _, it := range items {
		row := *it
		row.SnapshotID = id
		if _, err := insertSnapshotItem(ctx, tx, &row); err != nil {
			return nil, fmt.Errorf("inserting snapshot item %d: %w", it.ObjectID, err)
		}
	}

	if err := sealSnapshot(ctx, tx, id, seal); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return s.FindSnapshot(ctx, id)
}

func (s *SQLiteDatabase) FreezeSnapshot(ctx context.Context, id int64, frozenAt time.Time, seal research.SealFunc) (*research.Snapshot, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		"UPDATE snapshots SET status = 'frozen', frozen_at = ? WHERE id = ? AND status = 'active'", frozenAt, id)
	if err != nil {
		return nil, fmt.Errorf("freezing snapshot: %w", err)
	}
	if ok, err := affected(res); err != nil || !ok {
		return nil, err
	}
	if err := recountItems(ctx, tx, id); err != nil {
		return nil, fmt.Errorf("counting snapshot items: %w", err)
	}
	if err := sealSnapshot(ctx, tx, id, seal); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return s.FindSnapshot(ctx, id)
}

// AddSnapshotItem inserts item, or replaces the capture of an item already in
// the snapshot. It returns nil when the snapshot is missing or frozen.
func (s *SQLiteDatabase) AddSnapshotItem(ctx context.Context, item *research.SnapshotItem) (*research.SnapshotItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var status research.SnapshotStatus
	err = tx.QueryRowContext(ctx, "SELECT status FROM snapshots WHERE id = ?", item.SnapshotID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	if status == research.SnapshotFrozen {
		return nil, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshot_items (snapshot_id, object_id, object_type, culture, slug, metadata_version_json,
			rights_snapshot_json, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (snapshot_id, object_id, object_type) DO UPDATE SET
			culture = excluded.culture,
			slug = excluded.slug,
			metadata_version_json = excluded.metadata_version_json,
			rights_snapshot_json = excluded.rights_snapshot_json,
			sort_order = excluded.sort_order`,
		item.SnapshotID, item.ObjectID, item.ObjectType, item.Culture, item.Slug, item.MetadataVersion,
		item.RightsSnapshot, item.SortOrder, item.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting snapshot item: %w", err)
	}
	if err := recountItems(ctx, tx, item.SnapshotID); err != nil {
		return nil, fmt.Errorf("counting snapshot items: %w", err)
	}

	added, err := scanSnapshotItem(tx.QueryRowContext(ctx,
		"SELECT "+snapshotItemColumns+" FROM snapshot_items WHERE snapshot_id = ? AND object_id = ? AND object_type = ?",
		item.SnapshotID, item.ObjectID, item.ObjectType))
	if err != nil {
		return nil, fmt.Errorf("reloading snapshot item: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return added, nil
}

func (s *SQLiteDatabase) RemoveSnapshotItem(ctx context.Context, snapshotID, objectID int64, objectType string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM snapshot_items
		WHERE snapshot_id = ? AND object_id = ? AND object_type = ?
		AND EXISTS (SELECT 1 FROM snapshots WHERE id = ? AND status <> 'frozen')`,
		snapshotID, objectID, objectType, snapshotID)
	if err != nil {
		return false, fmt.Errorf("deleting snapshot item: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}
	if err := recountItems(ctx, tx, snapshotID); err != nil {
		return false, fmt.Errorf("counting snapshot items: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func (s *SQLiteDatabase) UpdateSnapshotDetails(ctx context.Context, id int64, title string, description *string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE snapshots SET title = ?, description = ? WHERE id = ? AND status <> 'frozen'", title, description, id)
	if err != nil {
		return false, fmt.Errorf("updating snapshot: %w", err)
	}
	return affected(res)
}

func (s *SQLiteDatabase) ArchiveSnapshot(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE snapshots SET status = 'archived' WHERE id = ? AND status = 'active'", id)
	if err != nil {
		return false, fmt.Errorf("archiving snapshot: %w", err)
	}
	return affected(res)
}

func (s *SQLiteDatabase) DeleteSnapshot(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM snapshot_items WHERE snapshot_id = ?
		AND EXISTS (SELECT 1 FROM snapshots WHERE id = ? AND status <> 'frozen')`, id, id); err != nil {
		return false, fmt.Errorf("deleting snapshot items: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ? AND status <> 'frozen'", id)
	if err != nil {
		return false, fmt.Errorf("deleting snapshot: %w", err)
	}
	ok, err := affected(res)
	if err != nil || !ok {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}

func (s *SQLiteDatabase) SetSnapshotCitation(ctx context.Context, id int64, citation string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE snapshots SET citation_id = ? WHERE id = ? AND (citation_id IS NULL OR citation_id = '')", citation, id)
	if err != nil {
		return false, fmt.Errorf("storing snapshot citation: %w", err)
	}
	return affected(res)
}
