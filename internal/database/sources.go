package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"provenance-go/internal/research"
)

// Collections

func (s *SQLiteDatabase) FindCollection(ctx context.Context, id int64) (*research.Collection, error) {
	var c research.Collection
	err := s.db.QueryRowContext(ctx,
		"SELECT id, project_id, researcher_id, name, description FROM collections WHERE id = ?", id).
		Scan(&c.ID, &c.ProjectID, &c.ResearcherID, &c.Name, &c.Description)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding collection: %w", err)
	}
	return &c, nil
}

func (s *SQLiteDatabase) ListCollectionItems(ctx context.Context, collectionID int64) ([]research.CollectionItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT object_id, object_type, culture, sort_order FROM collection_items
		WHERE collection_id = ? ORDER BY sort_order, id`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing collection items: %w", err)
	}
	defer rows.Close()

	var items []research.CollectionItem
	for rows.Next() {
		var it research.CollectionItem
		if err := rows.Scan(&it.ObjectID, &it.ObjectType, &it.Culture, &it.SortOrder); err != nil {
			return nil, fmt.Errorf("scanning collection item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *SQLiteDatabase) FindItemMetadata(ctx context.Context, objectID int64, culture string) (*research.ItemMetadata, error) {
	md := research.ItemMetadata{ObjectID: objectID}
	err := s.db.QueryRowContext(ctx, `
		SELECT title, scope_and_content, extent_and_medium FROM object_metadata
		WHERE object_id = ? AND culture = ?`, objectID, culture).
		Scan(&md.Title, &md.ScopeAndContent, &md.ExtentAndMedium)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding item metadata: %w", err)
	}
	return &md, nil
}

func (s *SQLiteDatabase) FindSlug(ctx context.Context, objectID int64) (*string, error) {
	var slug string
	err := s.db.QueryRowContext(ctx, "SELECT slug FROM slugs WHERE object_id = ?", objectID).Scan(&slug)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding slug: %w", err)
	}
	return &slug, nil
}

// CreateCollection stores a collection and returns it with its id.
func (s *SQLiteDatabase) CreateCollection(ctx context.Context, c *research.Collection) (*research.Collection, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO collections (project_id, researcher_id, name, description) VALUES (?, ?, ?, ?)",
		c.ProjectID, c.ResearcherID, c.Name, c.Description)
	if err != nil {
		return nil, fmt.Errorf("creating collection: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading collection id: %w", err)
	}
	return s.FindCollection(ctx, id)
}

// AddCollectionItem appends an item to a collection.
func (s *SQLiteDatabase) AddCollectionItem(ctx context.Context, collectionID int64, it research.CollectionItem) error {
	objectType := it.ObjectType
	if objectType == "" {
		objectType = "information_object"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collection_items (collection_id, object_id, object_type, culture, sort_order)
		VALUES (?, ?, ?, ?, ?)`,
		collectionID, it.ObjectID, objectType, it.Culture, it.SortOrder)
	if err != nil {
		return fmt.Errorf("adding collection item: %w", err)
	}
	return nil
}

// PutItemMetadata stores or replaces the descriptive record of an item in one culture.
func (s *SQLiteDatabase) PutItemMetadata(ctx context.Context, culture string, md research.ItemMetadata) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO object_metadata (object_id, culture, title, scope_and_content, extent_and_medium)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (object_id, culture) DO UPDATE SET
			title = excluded.title,
			scope_and_content = excluded.scope_and_content,
			extent_and_medium = excluded.extent_and_medium`,
		md.ObjectID, culture, md.Title, md.ScopeAndContent, md.ExtentAndMedium)
	if err != nil {
		return fmt.Errorf("storing item metadata: %w", err)
	}
	return nil
}

// PutSlug stores or replaces the slug of an item.
func (s *SQLiteDatabase) PutSlug(ctx context.Context, objectID int64, slug string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slugs (object_id, slug) VALUES (?, ?)
		ON CONFLICT (object_id) DO UPDATE SET slug = excluded.slug`, objectID, slug)
	if err != nil {
		return fmt.Errorf("storing slug: %w", err)
	}
	return nil
}

// Rights

func (s *SQLiteDatabase) ListItemRights(ctx context.Context, objectID int64) ([]research.RightsRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rights_note, copyright_note, license_note FROM object_rights
		WHERE object_id = ? ORDER BY id`, objectID)
	if err != nil {
		return nil, fmt.Errorf("listing item rights: %w", err)
	}
	defer rows.Close()

	var out []research.RightsRecord
	for rows.Next() {
		var r research.RightsRecord
		if err := rows.Scan(&r.ID, &r.RightsNote, &r.CopyrightNote, &r.LicenseNote); err != nil {
			return nil, fmt.Errorf("scanning item rights: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteDatabase) ListItemPolicies(ctx context.Context, objectType string, objectID int64) ([]research.RightsPolicy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT policy_type, action_type, constraints_json FROM rights_policies
		WHERE object_type = ? AND object_id = ? ORDER BY id`, objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("listing item policies: %w", err)
	}
	defer rows.Close()

	var out []research.RightsPolicy
	for rows.Next() {
		var p research.RightsPolicy
		if err := rows.Scan(&p.PolicyType, &p.ActionType, &p.Constraints); err != nil {
			return nil, fmt.Errorf("scanning item policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AddItemRights attaches a rights statement to an item.
func (s *SQLiteDatabase) AddItemRights(ctx context.Context, objectID int64, r research.RightsRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO object_rights (object_id, rights_note, copyright_note, license_note) VALUES (?, ?, ?, ?)`,
		objectID, r.RightsNote, r.CopyrightNote, r.LicenseNote)
	if err != nil {
		return fmt.Errorf("adding item rights: %w", err)
	}
	return nil
}

// AddItemPolicy attaches an access policy to an item.
func (s *SQLiteDatabase) AddItemPolicy(ctx context.Context, objectType string, objectID int64, p research.RightsPolicy) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rights_policies (object_type, object_id, policy_type, action_type, constraints_json)
		VALUES (?, ?, ?, ?, ?)`,
		objectType, objectID, p.PolicyType, p.ActionType, p.Constraints)
	if err != nil {
		return fmt.Errorf("adding item policy: %w", err)
	}
	return nil
}

// Actor relations

func (s *SQLiteDatabase) FindActorName(ctx context.Context, actorID int64) (*string, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM actor_names WHERE actor_id = ?", actorID).Scan(&name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding actor name: %w", err)
	}
	return &name, nil
}

func (s *SQLiteDatabase) ListActorRelations(ctx context.Context, actorID int64) ([]research.ActorRelation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.subject_id, sn.name, r.object_id, obn.name, r.type_name
		FROM actor_relations r
		LEFT JOIN actor_names sn ON sn.actor_id = r.subject_id
		LEFT JOIN actor_names obn ON obn.actor_id = r.object_id
		WHERE r.subject_id = ? OR r.object_id = ?
		ORDER BY CASE WHEN r.subject_id = ? THEN 0 ELSE 1 END, r.id`, actorID, actorID, actorID)
	if err != nil {
		return nil, fmt.Errorf("listing actor relations: %w", err)
	}
	defer rows.Close()

	var out []research.ActorRelation
	for rows.Next() {
		var r research.ActorRelation
		if err := rows.Scan(&r.ID, &r.SubjectID, &r.SubjectName, &r.ObjectID, &r.ObjectName, &r.TypeName); err != nil {
			return nil, fmt.Errorf("scanning actor relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PutActorName stores or replaces the display name of an actor.
func (s *SQLiteDatabase) PutActorName(ctx context.Context, actorID int64, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actor_names (actor_id, name) VALUES (?, ?)
		ON CONFLICT (actor_id) DO UPDATE SET name = excluded.name`, actorID, name)
	if err != nil {
		return fmt.Errorf("storing actor name: %w", err)
	}
	return nil
}

// AddActorRelation records a relation between two actors.
func (s *SQLiteDatabase) AddActorRelation(ctx context.Context, subjectID, objectID int64, typeName *string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO actor_relations (subject_id, object_id, type_name) VALUES (?, ?, ?)", subjectID, objectID, typeName)
	if err != nil {
		return 0, fmt.Errorf("adding actor relation: %w", err)
	}
	return res.LastInsertId()
}

// Activity log

func (s *SQLiteDatabase) RecordActivity(ctx context.Context, a *research.Activity) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO activity_log (researcher_id, project_id, activity_type, entity_type, entity_id, title,
			session_id, ip_address, user_agent, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ResearcherID, a.ProjectID, a.ActivityType, a.EntityType, a.EntityID, a.Title,
		a.SessionID, a.IP, a.UserAgent, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("recording activity: %w", err)
	}
	return nil
}

// ListActivity returns the activity recorded against an entity, oldest first.
func (s *SQLiteDatabase) ListActivity(ctx context.Context, entityType string, entityID int64) ([]*research.Activity, error) {
	scan := func(r rowScanner) (*research.Activity, error) {
		var a research.Activity
		if err := r.Scan(&a.ID, &a.ResearcherID, &a.ProjectID, &a.ActivityType, &a.EntityType, &a.EntityID, &a.Title,
			&a.SessionID, &a.IP, &a.UserAgent, &a.CreatedAt); err != nil {
			return nil, err
		}
		return &a, nil
	}
	list, err := queryList(ctx, s.db, scan, `
		SELECT id, researcher_id, project_id, activity_type, entity_type, entity_id, title,
			session_id, ip_address, user_agent, created_at
		FROM activity_log WHERE entity_type = ? AND entity_id = ? ORDER BY id`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	return list, nil
}
