package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"provenance-go/internal/research"
)

const assertionColumns = `a.id, a.researcher_id, a.project_id, a.subject_type, a.subject_id, a.subject_label,
	a.predicate, a.object_value, a.object_type, a.object_id, a.object_label, a.assertion_type, a.status,
	a.confidence, a.version, a.created_at, a.updated_at,
	(SELECT COUNT(*) FROM assertion_evidence e WHERE e.assertion_id = a.id),
	(SELECT COUNT(*) FROM assertion_evidence e WHERE e.assertion_id = a.id AND e.relationship = 'supports'),
	(SELECT COUNT(*) FROM assertion_evidence e WHERE e.assertion_id = a.id AND e.relationship = 'refutes')`

func scanAssertion(r rowScanner) (*research.Assertion, error) {
	var a research.Assertion
	err := r.Scan(&a.ID, &a.ResearcherID, &a.ProjectID, &a.SubjectType, &a.SubjectID, &a.SubjectLabel,
		&a.Predicate, &a.ObjectValue, &a.ObjectType, &a.ObjectID, &a.ObjectLabel, &a.AssertionType, &a.Status,
		&a.Confidence, &a.Version, &a.CreatedAt, &a.UpdatedAt,
		&a.EvidenceCount, &a.SupportingCount, &a.RefutingCount)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func findAssertion(ctx context.Context, q querier, id int64) (*research.Assertion, error) {
	row := q.QueryRowContext(ctx, "SELECT "+assertionColumns+" FROM assertions a WHERE a.id = ?", id)
	a, err := scanAssertion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return a, nil
}

func insertAssertion(ctx context.Context, q querier, a *research.Assertion) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO assertions (researcher_id, project_id, subject_type, subject_id, subject_label, predicate,
			object_value, object_type, object_id, object_label, assertion_type, status, confidence, version,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ResearcherID, a.ProjectID, a.SubjectType, a.SubjectID, a.SubjectLabel, a.Predicate,
		a.ObjectValue, a.ObjectType, a.ObjectID, a.ObjectLabel, a.AssertionType, a.Status, a.Confidence, a.Version,
		a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLiteDatabase) CreateAssertion(ctx context.Context, a *research.Assertion) (*research.Assertion, error) {
	id, err := insertAssertion(ctx, s.db, a)
	if err != nil {
		return nil, fmt.Errorf("creating assertion: %w", err)
	}
	return s.FindAssertion(ctx, id)
}

func (s *SQLiteDatabase) FindAssertion(ctx context.Context, id int64) (*research.Assertion, error) {
	a, err := findAssertion(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("finding assertion: %w", err)
	}
	return a, nil
}

// UpdateAssertion writes the set fields of u. The version is bumped in the
// same statement so concurrent writers each advance it by one.
func (s *SQLiteDatabase) UpdateAssertion(ctx context.Context, id int64, u research.AssertionUpdate, now time.Time) (bool, error) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.SubjectType != nil {
		set("subject_type", *u.SubjectType)
	}
	if u.SubjectID != nil {
		set("subject_id", *u.SubjectID)
	}
	if u.SubjectLabel != nil {
		set("subject_label", *u.SubjectLabel)
	}
	if u.Predicate != nil {
		set("predicate", *u.Predicate)
	}
	if u.ObjectValue != nil {
		set("object_value", *u.ObjectValue)
	}
	if u.ObjectType != nil {
		set("object_type", *u.ObjectType)
	}
	if u.ObjectID != nil {
		set("object_id", *u.ObjectID)
	}
	if u.ObjectLabel != nil {
		set("object_label", *u.ObjectLabel)
	}
	if u.AssertionType != nil {
		set("assertion_type", string(*u.AssertionType))
	}
	if u.Confidence != nil {
		set("confidence", *u.Confidence)
	}
	set("updated_at", now)
	sets = append(sets, "version = version + 1")

	query := "UPDATE assertions SET " + strings.Join(sets, ", ") + " WHERE id = ?"
	args = append(args, id)
	if u.ExpectedVersion != nil {
		query += " AND version = ?"
		args = append(args, *u.ExpectedVersion)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("updating assertion: %w", err)
	}
	return affected(res)
}

func (s *SQLiteDatabase) UpdateAssertionStatus(ctx context.Context, id int64, status research.AssertionStatus, now time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE assertions SET status = ?, updated_at = ? WHERE id = ?", status, now, id)
	if err != nil {
		return false, fmt.Errorf("updating assertion status: %w", err)
	}
	return affected(res)
}

// FindConflictingAssertions returns non-retracted siblings of target (same
// subject and predicate) that disagree on the literal value or on the entity
// id, most confident and most recent first.
func (s *SQLiteDatabase) FindConflictingAssertions(ctx context.Context, target *research.Assertion) ([]*research.Assertion, error) {
	query := "SELECT " + assertionColumns + ` FROM assertions a
		WHERE a.subject_type = ? AND a.subject_id = ? AND a.predicate = ?
		AND a.id <> ? AND a.status <> 'retracted'`
	args := []any{target.SubjectType, target.SubjectID, target.Predicate, target.ID}

	var disagreements []string
	if target.ObjectValue != nil {
		disagreements = append(disagreements, "(a.object_value IS NULL OR a.object_value <> ?)")
		args = append(args, *target.ObjectValue)
	}
	if target.ObjectID != nil {
		disagreements = append(disagreements, "(a.object_id IS NULL OR a.object_id <> ?)")
		args = append(args, *target.ObjectID)
	}
	if len(disagreements) > 0 {
		query += " AND (" + strings.Join(disagreements, " OR ") + ")"
	}
	query += " ORDER BY a.confidence DESC, a.updated_at DESC, a.id DESC"

	list, err := queryList(ctx, s.db, scanAssertion, query, args...)
	if err != nil {
		return nil, fmt.Errorf("finding conflicting assertions: %w", err)
	}
	return list, nil
}

func (s *SQLiteDatabase) FindAssertionsBySubject(ctx context.Context, subjectType string, subjectID int64) ([]*research.Assertion, error) {
	list, err := queryList(ctx, s.db, scanAssertion,
		"SELECT "+assertionColumns+` FROM assertions a WHERE a.subject_type = ? AND a.subject_id = ?
		ORDER BY a.predicate, a.updated_at DESC, a.id DESC`,
		subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("finding assertions by subject: %w", err)
	}
	return list, nil
}

func (s *SQLiteDatabase) FindAssertionsByObject(ctx context.Context, objectType string, objectID int64) ([]*research.Assertion, error) {
	list, err := queryList(ctx, s.db, scanAssertion,
		"SELECT "+assertionColumns+` FROM assertions a WHERE a.object_type = ? AND a.object_id = ?
		ORDER BY a.predicate, a.updated_at DESC, a.id DESC`,
		objectType, objectID)
	if err != nil {
		return nil, fmt.Errorf("finding assertions by object: %w", err)
	}
	return list, nil
}

// filterClauses turns f into WHERE conditions over the alias a.
func filterClauses(f research.AssertionFilter) ([]string, []any) {
	var where []string
	var args []any
	if f.ProjectID != nil {
		where = append(where, "a.project_id = ?")
		args = append(args, *f.ProjectID)
	}
	if f.AssertionType != "" {
		where = append(where, "a.assertion_type = ?")
		args = append(args, f.AssertionType)
	}
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, f.Status)
	} else if f.ExcludeRetracted {
		where = append(where, "a.status <> 'retracted'")
	}
	if f.SubjectType != "" {
		where = append(where, "a.subject_type = ?")
		args = append(args, f.SubjectType)
	}
	if f.Predicate != "" {
		where = append(where, "a.predicate = ?")
		args = append(args, f.Predicate)
	}
	return where, args
}

func assertionOrder(f research.AssertionFilter) string {
	if f.Chronological {
		return " ORDER BY a.id"
	}
	return " ORDER BY a.updated_at DESC, a.id DESC"
}

func (s *SQLiteDatabase) ListAssertions(ctx context.Context, filter research.AssertionFilter) ([]*research.Assertion, error) {
	query := "SELECT " + assertionColumns + " FROM assertions a"
	where, args := filterClauses(filter)
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += assertionOrder(filter)

	list, err := queryList(ctx, s.db, scanAssertion, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing assertions: %w", err)
	}
	return list, nil
}

// SearchAssertions matches text case-insensitively against the subject
// label, predicate, object value and object label.
func (s *SQLiteDatabase) SearchAssertions(ctx context.Context, text string, filter research.AssertionFilter, limit int) ([]*research.Assertion, error) {
	where, args := filterClauses(filter)
	where = append(where, `(instr(lower(COALESCE(a.subject_label, '')), lower(?)) > 0
		OR instr(lower(a.predicate), lower(?)) > 0
		OR instr(lower(COALESCE(a.object_value, '')), lower(?)) > 0
		OR instr(lower(COALESCE(a.object_label, '')), lower(?)) > 0)`)
	args = append(args, text, text, text, text)

	query := "SELECT " + assertionColumns + " FROM assertions a WHERE " + strings.Join(where, " AND ") +
		assertionOrder(filter) + " LIMIT ?"
	args = append(args, limit)

	list, err := queryList(ctx, s.db, scanAssertion, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching assertions: %w", err)
	}
	return list, nil
}

// Evidence

const evidenceColumns = `id, assertion_id, source_type, source_id, selector_json, relationship, note, added_by, created_at`

func scanEvidence(r rowScanner) (*research.Evidence, error) {
	var e research.Evidence
	var selector *string
	if err := r.Scan(&e.ID, &e.AssertionID, &e.SourceType, &e.SourceID, &selector, &e.Relationship,
		&e.Note, &e.AddedBy, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.Selector = jsonOf(selector)
	return &e, nil
}

func findEvidence(ctx context.Context, q querier, id int64) (*research.Evidence, error) {
	e, err := scanEvidence(q.QueryRowContext(ctx, "SELECT "+evidenceColumns+" FROM assertion_evidence WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return e, nil
}

func touchAssertion(ctx context.Context, q querier, id int64, now time.Time) error {
	_, err := q.ExecContext(ctx, "UPDATE assertions SET updated_at = ? WHERE id = ?", now, id)
	return err
}

func (s *SQLiteDatabase) AddEvidence(ctx context.Context, e *research.Evidence, now time.Time) (*research.Evidence, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO assertion_evidence (assertion_id, source_type, source_id, selector_json, relationship, note, added_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.AssertionID, e.SourceType, e.SourceID, textOf(e.Selector), e.Relationship, e.Note, e.AddedBy, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting evidence: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading evidence id: %w", err)
	}
	if err := touchAssertion(ctx, tx, e.AssertionID, now); err != nil {
		return nil, fmt.Errorf("touching assertion: %w", err)
	}
	created, err := findEvidence(ctx, tx, id)
	if err != nil {
		return nil, fmt.Errorf("reloading evidence: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return created, nil
}

func (s *SQLiteDatabase) FindEvidence(ctx context.Context, id int64) (*research.Evidence, error) {
	e, err := findEvidence(ctx, s.db, id)
	if err != nil {
		return nil, fmt.Errorf("finding evidence: %w", err)
	}
	return e, nil
}

func (s *SQLiteDatabase) ListEvidence(ctx context.Context, assertionID int64) ([]*research.Evidence, error) {
	list, err := queryList(ctx, s.db, scanEvidence,
		"SELECT "+evidenceColumns+" FROM assertion_evidence WHERE assertion_id = ? ORDER BY created_at, id", assertionID)
	if err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	return list, nil
}

func (s *SQLiteDatabase) RemoveEvidence(ctx context.Context, id int64, now time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var assertionID int64
	err = tx.QueryRowContext(ctx, "SELECT assertion_id FROM assertion_evidence WHERE id = ?", id).Scan(&assertionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("finding evidence: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM assertion_evidence WHERE id = ?", id); err != nil {
		return false, fmt.Errorf("deleting evidence: %w", err)
	}
	if err := touchAssertion(ctx, tx, assertionID, now); err != nil {
		return false, fmt.Errorf("touching assertion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing transaction: %w", err)
	}
	return true, nil
}
