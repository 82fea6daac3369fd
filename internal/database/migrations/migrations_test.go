package migrations

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

var researchTables = []string{
	"assertions", "assertion_evidence", "snapshots", "snapshot_items",
	"extraction_jobs", "extraction_results", "validation_queue", "activity_log",
	"collections", "collection_items", "object_metadata", "slugs",
	"object_rights", "rights_policies", "actor_names", "actor_relations",
}

func TestMigrateUp_CreatesTables(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	for _, table := range append(researchTables, "schema_migrations") {
		if !tableExists(t, db, table) {
			t.Errorf("table %s was not created", table)
		}
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	db := openTestDB(t)

	for i := 0; i < 2; i++ {
		if err := MigrateUp(db); err != nil {
			t.Fatalf("MigrateUp() run %d error = %v", i+1, err)
		}
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() error = %v", err)
	}
}

func TestMigrateDown_DropsTables(t *testing.T) {
	db := openTestDB(t)

	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := MigrateDown(db); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}
	for _, table := range researchTables {
		if tableExists(t, db, table) {
			t.Errorf("table %s still exists after MigrateDown", table)
		}
	}
}

func TestCheckDBMigrationStatus(t *testing.T) {
	db := openTestDB(t)

	if err := CheckDBMigrationStatus(db); !errors.Is(err, ErrNoVersion) {
		t.Errorf("CheckDBMigrationStatus() on fresh db error = %v, want ErrNoVersion", err)
	}
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}
	if err := CheckDBMigrationStatus(db); err != nil {
		t.Errorf("CheckDBMigrationStatus() after migration error = %v", err)
	}
}

func TestLatestVersion(t *testing.T) {
	v, err := LatestVersion()
	if err != nil {
		t.Fatalf("LatestVersion() error = %v", err)
	}
	if v != 1 {
		t.Errorf("LatestVersion() = %d, want 1", v)
	}
}

func TestSchema_Constraints(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	const now = "2024-01-15 10:30:00"
	if _, err := db.Exec(`INSERT INTO assertions (researcher_id, subject_type, subject_id, predicate, created_at, updated_at)
		VALUES (1, 'actor', 1, 'born_in', ?, ?)`, now, now); err != nil {
		t.Fatalf("inserting assertion: %v", err)
	}

	tests := []struct {
		name  string
		query string
	}{
		{
			name: "unknown assertion type",
			query: `INSERT INTO assertions (researcher_id, subject_type, subject_id, predicate, assertion_type, created_at, updated_at)
				VALUES (1, 'actor', 1, 'p', 'gossip', '` + now + `', '` + now + `')`,
		},
		{
			name: "unknown assertion status",
			query: `INSERT INTO assertions (researcher_id, subject_type, subject_id, predicate, status, created_at, updated_at)
				VALUES (1, 'actor', 1, 'p', 'maybe', '` + now + `', '` + now + `')`,
		},
		{
			name: "evidence for missing assertion",
			query: `INSERT INTO assertion_evidence (assertion_id, source_type, source_id, added_by, created_at)
				VALUES (999, 'information_object', 1, 1, '` + now + `')`,
		},
		{
			name: "unknown evidence relationship",
			query: `INSERT INTO assertion_evidence (assertion_id, source_type, source_id, relationship, added_by, created_at)
				VALUES (1, 'information_object', 1, 'maybe', 1, '` + now + `')`,
		},
		{
			name: "unknown snapshot status",
			query: `INSERT INTO snapshots (project_id, researcher_id, title, status, created_at)
				VALUES (1, 1, 't', 'melted', '` + now + `')`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := db.Exec(tt.query); err == nil {
				t.Error("insert succeeded, want constraint violation")
			}
		})
	}
}

func TestSchema_EvidenceCascades(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	const now = "2024-01-15 10:30:00"
	mustExec(t, db, `INSERT INTO assertions (id, researcher_id, subject_type, subject_id, predicate, created_at, updated_at)
		VALUES (1, 1, 'actor', 1, 'born_in', ?, ?)`, now, now)
	mustExec(t, db, `INSERT INTO assertion_evidence (assertion_id, source_type, source_id, added_by, created_at)
		VALUES (1, 'information_object', 5, 1, ?)`, now)
	mustExec(t, db, `DELETE FROM assertions WHERE id = 1`)

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM assertion_evidence`).Scan(&n); err != nil {
		t.Fatalf("counting evidence: %v", err)
	}
	if n != 0 {
		t.Errorf("evidence rows after assertion delete = %d, want 0", n)
	}
}

func TestSchema_SnapshotItemUnique(t *testing.T) {
	db := openTestDB(t)
	if err := MigrateUp(db); err != nil {
		t.Fatalf("MigrateUp() error = %v", err)
	}

	const now = "2024-01-15 10:30:00"
	mustExec(t, db, `INSERT INTO snapshots (id, project_id, researcher_id, title, created_at) VALUES (1, 1, 1, 't', ?)`, now)
	mustExec(t, db, `INSERT INTO snapshot_items (snapshot_id, object_id, created_at) VALUES (1, 10, ?)`, now)
	if _, err := db.Exec(`INSERT INTO snapshot_items (snapshot_id, object_id, created_at) VALUES (1, 10, ?)`, now); err == nil {
		t.Error("duplicate snapshot item insert succeeded, want unique violation")
	}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n); err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return n == 1
}

// openTestDB opens a single-connection in-memory database with foreign keys on.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}
