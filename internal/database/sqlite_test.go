package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"provenance-go/internal/research"
)

var t0 = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// newTestDB creates an in-memory database with migrations applied.
func newTestDB(t *testing.T) *SQLiteDatabase {
	t.Helper()

	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to create database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}

func ptr[T any](v T) *T { return &v }

func newAssertion(subjectID int64, predicate string, value *string, objectID *int64) *research.Assertion {
	a := &research.Assertion{
		ResearcherID:  1,
		ProjectID:     ptr(int64(1)),
		SubjectType:   "actor",
		SubjectID:     subjectID,
		Predicate:     predicate,
		ObjectValue:   value,
		AssertionType: research.AssertionBiographical,
		Status:        research.StatusProposed,
		Version:       1,
		CreatedAt:     t0,
		UpdatedAt:     t0,
	}
	if objectID != nil {
		a.ObjectType = ptr("place")
		a.ObjectID = objectID
	}
	return a
}

func mustCreateAssertion(t *testing.T, db *SQLiteDatabase, a *research.Assertion) *research.Assertion {
	t.Helper()
	created, err := db.CreateAssertion(context.Background(), a)
	if err != nil {
		t.Fatalf("CreateAssertion() error = %v", err)
	}
	return created
}

func TestSQLiteDatabase_FindAssertion(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when not found", func(t *testing.T) {
		db := newTestDB(t)
		got, err := db.FindAssertion(ctx, 42)
		if err != nil {
			t.Fatalf("FindAssertion() error = %v", err)
		}
		if got != nil {
			t.Errorf("FindAssertion() = %+v, want nil", got)
		}
	})

	t.Run("round trips fields", func(t *testing.T) {
		db := newTestDB(t)
		a := newAssertion(7, "born_in", ptr("Paris"), ptr(int64(3)))
		a.Confidence = ptr(80.5)
		a.SubjectLabel = ptr("Jane Doe")

		got := mustCreateAssertion(t, db, a)
		if got.ID == 0 {
			t.Fatal("ID = 0, want assigned id")
		}
		if got.SubjectLabel == nil || *got.SubjectLabel != "Jane Doe" {
			t.Errorf("SubjectLabel = %v, want Jane Doe", got.SubjectLabel)
		}
		if got.ObjectID == nil || *got.ObjectID != 3 {
			t.Errorf("ObjectID = %v, want 3", got.ObjectID)
		}
		if got.Confidence == nil || *got.Confidence != 80.5 {
			t.Errorf("Confidence = %v, want 80.5", got.Confidence)
		}
		if got.AssertionType != research.AssertionBiographical {
			t.Errorf("AssertionType = %q, want biographical", got.AssertionType)
		}
		if !got.CreatedAt.Equal(t0) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, t0)
		}
		if got.EvidenceCount != 0 {
			t.Errorf("EvidenceCount = %d, want 0", got.EvidenceCount)
		}
	})
}

func TestSQLiteDatabase_UpdateAssertion(t *testing.T) {
	ctx := context.Background()

	t.Run("bumps version on every write", func(t *testing.T) {
		db := newTestDB(t)
		a := mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))

		for i := 0; i < 3; i++ {
			ok, err := db.UpdateAssertion(ctx, a.ID, research.AssertionUpdate{ObjectValue: ptr("Paris")}, t0.Add(time.Minute))
			if err != nil || !ok {
				t.Fatalf("UpdateAssertion() = %v, %v", ok, err)
			}
		}
		got, _ := db.FindAssertion(ctx, a.ID)
		if got.Version != 4 {
			t.Errorf("Version = %d, want 4", got.Version)
		}
		if !got.UpdatedAt.Equal(t0.Add(time.Minute)) {
			t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, t0.Add(time.Minute))
		}
	})

	t.Run("expected version guards the write", func(t *testing.T) {
		db := newTestDB(t)
		a := mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))

		ok, err := db.UpdateAssertion(ctx, a.ID, research.AssertionUpdate{ObjectValue: ptr("Lyon"), ExpectedVersion: ptr(5)}, t0)
		if err != nil {
			t.Fatalf("UpdateAssertion() error = %v", err)
		}
		if ok {
			t.Error("UpdateAssertion() with stale version wrote a row")
		}

		ok, err = db.UpdateAssertion(ctx, a.ID, research.AssertionUpdate{ObjectValue: ptr("Lyon"), ExpectedVersion: ptr(1)}, t0)
		if err != nil || !ok {
			t.Fatalf("UpdateAssertion() = %v, %v, want true", ok, err)
		}
		got, _ := db.FindAssertion(ctx, a.ID)
		if *got.ObjectValue != "Lyon" || got.Version != 2 {
			t.Errorf("got value %q version %d, want Lyon 2", *got.ObjectValue, got.Version)
		}
	})

	t.Run("status change keeps version", func(t *testing.T) {
		db := newTestDB(t)
		a := mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))

		ok, err := db.UpdateAssertionStatus(ctx, a.ID, research.StatusVerified, t0)
		if err != nil || !ok {
			t.Fatalf("UpdateAssertionStatus() = %v, %v", ok, err)
		}
		got, _ := db.FindAssertion(ctx, a.ID)
		if got.Status != research.StatusVerified || got.Version != 1 {
			t.Errorf("got status %q version %d, want verified 1", got.Status, got.Version)
		}
	})
}

func TestSQLiteDatabase_FindConflictingAssertions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	target := mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))
	same := mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))
	low := newAssertion(1, "born_in", ptr("Lyon"), nil)
	low.Confidence = ptr(10.0)
	low = mustCreateAssertion(t, db, low)
	high := newAssertion(1, "born_in", ptr("Nice"), nil)
	high.Confidence = ptr(90.0)
	high = mustCreateAssertion(t, db, high)
	retracted := newAssertion(1, "born_in", ptr("Rome"), nil)
	retracted.Status = research.StatusRetracted
	mustCreateAssertion(t, db, retracted)
	mustCreateAssertion(t, db, newAssertion(1, "died_in", ptr("Rome"), nil))
	mustCreateAssertion(t, db, newAssertion(2, "born_in", ptr("Rome"), nil))

	got, err := db.FindConflictingAssertions(ctx, target)
	if err != nil {
		t.Fatalf("FindConflictingAssertions() error = %v", err)
	}
	var ids []int64
	for _, a := range got {
		ids = append(ids, a.ID)
	}
	want := []int64{high.ID, low.ID}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("conflict ids = %v, want %v (same-value id %d excluded)", ids, want, same.ID)
	}
}

func TestSQLiteDatabase_Evidence(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	a := mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))

	later := t0.Add(time.Hour)
	e, err := db.AddEvidence(ctx, &research.Evidence{
		AssertionID:  a.ID,
		SourceType:   "information_object",
		SourceID:     12,
		Selector:     []byte(`{"page":3}`),
		Relationship: research.RelationshipRefutes,
		AddedBy:      2,
		CreatedAt:    later,
	}, later)
	if err != nil {
		t.Fatalf("AddEvidence() error = %v", err)
	}
	if string(e.Selector) != `{"page":3}` {
		t.Errorf("Selector = %s, want {\"page\":3}", e.Selector)
	}

	got, _ := db.FindAssertion(ctx, a.ID)
	if got.EvidenceCount != 1 || got.RefutingCount != 1 || got.SupportingCount != 0 {
		t.Errorf("counts = %d/%d/%d, want 1/0/1", got.EvidenceCount, got.SupportingCount, got.RefutingCount)
	}
	if !got.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, later)
	}
	if got.Version != 1 {
		t.Errorf("Version = %d, want 1", got.Version)
	}

	removed, err := db.RemoveEvidence(ctx, e.ID, later.Add(time.Hour))
	if err != nil || !removed {
		t.Fatalf("RemoveEvidence() = %v, %v", removed, err)
	}
	again, err := db.RemoveEvidence(ctx, e.ID, later)
	if err != nil || again {
		t.Errorf("second RemoveEvidence() = %v, %v, want false", again, err)
	}
	list, err := db.ListEvidence(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListEvidence() error = %v", err)
	}
	if len(list) != 0 {
		t.Errorf("ListEvidence() len = %d, want 0", len(list))
	}
}

func TestSQLiteDatabase_ListAndSearchAssertions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	first := newAssertion(1, "born_in", ptr("Paris"), nil)
	first.SubjectLabel = ptr("Marie Curie")
	first = mustCreateAssertion(t, db, first)
	second := newAssertion(2, "worked_at", ptr("Sorbonne"), nil)
	second.UpdatedAt = t0.Add(time.Hour)
	second = mustCreateAssertion(t, db, second)
	gone := newAssertion(3, "born_in", ptr("Warsaw"), nil)
	gone.Status = research.StatusRetracted
	mustCreateAssertion(t, db, gone)

	list, err := db.ListAssertions(ctx, research.AssertionFilter{ProjectID: ptr(int64(1)), ExcludeRetracted: true})
	if err != nil {
		t.Fatalf("ListAssertions() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("ListAssertions() order wrong: got %d rows", len(list))
	}

	chrono, err := db.ListAssertions(ctx, research.AssertionFilter{Chronological: true})
	if err != nil {
		t.Fatalf("ListAssertions() error = %v", err)
	}
	if len(chrono) != 3 || chrono[0].ID != first.ID {
		t.Errorf("chronological ListAssertions() first = %v, want %d", chrono[0].ID, first.ID)
	}

	found, err := db.SearchAssertions(ctx, "CURIE", research.AssertionFilter{}, 200)
	if err != nil {
		t.Fatalf("SearchAssertions() error = %v", err)
	}
	if len(found) != 1 || found[0].ID != first.ID {
		t.Errorf("SearchAssertions(CURIE) = %d rows, want assertion %d", len(found), first.ID)
	}

	limited, err := db.SearchAssertions(ctx, "o", research.AssertionFilter{}, 1)
	if err != nil {
		t.Fatalf("SearchAssertions() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("SearchAssertions() with limit 1 returned %d rows", len(limited))
	}
}

func sealWith(hash string) research.SealFunc {
	return func(s *research.Snapshot, items []*research.SnapshotItem) (string, string, error) {
		return hash, "CITE-" + hash, nil
	}
}

func TestSQLiteDatabase_InsertFrozenSnapshot(t *testing.T) {
	ctx := context.Background()

	items := []*research.SnapshotItem{
		{ObjectID: 20, ObjectType: "information_object", Culture: "en", SortOrder: 0, CreatedAt: t0},
		{ObjectID: 10, ObjectType: "information_object", Culture: "en", SortOrder: 1, CreatedAt: t0},
	}
	draft := &research.Snapshot{ProjectID: 1, ResearcherID: 1, Title: "Letters (Snapshot)", FrozenAt: &t0, CreatedAt: t0}

	t.Run("seal sees stored items", func(t *testing.T) {
		db := newTestDB(t)
		var sealedItems int
		seal := func(s *research.Snapshot, stored []*research.SnapshotItem) (string, string, error) {
			sealedItems = len(stored)
			if s.ID == 0 {
				t.Error("seal called before snapshot row exists")
			}
			return "abc", "SNAP-1", nil
		}
		snap, err := db.InsertFrozenSnapshot(ctx, draft, items, seal)
		if err != nil {
			t.Fatalf("InsertFrozenSnapshot() error = %v", err)
		}
		if sealedItems != 2 {
			t.Errorf("seal saw %d items, want 2", sealedItems)
		}
		if snap.Status != research.SnapshotFrozen || snap.ItemCount != 2 {
			t.Errorf("status %q count %d, want frozen 2", snap.Status, snap.ItemCount)
		}
		if snap.Hash == nil || *snap.Hash != "abc" || snap.CitationID == nil || *snap.CitationID != "SNAP-1" {
			t.Errorf("hash %v citation %v, want abc SNAP-1", snap.Hash, snap.CitationID)
		}
		stored, _ := db.ListSnapshotItems(ctx, snap.ID)
		if len(stored) != 2 || stored[0].ObjectID != 20 {
			t.Errorf("items not in sort order: %+v", stored)
		}
	})

	t.Run("failing seal leaves nothing", func(t *testing.T) {
		db := newTestDB(t)
		seal := func(*research.Snapshot, []*research.SnapshotItem) (string, string, error) {
			return "", "", errors.New("boom")
		}
		if _, err := db.InsertFrozenSnapshot(ctx, draft, items, seal); err == nil {
			t.Fatal("InsertFrozenSnapshot() error = nil, want error")
		}
		list, err := db.ListProjectSnapshots(ctx, 1)
		if err != nil {
			t.Fatalf("ListProjectSnapshots() error = %v", err)
		}
		if len(list) != 0 {
			t.Errorf("snapshots after failed freeze = %d, want 0", len(list))
		}
	})
}

func TestSQLiteDatabase_ActiveSnapshotLifecycle(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	snap, err := db.CreateSnapshot(ctx, &research.Snapshot{
		ProjectID: 1, ResearcherID: 1, Title: "Working set", Status: research.SnapshotActive, CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("CreateSnapshot() error = %v", err)
	}

	item := &research.SnapshotItem{SnapshotID: snap.ID, ObjectID: 5, ObjectType: "information_object", Culture: "en", CreatedAt: t0}
	if _, err := db.AddSnapshotItem(ctx, item); err != nil {
		t.Fatalf("AddSnapshotItem() error = %v", err)
	}
	item.Slug = ptr("letter-5")
	upserted, err := db.AddSnapshotItem(ctx, item)
	if err != nil {
		t.Fatalf("AddSnapshotItem() upsert error = %v", err)
	}
	if upserted.Slug == nil || *upserted.Slug != "letter-5" {
		t.Errorf("upserted Slug = %v, want letter-5", upserted.Slug)
	}
	got, _ := db.FindSnapshot(ctx, snap.ID)
	if got.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", got.ItemCount)
	}

	ok, err := db.UpdateSnapshotDetails(ctx, snap.ID, "Renamed", ptr("desc"))
	if err != nil || !ok {
		t.Fatalf("UpdateSnapshotDetails() = %v, %v", ok, err)
	}

	frozen, err := db.FreezeSnapshot(ctx, snap.ID, t0, sealWith("h1"))
	if err != nil {
		t.Fatalf("FreezeSnapshot() error = %v", err)
	}
	if frozen == nil || frozen.Status != research.SnapshotFrozen || frozen.FrozenAt == nil {
		t.Fatalf("FreezeSnapshot() = %+v, want frozen snapshot", frozen)
	}
	again, err := db.FreezeSnapshot(ctx, snap.ID, t0, sealWith("h2"))
	if err != nil || again != nil {
		t.Errorf("second FreezeSnapshot() = %v, %v, want nil, nil", again, err)
	}

	// Every write against a frozen snapshot is a no-op.
	if added, err := db.AddSnapshotItem(ctx, &research.SnapshotItem{SnapshotID: snap.ID, ObjectID: 6, ObjectType: "information_object", CreatedAt: t0}); err != nil || added != nil {
		t.Errorf("AddSnapshotItem() on frozen = %v, %v", added, err)
	}
	if ok, err := db.RemoveSnapshotItem(ctx, snap.ID, 5, "information_object"); err != nil || ok {
		t.Errorf("RemoveSnapshotItem() on frozen = %v, %v", ok, err)
	}
	if ok, err := db.UpdateSnapshotDetails(ctx, snap.ID, "x", nil); err != nil || ok {
		t.Errorf("UpdateSnapshotDetails() on frozen = %v, %v", ok, err)
	}
	if ok, err := db.ArchiveSnapshot(ctx, snap.ID); err != nil || ok {
		t.Errorf("ArchiveSnapshot() on frozen = %v, %v", ok, err)
	}
	if ok, err := db.DeleteSnapshot(ctx, snap.ID); err != nil || ok {
		t.Errorf("DeleteSnapshot() on frozen = %v, %v", ok, err)
	}
	if ok, err := db.SetSnapshotCitation(ctx, snap.ID, "other"); err != nil || ok {
		t.Errorf("SetSnapshotCitation() with citation set = %v, %v", ok, err)
	}

	final, _ := db.FindSnapshot(ctx, snap.ID)
	if final.Title != "Renamed" || *final.Hash != "h1" || *final.CitationID != "CITE-h1" || final.ItemCount != 1 {
		t.Errorf("frozen snapshot changed: %+v", final)
	}
}

func TestSQLiteDatabase_DeleteSnapshot(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	snap, _ := db.CreateSnapshot(ctx, &research.Snapshot{ProjectID: 1, ResearcherID: 1, Title: "t", Status: research.SnapshotActive, CreatedAt: t0})
	db.AddSnapshotItem(ctx, &research.SnapshotItem{SnapshotID: snap.ID, ObjectID: 1, ObjectType: "information_object", CreatedAt: t0})

	ok, err := db.DeleteSnapshot(ctx, snap.ID)
	if err != nil || !ok {
		t.Fatalf("DeleteSnapshot() = %v, %v", ok, err)
	}
	if got, _ := db.FindSnapshot(ctx, snap.ID); got != nil {
		t.Error("snapshot still present after delete")
	}
	if items, _ := db.ListSnapshotItems(ctx, snap.ID); len(items) != 0 {
		t.Errorf("items after delete = %d, want 0", len(items))
	}
}

func seedResult(t *testing.T, db *SQLiteDatabase, confidence float64) (*research.ExtractionJob, *research.ExtractionResult) {
	t.Helper()
	ctx := context.Background()
	job, err := db.CreateExtractionJob(ctx, &research.ExtractionJob{ProjectID: ptr(int64(1)), ResearcherID: 1, ExtractionType: "ner", CreatedAt: t0})
	if err != nil {
		t.Fatalf("CreateExtractionJob() error = %v", err)
	}
	res, err := db.CreateExtractionResult(ctx, &research.ExtractionResult{
		JobID: job.ID, ObjectID: 99, ResultType: "entity",
		Data: []byte(`{"entity_type":"person","entity_value":"Ada"}`), Confidence: &confidence, CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("CreateExtractionResult() error = %v", err)
	}
	return job, res
}

func TestSQLiteDatabase_Queue(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	if err := db.PutItemMetadata(ctx, "en", research.ItemMetadata{ObjectID: 99, Title: ptr("Ledger")}); err != nil {
		t.Fatalf("PutItemMetadata() error = %v", err)
	}

	job, res := seedResult(t, db, 0.8)
	_, res2 := seedResult(t, db, 0.4)
	for _, rid := range []int64{res.ID, res.ID, res2.ID} {
		if _, err := db.EnqueueResult(ctx, &research.QueueEntry{ResultID: rid, ResearcherID: 1, Status: research.ValidationPending, CreatedAt: t0}); err != nil {
			t.Fatalf("EnqueueResult() error = %v", err)
		}
	}

	items, total, err := db.ListQueue(ctx, research.QueueQuery{Status: research.ValidationPending, Page: 1, Limit: 2})
	if err != nil {
		t.Fatalf("ListQueue() error = %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("ListQueue() = %d items, total %d, want 2 and 3", len(items), total)
	}
	if items[0].ObjectTitle == nil || *items[0].ObjectTitle != "Ledger" {
		t.Errorf("ObjectTitle = %v, want Ledger", items[0].ObjectTitle)
	}
	if items[0].ExtractionType != "ner" {
		t.Errorf("ExtractionType = %q, want ner", items[0].ExtractionType)
	}

	promoted := newAssertion(99, "mentions_person", ptr("Ada"), nil)
	rv := research.Review{ResultID: res.ID, To: research.ValidationAccepted, ReviewerID: 5, ReviewedAt: t0}
	applied, created, err := db.ApplyReview(ctx, rv, promoted)
	if err != nil || !applied || created == nil {
		t.Fatalf("ApplyReview() = %v, %v, %v", applied, created, err)
	}
	applied, created, err = db.ApplyReview(ctx, rv, promoted)
	if err != nil || applied || created != nil {
		t.Errorf("second ApplyReview() = %v, %v, %v, want no-op", applied, created, err)
	}

	stats, err := db.QueueStats(ctx, nil)
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if stats.Pending != 1 || stats.Accepted != 2 || stats.Total != 3 {
		t.Errorf("QueueStats() = %+v", stats)
	}
	if stats.AvgPendingConfidence == nil || *stats.AvgPendingConfidence != 0.4 {
		t.Errorf("AvgPendingConfidence = %v, want 0.4", stats.AvgPendingConfidence)
	}

	reviews, err := db.ListJobReviews(ctx, job.ID)
	if err != nil {
		t.Fatalf("ListJobReviews() error = %v", err)
	}
	if len(reviews) != 2 || reviews[0].ReviewerID == nil || *reviews[0].ReviewerID != 5 {
		t.Errorf("ListJobReviews() = %+v", reviews)
	}
}

func TestSQLiteDatabase_QueueStatsEmpty(t *testing.T) {
	db := newTestDB(t)
	stats, err := db.QueueStats(context.Background(), ptr(int64(7)))
	if err != nil {
		t.Fatalf("QueueStats() error = %v", err)
	}
	if stats.Total != 0 || stats.AvgPendingConfidence != nil {
		t.Errorf("QueueStats() = %+v, want zero counts and nil average", stats)
	}
}

func TestSQLiteDatabase_ImportExtractionBatch(t *testing.T) {
	ctx := context.Background()
	newBatch := func(data ...string) []*research.ExtractionResult {
		var out []*research.ExtractionResult
		for i, d := range data {
			out = append(out, &research.ExtractionResult{ObjectID: int64(100 + i), ResultType: "entity", Data: []byte(d), CreatedAt: t0})
		}
		return out
	}

	t.Run("writes job, results and pending entries", func(t *testing.T) {
		db := newTestDB(t)
		results := newBatch(`{"entity_value":"Ada"}`, `{"entity_value":"London"}`)
		job, err := db.ImportExtractionBatch(ctx, &research.ExtractionJob{ProjectID: ptr(int64(1)), ResearcherID: 5, ExtractionType: "ner", CreatedAt: t0}, results, 5)
		if err != nil {
			t.Fatalf("ImportExtractionBatch() error = %v", err)
		}
		stored, err := db.ListExtractionResults(ctx, job.ID)
		if err != nil {
			t.Fatalf("ListExtractionResults() error = %v", err)
		}
		if len(stored) != 2 || results[0].ID == 0 || results[0].JobID != job.ID {
			t.Errorf("stored %d results, first = %+v", len(stored), results[0])
		}
		stats, err := db.QueueStats(ctx, ptr(int64(5)))
		if err != nil {
			t.Fatalf("QueueStats() error = %v", err)
		}
		if stats.Pending != 2 {
			t.Errorf("Pending = %d, want 2", stats.Pending)
		}
	})

	t.Run("failing row rolls back the whole batch", func(t *testing.T) {
		db := newTestDB(t)
		results := newBatch(`{"entity_value":"Ada"}`, `{broken`)
		_, err := db.ImportExtractionBatch(ctx, &research.ExtractionJob{ProjectID: ptr(int64(1)), ResearcherID: 5, ExtractionType: "ner", CreatedAt: t0}, results, 5)
		if err == nil {
			t.Fatal("ImportExtractionBatch() error = nil, want error")
		}
		jobs, err := db.ListExtractionJobs(ctx, 1)
		if err != nil {
			t.Fatalf("ListExtractionJobs() error = %v", err)
		}
		if len(jobs) != 0 {
			t.Errorf("len(jobs) = %d after failed import, want 0", len(jobs))
		}
		stats, _ := db.QueueStats(ctx, nil)
		if stats.Total != 0 {
			t.Errorf("queue total = %d after failed import, want 0", stats.Total)
		}
	})
}

func TestSQLiteDatabase_ActorRelations(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	db.PutActorName(ctx, 1, "Ada Lovelace")
	db.PutActorName(ctx, 2, "Charles Babbage")
	incoming, _ := db.AddActorRelation(ctx, 2, 1, ptr("corresponded with"))
	outgoing, _ := db.AddActorRelation(ctx, 1, 3, nil)

	name, err := db.FindActorName(ctx, 1)
	if err != nil || name == nil || *name != "Ada Lovelace" {
		t.Errorf("FindActorName() = %v, %v", name, err)
	}
	if missing, _ := db.FindActorName(ctx, 3); missing != nil {
		t.Errorf("FindActorName(3) = %v, want nil", *missing)
	}

	rels, err := db.ListActorRelations(ctx, 1)
	if err != nil {
		t.Fatalf("ListActorRelations() error = %v", err)
	}
	if len(rels) != 2 || rels[0].ID != outgoing || rels[1].ID != incoming {
		t.Fatalf("ListActorRelations() = %+v, want subject side first", rels)
	}
	if rels[0].ObjectName != nil {
		t.Errorf("unnamed object name = %v, want nil", rels[0].ObjectName)
	}
	if rels[1].SubjectName == nil || *rels[1].SubjectName != "Charles Babbage" {
		t.Errorf("SubjectName = %v, want Charles Babbage", rels[1].SubjectName)
	}
}

func TestSQLiteDatabase_Activity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	err := db.RecordActivity(ctx, &research.Activity{
		ResearcherID: 1, ActivityType: "assertion_created", EntityType: "assertion", EntityID: 4,
		Title: ptr("born_in"), SessionID: "s-1", IP: "10.0.0.1", UserAgent: "prov", CreatedAt: t0,
	})
	if err != nil {
		t.Fatalf("RecordActivity() error = %v", err)
	}
	list, err := db.ListActivity(ctx, "assertion", 4)
	if err != nil {
		t.Fatalf("ListActivity() error = %v", err)
	}
	if len(list) != 1 || list[0].SessionID != "s-1" || list[0].IP != "10.0.0.1" {
		t.Errorf("ListActivity() = %+v", list)
	}
}

func TestSQLiteDatabase_BackupTo(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mustCreateAssertion(t, db, newAssertion(1, "born_in", ptr("Paris"), nil))

	dest := filepath.Join(t.TempDir(), "backup.db")
	if err := db.BackupTo(dest); err != nil {
		t.Fatalf("BackupTo() error = %v", err)
	}

	restored, err := NewSQLiteDatabase(dest)
	if err != nil {
		t.Fatalf("opening backup: %v", err)
	}
	defer restored.Close()
	if err := restored.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() on backup error = %v", err)
	}
	list, err := restored.ListAssertions(ctx, research.AssertionFilter{})
	if err != nil {
		t.Fatalf("ListAssertions() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("backup holds %d assertions, want 1", len(list))
	}
}

func TestSQLiteDatabase_CheckMigrations(t *testing.T) {
	db, err := NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteDatabase() error = %v", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err == nil {
		t.Error("CheckMigrations() on fresh database error = nil, want error")
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if err := db.CheckMigrations(); err != nil {
		t.Errorf("CheckMigrations() error = %v", err)
	}
}
