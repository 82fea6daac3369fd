package research_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"provenance-go/internal/database"
	"provenance-go/internal/research"
	"provenance-go/internal/testutil"
)

type packFixture struct {
	db       *database.SQLiteDatabase
	vault    research.PackVault
	activity *testutil.ActivityRecorder
	frozen   *research.Snapshot
	active   *research.Snapshot
}

// newPackFixture seeds project 1 with one assertion carrying evidence, a
// frozen and an active snapshot, and an extraction job with one result.
func newPackFixture(t *testing.T) *packFixture {
	t.Helper()
	ctx := context.Background()
	db := testutil.NewTestDatabase(t)
	clock := testutil.TickingClock()
	logger := research.NewNopLogger()

	assertions := research.NewAssertionService(db, nil, logger, clock)
	a, err := assertions.Create(ctx, 5, bornIn("London"))
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := assertions.AddEvidence(ctx, a.ID, 5, research.EvidenceInput{SourceType: "information_object", SourceID: 101}); err != nil {
		t.Fatalf("AddEvidence() error = %v", err)
	}

	snapshots := research.NewSnapshotEngine(db, db, db, nil, logger, clock, "en")
	coll := testutil.SeedCollection(t, db, 1, 5, "Letters", letters...)
	frozen, err := snapshots.FreezeCollection(ctx, 1, coll.ID, 5)
	if err != nil {
		t.Fatalf("FreezeCollection() error = %v", err)
	}
	active, err := snapshots.Create(ctx, 1, 5, research.SnapshotDraft{Title: "Working set"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	job := testutil.SeedJob(t, db, 1, 5, "ner")
	testutil.SeedEntityResult(t, db, job.ID, 101, 0.75, map[string]any{"entity_value": "Ada"})

	return &packFixture{
		db:       db,
		vault:    testutil.NewTestVault(),
		activity: testutil.NewActivityRecorder(),
		frozen:   frozen,
		active:   active,
	}
}

func (f *packFixture) builder(enc research.Encryptor) *research.PackBuilder {
	return research.NewPackBuilder(f.db, f.db, f.vault, enc, testutil.NewStubIDGenerator(), f.activity,
		research.NewNopLogger(), testutil.FixedClock())
}

func TestPackBuilder_Build(t *testing.T) {
	ctx := context.Background()
	f := newPackFixture(t)

	p, err := f.builder(nil).Build(ctx, 1)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if len(p.Snapshots) != 2 {
		t.Fatalf("len(Snapshots) = %d, want 2", len(p.Snapshots))
	}
	if p.Snapshots[0].ID != f.frozen.ID || p.Snapshots[1].ID != f.active.ID {
		t.Errorf("snapshot order = %d, %d; want ascending ids", p.Snapshots[0].ID, p.Snapshots[1].ID)
	}
	if v := p.Snapshots[0].HashValid; v == nil || !*v {
		t.Errorf("frozen HashValid = %v, want true", v)
	}
	if p.Snapshots[1].HashValid != nil {
		t.Errorf("active HashValid = %v, want nil", *p.Snapshots[1].HashValid)
	}

	if len(p.Assertions) != 1 || len(p.Assertions[0].EvidenceChain) != 1 {
		t.Errorf("assertions = %+v, want one with one piece of evidence", p.Assertions)
	}
	if len(p.Extractions) != 1 || len(p.Extractions[0].Results) != 1 {
		t.Fatalf("extractions = %+v, want one job with one result", p.Extractions)
	}
	r := p.Extractions[0].Results[0]
	if r.ModelVersion == nil || *r.ModelVersion != "ner-test-1" || *r.Confidence != 0.75 {
		t.Errorf("result provenance = %+v", r)
	}

	if !p.GeneratedAt.Equal(testutil.FixedClock().Now()) {
		t.Errorf("GeneratedAt = %v, want the clock time", p.GeneratedAt)
	}
	ok, err := research.VerifyPack(p)
	if err != nil || !ok {
		t.Errorf("VerifyPack() = %v, %v; want true", ok, err)
	}

	tampered := *p
	tampered.ProjectID = 2
	if ok, _ := research.VerifyPack(&tampered); ok {
		t.Error("VerifyPack() accepted a tampered pack")
	}

	again, err := f.builder(nil).Build(ctx, 1)
	if err != nil {
		t.Fatalf("second Build() error = %v", err)
	}
	if again.PackHash != p.PackHash {
		t.Errorf("PackHash not deterministic: %s != %s", again.PackHash, p.PackHash)
	}
}

func TestPackBuilder_EmptyProject(t *testing.T) {
	db := testutil.NewTestDatabase(t)
	b := research.NewPackBuilder(db, db, testutil.NewTestVault(), nil, testutil.NewStubIDGenerator(), nil,
		research.NewNopLogger(), testutil.FixedClock())

	p, err := b.Build(context.Background(), 9)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if p.Snapshots == nil || p.Assertions == nil || p.Extractions == nil {
		t.Errorf("pack = %+v, want non-nil empty sections", p)
	}
	if p.PackHash == "" {
		t.Error("PackHash not set")
	}
}

func TestPackBuilder_StoreAndOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("plain", func(t *testing.T) {
		f := newPackFixture(t)
		b := f.builder(nil)
		p, err := b.Build(ctx, 1)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		key, err := b.Store(ctx, 5, p)
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if key != "project-1/pack-1.json" {
			t.Errorf("key = %q, want project-1/pack-1.json", key)
		}

		opened, err := b.Open(ctx, key, nil)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if opened.PackHash != p.PackHash {
			t.Errorf("opened PackHash = %s, want %s", opened.PackHash, p.PackHash)
		}
		if ok, err := research.VerifyPack(opened); err != nil || !ok {
			t.Errorf("VerifyPack(opened) = %v, %v; want true", ok, err)
		}

		if got := f.activity.Types(); len(got) != 1 || got[0] != "pack_generated" {
			t.Errorf("activity = %v, want [pack_generated]", got)
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		f := newPackFixture(t)
		enc := testutil.NewTestEncryptor()
		if err := enc.Setup("secret"); err != nil {
			t.Fatalf("Setup() error = %v", err)
		}
		b := f.builder(enc)
		p, err := b.Build(ctx, 1)
		if err != nil {
			t.Fatalf("Build() error = %v", err)
		}

		key, err := b.Store(ctx, 5, p)
		if err != nil {
			t.Fatalf("Store() error = %v", err)
		}
		if key != "project-1/pack-1.json.age" {
			t.Errorf("key = %q, want project-1/pack-1.json.age", key)
		}

		var raw bytes.Buffer
		if err := f.vault.GetPack(ctx, key, &raw); err != nil {
			t.Fatalf("GetPack() error = %v", err)
		}
		if bytes.HasPrefix(raw.Bytes(), []byte("{")) {
			t.Error("stored pack is plaintext JSON")
		}

		if _, err := b.Open(ctx, key, nil); !errors.Is(err, research.ErrValidation) {
			t.Errorf("Open() without key error = %v, want validation error", err)
		}

		dec, err := enc.Unlock("secret")
		if err != nil {
			t.Fatalf("Unlock() error = %v", err)
		}
		opened, err := b.Open(ctx, key, dec)
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if opened.PackHash != p.PackHash {
			t.Errorf("opened PackHash = %s, want %s", opened.PackHash, p.PackHash)
		}
	})

	t.Run("missing key", func(t *testing.T) {
		f := newPackFixture(t)
		if _, err := f.builder(nil).Open(ctx, "project-1/nope.json", nil); !errors.Is(err, research.ErrNotFound) {
			t.Errorf("Open() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("list by project", func(t *testing.T) {
		f := newPackFixture(t)
		b := f.builder(nil)
		p, _ := b.Build(ctx, 1)
		for range 2 {
			if _, err := b.Store(ctx, 5, p); err != nil {
				t.Fatalf("Store() error = %v", err)
			}
		}
		other, _ := b.Build(ctx, 2)
		if _, err := b.Store(ctx, 5, other); err != nil {
			t.Fatalf("Store() error = %v", err)
		}

		keys, err := b.List(ctx, 1)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		want := []string{"project-1/pack-1.json", "project-1/pack-2.json"}
		if len(keys) != 2 || keys[0] != want[0] || keys[1] != want[1] {
			t.Errorf("List() = %v, want %v", keys, want)
		}
	})
}
