package testutil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"provenance-go/internal/database"
	"provenance-go/internal/research"
)

// SeedTime is the creation time stamped on seeded extraction rows.
var SeedTime = time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC)

// Item describes an archival item to seed into a collection.
type Item struct {
	ObjectID  int64
	Title     string
	Scope     string
	Slug      string
	SortOrder *int // defaults to the position in the seed list
	Rights    []research.RightsRecord
	Policies  []research.RightsPolicy
	NoRecords bool // skip the metadata row
}

// SeedCollection creates a collection holding items in the given order.
func SeedCollection(t *testing.T, db *database.SQLiteDatabase, projectID, researcherID int64, name string, items ...Item) *research.Collection {
	t.Helper()
	ctx := context.Background()

	desc := "Seeded collection " + name
	c, err := db.CreateCollection(ctx, &research.Collection{
		ProjectID:    &projectID,
		ResearcherID: researcherID,
		Name:         name,
		Description:  &desc,
	})
	if err != nil {
		t.Fatalf("CreateCollection() error = %v", err)
	}

	for i, it := range items {
		order := it.SortOrder
		if order == nil {
			pos := i
			order = &pos
		}
		if err := db.AddCollectionItem(ctx, c.ID, research.CollectionItem{
			ObjectID:   it.ObjectID,
			ObjectType: "information_object",
			Culture:    "en",
			SortOrder:  order,
		}); err != nil {
			t.Fatalf("AddCollectionItem() error = %v", err)
		}
		if !it.NoRecords {
			title, scope := it.Title, it.Scope
			if err := db.PutItemMetadata(ctx, "en", research.ItemMetadata{
				ObjectID:        it.ObjectID,
				Title:           &title,
				ScopeAndContent: &scope,
			}); err != nil {
				t.Fatalf("PutItemMetadata() error = %v", err)
			}
		}
		if it.Slug != "" {
			if err := db.PutSlug(ctx, it.ObjectID, it.Slug); err != nil {
				t.Fatalf("PutSlug() error = %v", err)
			}
		}
		for _, r := range it.Rights {
			if err := db.AddItemRights(ctx, it.ObjectID, r); err != nil {
				t.Fatalf("AddItemRights() error = %v", err)
			}
		}
		for _, p := range it.Policies {
			if err := db.AddItemPolicy(ctx, "information_object", it.ObjectID, p); err != nil {
				t.Fatalf("AddItemPolicy() error = %v", err)
			}
		}
	}
	return c
}

// SeedJob creates a completed extraction job.
func SeedJob(t *testing.T, db *database.SQLiteDatabase, projectID, researcherID int64, extractionType string) *research.ExtractionJob {
	t.Helper()
	job, err := db.CreateExtractionJob(context.Background(), &research.ExtractionJob{
		ProjectID:      &projectID,
		ResearcherID:   researcherID,
		ExtractionType: extractionType,
		CreatedAt:      SeedTime,
	})
	if err != nil {
		t.Fatalf("CreateExtractionJob() error = %v", err)
	}
	return job
}

// SeedEntityResult creates an entity extraction result whose data is the
// JSON encoding of data.
func SeedEntityResult(t *testing.T, db *database.SQLiteDatabase, jobID, objectID int64, confidence float64, data map[string]any) *research.ExtractionResult {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("encoding result data: %v", err)
	}
	model := "ner-test-1"
	r, err := db.CreateExtractionResult(context.Background(), &research.ExtractionResult{
		JobID:        jobID,
		ObjectID:     objectID,
		ResultType:   "entity",
		Data:         raw,
		Confidence:   &confidence,
		ModelVersion: &model,
		CreatedAt:    SeedTime,
	})
	if err != nil {
		t.Fatalf("CreateExtractionResult() error = %v", err)
	}
	return r
}
