package research

import (
	"context"
	"time"
)

// AssertionUpdate carries the allow-listed fields of an assertion update.
// Nil fields are left unchanged.
type AssertionUpdate struct {
	SubjectType   *string        `json:"subject_type" validate:"omitempty,min=1"`
	SubjectID     *int64         `json:"subject_id" validate:"omitempty,gt=0"`
	SubjectLabel  *string        `json:"subject_label"`
	Predicate     *string        `json:"predicate" validate:"omitempty,min=1"`
	ObjectValue   *string        `json:"object_value"`
	ObjectType    *string        `json:"object_type"`
	ObjectID      *int64         `json:"object_id" validate:"omitempty,gt=0"`
	ObjectLabel   *string        `json:"object_label"`
	AssertionType *AssertionType `json:"assertion_type" validate:"omitempty,oneof=biographical chronological spatial relational attributive"`
	Confidence    *float64       `json:"confidence"`

	// ExpectedVersion, when set, makes the update conditional on the stored version.
	ExpectedVersion *int `json:"expected_version"`
}

// Empty reports whether no updatable field is set.
func (u AssertionUpdate) Empty() bool {
	return u.SubjectType == nil && u.SubjectID == nil && u.SubjectLabel == nil &&
		u.Predicate == nil && u.ObjectValue == nil && u.ObjectType == nil &&
		u.ObjectID == nil && u.ObjectLabel == nil && u.AssertionType == nil &&
		u.Confidence == nil
}

// SealFunc computes the hash and citation for a snapshot from its stored items.
// It runs inside the transaction that writes them.
type SealFunc func(snap *Snapshot, items []*SnapshotItem) (hash, citation string, err error)

// Database is the system of record for assertions, evidence, snapshots and
// the validation queue. Find methods return nil, nil when the row is absent.
type Database interface {
	// Assertions

	CreateAssertion(ctx context.Context, a *Assertion) (*Assertion, error)
	FindAssertion(ctx context.Context, id int64) (*Assertion, error)
	// UpdateAssertion applies u and increments version by one. It reports
	// whether a row was written; an ExpectedVersion mismatch writes nothing.
	UpdateAssertion(ctx context.Context, id int64, u AssertionUpdate, now time.Time) (bool, error)
	UpdateAssertionStatus(ctx context.Context, id int64, status AssertionStatus, now time.Time) (bool, error)
	FindConflictingAssertions(ctx context.Context, target *Assertion) ([]*Assertion, error)
	FindAssertionsBySubject(ctx context.Context, subjectType string, subjectID int64) ([]*Assertion, error)
	FindAssertionsByObject(ctx context.Context, objectType string, objectID int64) ([]*Assertion, error)
	ListAssertions(ctx context.Context, filter AssertionFilter) ([]*Assertion, error)
	SearchAssertions(ctx context.Context, text string, filter AssertionFilter, limit int) ([]*Assertion, error)

	// Evidence

	// AddEvidence inserts e and touches the parent assertion in one transaction.
	AddEvidence(ctx context.Context, e *Evidence, now time.Time) (*Evidence, error)
	FindEvidence(ctx context.Context, id int64) (*Evidence, error)
	ListEvidence(ctx context.Context, assertionID int64) ([]*Evidence, error)
	// RemoveEvidence deletes the evidence row and touches its parent assertion.
	RemoveEvidence(ctx context.Context, id int64, now time.Time) (bool, error)

	// Snapshots

	CreateSnapshot(ctx context.Context, s *Snapshot) (*Snapshot, error)
	FindSnapshot(ctx context.Context, id int64) (*Snapshot, error)
	ListProjectSnapshots(ctx context.Context, projectID int64) ([]*Snapshot, error)
	ListSnapshotsByStatus(ctx context.Context, status SnapshotStatus) ([]*Snapshot, error)
	ListSnapshotItems(ctx context.Context, snapshotID int64) ([]*SnapshotItem, error)
	ListSnapshotItemsPage(ctx context.Context, snapshotID int64, offset, limit int) ([]*SnapshotItem, int, error)
	// InsertFrozenSnapshot writes a frozen snapshot and its items, then seals
	// it with the hash and citation from seal. Nothing persists if any step fails.
	InsertFrozenSnapshot(ctx context.Context, s *Snapshot, items []*SnapshotItem, seal SealFunc) (*Snapshot, error)
	// FreezeSnapshot moves an active snapshot to frozen and seals it.
	FreezeSnapshot(ctx context.Context, id int64, frozenAt time.Time, seal SealFunc) (*Snapshot, error)
	AddSnapshotItem(ctx context.Context, item *SnapshotItem) (*SnapshotItem, error)
	RemoveSnapshotItem(ctx context.Context, snapshotID, objectID int64, objectType string) (bool, error)
	UpdateSnapshotDetails(ctx context.Context, id int64, title string, description *string) (bool, error)
	ArchiveSnapshot(ctx context.Context, id int64) (bool, error)
	DeleteSnapshot(ctx context.Context, id int64) (bool, error)
	// SetSnapshotCitation stores citation only when none is set yet.
	SetSnapshotCitation(ctx context.Context, id int64, citation string) (bool, error)

	// Validation queue

	EnqueueResult(ctx context.Context, e *QueueEntry) (*QueueEntry, error)
	ListQueue(ctx context.Context, q QueueQuery) ([]*QueueItem, int, error)
	QueueStats(ctx context.Context, researcherID *int64) (*QueueStats, error)
	ListQueueEntries(ctx context.Context, resultID int64) ([]*QueueEntry, error)
	// ApplyReview moves the pending entries of a result to rv.To and, when
	// promoted is non-nil, inserts it, all in one transaction. It reports
	// false and writes nothing when no entry was pending.
	ApplyReview(ctx context.Context, rv Review, promoted *Assertion) (bool, *Assertion, error)
	ListJobReviews(ctx context.Context, jobID int64) ([]*ReviewRow, error)

	Close() error
}

// ExtractionSource is the read side of the external extraction pipeline.
type ExtractionSource interface {
	FindExtractionResult(ctx context.Context, id int64) (*ExtractionResult, error)
	FindExtractionJob(ctx context.Context, id int64) (*ExtractionJob, error)
	ListExtractionJobs(ctx context.Context, projectID int64) ([]*ExtractionJob, error)
	ListExtractionResults(ctx context.Context, jobID int64) ([]*ExtractionResult, error)
}

// CollectionSource supplies collections and the current descriptive
// metadata of their items.
type CollectionSource interface {
	FindCollection(ctx context.Context, id int64) (*Collection, error)
	ListCollectionItems(ctx context.Context, collectionID int64) ([]CollectionItem, error)
	FindItemMetadata(ctx context.Context, objectID int64, culture string) (*ItemMetadata, error)
	FindSlug(ctx context.Context, objectID int64) (*string, error)
}

// RightsSource supplies per-item rights records and access policies.
type RightsSource interface {
	ListItemRights(ctx context.Context, objectID int64) ([]RightsRecord, error)
	ListItemPolicies(ctx context.Context, objectType string, objectID int64) ([]RightsPolicy, error)
}

// RelationSource supplies externally maintained actor relations.
type RelationSource interface {
	// FindActorName returns nil when the actor has no name record.
	FindActorName(ctx context.Context, actorID int64) (*string, error)
	// ListActorRelations returns relations where the actor is the subject,
	// then those where it is the object.
	ListActorRelations(ctx context.Context, actorID int64) ([]ActorRelation, error)
}
