package research

import (
	"context"
	"encoding/json"
	"fmt"
)

const defaultItemsLimit = 25

// SnapshotDraft is the input for creating an active snapshot by hand.
type SnapshotDraft struct {
	Title       string          `json:"title" validate:"required"`
	Description *string         `json:"description"`
	QueryState  json.RawMessage `json:"query_state"`
	RightsState json.RawMessage `json:"rights_state"`
	Metadata    json.RawMessage `json:"metadata"`
}

// ItemInput adds one archival item to an active snapshot.
type ItemInput struct {
	ObjectID   int64  `json:"object_id" validate:"gt=0"`
	ObjectType string `json:"object_type"`
	Culture    string `json:"culture"`
	SortOrder  *int   `json:"sort_order"`
}

// VerifyResult is the outcome of recomputing a snapshot hash. A mismatch is
// reported here, not as an error.
type VerifyResult struct {
	SnapshotID int64  `json:"snapshot_id"`
	Valid      bool   `json:"valid"`
	Stored     string `json:"stored"`
	Computed   string `json:"computed"`
}

// ItemsPage is one page of snapshot items.
type ItemsPage struct {
	Items []*SnapshotItem `json:"items"`
	Total int             `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// SnapshotEngine captures collections into hashed, immutable snapshots.
type SnapshotEngine struct {
	db          Database
	collections CollectionSource
	rights      RightsSource
	activity    activityRecorder
	logger      Logger
	clock       Clock
	culture     string
}

// NewSnapshotEngine creates a SnapshotEngine. culture selects which
// descriptive metadata is captured at freeze time.
func NewSnapshotEngine(db Database, collections CollectionSource, rights RightsSource, activity ActivityLog, logger Logger, clock Clock, culture string) *SnapshotEngine {
	if culture == "" {
		culture = "en"
	}
	return &SnapshotEngine{
		db:          db,
		collections: collections,
		rights:      rights,
		activity:    activityRecorder{sink: activity, logger: logger, clock: clock},
		logger:      logger,
		clock:       clock,
		culture:     culture,
	}
}

// Create records an empty active snapshot.
func (e *SnapshotEngine) Create(ctx context.Context, projectID, researcherID int64, d SnapshotDraft) (*Snapshot, error) {
	if err := validateInput(d); err != nil {
		return nil, err
	}
	snap := &Snapshot{
		ProjectID:    projectID,
		ResearcherID: researcherID,
		Title:        d.Title,
		Description:  d.Description,
		Status:       SnapshotActive,
		CreatedAt:    e.clock.Now(),
	}
	var err error
	if snap.QueryState, err = compactJSON(d.QueryState); err != nil {
		return nil, validationError(err, "query state is not valid JSON")
	}
	if snap.RightsState, err = compactJSON(d.RightsState); err != nil {
		return nil, validationError(err, "rights state is not valid JSON")
	}
	if snap.Metadata, err = compactJSON(d.Metadata); err != nil {
		return nil, validationError(err, "metadata is not valid JSON")
	}

	created, err := e.db.CreateSnapshot(ctx, snap)
	if err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}
	e.activity.record(ctx, Activity{
		ResearcherID: researcherID,
		ProjectID:    &projectID,
		ActivityType: "snapshot_created",
		EntityType:   "snapshot",
		EntityID:     created.ID,
		Title:        strPtr(created.Title),
	})
	return created, nil
}

// FreezeCollection captures every item of a collection into a new frozen
// snapshot. The snapshot, its items, its hash and its citation are written
// in one transaction.
func (e *SnapshotEngine) FreezeCollection(ctx context.Context, projectID, collectionID, researcherID int64) (*Snapshot, error) {
	coll, err := e.collections.FindCollection(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("finding collection: %w", err)
	}
	if coll == nil {
		return nil, notFound("collection %d not found", collectionID)
	}

	members, err := e.collections.ListCollectionItems(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("listing collection items: %w", err)
	}

	now := e.clock.Now()
	items := make([]*SnapshotItem, 0, len(members))
	for i, m := range members {
		item, err := e.captureItem(ctx, m, i)
		if err != nil {
			return nil, err
		}
		item.CreatedAt = now
		items = append(items, item)
	}

	snap := &Snapshot{
		ProjectID:    projectID,
		ResearcherID: researcherID,
		Title:        coll.Name + " (Snapshot)",
		Description:  coll.Description,
		Status:       SnapshotFrozen,
		FrozenAt:     &now,
		CreatedAt:    now,
	}
	frozen, err := e.db.InsertFrozenSnapshot(ctx, snap, items, e.seal)
	if err != nil {
		return nil, fmt.Errorf("freezing collection %d: %w", collectionID, err)
	}
	snapshotsFrozen.Inc()

	e.activity.record(ctx, Activity{
		ResearcherID: researcherID,
		ProjectID:    &projectID,
		ActivityType: "snapshot_created",
		EntityType:   "snapshot",
		EntityID:     frozen.ID,
		Title:        strPtr(frozen.Title),
	})
	e.logger.Info("collection frozen", "collection", collectionID, "snapshot", frozen.ID, "items", frozen.ItemCount, "citation", derefString(frozen.CitationID))
	return frozen, nil
}

// Freeze seals an active snapshot with its current items.
func (e *SnapshotEngine) Freeze(ctx context.Context, id, researcherID int64) (*Snapshot, error) {
	snap, err := e.mutable(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.Status != SnapshotActive {
		return nil, invalidState("snapshot %d is %s, only active snapshots can be frozen", id, snap.Status)
	}

	frozen, err := e.db.FreezeSnapshot(ctx, id, e.clock.Now(), e.seal)
	if err != nil {
		return nil, fmt.Errorf("freezing snapshot: %w", err)
	}
	if frozen == nil {
		return nil, invalidState("snapshot %d changed state while freezing", id)
	}
	snapshotsFrozen.Inc()

	e.activity.record(ctx, Activity{
		ResearcherID: researcherID,
		ProjectID:    &frozen.ProjectID,
		ActivityType: "snapshot_frozen",
		EntityType:   "snapshot",
		EntityID:     id,
		Title:        strPtr(frozen.Title),
	})
	return frozen, nil
}

func (e *SnapshotEngine) seal(snap *Snapshot, items []*SnapshotItem) (string, string, error) {
	hash := ComputeHash(snap, items)
	return hash, CitationFor(snap.ProjectID, snap.ID, hash), nil
}

// captureItem resolves the slug, metadata version and rights of one collection member.
func (e *SnapshotEngine) captureItem(ctx context.Context, m CollectionItem, index int) (*SnapshotItem, error) {
	item := &SnapshotItem{
		ObjectID:   m.ObjectID,
		ObjectType: m.ObjectType,
		Culture:    m.Culture,
		SortOrder:  index,
	}
	if item.ObjectType == "" {
		item.ObjectType = "information_object"
	}
	if item.Culture == "" {
		item.Culture = e.culture
	}
	if m.SortOrder != nil {
		item.SortOrder = *m.SortOrder
	}

	slug, err := e.collections.FindSlug(ctx, m.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("finding slug for object %d: %w", m.ObjectID, err)
	}
	item.Slug = slug

	if item.MetadataVersion, err = e.metadataVersion(ctx, m.ObjectID); err != nil {
		return nil, err
	}
	if item.RightsSnapshot, err = e.rightsSnapshot(ctx, item.ObjectType, m.ObjectID); err != nil {
		return nil, err
	}
	return item, nil
}

type metadataVersion struct {
	Title           *string `json:"title"`
	ScopeAndContent *string `json:"scope_and_content"`
	ExtentAndMedium *string `json:"extent_and_medium"`
}

func (e *SnapshotEngine) metadataVersion(ctx context.Context, objectID int64) (*string, error) {
	md, err := e.collections.FindItemMetadata(ctx, objectID, e.culture)
	if err != nil {
		return nil, fmt.Errorf("finding metadata for object %d: %w", objectID, err)
	}
	if md == nil {
		return nil, nil
	}
	s, err := canonicalJSON(metadataVersion{
		Title:           md.Title,
		ScopeAndContent: md.ScopeAndContent,
		ExtentAndMedium: md.ExtentAndMedium,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding metadata for object %d: %w", objectID, err)
	}
	return &s, nil
}

type rightsCapture struct {
	Rights []RightsRecord `json:"rights,omitempty"`
	ODRL   []RightsPolicy `json:"odrl,omitempty"`
}

// rightsSnapshot captures rights records, falling back to access policies.
func (e *SnapshotEngine) rightsSnapshot(ctx context.Context, objectType string, objectID int64) (*string, error) {
	if e.rights == nil {
		return nil, nil
	}
	var capture rightsCapture
	records, err := e.rights.ListItemRights(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("listing rights for object %d: %w", objectID, err)
	}
	if len(records) > 0 {
		capture.Rights = records
	} else {
		policies, err := e.rights.ListItemPolicies(ctx, objectType, objectID)
		if err != nil {
			return nil, fmt.Errorf("listing policies for object %d: %w", objectID, err)
		}
		if len(policies) == 0 {
			return nil, nil
		}
		capture.ODRL = policies
	}
	s, err := canonicalJSON(capture)
	if err != nil {
		return nil, fmt.Errorf("encoding rights for object %d: %w", objectID, err)
	}
	return &s, nil
}

// Get returns a snapshot, or nil if it does not exist.
func (e *SnapshotEngine) Get(ctx context.Context, id int64) (*Snapshot, error) {
	snap, err := e.db.FindSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	return snap, nil
}

// ProjectSnapshots lists a project's snapshots, newest first.
func (e *SnapshotEngine) ProjectSnapshots(ctx context.Context, projectID int64) ([]*Snapshot, error) {
	list, err := e.db.ListProjectSnapshots(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing project snapshots: %w", err)
	}
	return list, nil
}

// Items returns one page of a snapshot's items in sort order.
func (e *SnapshotEngine) Items(ctx context.Context, snapshotID int64, page, limit int) (*ItemsPage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultItemsLimit
	}
	items, total, err := e.db.ListSnapshotItemsPage(ctx, snapshotID, (page-1)*limit, limit)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot items: %w", err)
	}
	return &ItemsPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// AddItem adds an item to a snapshot that is not frozen.
func (e *SnapshotEngine) AddItem(ctx context.Context, snapshotID int64, in ItemInput) (*SnapshotItem, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	snap, err := e.mutable(ctx, snapshotID)
	if err != nil {
		return nil, err
	}

	item, err := e.captureItem(ctx, CollectionItem{ObjectID: in.ObjectID, ObjectType: in.ObjectType, Culture: in.Culture}, snap.ItemCount)
	if err != nil {
		return nil, err
	}
	item.SnapshotID = snapshotID
	item.CreatedAt = e.clock.Now()
	if in.SortOrder != nil {
		item.SortOrder = *in.SortOrder
	}

	added, err := e.db.AddSnapshotItem(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("adding snapshot item: %w", err)
	}
	if added == nil {
		return nil, ErrSnapshotFrozen
	}
	e.activity.record(ctx, Activity{
		ResearcherID: snap.ResearcherID,
		ProjectID:    &snap.ProjectID,
		ActivityType: "snapshot_item_added",
		EntityType:   "snapshot",
		EntityID:     snapshotID,
	})
	return added, nil
}

// RemoveItem removes an item from a snapshot that is not frozen.
func (e *SnapshotEngine) RemoveItem(ctx context.Context, snapshotID, objectID int64, objectType string) error {
	snap, err := e.mutable(ctx, snapshotID)
	if err != nil {
		return err
	}
	if objectType == "" {
		objectType = "information_object"
	}
	ok, err := e.db.RemoveSnapshotItem(ctx, snapshotID, objectID, objectType)
	if err != nil {
		return fmt.Errorf("removing snapshot item: %w", err)
	}
	if !ok {
		return notFound("object %s:%d not in snapshot %d", objectType, objectID, snapshotID)
	}
	e.activity.record(ctx, Activity{
		ResearcherID: snap.ResearcherID,
		ProjectID:    &snap.ProjectID,
		ActivityType: "snapshot_item_removed",
		EntityType:   "snapshot",
		EntityID:     snapshotID,
	})
	return nil
}

// UpdateDetails changes the title and description of a snapshot that is not frozen.
func (e *SnapshotEngine) UpdateDetails(ctx context.Context, id int64, title string, description *string) error {
	if title == "" {
		return validationError(nil, "snapshot title is required")
	}
	snap, err := e.mutable(ctx, id)
	if err != nil {
		return err
	}
	ok, err := e.db.UpdateSnapshotDetails(ctx, id, title, description)
	if err != nil {
		return fmt.Errorf("updating snapshot: %w", err)
	}
	if !ok {
		return ErrSnapshotFrozen
	}
	e.activity.record(ctx, Activity{
		ResearcherID: snap.ResearcherID,
		ProjectID:    &snap.ProjectID,
		ActivityType: "snapshot_updated",
		EntityType:   "snapshot",
		EntityID:     id,
		Title:        strPtr(title),
	})
	return nil
}

// Archive retires an active snapshot.
func (e *SnapshotEngine) Archive(ctx context.Context, id int64) error {
	snap, err := e.mutable(ctx, id)
	if err != nil {
		return err
	}
	ok, err := e.db.ArchiveSnapshot(ctx, id)
	if err != nil {
		return fmt.Errorf("archiving snapshot: %w", err)
	}
	if !ok {
		return invalidState("snapshot %d is %s, only active snapshots can be archived", id, snap.Status)
	}
	e.activity.record(ctx, Activity{
		ResearcherID: snap.ResearcherID,
		ProjectID:    &snap.ProjectID,
		ActivityType: "snapshot_archived",
		EntityType:   "snapshot",
		EntityID:     id,
		Title:        strPtr(snap.Title),
	})
	return nil
}

// Delete removes a snapshot that is not frozen, with its items.
func (e *SnapshotEngine) Delete(ctx context.Context, id int64) error {
	snap, err := e.mutable(ctx, id)
	if err != nil {
		return err
	}
	ok, err := e.db.DeleteSnapshot(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	if !ok {
		return ErrSnapshotFrozen
	}
	e.activity.record(ctx, Activity{
		ResearcherID: snap.ResearcherID,
		ProjectID:    &snap.ProjectID,
		ActivityType: "snapshot_deleted",
		EntityType:   "snapshot",
		EntityID:     id,
		Title:        strPtr(snap.Title),
	})
	return nil
}

// mutable loads a snapshot and rejects it if frozen.
func (e *SnapshotEngine) mutable(ctx context.Context, id int64) (*Snapshot, error) {
	snap, err := e.db.FindSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	if snap == nil {
		return nil, notFound("snapshot %d not found", id)
	}
	if err := CheckSnapshotMutable(snap.Status); err != nil {
		return nil, err
	}
	return snap, nil
}

// VerifyHash recomputes a snapshot's hash from its stored state.
func (e *SnapshotEngine) VerifyHash(ctx context.Context, id int64) (*VerifyResult, error) {
	snap, err := e.db.FindSnapshot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding snapshot: %w", err)
	}
	if snap == nil {
		return nil, notFound("snapshot %d not found", id)
	}
	return e.verify(ctx, snap)
}

func (e *SnapshotEngine) verify(ctx context.Context, snap *Snapshot) (*VerifyResult, error) {
	items, err := e.db.ListSnapshotItems(ctx, snap.ID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot items: %w", err)
	}
	res := &VerifyResult{
		SnapshotID: snap.ID,
		Stored:     derefString(snap.Hash),
		Computed:   ComputeHash(snap, items),
	}
	res.Valid = res.Stored != "" && hashesEqual(res.Stored, res.Computed)
	if res.Valid {
		snapshotVerifications.WithLabelValues("valid").Inc()
	} else {
		snapshotVerifications.WithLabelValues("mismatch").Inc()
	}
	return res, nil
}

// VerifyFrozen verifies every frozen snapshot and returns the results.
// Mismatches are logged.
func (e *SnapshotEngine) VerifyFrozen(ctx context.Context) ([]*VerifyResult, error) {
	snaps, err := e.db.ListSnapshotsByStatus(ctx, SnapshotFrozen)
	if err != nil {
		return nil, fmt.Errorf("listing frozen snapshots: %w", err)
	}
	results := make([]*VerifyResult, 0, len(snaps))
	for _, snap := range snaps {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := e.verify(ctx, snap)
		if err != nil {
			return results, err
		}
		if !res.Valid {
			e.logger.Warn("snapshot hash mismatch", "snapshot", snap.ID, "stored", res.Stored, "computed", res.Computed)
		}
		results = append(results, res)
	}
	return results, nil
}

// CitationID returns the snapshot's citation identifier, deriving and
// storing it on first use.
func (e *SnapshotEngine) CitationID(ctx context.Context, id int64) (string, error) {
	snap, err := e.db.FindSnapshot(ctx, id)
	if err != nil {
		return "", fmt.Errorf("finding snapshot: %w", err)
	}
	if snap == nil {
		return "", notFound("snapshot %d not found", id)
	}
	if snap.CitationID != nil && *snap.CitationID != "" {
		return *snap.CitationID, nil
	}

	hash := derefString(snap.Hash)
	if hash == "" {
		items, err := e.db.ListSnapshotItems(ctx, id)
		if err != nil {
			return "", fmt.Errorf("listing snapshot items: %w", err)
		}
		hash = ComputeHash(snap, items)
	}
	citation := CitationFor(snap.ProjectID, snap.ID, hash)

	stored, err := e.db.SetSnapshotCitation(ctx, id, citation)
	if err != nil {
		return "", fmt.Errorf("storing citation: %w", err)
	}
	if !stored {
		// Another writer set it first.
		current, err := e.db.FindSnapshot(ctx, id)
		if err != nil {
			return "", fmt.Errorf("reloading snapshot: %w", err)
		}
		if current != nil && current.CitationID != nil {
			return *current.CitationID, nil
		}
	}
	return citation, nil
}
