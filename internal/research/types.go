package research

import (
	"encoding/json"
	"time"
)

// AssertionType classifies what kind of claim an assertion makes.
type AssertionType string

const (
	AssertionBiographical  AssertionType = "biographical"
	AssertionChronological AssertionType = "chronological"
	AssertionSpatial       AssertionType = "spatial"
	AssertionRelational    AssertionType = "relational"
	AssertionAttributive   AssertionType = "attributive"
)

// Valid reports whether t is one of the known assertion types.
func (t AssertionType) Valid() bool {
	switch t {
	case AssertionBiographical, AssertionChronological, AssertionSpatial, AssertionRelational, AssertionAttributive:
		return true
	}
	return false
}

// AssertionStatus is the review state of an assertion.
type AssertionStatus string

const (
	StatusProposed  AssertionStatus = "proposed"
	StatusVerified  AssertionStatus = "verified"
	StatusDisputed  AssertionStatus = "disputed"
	StatusRetracted AssertionStatus = "retracted"
)

// EvidenceRelationship says whether a source backs or contradicts an assertion.
type EvidenceRelationship string

const (
	RelationshipSupports EvidenceRelationship = "supports"
	RelationshipRefutes  EvidenceRelationship = "refutes"
)

// SnapshotStatus is the lifecycle state of a snapshot.
type SnapshotStatus string

const (
	SnapshotActive   SnapshotStatus = "active"
	SnapshotFrozen   SnapshotStatus = "frozen"
	SnapshotArchived SnapshotStatus = "archived"
)

// ValidationStatus is the state of a validation queue entry.
type ValidationStatus string

const (
	ValidationPending  ValidationStatus = "pending"
	ValidationAccepted ValidationStatus = "accepted"
	ValidationRejected ValidationStatus = "rejected"
	ValidationModified ValidationStatus = "modified"
)

// Assertion is a structured subject --predicate--> object claim.
// The object may be a literal (ObjectValue), an entity reference
// (ObjectType + ObjectID), or both.
type Assertion struct {
	ID            int64           `json:"id"`
	ResearcherID  int64           `json:"researcher_id"`
	ProjectID     *int64          `json:"project_id"`
	SubjectType   string          `json:"subject_type"`
	SubjectID     int64           `json:"subject_id"`
	SubjectLabel  *string         `json:"subject_label"`
	Predicate     string          `json:"predicate"`
	ObjectValue   *string         `json:"object_value"`
	ObjectType    *string         `json:"object_type"`
	ObjectID      *int64          `json:"object_id"`
	ObjectLabel   *string         `json:"object_label"`
	AssertionType AssertionType   `json:"assertion_type"`
	Status        AssertionStatus `json:"status"`
	Confidence    *float64        `json:"confidence"`
	Version       int             `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// Computed on read.
	EvidenceCount   int `json:"evidence_count"`
	SupportingCount int `json:"supporting_count"`
	RefutingCount   int `json:"refuting_count"`
}

// HasEntityObject reports whether the object side references an entity.
func (a *Assertion) HasEntityObject() bool {
	return a.ObjectType != nil && *a.ObjectType != "" && a.ObjectID != nil
}

// Evidence links a source record to an assertion.
type Evidence struct {
	ID           int64                `json:"id"`
	AssertionID  int64                `json:"assertion_id"`
	SourceType   string               `json:"source_type"`
	SourceID     int64                `json:"source_id"`
	Selector     json.RawMessage      `json:"selector,omitempty"`
	Relationship EvidenceRelationship `json:"relationship"`
	Note         *string              `json:"note"`
	AddedBy      int64                `json:"added_by"`
	CreatedAt    time.Time            `json:"created_at"`
}

// AssertionFilter narrows listing and search queries. Empty fields match everything.
type AssertionFilter struct {
	ProjectID     *int64
	AssertionType AssertionType
	Status        AssertionStatus
	SubjectType   string
	Predicate     string
	// ExcludeRetracted drops retracted assertions when Status is empty.
	ExcludeRetracted bool
	// Chronological orders by id instead of most recently updated.
	Chronological bool
}

// Snapshot is a point-in-time capture of a collection. Once frozen it and
// its items never change.
type Snapshot struct {
	ID           int64          `json:"id"`
	ProjectID    int64          `json:"project_id"`
	ResearcherID int64          `json:"researcher_id"`
	Title        string         `json:"title"`
	Description  *string        `json:"description"`
	QueryState   *string        `json:"query_state_json"`
	RightsState  *string        `json:"rights_state_json"`
	Metadata     *string        `json:"metadata_json"`
	ItemCount    int            `json:"item_count"`
	Status       SnapshotStatus `json:"status"`
	Hash         *string        `json:"hash_sha256"`
	CitationID   *string        `json:"citation_id"`
	FrozenAt     *time.Time     `json:"frozen_at"`
	CreatedAt    time.Time      `json:"created_at"`
}

// SnapshotItem is one archival item captured inside a snapshot.
type SnapshotItem struct {
	ID              int64     `json:"id"`
	SnapshotID      int64     `json:"snapshot_id"`
	ObjectID        int64     `json:"object_id"`
	ObjectType      string    `json:"object_type"`
	Culture         string    `json:"culture"`
	Slug            *string   `json:"slug"`
	MetadataVersion *string   `json:"metadata_version_json"`
	RightsSnapshot  *string   `json:"rights_snapshot_json"`
	SortOrder       int       `json:"sort_order"`
	CreatedAt       time.Time `json:"created_at"`
}

// ExtractionJob is a batch run of the external extraction pipeline.
type ExtractionJob struct {
	ID             int64     `json:"id"`
	ProjectID      *int64    `json:"project_id"`
	ResearcherID   int64     `json:"researcher_id"`
	ExtractionType string    `json:"extraction_type"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
}

// ExtractionResult is one machine-extracted candidate fact.
type ExtractionResult struct {
	ID           int64           `json:"id"`
	JobID        int64           `json:"job_id"`
	ObjectID     int64           `json:"object_id"`
	ResultType   string          `json:"result_type"`
	Data         json.RawMessage `json:"data_json"`
	Confidence   *float64        `json:"confidence"`
	ModelVersion *string         `json:"model_version"`
	InputHash    *string         `json:"input_hash"`
	CreatedAt    time.Time       `json:"created_at"`
}

// QueueEntry is a human decision, pending or made, about one extraction result.
type QueueEntry struct {
	ID           int64            `json:"id"`
	ResultID     int64            `json:"result_id"`
	ResearcherID int64            `json:"researcher_id"`
	Status       ValidationStatus `json:"status"`
	ReviewerID   *int64           `json:"reviewer_id"`
	ReviewedAt   *time.Time       `json:"reviewed_at"`
	Notes        *string          `json:"notes"`
	ModifiedData json.RawMessage  `json:"modified_data_json,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
}

// QueueItem is a queue entry joined with its result and job.
type QueueItem struct {
	QueueEntry
	ObjectID       int64           `json:"object_id"`
	ObjectTitle    *string         `json:"object_title"`
	ResultType     string          `json:"result_type"`
	Data           json.RawMessage `json:"data_json"`
	Confidence     *float64        `json:"confidence"`
	ModelVersion   *string         `json:"model_version"`
	JobID          int64           `json:"job_id"`
	ExtractionType string          `json:"extraction_type"`
	ProjectID      *int64          `json:"project_id"`
}

// QueueQuery selects a page of the validation queue.
type QueueQuery struct {
	ResearcherID   *int64
	Status         ValidationStatus
	ResultType     string
	ExtractionType string
	MinConfidence  *float64
	Page           int
	Limit          int
}

// QueuePage is one page of queue items plus the unpaged total.
type QueuePage struct {
	Items []*QueueItem `json:"items"`
	Total int          `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// QueueStats aggregates queue entries by status.
type QueueStats struct {
	Pending              int      `json:"pending"`
	Accepted             int      `json:"accepted"`
	Rejected             int      `json:"rejected"`
	Modified             int      `json:"modified"`
	Total                int      `json:"total"`
	AvgPendingConfidence *float64 `json:"avg_confidence"`
}

// ResultDetail is an extraction result with its job and queue entries.
type ResultDetail struct {
	Result  *ExtractionResult `json:"result"`
	Job     *ExtractionJob    `json:"job"`
	Entries []*QueueEntry     `json:"entries"`
}

// Review is a decision to apply to the pending entries of a result.
type Review struct {
	ResultID     int64
	To           ValidationStatus
	ReviewerID   int64
	ReviewedAt   time.Time
	Notes        *string
	ModifiedData json.RawMessage
}

// ReviewRecord is one reviewer's decision on a result.
type ReviewRecord struct {
	ValidationID int64            `json:"validation_id"`
	Status       ValidationStatus `json:"status"`
	ReviewerID   *int64           `json:"reviewer_id"`
	ReviewedAt   *time.Time       `json:"reviewed_at"`
	Notes        *string          `json:"notes"`
	ModifiedData json.RawMessage  `json:"modified_data_json,omitempty"`
}

// ReviewRow is a review joined with the result it applies to.
type ReviewRow struct {
	ReviewRecord
	ResultID   int64
	ObjectID   int64
	ResultType string
	Data       json.RawMessage
	Confidence *float64
}

// Disagreement is a result whose reviewers did not agree.
type Disagreement struct {
	ResultID   int64           `json:"result_id"`
	ObjectID   int64           `json:"object_id"`
	ResultType string          `json:"result_type"`
	Data       json.RawMessage `json:"data_json"`
	Confidence *float64        `json:"confidence"`
	Reviews    []ReviewRecord  `json:"reviews"`
}

// Collection is a researcher's working set of archival items.
type Collection struct {
	ID           int64   `json:"id"`
	ProjectID    *int64  `json:"project_id"`
	ResearcherID int64   `json:"researcher_id"`
	Name         string  `json:"name"`
	Description  *string `json:"description"`
}

// CollectionItem is one member of a collection.
type CollectionItem struct {
	ObjectID   int64
	ObjectType string
	Culture    string
	SortOrder  *int // nil falls back to the item's position
}

// ItemMetadata is the current descriptive record of an archival item.
type ItemMetadata struct {
	ObjectID        int64
	Title           *string
	ScopeAndContent *string
	ExtentAndMedium *string
}

// RightsRecord is a rights statement attached to an item.
type RightsRecord struct {
	ID            int64   `json:"id"`
	RightsNote    *string `json:"rights_note"`
	CopyrightNote *string `json:"copyright_note"`
	LicenseNote   *string `json:"license_note"`
}

// RightsPolicy is an access policy attached to an item.
type RightsPolicy struct {
	PolicyType  string  `json:"policy_type"`
	ActionType  string  `json:"action_type"`
	Constraints *string `json:"constraints_json"`
}

// ActorRelation is an externally maintained relation between two actors.
type ActorRelation struct {
	ID          int64
	SubjectID   int64
	SubjectName *string
	ObjectID    int64
	ObjectName  *string
	TypeName    *string
}
