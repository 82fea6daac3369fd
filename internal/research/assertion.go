package research

import (
	"context"
	"fmt"
)

const searchLimit = 200

// Claim is the input for authoring a new assertion.
type Claim struct {
	ProjectID     *int64        `json:"project_id"`
	SubjectType   string        `json:"subject_type" validate:"required"`
	SubjectID     int64         `json:"subject_id" validate:"gt=0"`
	SubjectLabel  *string       `json:"subject_label"`
	Predicate     string        `json:"predicate" validate:"required"`
	ObjectValue   *string       `json:"object_value"`
	ObjectType    *string       `json:"object_type"`
	ObjectID      *int64        `json:"object_id" validate:"omitempty,gt=0"`
	ObjectLabel   *string       `json:"object_label"`
	AssertionType AssertionType `json:"assertion_type" validate:"omitempty,oneof=biographical chronological spatial relational attributive"`
	Confidence    *float64      `json:"confidence"`
}

// AssertionService owns the claim graph: authoring, revision, status
// changes, evidence and conflict detection.
type AssertionService struct {
	db       Database
	activity activityRecorder
	logger   Logger
	clock    Clock
}

// NewAssertionService creates an AssertionService.
func NewAssertionService(db Database, activity ActivityLog, logger Logger, clock Clock) *AssertionService {
	return &AssertionService{
		db:       db,
		activity: activityRecorder{sink: activity, logger: logger, clock: clock},
		logger:   logger,
		clock:    clock,
	}
}

// Create records a new proposed assertion at version 1.
func (s *AssertionService) Create(ctx context.Context, researcherID int64, c Claim) (*Assertion, error) {
	if err := validateInput(c); err != nil {
		return nil, err
	}
	if c.AssertionType == "" {
		c.AssertionType = AssertionAttributive
	}

	now := s.clock.Now()
	a := &Assertion{
		ResearcherID:  researcherID,
		ProjectID:     c.ProjectID,
		SubjectType:   c.SubjectType,
		SubjectID:     c.SubjectID,
		SubjectLabel:  c.SubjectLabel,
		Predicate:     c.Predicate,
		ObjectValue:   c.ObjectValue,
		ObjectType:    c.ObjectType,
		ObjectID:      c.ObjectID,
		ObjectLabel:   c.ObjectLabel,
		AssertionType: c.AssertionType,
		Status:        StatusProposed,
		Confidence:    clampConfidence(c.Confidence),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.db.CreateAssertion(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("creating assertion: %w", err)
	}

	s.recordCreated(ctx, created, "authored")
	return created, nil
}

// recordCreated emits the creation event for an assertion that is already persisted.
func (s *AssertionService) recordCreated(ctx context.Context, a *Assertion, origin string) {
	assertionsCreated.WithLabelValues(origin).Inc()
	s.activity.record(ctx, Activity{
		ResearcherID: a.ResearcherID,
		ProjectID:    a.ProjectID,
		ActivityType: "assertion_created",
		EntityType:   "assertion",
		EntityID:     a.ID,
		Title:        strPtr(a.Predicate),
	})
	s.logger.Info("assertion created", "id", a.ID, "predicate", a.Predicate, "origin", origin)
}

// Get returns an assertion with its evidence, or nil if it does not exist.
func (s *AssertionService) Get(ctx context.Context, id int64) (*Assertion, []*Evidence, error) {
	a, err := s.db.FindAssertion(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("finding assertion: %w", err)
	}
	if a == nil {
		return nil, nil, nil
	}
	evidence, err := s.db.ListEvidence(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("listing evidence: %w", err)
	}
	return a, evidence, nil
}

// Update applies the allow-listed fields in u. The version always advances
// by exactly one, even when the submitted values equal the stored ones.
func (s *AssertionService) Update(ctx context.Context, id int64, u AssertionUpdate) (*Assertion, error) {
	if u.Empty() {
		return nil, validationError(nil, "no updatable fields in assertion %d update", id)
	}
	if err := validateInput(u); err != nil {
		return nil, err
	}
	u.Confidence = clampConfidence(u.Confidence)

	existing, err := s.db.FindAssertion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding assertion: %w", err)
	}
	if existing == nil {
		return nil, notFound("assertion %d not found", id)
	}

	ok, err := s.db.UpdateAssertion(ctx, id, u, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("updating assertion: %w", err)
	}
	if !ok {
		if u.ExpectedVersion != nil {
			return nil, ErrVersionConflict
		}
		return nil, notFound("assertion %d not found", id)
	}

	updated, err := s.db.FindAssertion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reloading assertion: %w", err)
	}

	s.activity.record(ctx, Activity{
		ResearcherID: existing.ResearcherID,
		ProjectID:    existing.ProjectID,
		ActivityType: "assertion_updated",
		EntityType:   "assertion",
		EntityID:     id,
		Title:        strPtr(updated.Predicate),
	})
	s.logger.Debug("assertion updated", "id", id, "version", updated.Version)
	return updated, nil
}

// UpdateStatus moves an assertion to status and records the matching event
// against reviewerID.
func (s *AssertionService) UpdateStatus(ctx context.Context, id int64, status AssertionStatus, reviewerID int64) (*Assertion, error) {
	existing, err := s.db.FindAssertion(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding assertion: %w", err)
	}

	var from AssertionStatus
	if existing != nil {
		from = existing.Status
	}
	event, err := TransitionAssertion(from, status)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, notFound("assertion %d not found", id)
	}

	ok, err := s.db.UpdateAssertionStatus(ctx, id, status, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("updating assertion status: %w", err)
	}
	if !ok {
		return nil, notFound("assertion %d not found", id)
	}
	assertionStatusChanges.WithLabelValues(string(status)).Inc()

	s.activity.record(ctx, Activity{
		ResearcherID: reviewerID,
		ProjectID:    existing.ProjectID,
		ActivityType: event,
		EntityType:   "assertion",
		EntityID:     id,
		Title:        strPtr(fmt.Sprintf("Assertion #%d %s", id, status)),
	})
	s.logger.Info("assertion status changed", "id", id, "from", from, "to", status)

	return s.db.FindAssertion(ctx, id)
}

// SubjectAssertions lists every assertion about one subject, ordered by
// predicate then most recently updated.
func (s *AssertionService) SubjectAssertions(ctx context.Context, subjectType string, subjectID int64) ([]*Assertion, error) {
	list, err := s.db.FindAssertionsBySubject(ctx, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("finding subject assertions: %w", err)
	}
	return list, nil
}

// ProjectAssertions lists a project's assertions, most recently updated first.
func (s *AssertionService) ProjectAssertions(ctx context.Context, projectID int64, filter AssertionFilter) ([]*Assertion, error) {
	filter.ProjectID = &projectID
	list, err := s.db.ListAssertions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing project assertions: %w", err)
	}
	return list, nil
}

// Search matches text against subject label, predicate, object value and
// object label. At most 200 assertions are returned.
func (s *AssertionService) Search(ctx context.Context, text string, filter AssertionFilter) ([]*Assertion, error) {
	list, err := s.db.SearchAssertions(ctx, text, filter, searchLimit)
	if err != nil {
		return nil, fmt.Errorf("searching assertions: %w", err)
	}
	return list, nil
}

// AssertionGraph projects the project's non-retracted assertions into a graph.
func (s *AssertionService) AssertionGraph(ctx context.Context, projectID int64) (*Graph, error) {
	list, err := s.ProjectAssertions(ctx, projectID, AssertionFilter{ExcludeRetracted: true, Chronological: true})
	if err != nil {
		return nil, err
	}
	b := NewGraphBuilder()
	b.AddAssertions(list)
	return b.Graph(), nil
}

func clampConfidence(c *float64) *float64 {
	if c == nil {
		return nil
	}
	v := min(100, max(0, *c))
	return &v
}
