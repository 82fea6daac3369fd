package research

import (
	"context"
	"encoding/json"
	"fmt"
)

// EvidenceInput is the input for attaching evidence to an assertion.
type EvidenceInput struct {
	SourceType   string               `json:"source_type" validate:"required"`
	SourceID     int64                `json:"source_id" validate:"gt=0"`
	Selector     json.RawMessage      `json:"selector"`
	Relationship EvidenceRelationship `json:"relationship" validate:"omitempty,oneof=supports refutes"`
	Note         *string              `json:"note"`
}

// AddEvidence attaches a source to an existing assertion. The assertion's
// updated_at moves; its version does not.
func (s *AssertionService) AddEvidence(ctx context.Context, assertionID, researcherID int64, in EvidenceInput) (*Evidence, error) {
	if err := validateInput(in); err != nil {
		return nil, err
	}
	if len(in.Selector) > 0 && !json.Valid(in.Selector) {
		return nil, validationError(nil, "evidence selector is not valid JSON")
	}
	if in.Relationship == "" {
		in.Relationship = RelationshipSupports
	}

	a, err := s.db.FindAssertion(ctx, assertionID)
	if err != nil {
		return nil, fmt.Errorf("finding assertion: %w", err)
	}
	if a == nil {
		return nil, notFound("assertion %d not found", assertionID)
	}

	now := s.clock.Now()
	e, err := s.db.AddEvidence(ctx, &Evidence{
		AssertionID:  assertionID,
		SourceType:   in.SourceType,
		SourceID:     in.SourceID,
		Selector:     in.Selector,
		Relationship: in.Relationship,
		Note:         in.Note,
		AddedBy:      researcherID,
		CreatedAt:    now,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("adding evidence: %w", err)
	}

	s.activity.record(ctx, Activity{
		ResearcherID: researcherID,
		ProjectID:    a.ProjectID,
		ActivityType: "evidence_added",
		EntityType:   "assertion",
		EntityID:     assertionID,
		Title:        strPtr(fmt.Sprintf("%s %s:%d", in.Relationship, in.SourceType, in.SourceID)),
	})
	return e, nil
}

// RemoveEvidence detaches one piece of evidence and touches its assertion.
func (s *AssertionService) RemoveEvidence(ctx context.Context, evidenceID, researcherID int64) error {
	e, err := s.db.FindEvidence(ctx, evidenceID)
	if err != nil {
		return fmt.Errorf("finding evidence: %w", err)
	}
	if e == nil {
		return notFound("evidence %d not found", evidenceID)
	}
	parent, err := s.db.FindAssertion(ctx, e.AssertionID)
	if err != nil {
		return fmt.Errorf("finding assertion: %w", err)
	}

	ok, err := s.db.RemoveEvidence(ctx, evidenceID, s.clock.Now())
	if err != nil {
		return fmt.Errorf("removing evidence: %w", err)
	}
	if !ok {
		return notFound("evidence %d not found", evidenceID)
	}

	a := Activity{
		ResearcherID: researcherID,
		ActivityType: "evidence_removed",
		EntityType:   "assertion",
		EntityID:     e.AssertionID,
	}
	if parent != nil {
		a.ProjectID = parent.ProjectID
	}
	s.activity.record(ctx, a)
	return nil
}

// ListEvidence returns the evidence attached to an assertion, oldest first.
func (s *AssertionService) ListEvidence(ctx context.Context, assertionID int64) ([]*Evidence, error) {
	list, err := s.db.ListEvidence(ctx, assertionID)
	if err != nil {
		return nil, fmt.Errorf("listing evidence: %w", err)
	}
	return list, nil
}
