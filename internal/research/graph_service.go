package research

import (
	"context"
	"fmt"
)

// Relationship is one edge touching an entity, either from an assertion or
// from an actor relation.
type Relationship struct {
	Source        string   `json:"source"`
	AssertionID   *int64   `json:"assertion_id,omitempty"`
	RelationID    *int64   `json:"relation_id,omitempty"`
	Direction     string   `json:"direction"`
	RelatedType   *string  `json:"related_type"`
	RelatedID     *int64   `json:"related_id"`
	RelatedLabel  *string  `json:"related_label"`
	Predicate     string   `json:"predicate"`
	AssertionType string   `json:"assertion_type"`
	Status        string   `json:"status"`
	Confidence    *float64 `json:"confidence"`
	ResearcherID  *int64   `json:"researcher_id"`
}

// Relationship sources and directions.
const (
	SourceAssertion     = "assertion"
	SourceActorRelation = "actor_relation"

	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// GraphService builds graphs over project assertions and actor relations.
type GraphService struct {
	db        Database
	relations RelationSource
	clock     Clock
}

// NewGraphService creates a GraphService.
func NewGraphService(db Database, relations RelationSource, clock Clock) *GraphService {
	return &GraphService{db: db, relations: relations, clock: clock}
}

// ProjectGraph builds the assertion graph of a project in creation order.
// Retracted assertions are left out unless filter.Status asks for them.
func (s *GraphService) ProjectGraph(ctx context.Context, projectID int64, filter AssertionFilter) (*Graph, error) {
	filter.ProjectID = &projectID
	filter.Chronological = true
	if filter.Status == "" {
		filter.ExcludeRetracted = true
	}
	list, err := s.db.ListAssertions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing project assertions: %w", err)
	}
	b := NewGraphBuilder()
	b.AddAssertions(list)
	return b.Graph(), nil
}

// EntityGraph builds the actor-relation neighbourhood of an entity. Only
// actors carry relations; other types and unnamed actors yield an empty graph.
func (s *GraphService) EntityGraph(ctx context.Context, entityType string, id int64) (*Graph, error) {
	b := NewGraphBuilder()
	if entityType != "actor" {
		return b.Graph(), nil
	}
	name, err := s.relations.FindActorName(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("finding actor name: %w", err)
	}
	if name == nil {
		return b.Graph(), nil
	}
	rels, err := s.relations.ListActorRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing actor relations: %w", err)
	}
	b.AddActor(id, name)
	for _, r := range rels {
		b.AddRelation(r)
	}
	return b.Graph(), nil
}

// EntityRelationships lists the assertions in which the entity is subject
// (outgoing) or object (incoming), followed by actor relations for actors.
func (s *GraphService) EntityRelationships(ctx context.Context, entityType string, id int64) ([]Relationship, error) {
	out := []Relationship{}

	subjectOf, err := s.db.FindAssertionsBySubject(ctx, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("finding assertions by subject: %w", err)
	}
	for _, a := range subjectOf {
		r := assertionRelationship(a, DirectionOutgoing)
		r.RelatedType, r.RelatedID, r.RelatedLabel = a.ObjectType, a.ObjectID, a.ObjectLabel
		out = append(out, r)
	}

	objectOf, err := s.db.FindAssertionsByObject(ctx, entityType, id)
	if err != nil {
		return nil, fmt.Errorf("finding assertions by object: %w", err)
	}
	for _, a := range objectOf {
		r := assertionRelationship(a, DirectionIncoming)
		subjectType, subjectID := a.SubjectType, a.SubjectID
		r.RelatedType, r.RelatedID, r.RelatedLabel = &subjectType, &subjectID, a.SubjectLabel
		out = append(out, r)
	}

	if entityType != "actor" {
		return out, nil
	}
	rels, err := s.relations.ListActorRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing actor relations: %w", err)
	}
	actorType := "actor"
	for _, rel := range rels {
		relationID := rel.ID
		r := Relationship{
			Source:        SourceActorRelation,
			RelationID:    &relationID,
			RelatedType:   &actorType,
			Predicate:     "related to",
			AssertionType: string(AssertionRelational),
			Status:        string(StatusVerified),
		}
		if rel.TypeName != nil && *rel.TypeName != "" {
			r.Predicate = *rel.TypeName
		}
		var relatedID int64
		var relatedName *string
		if rel.SubjectID == id {
			r.Direction = DirectionOutgoing
			relatedID, relatedName = rel.ObjectID, rel.ObjectName
		} else {
			r.Direction = DirectionIncoming
			relatedID, relatedName = rel.SubjectID, rel.SubjectName
		}
		label := actorLabel(relatedName, relatedID)
		r.RelatedID, r.RelatedLabel = &relatedID, &label
		out = append(out, r)
	}
	return out, nil
}

func assertionRelationship(a *Assertion, direction string) Relationship {
	assertionID, researcherID := a.ID, a.ResearcherID
	return Relationship{
		Source:        SourceAssertion,
		AssertionID:   &assertionID,
		Direction:     direction,
		Predicate:     a.Predicate,
		AssertionType: string(a.AssertionType),
		Status:        string(a.Status),
		Confidence:    a.Confidence,
		ResearcherID:  &researcherID,
	}
}

// GEXF exports the project graph as a GEXF document dated today.
func (s *GraphService) GEXF(ctx context.Context, projectID int64) (string, error) {
	g, err := s.ProjectGraph(ctx, projectID, AssertionFilter{})
	if err != nil {
		return "", err
	}
	return ExportGEXF(g, projectID, s.clock.Now()), nil
}

// GraphML exports the project graph as a GraphML document.
func (s *GraphService) GraphML(ctx context.Context, projectID int64) (string, error) {
	g, err := s.ProjectGraph(ctx, projectID, AssertionFilter{})
	if err != nil {
		return "", err
	}
	return ExportGraphML(g), nil
}
