package research

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

var entityPredicates = map[string]string{
	"person":       "mentions_person",
	"organization": "mentions_organization",
	"location":     "references_location",
	"place":        "references_location",
	"date":         "references_date",
	"event":        "references_event",
	"work":         "references_work",
	"concept":      "relates_to_concept",
}

var entityAssertionTypes = map[string]AssertionType{
	"person":       AssertionBiographical,
	"organization": AssertionRelational,
	"location":     AssertionSpatial,
	"place":        AssertionSpatial,
	"date":         AssertionChronological,
	"event":        AssertionChronological,
}

// InferPredicate maps an extracted entity type to the predicate used when
// the extraction gave no explicit relationship.
func InferPredicate(entityType string) string {
	if p, ok := entityPredicates[strings.ToLower(entityType)]; ok {
		return p
	}
	return "has_extracted_entity"
}

// AssertionTypeForEntity maps an extracted entity type to an assertion type.
func AssertionTypeForEntity(entityType string) AssertionType {
	if t, ok := entityAssertionTypes[strings.ToLower(entityType)]; ok {
		return t
	}
	return AssertionAttributive
}

// entityPayload is the data_json shape of an entity extraction result.
type entityPayload struct {
	EntityType   scalarText      `json:"entity_type"`
	EntityValue  scalarText      `json:"entity_value"`
	Relationship scalarText      `json:"relationship"`
	EntityLabel  scalarText      `json:"entity_label"`
	EntityID     json.RawMessage `json:"entity_id"`
}

// scalarText decodes a JSON string, number or boolean as text. Null, objects
// and arrays decode to the empty string.
type scalarText string

func (t *scalarText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || string(b) == "null":
		*t = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = scalarText(s)
	case b[0] == '{' || b[0] == '[':
		*t = ""
	default:
		*t = scalarText(b)
	}
	return nil
}

// entityID accepts a JSON number or a quoted number.
func (p entityPayload) entityID() *int64 {
	raw := bytes.Trim(bytes.TrimSpace(p.EntityID), `"`)
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil
	}
	return &id
}

// promotedAssertion builds the verified assertion an accepted entity result
// turns into. It returns nil when the payload names no entity value.
func promotedAssertion(result *ExtractionResult, job *ExtractionJob, data json.RawMessage, reviewerID int64, now time.Time) *Assertion {
	var p entityPayload
	if len(data) == 0 || json.Unmarshal(data, &p) != nil || p.EntityValue == "" {
		return nil
	}
	entityType := string(p.EntityType)
	if entityType == "" {
		entityType = "unknown"
	}
	value := string(p.EntityValue)
	predicate := string(p.Relationship)
	if predicate == "" {
		predicate = InferPredicate(entityType)
	}
	label := string(p.EntityLabel)
	if label == "" {
		label = value
	}

	a := &Assertion{
		ResearcherID:  reviewerID,
		SubjectType:   "information_object",
		SubjectID:     result.ObjectID,
		Predicate:     predicate,
		ObjectValue:   strPtr(value),
		ObjectType:    strPtr(entityType),
		ObjectID:      p.entityID(),
		ObjectLabel:   strPtr(label),
		AssertionType: AssertionTypeForEntity(entityType),
		Status:        StatusVerified,
		Confidence:    clampConfidence(result.Confidence),
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if job != nil {
		a.ProjectID = job.ProjectID
	}
	return a
}
