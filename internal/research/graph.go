package research

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
)

// Node groups used by graph clients for visual clustering.
var typeGroups = map[string]int{
	"actor":              1,
	"information_object": 2,
	"repository":         3,
	"term":               4,
	"place":              5,
	"event":              6,
	"date":               7,
	"concept":            8,
}

const literalGroup = 9

// GroupFor returns the display group of a node type; unknown types are group 0.
func GroupFor(nodeType string) int {
	return typeGroups[nodeType]
}

// GraphNode is one entity or literal value in a graph.
type GraphNode struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Label string `json:"label"`
	Group int    `json:"group"`
}

// GraphEdge is one assertion or relation between two nodes. ID is the
// assertion id, zero for relation edges.
type GraphEdge struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Label      string   `json:"label"`
	Type       string   `json:"type"`
	Status     string   `json:"status"`
	Confidence *float64 `json:"confidence"`
	ID         int64    `json:"id"`
}

// GraphStats summarises a graph.
type GraphStats struct {
	NodeCount      int      `json:"node_count"`
	EdgeCount      int      `json:"edge_count"`
	AssertionTypes []string `json:"assertion_types"`
	EntityTypes    []string `json:"entity_types"`
}

// Graph is a node/edge projection of assertions.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
	Stats GraphStats  `json:"stats"`
}

// GraphBuilder accumulates nodes and edges, merging nodes by key. Nodes and
// edges keep insertion order.
type GraphBuilder struct {
	nodes []GraphNode
	index map[string]int
	edges []GraphEdge
}

// NewGraphBuilder creates an empty GraphBuilder.
func NewGraphBuilder() *GraphBuilder {
	return &GraphBuilder{index: make(map[string]int)}
}

// EntityKey is the node key of an entity.
func EntityKey(entityType string, id int64) string {
	return entityType + ":" + strconv.FormatInt(id, 10)
}

// LiteralKey is the node key of a literal value. Equal values share a node.
func LiteralKey(value string) string {
	sum := md5.Sum([]byte(value))
	return "value:" + hex.EncodeToString(sum[:])
}

func (b *GraphBuilder) addNode(n GraphNode) {
	if _, ok := b.index[n.ID]; ok {
		return
	}
	b.index[n.ID] = len(b.nodes)
	b.nodes = append(b.nodes, n)
}

// AddAssertion adds the assertion's subject and object nodes and the edge between them.
func (b *GraphBuilder) AddAssertion(a *Assertion) {
	subjectKey := EntityKey(a.SubjectType, a.SubjectID)
	label := fmt.Sprintf("%s #%d", a.SubjectType, a.SubjectID)
	if a.SubjectLabel != nil {
		label = *a.SubjectLabel
	}
	b.addNode(GraphNode{ID: subjectKey, Type: a.SubjectType, Label: label, Group: GroupFor(a.SubjectType)})

	var objectKey string
	if a.HasEntityObject() && *a.ObjectID != 0 {
		objectKey = EntityKey(*a.ObjectType, *a.ObjectID)
		label := fmt.Sprintf("%s #%d", *a.ObjectType, *a.ObjectID)
		if a.ObjectLabel != nil {
			label = *a.ObjectLabel
		}
		b.addNode(GraphNode{ID: objectKey, Type: *a.ObjectType, Label: label, Group: GroupFor(*a.ObjectType)})
	} else {
		value := derefString(a.ObjectValue)
		objectKey = LiteralKey(value)
		label := truncateRunes(value, 80)
		if a.ObjectLabel != nil {
			label = *a.ObjectLabel
		}
		b.addNode(GraphNode{ID: objectKey, Type: "literal", Label: label, Group: literalGroup})
	}

	b.edges = append(b.edges, GraphEdge{
		Source:     subjectKey,
		Target:     objectKey,
		Label:      a.Predicate,
		Type:       string(a.AssertionType),
		Status:     string(a.Status),
		Confidence: a.Confidence,
		ID:         a.ID,
	})
}

// AddAssertions adds each assertion in order.
func (b *GraphBuilder) AddAssertions(list []*Assertion) {
	for _, a := range list {
		b.AddAssertion(a)
	}
}

// AddActor adds an actor node without edges.
func (b *GraphBuilder) AddActor(id int64, name *string) {
	b.addNode(GraphNode{ID: EntityKey("actor", id), Type: "actor", Label: actorLabel(name, id), Group: GroupFor("actor")})
}

// AddRelation adds an externally maintained actor relation as a verified
// relational edge.
func (b *GraphBuilder) AddRelation(r ActorRelation) {
	subjectKey := EntityKey("actor", r.SubjectID)
	objectKey := EntityKey("actor", r.ObjectID)
	b.AddActor(r.SubjectID, r.SubjectName)
	b.AddActor(r.ObjectID, r.ObjectName)

	label := "related to"
	if r.TypeName != nil && *r.TypeName != "" {
		label = *r.TypeName
	}
	b.edges = append(b.edges, GraphEdge{
		Source: subjectKey,
		Target: objectKey,
		Label:  label,
		Type:   string(AssertionRelational),
		Status: string(StatusVerified),
	})
}

func actorLabel(name *string, id int64) string {
	if name != nil && *name != "" {
		return *name
	}
	return fmt.Sprintf("Actor #%d", id)
}

// Graph returns the accumulated graph with its stats.
func (b *GraphBuilder) Graph() *Graph {
	g := &Graph{
		Nodes: append([]GraphNode{}, b.nodes...),
		Edges: append([]GraphEdge{}, b.edges...),
	}
	g.Stats = GraphStats{
		NodeCount:      len(g.Nodes),
		EdgeCount:      len(g.Edges),
		AssertionTypes: []string{},
		EntityTypes:    []string{},
	}
	seen := make(map[string]bool)
	for _, e := range g.Edges {
		if !seen["a:"+e.Type] {
			seen["a:"+e.Type] = true
			g.Stats.AssertionTypes = append(g.Stats.AssertionTypes, e.Type)
		}
	}
	for _, n := range g.Nodes {
		if !seen["n:"+n.Type] {
			seen["n:"+n.Type] = true
			g.Stats.EntityTypes = append(g.Stats.EntityTypes, n.Type)
		}
	}
	return g
}
