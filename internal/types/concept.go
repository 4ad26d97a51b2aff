package types

type EdgeType string

const (
	EdgePrerequisite EdgeType = "PREREQUISITE"
	EdgeNext         EdgeType = "NEXT"
	EdgeSimilar      EdgeType = "SIMILAR"
)

// ConceptEdge is a typed, directed relation between two concepts.
type ConceptEdge struct {
	FromKey  string   `json:"from_key"`
	ToKey    string   `json:"to_key"`
	Type     EdgeType `json:"type"`
	Strength float64  `json:"strength"` // 0..1
}

// Concept is published by the external knowledge pipeline and read-only
// inside the planning core. Key is stable and namespaced by domain,
// e.g. "algebra.quadratic_equations".
type Concept struct {
	Key              string        `json:"key"`
	Name             string        `json:"name"`
	Difficulty       int           `json:"difficulty"` // ordinal, 1..10
	EstimatedMinutes int           `json:"estimated_minutes"`
	Centrality       float64       `json:"centrality"`
	Edges            []ConceptEdge `json:"edges,omitempty"`
}
