package types

type ChainMode string

const (
	ChainForward  ChainMode = "FORWARD"
	ChainBackward ChainMode = "BACKWARD"
	ChainLateral  ChainMode = "LATERAL"
)

// PathStep is one concept in a planned sequence.
type PathStep struct {
	ConceptKey          string    `json:"concept_key"`
	PredictedDifficulty int       `json:"predicted_difficulty"`
	EstimatedMinutes    int       `json:"estimated_minutes"`
	ChainMode           ChainMode `json:"chain_mode"`
}

// LearningPath is the planner output: created fresh per planning call and
// never mutated afterward.
type LearningPath struct {
	Steps              []PathStep `json:"steps"`
	SuccessProbability float64    `json:"success_probability"` // clamped 0..1
	ChainMode          ChainMode  `json:"chain_mode"`
}

// TotalMinutes sums the estimated duration of all steps.
func (p *LearningPath) TotalMinutes() int {
	total := 0
	for _, s := range p.Steps {
		total += s.EstimatedMinutes
	}
	return total
}

// PlanResult is the tagged outcome of a planning attempt: either a found
// path or empty. Empty is a normal control-flow signal (triggers the
// bandit fallback), not an error, and no empty-slice sentinel carries
// that meaning.
type PlanResult struct {
	path *LearningPath
}

func Found(p *LearningPath) PlanResult { return PlanResult{path: p} }

func Empty() PlanResult { return PlanResult{} }

// Path returns the planned path and whether one was found.
func (r PlanResult) Path() (*LearningPath, bool) { return r.path, r.path != nil }

func (r PlanResult) IsEmpty() bool { return r.path == nil }

// ReadinessSnapshot summarizes the learner's standing over the candidate
// pool at plan time; attached to the plan response.
type ReadinessSnapshot struct {
	AvgMastery   float64  `json:"avg_mastery"`
	MinMastery   float64  `json:"min_mastery"`
	WeakConcepts []string `json:"weak_concepts,omitempty"`
	ComputedAt   string   `json:"computed_at"`
}
