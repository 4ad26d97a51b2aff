package engine

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"

	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

func newPlanningFixture(t *testing.T, graph GraphView, oracle Oracle) (*PlanningService, *memStateStore) {
	t.Helper()
	cfg := testConfig()
	states := newMemStateStore()
	planner := NewTreeSearchPlanner(cfg.Search, oracle, testLogger(t))
	bandit := NewBanditEngine(cfg.Bandit, newMemArmStore(), testLogger(t))
	svc := NewPlanningService(cfg, graph, states, planner, bandit, nil, testLogger(t))
	return svc, states
}

func TestPlanUsesSearchWhenViable(t *testing.T) {
	oracle := keyScorer(map[string]float64{"a1": 0.9, "a2": 0.9, "a3": 0.9, "b1": 0.4, "b2": 0.4, "b3": 0.4})
	svc, states := newPlanningFixture(t, &fakeGraph{pool: chainPool()}, oracle)
	learnerID := uuid.New()
	states.put(testLearner(learnerID, nil))

	resp, err := svc.Plan(context.Background(), learnerID, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if resp.Source != SourceSearch {
		t.Fatalf("Source = %q, want %q", resp.Source, SourceSearch)
	}
	if resp.Path == nil || len(resp.Path.Steps) != 3 {
		t.Fatal("search plan missing its path")
	}
	if resp.Path.SuccessProbability <= 0 || resp.Path.SuccessProbability > 1 {
		t.Errorf("SuccessProbability = %g, want (0,1]", resp.Path.SuccessProbability)
	}
	if resp.Readiness == nil {
		t.Error("readiness snapshot missing")
	}
}

func TestPlanFallsBackWhenSearchEmpty(t *testing.T) {
	// Every path scores below the viability floor, forcing the bandit.
	oracle := &stubOracle{score: func([]string, *types.LearnerContext) (float64, error) { return 0.1, nil }}
	svc, states := newPlanningFixture(t, &fakeGraph{pool: chainPool()}, oracle)
	learnerID := uuid.New()
	states.put(testLearner(learnerID, nil))

	resp, err := svc.Plan(context.Background(), learnerID, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if resp.Source != SourceFallback {
		t.Fatalf("Source = %q, want %q", resp.Source, SourceFallback)
	}
	if resp.NoContent {
		t.Fatal("fallback with unmastered concepts reported no content")
	}
	// Budget 30min at 0.8 fill, 10min concepts: three greedy picks.
	if len(resp.Path.Steps) != 3 {
		t.Fatalf("fallback picked %d steps, want 3", len(resp.Path.Steps))
	}
	seen := map[string]bool{}
	for _, step := range resp.Path.Steps {
		if seen[step.ConceptKey] {
			t.Errorf("fallback repeated concept %q", step.ConceptKey)
		}
		seen[step.ConceptKey] = true
	}
}

func TestPlanNoContentWhenEverythingMastered(t *testing.T) {
	oracle := keyScorer(map[string]float64{})
	svc, states := newPlanningFixture(t, &fakeGraph{pool: chainPool()}, oracle)
	learnerID := uuid.New()
	states.put(testLearner(learnerID, map[string]float64{
		"a1": 0.9, "a2": 0.9, "a3": 0.9, "b1": 0.9, "b2": 0.9, "b3": 0.9,
	}))

	resp, err := svc.Plan(context.Background(), learnerID, "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !resp.NoContent {
		t.Fatal("fully mastered pool should yield a no-content response")
	}
	if resp.Path != nil {
		t.Error("no-content response carried a path")
	}
}

func TestPlanConcurrentLearnersShareOracle(t *testing.T) {
	// One SimulationOracle instance serves every session; concurrent plans
	// for different learners must not interfere (run with -race).
	oracle := NewSimulationOracle(DefaultSimulationWeights())
	svc, states := newPlanningFixture(t, &fakeGraph{pool: chainPool()}, oracle)

	learners := []uuid.UUID{uuid.New(), uuid.New()}
	for _, id := range learners {
		states.put(testLearner(id, nil))
	}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		id := learners[i%len(learners)]
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Plan(context.Background(), id, ""); err != nil {
				t.Errorf("Plan: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestPlanUnknownLearner(t *testing.T) {
	svc, _ := newPlanningFixture(t, &fakeGraph{pool: chainPool()}, keyScorer(nil))

	_, err := svc.Plan(context.Background(), uuid.New(), "")
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestSuccessProbability(t *testing.T) {
	svc, _ := newPlanningFixture(t, &fakeGraph{}, keyScorer(nil))

	tests := []struct {
		name    string
		mastery map[string]float64
		skill   float64
		budget  int
		steps   []types.PathStep
		want    float64
	}{
		{
			name:    "perfect fit",
			mastery: map[string]float64{"x": 1},
			skill:   0.5,
			budget:  30,
			steps:   []types.PathStep{{ConceptKey: "x", PredictedDifficulty: 1, EstimatedMinutes: 30}},
			want:    0.8,
		},
		{
			name:    "overloaded novice clamps to zero",
			mastery: map[string]float64{},
			skill:   0,
			budget:  30,
			steps:   []types.PathStep{{ConceptKey: "x", PredictedDifficulty: 10, EstimatedMinutes: 60}},
			want:    0,
		},
		{
			name:    "half mastery exact budget",
			mastery: map[string]float64{"x": 0.5},
			skill:   0.5,
			budget:  20,
			steps:   []types.PathStep{{ConceptKey: "x", PredictedDifficulty: 2, EstimatedMinutes: 20}},
			want:    0.6,
		},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			lc := testLearner(uuid.New(), tc.mastery)
			lc.TimeBudgetMinutes = tc.budget
			lc.Vector[ctxSkillLevel] = tc.skill
			path := &types.LearningPath{Steps: tc.steps}

			got := svc.successProbability(lc, path)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("successProbability = %g, want %g", got, tc.want)
			}
		})
	}
}

func TestReadinessSnapshot(t *testing.T) {
	svc, _ := newPlanningFixture(t, &fakeGraph{}, keyScorer(nil))
	lc := testLearner(uuid.New(), map[string]float64{"a1": 0.9, "a2": 0.3})

	snap := svc.readiness(lc, chainPool())
	if snap == nil {
		t.Fatal("readiness returned nil for a non-empty pool")
	}
	if snap.MinMastery != 0 {
		t.Errorf("MinMastery = %g, want 0 for never-seen concepts", snap.MinMastery)
	}
	// a1 is mastered; the other five pool concepts are weak.
	if len(snap.WeakConcepts) != 5 {
		t.Errorf("WeakConcepts = %v, want the five unmastered keys", snap.WeakConcepts)
	}
	for _, key := range snap.WeakConcepts {
		if key == "a1" {
			t.Error("mastered concept listed as weak")
		}
	}
}
