package engine

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/pathpilot/internal/types"
)

// chainPool builds two parallel prerequisite chains a1->a2->a3 and
// b1->b2->b3, all difficulty 1.
func chainPool() []*types.Concept {
	mk := func(key string, centrality float64, next string) *types.Concept {
		c := &types.Concept{Key: key, Name: key, Difficulty: 1, EstimatedMinutes: 10, Centrality: centrality}
		if next != "" {
			c.Edges = []types.ConceptEdge{{FromKey: key, ToKey: next, Type: types.EdgePrerequisite, Strength: 1}}
		}
		return c
	}
	return []*types.Concept{
		mk("a1", 0.9, "a2"),
		mk("a2", 0.4, "a3"),
		mk("a3", 0.4, ""),
		mk("b1", 0.5, "b2"),
		mk("b2", 0.4, "b3"),
		mk("b3", 0.4, ""),
	}
}

// keyScorer scores a path as the mean of per-key base scores.
func keyScorer(base map[string]float64) *stubOracle {
	return &stubOracle{score: func(keys []string, _ *types.LearnerContext) (float64, error) {
		var sum float64
		for _, k := range keys {
			sum += base[k]
		}
		return sum / float64(len(keys)), nil
	}}
}

func TestPlanFollowsDominantChain(t *testing.T) {
	oracle := keyScorer(map[string]float64{"a1": 0.9, "a2": 0.9, "a3": 0.9, "b1": 0.4, "b2": 0.4, "b3": 0.4})
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))
	lc := testLearner(uuid.New(), nil)

	res := p.Plan(context.Background(), lc, chainPool(), "")
	path, ok := res.Path()
	if !ok {
		t.Fatal("Plan returned Empty, want the a-chain")
	}
	want := []string{"a1", "a2", "a3"}
	if len(path.Steps) != len(want) {
		t.Fatalf("got %d steps, want %d", len(path.Steps), len(want))
	}
	for i, step := range path.Steps {
		if step.ConceptKey != want[i] {
			t.Errorf("step %d = %q, want %q", i, step.ConceptKey, want[i])
		}
	}
	if path.ChainMode != types.ChainForward {
		t.Errorf("ChainMode = %q, want %q", path.ChainMode, types.ChainForward)
	}
}

func TestPlanEmptyWhenNoSeeds(t *testing.T) {
	oracle := keyScorer(map[string]float64{})
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))

	// Everything mastered: nothing left to seed the frontier with.
	lc := testLearner(uuid.New(), map[string]float64{
		"a1": 0.9, "a2": 0.9, "a3": 0.9, "b1": 0.9, "b2": 0.9, "b3": 0.9,
	})
	if res := p.Plan(context.Background(), lc, chainPool(), ""); !res.IsEmpty() {
		t.Error("Plan with a fully mastered pool should return Empty")
	}

	if res := p.Plan(context.Background(), lc, nil, ""); !res.IsEmpty() {
		t.Error("Plan with an empty pool should return Empty")
	}
}

func TestPlanEmptyWhenFrontierExhausted(t *testing.T) {
	// A single isolated concept seeds depth 1 but yields no extensions.
	pool := []*types.Concept{{Key: "solo", Name: "solo", Difficulty: 1, EstimatedMinutes: 5}}
	oracle := keyScorer(map[string]float64{"solo": 0.9})
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))

	if res := p.Plan(context.Background(), testLearner(uuid.New(), nil), pool, ""); !res.IsEmpty() {
		t.Error("Plan should return Empty when no path can reach max depth")
	}
}

func TestPlanEmptyBelowViabilityFloor(t *testing.T) {
	oracle := keyScorer(map[string]float64{"a1": 0.1, "a2": 0.1, "a3": 0.1, "b1": 0.1, "b2": 0.1, "b3": 0.1})
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))

	if res := p.Plan(context.Background(), testLearner(uuid.New(), nil), chainPool(), ""); !res.IsEmpty() {
		t.Error("Plan should reject a winning path below the viability floor")
	}
}

func TestPlanDropsFailingBranchesNotSearch(t *testing.T) {
	oracle := &stubOracle{score: func(keys []string, _ *types.LearnerContext) (float64, error) {
		for _, k := range keys {
			if strings.HasPrefix(k, "b") {
				return 0, fmt.Errorf("oracle backend down for %s", k)
			}
		}
		return 0.8, nil
	}}
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))

	res := p.Plan(context.Background(), testLearner(uuid.New(), nil), chainPool(), "")
	path, ok := res.Path()
	if !ok {
		t.Fatal("one failing branch aborted the whole search")
	}
	for _, step := range path.Steps {
		if strings.HasPrefix(step.ConceptKey, "b") {
			t.Errorf("failed branch %q survived into the result", step.ConceptKey)
		}
	}
}

func TestPlanEmptyWhenAllBranchesFail(t *testing.T) {
	oracle := &stubOracle{score: func([]string, *types.LearnerContext) (float64, error) {
		return 0, fmt.Errorf("oracle backend down")
	}}
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))

	if res := p.Plan(context.Background(), testLearner(uuid.New(), nil), chainPool(), ""); !res.IsEmpty() {
		t.Error("Plan should return Empty when every branch fails to score")
	}
}

func TestPlanEmptyOnDeadline(t *testing.T) {
	oracle := keyScorer(map[string]float64{"a1": 0.9, "a2": 0.9, "a3": 0.9})
	p := NewTreeSearchPlanner(testConfig().Search, oracle, testLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if res := p.Plan(ctx, testLearner(uuid.New(), nil), chainPool(), ""); !res.IsEmpty() {
		t.Error("Plan past its deadline should return Empty, not a partial path")
	}
}

func TestSeedFrontierWarmStart(t *testing.T) {
	p := NewTreeSearchPlanner(testConfig().Search, keyScorer(nil), testLogger(t))
	pool := chainPool()
	incoming := prereqIndex(pool)

	// a1 mastered: its dependent a2 unlocks, b1 stays a root candidate.
	lc := testLearner(uuid.New(), map[string]float64{"a1": 0.9})
	seeds := p.seedFrontier(lc, pool, incoming)

	want := []string{"a2", "b1"}
	if len(seeds) != len(want) {
		t.Fatalf("got %d seeds, want %d", len(seeds), len(want))
	}
	for i, c := range seeds {
		if c.Key != want[i] {
			t.Errorf("seed %d = %q, want %q", i, c.Key, want[i])
		}
	}
}

func TestSeedFrontierColdStartRanksByCentrality(t *testing.T) {
	p := NewTreeSearchPlanner(testConfig().Search, keyScorer(nil), testLogger(t))
	pool := chainPool()

	seeds := p.seedFrontier(testLearner(uuid.New(), nil), pool, prereqIndex(pool))
	if len(seeds) != 2 {
		t.Fatalf("got %d seeds, want the two roots", len(seeds))
	}
	if seeds[0].Key != "a1" || seeds[1].Key != "b1" {
		t.Errorf("seeds = [%q %q], want [a1 b1] by centrality", seeds[0].Key, seeds[1].Key)
	}
}

func TestExtendProducesAllThreeStrategies(t *testing.T) {
	p := NewTreeSearchPlanner(testConfig().Search, keyScorer(nil), testLogger(t))
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return now }

	pool := []*types.Concept{
		{Key: "current", Difficulty: 1, EstimatedMinutes: 10},
		{Key: "next", Difficulty: 1, EstimatedMinutes: 10},
		{Key: "stale", Difficulty: 2, EstimatedMinutes: 10},
		{Key: "harder", Difficulty: 3, EstimatedMinutes: 10},
	}
	pool[0].Edges = []types.ConceptEdge{{FromKey: "current", ToKey: "next", Type: types.EdgePrerequisite, Strength: 1}}
	// Gate "harder" behind "next" so SCAFFOLD cannot reach it yet.
	pool[1].Edges = []types.ConceptEdge{{FromKey: "next", ToKey: "harder", Type: types.EdgePrerequisite, Strength: 1}}

	lc := testLearner(uuid.New(), map[string]float64{"stale": 0.7})
	lc.LastSeen["stale"] = now.AddDate(0, -3, 0)

	node := &pathNode{concept: pool[0], depth: 1}
	exts := p.extend(node, lc, pool, prereqIndex(pool))

	got := map[strategy]string{}
	for _, e := range exts {
		got[e.strat] = e.concept.Key
	}
	if got[strategyScaffold] != "next" {
		t.Errorf("SCAFFOLD = %q, want %q", got[strategyScaffold], "next")
	}
	if got[strategyReview] != "stale" {
		t.Errorf("REVIEW = %q, want %q", got[strategyReview], "stale")
	}
	if got[strategyChallenge] != "harder" {
		t.Errorf("CHALLENGE = %q, want %q", got[strategyChallenge], "harder")
	}
}

func TestDecayedMastery(t *testing.T) {
	p := NewTreeSearchPlanner(testConfig().Search, keyScorer(nil), testLogger(t))
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		mastery  float64
		lastSeen time.Time
		want     float64
	}{
		{"never seen keeps full mastery", 0.8, time.Time{}, 0.8},
		{"one half-life halves it", 0.8, now.AddDate(0, 0, -30), 0.4},
		{"floor caps the drop", 0.8, now.AddDate(0, 0, -365), 0.8 * 0.3},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got := p.decayedMastery(tc.mastery, tc.lastSeen, now)
			if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
				t.Fatalf("decayedMastery = %g, want %g", got, tc.want)
			}
		})
	}
}

func TestTruncateOrdering(t *testing.T) {
	c := func(key string) *types.Concept { return &types.Concept{Key: key} }
	nodes := []*pathNode{
		{concept: c("low"), score: 0.2, minStep: 0.2},
		{concept: c("weakstep"), score: 0.8, minStep: 0.1},
		{concept: c("strong"), score: 0.8, minStep: 0.8},
		{concept: c("tie-b"), score: 0.5, minStep: 0.5, strat: strategyChallenge},
		{concept: c("tie-a"), score: 0.5, minStep: 0.5, strat: strategyScaffold},
	}

	got := truncate(nodes, 3)
	if len(got) != 3 {
		t.Fatalf("got %d nodes, want 3", len(got))
	}
	// Equal scores: the path with the stronger weakest step wins; next
	// tie level falls to strategy rank.
	want := []string{"strong", "weakstep", "tie-a"}
	for i, n := range got {
		if n.concept.Key != want[i] {
			t.Errorf("rank %d = %q, want %q", i, n.concept.Key, want[i])
		}
	}
}
