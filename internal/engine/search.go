package engine

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/types"
)

// Extension strategies, in tie-break rank order (lower wins).
type strategy int

const (
	strategyScaffold strategy = iota
	strategyReview
	strategyChallenge
)

func (s strategy) String() string {
	switch s {
	case strategyScaffold:
		return "SCAFFOLD"
	case strategyReview:
		return "REVIEW"
	case strategyChallenge:
		return "CHALLENGE"
	}
	return "UNKNOWN"
}

func (s strategy) chainMode() types.ChainMode {
	switch s {
	case strategyReview:
		return types.ChainBackward
	case strategyChallenge:
		return types.ChainLateral
	default:
		return types.ChainForward
	}
}

// pathNode is a search-tree element: ephemeral, owned by the frontier of a
// single Plan call and discarded when it returns.
type pathNode struct {
	concept *types.Concept
	strat   strategy
	parent  *pathNode
	depth   int
	score   float64 // oracle score of the path ending here
	minStep float64 // lowest oracle score along the path
}

func (n *pathNode) concepts() []*types.Concept {
	out := make([]*types.Concept, n.depth)
	for cur := n; cur != nil; cur = cur.parent {
		out[cur.depth-1] = cur.concept
	}
	return out
}

func (n *pathNode) contains(key string) bool {
	for cur := n; cur != nil; cur = cur.parent {
		if cur.concept.Key == key {
			return true
		}
	}
	return false
}

// TreeSearchPlanner runs a bounded beam search over candidate concept
// sequences, scored by the evaluation oracle. It holds no locks and reads
// only committed learner state: oracle waits never block writers.
type TreeSearchPlanner struct {
	cfg    SearchConfig
	oracle Oracle
	log    *logger.Logger
	now    func() time.Time
}

func NewTreeSearchPlanner(cfg SearchConfig, oracle Oracle, log *logger.Logger) *TreeSearchPlanner {
	return &TreeSearchPlanner{
		cfg:    cfg,
		oracle: oracle,
		log:    log.With("service", "TreeSearchPlanner"),
		now:    time.Now,
	}
}

// Plan returns the best concept sequence found, or Empty when the search
// cannot produce a viable path (empty frontier, all branches failing, or
// the deadline expiring mid-search). Empty is a fallback signal, never an
// error.
func (p *TreeSearchPlanner) Plan(ctx context.Context, lc *types.LearnerContext, pool []*types.Concept, goal string) types.PlanResult {
	if len(pool) == 0 {
		return types.Empty()
	}

	byKey := make(map[string]*types.Concept, len(pool))
	for _, c := range pool {
		byKey[c.Key] = c
	}
	incomingPrereqs := prereqIndex(pool)

	seeds := p.seedFrontier(lc, pool, incomingPrereqs)
	if len(seeds) == 0 {
		return types.Empty()
	}

	frontier := make([]*pathNode, 0, len(seeds))
	for _, c := range seeds {
		frontier = append(frontier, &pathNode{concept: c, strat: strategyScaffold, depth: 1})
	}
	frontier = p.scoreBatch(ctx, frontier, lc)
	frontier = truncate(frontier, p.cfg.BeamWidth)
	if len(frontier) == 0 {
		return types.Empty()
	}

	for depth := 2; depth <= p.cfg.MaxDepth; depth++ {
		if ctx.Err() != nil {
			p.log.Warn("search deadline exceeded, falling back", "depth", depth)
			return types.Empty()
		}
		var extensions []*pathNode
		for _, node := range frontier {
			extensions = append(extensions, p.extend(node, lc, pool, incomingPrereqs)...)
		}
		if len(extensions) == 0 {
			p.log.Debug("frontier exhausted", "depth", depth)
			return types.Empty()
		}
		extensions = p.scoreBatch(ctx, extensions, lc)
		if len(extensions) == 0 {
			return types.Empty()
		}
		frontier = truncate(extensions, p.cfg.BeamWidth)
	}

	best := frontier[0]
	if best.score < p.cfg.MinViability {
		p.log.Debug("winning path below viability floor", "score", best.score)
		return types.Empty()
	}
	return types.Found(p.buildPath(best, byKey))
}

// seedFrontier picks the learner's current mastery frontier, or — cold
// start — root concepts ranked by centrality.
func (p *TreeSearchPlanner) seedFrontier(lc *types.LearnerContext, pool []*types.Concept, incoming map[string][]string) []*types.Concept {
	var seeds []*types.Concept
	if len(lc.Mastery) == 0 {
		for _, c := range pool {
			if len(incoming[c.Key]) == 0 {
				seeds = append(seeds, c)
			}
		}
		if len(seeds) == 0 {
			seeds = append(seeds, pool...)
		}
		sort.SliceStable(seeds, func(i, j int) bool {
			if seeds[i].Centrality != seeds[j].Centrality {
				return seeds[i].Centrality > seeds[j].Centrality
			}
			return seeds[i].Key < seeds[j].Key
		})
	} else {
		for _, c := range pool {
			if lc.Mastery[c.Key] >= p.cfg.MasteryThreshold {
				continue
			}
			if p.prereqsSatisfied(c, lc, incoming, nil) {
				seeds = append(seeds, c)
			}
		}
		sort.SliceStable(seeds, func(i, j int) bool { return seeds[i].Key < seeds[j].Key })
	}
	if len(seeds) > p.cfg.BeamWidth {
		seeds = seeds[:p.cfg.BeamWidth]
	}
	return seeds
}

// extend generates up to MaxThoughts strategy-tagged extensions for one
// surviving path: REVIEW picks an already-seen concept whose decayed
// mastery fell under the freshness threshold, SCAFFOLD the next concept
// with satisfied prerequisites, CHALLENGE a concept one difficulty tier
// above the current mastery tier.
func (p *TreeSearchPlanner) extend(node *pathNode, lc *types.LearnerContext, pool []*types.Concept, incoming map[string][]string) []*pathNode {
	ordered := make([]*types.Concept, len(pool))
	copy(ordered, pool)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Key < ordered[j].Key })

	var out []*pathNode
	add := func(c *types.Concept, s strategy) {
		if c == nil || len(out) >= p.cfg.MaxThoughts {
			return
		}
		out = append(out, &pathNode{
			concept: c,
			strat:   s,
			parent:  node,
			depth:   node.depth + 1,
			minStep: node.minStep,
		})
	}

	// SCAFFOLD: prerequisites satisfied, counting path members as learned.
	for _, c := range ordered {
		if node.contains(c.Key) || lc.Mastery[c.Key] >= p.cfg.MasteryThreshold {
			continue
		}
		if p.prereqsSatisfied(c, lc, incoming, node) {
			add(c, strategyScaffold)
			break
		}
	}

	// REVIEW: stale mastery due a refresh.
	now := p.now()
	for _, c := range ordered {
		if node.contains(c.Key) {
			continue
		}
		m, seen := lc.Mastery[c.Key]
		if !seen {
			continue
		}
		if p.decayedMastery(m, lc.LastSeen[c.Key], now) < p.cfg.FreshnessThreshold {
			add(c, strategyReview)
			break
		}
	}

	// CHALLENGE: one difficulty tier above what the path has reached.
	tier := p.currentTier(lc, node, ordered)
	for _, c := range ordered {
		if node.contains(c.Key) || lc.Mastery[c.Key] >= p.cfg.MasteryThreshold {
			continue
		}
		if c.Difficulty == tier+1 {
			add(c, strategyChallenge)
			break
		}
	}

	return out
}

func (p *TreeSearchPlanner) prereqsSatisfied(c *types.Concept, lc *types.LearnerContext, incoming map[string][]string, node *pathNode) bool {
	for _, prereq := range incoming[c.Key] {
		if lc.Mastery[prereq] >= p.cfg.MasteryThreshold {
			continue
		}
		if node != nil && node.contains(prereq) {
			continue
		}
		return false
	}
	return true
}

// decayedMastery applies exponential half-life decay by days since the
// concept was last seen, capped at DecayMaxDrop of the stored value.
func (p *TreeSearchPlanner) decayedMastery(mastery float64, lastSeen time.Time, now time.Time) float64 {
	if lastSeen.IsZero() || p.cfg.DecayHalfLifeDays <= 0 {
		return mastery
	}
	days := now.Sub(lastSeen).Hours() / 24
	if days <= 0 {
		return mastery
	}
	decayed := mastery * math.Pow(0.5, days/p.cfg.DecayHalfLifeDays)
	floor := mastery * (1 - p.cfg.DecayMaxDrop)
	if decayed < floor {
		decayed = floor
	}
	return decayed
}

// currentTier is the highest difficulty the learner has mastered or the
// path already teaches.
func (p *TreeSearchPlanner) currentTier(lc *types.LearnerContext, node *pathNode, pool []*types.Concept) int {
	tier := 0
	for _, c := range pool {
		if lc.Mastery[c.Key] >= p.cfg.MasteryThreshold {
			tier = maxInt(tier, c.Difficulty)
		}
	}
	for cur := node; cur != nil; cur = cur.parent {
		tier = maxInt(tier, cur.concept.Difficulty)
	}
	return tier
}

// scoreBatch scores every candidate path in parallel, each call bounded by
// its own timeout. A failed branch scores zero and is dropped, never
// aborting the search.
func (p *TreeSearchPlanner) scoreBatch(ctx context.Context, nodes []*pathNode, lc *types.LearnerContext) []*pathNode {
	errsByIdx := make([]error, len(nodes))
	gr := pool.New().WithMaxGoroutines(maxInt(1, p.cfg.BeamWidth*p.cfg.MaxThoughts))
	for i, node := range nodes {
		i, node := i, node
		gr.Go(func() {
			score, err := scoreWithTimeout(ctx, p.oracle, p.cfg.OracleTimeout, node.concepts(), lc)
			if err != nil {
				errsByIdx[i] = err
				return
			}
			node.score = score
			if node.depth == 1 || score < node.minStep {
				node.minStep = score
			}
		})
	}
	gr.Wait()

	survivors := nodes[:0]
	for i, node := range nodes {
		if errsByIdx[i] != nil {
			p.log.Warn("branch dropped", "concept", node.concept.Key, "error", errsByIdx[i])
			continue
		}
		survivors = append(survivors, node)
	}
	return survivors
}

// truncate keeps the top-b paths: by score, then by higher minimum
// per-step score (a path strong on average but fatal on one step loses),
// then by strategy rank, then by key for stability. Pruned branches are
// never reinserted.
func truncate(nodes []*pathNode, b int) []*pathNode {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].score != nodes[j].score {
			return nodes[i].score > nodes[j].score
		}
		if nodes[i].minStep != nodes[j].minStep {
			return nodes[i].minStep > nodes[j].minStep
		}
		if nodes[i].strat != nodes[j].strat {
			return nodes[i].strat < nodes[j].strat
		}
		return nodes[i].concept.Key < nodes[j].concept.Key
	})
	if len(nodes) > b {
		nodes = nodes[:b]
	}
	return nodes
}

func (p *TreeSearchPlanner) buildPath(leaf *pathNode, byKey map[string]*types.Concept) *types.LearningPath {
	steps := make([]types.PathStep, leaf.depth)
	modeCount := map[types.ChainMode]int{}
	for cur := leaf; cur != nil; cur = cur.parent {
		mode := cur.strat.chainMode()
		steps[cur.depth-1] = types.PathStep{
			ConceptKey:          cur.concept.Key,
			PredictedDifficulty: cur.concept.Difficulty,
			EstimatedMinutes:    cur.concept.EstimatedMinutes,
			ChainMode:           mode,
		}
		modeCount[mode]++
	}
	overall := types.ChainForward
	bestCount := modeCount[types.ChainForward]
	for _, mode := range []types.ChainMode{types.ChainBackward, types.ChainLateral} {
		if modeCount[mode] > bestCount {
			overall, bestCount = mode, modeCount[mode]
		}
	}
	return &types.LearningPath{Steps: steps, ChainMode: overall}
}

// prereqIndex maps each concept key to the keys of its prerequisites,
// following outgoing PREREQUISITE edges (from prerequisite to dependent).
func prereqIndex(pool []*types.Concept) map[string][]string {
	incoming := map[string][]string{}
	inPool := make(map[string]bool, len(pool))
	for _, c := range pool {
		inPool[c.Key] = true
	}
	for _, c := range pool {
		for _, e := range c.Edges {
			if e.Type != types.EdgePrerequisite || !inPool[e.ToKey] {
				continue
			}
			incoming[e.ToKey] = append(incoming[e.ToKey], c.Key)
		}
	}
	return incoming
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
