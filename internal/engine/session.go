package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/types"
)

type sessionState string

const (
	stateLoading   sessionState = "LOADING"
	stateSearching sessionState = "SEARCHING"
	stateFallback  sessionState = "FALLBACK"
	stateScoring   sessionState = "SCORING"
	stateDone      sessionState = "DONE"
)

// maxSessionTransitions bounds the state machine loop; the longest legal
// run is LOADING -> SEARCHING -> FALLBACK -> SCORING -> DONE.
const maxSessionTransitions = 8

// PlanSource records which planner produced the path.
type PlanSource string

const (
	SourceSearch   PlanSource = "search"
	SourceFallback PlanSource = "fallback"
)

// PlanResponse is returned to the caller; NoContent set means even the
// fallback had nothing left to teach.
type PlanResponse struct {
	LearnerID uuid.UUID                `json:"learner_id"`
	Path      *types.LearningPath      `json:"path,omitempty"`
	Readiness *types.ReadinessSnapshot `json:"readiness,omitempty"`
	Source    PlanSource               `json:"source,omitempty"`
	NoContent bool                     `json:"no_content,omitempty"`
}

// PlanningService orchestrates planning requests. Each request runs as its
// own session value stepping through an explicit state machine; planning
// reads only committed state and takes no locks, so oracle calls never
// block feedback writers.
type PlanningService struct {
	cfg       Config
	graph     GraphView
	states    StateStore
	planner   *TreeSearchPlanner
	bandit    *BanditEngine
	publisher Publisher // optional
	log       *logger.Logger
	tracer    trace.Tracer
}

func NewPlanningService(cfg Config, graph GraphView, states StateStore, planner *TreeSearchPlanner, bandit *BanditEngine, publisher Publisher, log *logger.Logger) *PlanningService {
	return &PlanningService{
		cfg:       cfg,
		graph:     graph,
		states:    states,
		planner:   planner,
		bandit:    bandit,
		publisher: publisher,
		log:       log.With("service", "PlanningService"),
		tracer:    otel.Tracer("pathpilot/engine"),
	}
}

// Plan produces the next learning path for a learner. An unknown learner
// surfaces ErrNotFound; everything else degrades to the fallback or an
// explicit no-content response instead of failing.
func (s *PlanningService) Plan(ctx context.Context, learnerID uuid.UUID, goal string) (*PlanResponse, error) {
	ctx, span := s.tracer.Start(ctx, "planning_session",
		trace.WithAttributes(attribute.String("learner_id", learnerID.String())))
	defer span.End()

	sess := &planningSession{svc: s, learnerID: learnerID, goal: goal, state: stateLoading}
	for i := 0; i < maxSessionTransitions; i++ {
		done, err := sess.step(ctx)
		if err != nil {
			return nil, err
		}
		if done {
			span.SetAttributes(
				attribute.String("plan.source", string(sess.source)),
				attribute.Bool("plan.no_content", sess.noContent),
			)
			return sess.response(), nil
		}
	}
	return nil, fmt.Errorf("planning session for %s did not terminate", learnerID)
}

type planningSession struct {
	svc       *PlanningService
	learnerID uuid.UUID
	goal      string

	state     sessionState
	lc        *types.LearnerContext
	pool      []*types.Concept
	path      *types.LearningPath
	source    PlanSource
	noContent bool
}

// step advances the machine one transition; returns done=true from DONE.
func (s *planningSession) step(ctx context.Context) (bool, error) {
	switch s.state {
	case stateLoading:
		return false, s.load(ctx)
	case stateSearching:
		return false, s.search(ctx)
	case stateFallback:
		return false, s.fallback(ctx)
	case stateScoring:
		s.path.SuccessProbability = s.svc.successProbability(s.lc, s.path)
		s.state = stateDone
		return false, nil
	case stateDone:
		s.publish(ctx)
		return true, nil
	}
	return false, fmt.Errorf("unknown session state %q", s.state)
}

func (s *planningSession) load(ctx context.Context) error {
	lc, err := s.svc.states.Load(ctx, s.learnerID)
	if err != nil {
		return fmt.Errorf("load learner %s: %w", s.learnerID, err)
	}
	s.lc = lc
	s.state = stateSearching
	return nil
}

func (s *planningSession) search(ctx context.Context) error {
	pool, err := s.svc.graph.GetCandidates(ctx, s.lc.Mastery, s.goal, s.svc.cfg.Session.CandidateLimit)
	if err != nil {
		return fmt.Errorf("get candidates: %w", err)
	}
	s.pool = pool

	searchCtx, cancel := context.WithTimeout(ctx, s.svc.cfg.Session.PlanTimeout)
	defer cancel()
	result := s.svc.planner.Plan(searchCtx, s.lc, pool, s.goal)
	if path, found := result.Path(); found {
		s.path = path
		s.source = SourceSearch
		s.state = stateScoring
		return nil
	}
	s.state = stateFallback
	return nil
}

// fallback selects one concept at a time with the bandit until the time
// budget's fill ratio is reached or candidates run out. A greedy loop with
// a hard iteration cap, not a full path search.
func (s *planningSession) fallback(ctx context.Context) error {
	budget := float64(s.lc.TimeBudgetMinutes) * s.svc.cfg.Session.FillRatio
	remaining := make(map[string]*types.Concept)
	for _, c := range s.pool {
		if s.lc.Mastery[c.Key] >= s.svc.cfg.Search.MasteryThreshold {
			continue
		}
		remaining[c.Key] = c
	}

	path := &types.LearningPath{ChainMode: types.ChainForward}
	spent := 0.0
	for i := 0; i < s.svc.cfg.Session.MaxFallbackSteps; i++ {
		if len(remaining) == 0 || spent >= budget {
			break
		}
		keys := make([]string, 0, len(remaining))
		for k := range remaining {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		key, err := s.svc.bandit.Select(ctx, keys, s.lc.Vector)
		if err != nil {
			return fmt.Errorf("bandit select: %w", err)
		}
		c := remaining[key]
		path.Steps = append(path.Steps, types.PathStep{
			ConceptKey:          c.Key,
			PredictedDifficulty: c.Difficulty,
			EstimatedMinutes:    c.EstimatedMinutes,
			ChainMode:           types.ChainForward,
		})
		spent += float64(c.EstimatedMinutes)
		delete(remaining, key)
	}

	if len(path.Steps) == 0 {
		s.noContent = true
		s.state = stateDone
		return nil
	}
	s.path = path
	s.source = SourceFallback
	s.state = stateScoring
	return nil
}

func (s *planningSession) publish(ctx context.Context) {
	if s.svc.publisher == nil || s.path == nil {
		return
	}
	if err := s.svc.publisher.PublishPlanReady(ctx, s.learnerID, s.path); err != nil {
		s.svc.log.Warn("plan_ready publish failed", "learner_id", s.learnerID, "error", err)
	}
}

func (s *planningSession) response() *PlanResponse {
	return &PlanResponse{
		LearnerID: s.learnerID,
		Path:      s.path,
		Readiness: s.svc.readiness(s.lc, s.pool),
		Source:    s.source,
		NoContent: s.noContent,
	}
}

// successProbability = clamp01(0.4*avg_mastery + 0.4*time_fit -
// 0.2*difficulty_penalty).
func (s *PlanningService) successProbability(lc *types.LearnerContext, path *types.LearningPath) float64 {
	avg := lc.AvgMastery()

	timeFit := 1.0
	if lc.TimeBudgetMinutes > 0 {
		diff := float64(path.TotalMinutes()) - float64(lc.TimeBudgetMinutes)
		if diff < 0 {
			diff = -diff
		}
		timeFit = clamp01(1 - diff/float64(lc.TimeBudgetMinutes))
	}

	skill := 0.5
	if len(lc.Vector) > ctxSkillLevel {
		skill = lc.Vector[ctxSkillLevel]
	}
	skillTier := 1 + skill*9
	penalty := 0.0
	if len(path.Steps) > 0 {
		for _, step := range path.Steps {
			gap := float64(step.PredictedDifficulty) - skillTier
			if gap > 0 {
				penalty += gap / 10
			}
		}
		penalty /= float64(len(path.Steps))
	}

	return clamp01(0.4*avg + 0.4*timeFit - 0.2*penalty)
}

func (s *PlanningService) readiness(lc *types.LearnerContext, pool []*types.Concept) *types.ReadinessSnapshot {
	if lc == nil || len(pool) == 0 {
		return nil
	}
	sum := 0.0
	min := 1.0
	var weak []string
	for _, c := range pool {
		m := lc.Mastery[c.Key]
		sum += m
		if m < min {
			min = m
		}
		if m < s.cfg.Search.MasteryThreshold {
			weak = append(weak, c.Key)
		}
	}
	sort.Strings(weak)
	return &types.ReadinessSnapshot{
		AvgMastery:   sum / float64(len(pool)),
		MinMastery:   min,
		WeakConcepts: weak,
		ComputedAt:   time.Now().UTC().Format(time.RFC3339),
	}
}
