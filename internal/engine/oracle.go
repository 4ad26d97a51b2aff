package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	errs "github.com/yungbote/pathpilot/internal/pkg/errors"
	"github.com/yungbote/pathpilot/internal/types"
)

// scoreWithTimeout guards a single oracle call with its own deadline and
// normalizes failures into the branch-scoped error taxonomy.
func scoreWithTimeout(ctx context.Context, oracle Oracle, timeout time.Duration, concepts []*types.Concept, lc *types.LearnerContext) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	score, err := oracle.ScorePath(callCtx, concepts, lc)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("score path: %w", errs.ErrOracleTimeout)
		}
		return 0, fmt.Errorf("score path: %w", err)
	}
	return clamp01(score), nil
}

// SimulationWeights tune the local viability model. They can be loaded
// from a yaml snapshot so scoring stays reproducible across deploys.
type SimulationWeights struct {
	MasteryGain   float64 `yaml:"mastery_gain"`
	LoadWeight    float64 `yaml:"load_weight"`
	GainWeight    float64 `yaml:"gain_weight"`
	BalanceWeight float64 `yaml:"balance_weight"`
	LearnRate     float64 `yaml:"learn_rate"`
}

func DefaultSimulationWeights() SimulationWeights {
	return SimulationWeights{
		MasteryGain:   0.5,
		LoadWeight:    0.3,
		GainWeight:    0.5,
		BalanceWeight: 0.2,
		LearnRate:     0.35,
	}
}

// LoadSimulationWeights reads a yaml weight snapshot; missing path keeps
// defaults.
func LoadSimulationWeights(path string) (SimulationWeights, error) {
	w := DefaultSimulationWeights()
	if path == "" {
		return w, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return w, fmt.Errorf("read oracle weights: %w", err)
	}
	if err := yaml.Unmarshal(raw, &w); err != nil {
		return w, fmt.Errorf("parse oracle weights: %w", err)
	}
	return w, nil
}

// SimulationOracle is the default scorer: it projects mastery and
// cognitive load over the candidate sequence and folds both into a single
// viability score. Deterministic given the same weights and inputs, and
// stateless after construction, so one instance serves concurrent
// planning sessions.
type SimulationOracle struct {
	weights SimulationWeights
}

func NewSimulationOracle(weights SimulationWeights) *SimulationOracle {
	return &SimulationOracle{weights: weights}
}

func (o *SimulationOracle) ScorePath(ctx context.Context, concepts []*types.Concept, lc *types.LearnerContext) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(concepts) == 0 {
		return 0, nil
	}

	skill := 0.5
	if len(lc.Vector) > ctxSkillLevel {
		skill = lc.Vector[ctxSkillLevel]
	}
	skillTier := 1 + skill*9 // map 0..1 onto difficulty ordinals 1..10

	projected := make(map[string]float64, len(lc.Mastery))
	for k, v := range lc.Mastery {
		projected[k] = v
	}

	totalGain := 0.0
	load := 0.0
	minutes := 0
	for _, c := range concepts {
		m := projected[c.Key]
		gain := o.weights.LearnRate * (1 - m)
		projected[c.Key] = clamp01(m + gain)
		totalGain += gain

		gap := float64(c.Difficulty) - skillTier
		if gap > 0 {
			load += gap / 10
		}
		minutes += c.EstimatedMinutes
	}
	avgGain := totalGain / float64(len(concepts))
	load = clamp01(load)

	fit := 1.0
	if lc.TimeBudgetMinutes > 0 {
		over := float64(minutes) - float64(lc.TimeBudgetMinutes)
		if over > 0 {
			fit = clamp01(1 - over/float64(lc.TimeBudgetMinutes))
		}
	}

	score := o.weights.GainWeight*avgGain + o.weights.LoadWeight*(1-load) + o.weights.BalanceWeight*fit
	return clamp01(score), nil
}

// HTTPOracle delegates scoring to an external evaluation service.
type HTTPOracle struct {
	url    string
	client *http.Client
}

func NewHTTPOracle(url string, timeout time.Duration) *HTTPOracle {
	return &HTTPOracle{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

type oracleRequest struct {
	ConceptKeys   []string  `json:"concept_keys"`
	ContextVector []float64 `json:"context_vector"`
	AvgMastery    float64   `json:"avg_mastery"`
	TimeBudget    int       `json:"time_budget_minutes"`
}

type oracleResponse struct {
	Score float64 `json:"score"`
}

func (o *HTTPOracle) ScorePath(ctx context.Context, concepts []*types.Concept, lc *types.LearnerContext) (float64, error) {
	keys := make([]string, len(concepts))
	for i, c := range concepts {
		keys[i] = c.Key
	}
	body, err := json.Marshal(oracleRequest{
		ConceptKeys:   keys,
		ContextVector: lc.Vector,
		AvgMastery:    lc.AvgMastery(),
		TimeBudget:    lc.TimeBudgetMinutes,
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, errs.ErrOracleTimeout
		}
		return 0, fmt.Errorf("%w: %v", errs.ErrOracleError, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", errs.ErrOracleError, resp.StatusCode)
	}
	var out oracleResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, fmt.Errorf("%w: decode: %v", errs.ErrOracleError, err)
	}
	if math.IsNaN(out.Score) {
		return 0, fmt.Errorf("%w: NaN score", errs.ErrOracleError)
	}
	return clamp01(out.Score), nil
}
