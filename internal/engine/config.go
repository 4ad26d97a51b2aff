package engine

import (
	"time"

	"github.com/yungbote/pathpilot/internal/logger"
	"github.com/yungbote/pathpilot/internal/utils"
)

// Config is read once at startup and passed immutably into each component,
// so a planning run is reproducible given the same inputs and snapshot.
type Config struct {
	Search   SearchConfig
	Bandit   BanditConfig
	Feedback FeedbackConfig
	Session  SessionConfig
}

type SearchConfig struct {
	BeamWidth   int
	MaxDepth    int
	MaxThoughts int
	// MinViability rejects a winning path whose oracle score is too low to
	// be worth following over the bandit fallback.
	MinViability  float64
	OracleTimeout time.Duration
	// MasteryThreshold is the mastery level at which a concept counts as
	// known for prerequisite checks.
	MasteryThreshold float64
	// FreshnessThreshold: decayed mastery below this marks a seen concept
	// as due for REVIEW.
	FreshnessThreshold float64
	DecayHalfLifeDays  float64
	DecayMaxDrop       float64
}

type BanditConfig struct {
	Dim   int
	Alpha float64 // exploration coefficient
}

type FeedbackConfig struct {
	ScoreWeight     float64
	CompletedWeight float64
	MasteryGamma    float64
	LeaseTTL        time.Duration
	LeaseRetries    int
	LeaseBackoff    time.Duration
	CASRetries      int
}

type SessionConfig struct {
	CandidateLimit   int
	FillRatio        float64
	MaxFallbackSteps int
	PlanTimeout      time.Duration
}

func LoadConfig(log *logger.Logger) Config {
	return Config{
		Search: SearchConfig{
			BeamWidth:          utils.GetEnvAsInt("PLAN_BEAM_WIDTH", 3, log),
			MaxDepth:           utils.GetEnvAsInt("PLAN_MAX_DEPTH", 3, log),
			MaxThoughts:        utils.GetEnvAsInt("PLAN_MAX_THOUGHTS", 3, log),
			MinViability:       utils.GetEnvAsFloat("PLAN_MIN_VIABILITY", 0.3, 0, 1, log),
			OracleTimeout:      time.Duration(utils.GetEnvAsInt("PLAN_ORACLE_TIMEOUT_MS", 2000, log)) * time.Millisecond,
			MasteryThreshold:   utils.GetEnvAsFloat("PLAN_MASTERY_THRESHOLD", 0.6, 0, 1, log),
			FreshnessThreshold: utils.GetEnvAsFloat("PLAN_FRESHNESS_THRESHOLD", 0.5, 0, 1, log),
			DecayHalfLifeDays:  utils.GetEnvAsFloat("PLAN_DECAY_HALF_LIFE_DAYS", 30, 0.1, 3650, log),
			DecayMaxDrop:       utils.GetEnvAsFloat("PLAN_DECAY_MAX_DROP", 0.7, 0, 1, log),
		},
		Bandit: BanditConfig{
			Dim:   utils.GetEnvAsInt("BANDIT_CONTEXT_DIM", 10, log),
			Alpha: utils.GetEnvAsFloat("BANDIT_ALPHA", 0.5, 0, 10, log),
		},
		Feedback: FeedbackConfig{
			ScoreWeight:     utils.GetEnvAsFloat("FEEDBACK_SCORE_WEIGHT", 0.6, 0, 1, log),
			CompletedWeight: utils.GetEnvAsFloat("FEEDBACK_COMPLETED_WEIGHT", 0.4, 0, 1, log),
			MasteryGamma:    utils.GetEnvAsFloat("FEEDBACK_MASTERY_GAMMA", 0.6, 0, 1, log),
			LeaseTTL:        time.Duration(utils.GetEnvAsInt("FEEDBACK_LEASE_TTL_MS", 5000, log)) * time.Millisecond,
			LeaseRetries:    utils.GetEnvAsInt("FEEDBACK_LEASE_RETRIES", 5, log),
			LeaseBackoff:    time.Duration(utils.GetEnvAsInt("FEEDBACK_LEASE_BACKOFF_MS", 100, log)) * time.Millisecond,
			CASRetries:      utils.GetEnvAsInt("FEEDBACK_CAS_RETRIES", 3, log),
		},
		Session: SessionConfig{
			CandidateLimit:   utils.GetEnvAsInt("PLAN_CANDIDATE_LIMIT", 100, log),
			FillRatio:        utils.GetEnvAsFloat("PLAN_FILL_RATIO", 0.8, 0, 1, log),
			MaxFallbackSteps: utils.GetEnvAsInt("PLAN_MAX_FALLBACK_STEPS", 10, log),
			PlanTimeout:      time.Duration(utils.GetEnvAsInt("PLAN_TIMEOUT_MS", 10000, log)) * time.Millisecond,
		},
	}
}
