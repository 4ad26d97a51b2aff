package types

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestLearnerContextCloneIsDeep(t *testing.T) {
	orig := &LearnerContext{
		LearnerID:         uuid.New(),
		Mastery:           map[string]float64{"a1": 0.5},
		LastSeen:          map[string]time.Time{"a1": time.Now().UTC()},
		Vector:            make([]float64, ContextDim),
		SchemaVersion:     1,
		TimeBudgetMinutes: 30,
		Version:           7,
	}

	clone := orig.Clone()
	clone.Mastery["a1"] = 0.9
	clone.Mastery["b1"] = 0.1
	clone.LastSeen["b1"] = time.Now().UTC()
	clone.Vector[0] = 1

	if orig.Mastery["a1"] != 0.5 {
		t.Error("clone shares the mastery map")
	}
	if _, ok := orig.Mastery["b1"]; ok {
		t.Error("clone insert leaked into the original")
	}
	if _, ok := orig.LastSeen["b1"]; ok {
		t.Error("clone shares the last-seen map")
	}
	if orig.Vector[0] != 0 {
		t.Error("clone shares the context vector")
	}
	if clone.Version != orig.Version {
		t.Error("clone dropped the version")
	}
}

func TestAvgMastery(t *testing.T) {
	lc := &LearnerContext{Mastery: map[string]float64{}}
	if got := lc.AvgMastery(); got != 0 {
		t.Errorf("AvgMastery of empty map = %g, want 0", got)
	}
	lc.Mastery["a1"] = 0.2
	lc.Mastery["a2"] = 0.8
	if got := lc.AvgMastery(); got != 0.5 {
		t.Errorf("AvgMastery = %g, want 0.5", got)
	}
}
