package types

import "testing"

func TestPlanResultTagging(t *testing.T) {
	if path, ok := Empty().Path(); ok || path != nil {
		t.Error("Empty() should carry no path")
	}
	if !Empty().IsEmpty() {
		t.Error("Empty().IsEmpty() = false")
	}

	p := &LearningPath{Steps: []PathStep{{ConceptKey: "a1", EstimatedMinutes: 10}}}
	res := Found(p)
	if res.IsEmpty() {
		t.Error("Found(p).IsEmpty() = true")
	}
	got, ok := res.Path()
	if !ok || got != p {
		t.Error("Found(p).Path() did not return the path")
	}
}

func TestTotalMinutes(t *testing.T) {
	p := &LearningPath{Steps: []PathStep{
		{ConceptKey: "a1", EstimatedMinutes: 10},
		{ConceptKey: "a2", EstimatedMinutes: 25},
	}}
	if got := p.TotalMinutes(); got != 35 {
		t.Errorf("TotalMinutes = %d, want 35", got)
	}
}
