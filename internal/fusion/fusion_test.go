package fusion_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"vidsurvey/internal/fusion"
)

func f(v float64) *float64 { return &v }

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func repeatPtr(v float64, n int) []*float64 {
	out := make([]*float64, n)
	for i := range out {
		out[i] = f(v)
	}
	return out
}

func TestAlphaBoundaries(t *testing.T) {
	cases := []struct {
		d    float64
		want float64
	}{
		{0, 0},
		{0.0999999, 0},
		{0.1, 0.3},
		{0.2999999, 0.3},
		{0.3, 0.5},
		{1, 0.5},
	}
	for _, tc := range cases {
		if got := fusion.Alpha(tc.d); got != tc.want {
			t.Fatalf("Alpha(%v) = %v, want %v", tc.d, got, tc.want)
		}
	}
}

func TestFuseBoundaryDeviationsThroughFuse(t *testing.T) {
	res := fusion.Fuse(fusion.Input{
		Subjective: []float64{0.1, 0.3, 0.0999},
		Objective:  []*float64{f(0), f(0), f(0)},
		Agreement:  f(0.1),
	})
	if diff := cmp.Diff([]float64{0.3, 0.5, 0}, res.Alphas); diff != "" {
		t.Fatalf("alpha mismatch (-want +got):\n%s", diff)
	}
}

func TestNoAdjustmentKeepsSubjective(t *testing.T) {
	subjective := []float64{0, 1.0 / 3, 2.0 / 3, 1}
	objective := []*float64{f(1), f(0), nil, f(0.5)}
	for _, agreement := range []*float64{nil, f(0.6), f(0.95)} {
		res := fusion.Fuse(fusion.Input{Subjective: subjective, Objective: objective, Agreement: agreement})
		if res.NeedsAdjustment {
			t.Fatalf("agreement %v should not trigger adjustment", agreement)
		}
		if diff := cmp.Diff(subjective, res.Adjusted); diff != "" {
			t.Fatalf("adjusted should equal subjective (-want +got):\n%s", diff)
		}
	}
}

func TestScenarioNoDisagreement(t *testing.T) {
	res := fusion.Fuse(fusion.Input{
		Subjective: repeat(1.0/3, 7),
		Objective:  repeatPtr(1.0/3, 7),
		Agreement:  f(0.9),
	})
	if res.NeedsAdjustment {
		t.Fatal("expected no adjustment")
	}
	if res.AdjustedTotal != 7 {
		t.Fatalf("expected adjusted total 7, got %v", res.AdjustedTotal)
	}
}

func TestScenarioLowAgreementHalfWeight(t *testing.T) {
	res := fusion.Fuse(fusion.Input{
		Subjective: repeat(0, 7),
		Objective:  repeatPtr(1, 7),
		Agreement:  f(0.2),
	})
	if !res.NeedsAdjustment {
		t.Fatal("expected adjustment")
	}
	if diff := cmp.Diff(repeat(0.5, 7), res.Adjusted); diff != "" {
		t.Fatalf("adjusted mismatch (-want +got):\n%s", diff)
	}
	if res.AdjustedTotal != 10.5 {
		t.Fatalf("expected adjusted total 10.5, got %v", res.AdjustedTotal)
	}
	if res.SubjectiveTotal != 0 || res.ObjectiveTotal != 21 {
		t.Fatalf("unexpected totals: subjective=%v objective=%v", res.SubjectiveTotal, res.ObjectiveTotal)
	}
	if res.Version != fusion.AlgorithmVersion {
		t.Fatalf("unexpected version %q", res.Version)
	}
}

func TestMissingObjectiveCountsAsZero(t *testing.T) {
	res := fusion.Fuse(fusion.Input{
		Subjective: []float64{1, 1},
		Objective:  []*float64{nil},
		Agreement:  f(-0.5),
	})
	if diff := cmp.Diff([]float64{0.5, 0.5}, res.Adjusted); diff != "" {
		t.Fatalf("adjusted mismatch (-want +got):\n%s", diff)
	}
}

func TestFuseIsDeterministic(t *testing.T) {
	in := fusion.Input{
		Subjective: []float64{0.2, 0.9, 0.45, 0.05},
		Objective:  []*float64{f(0.7), f(0.1), nil, f(0.12)},
		Agreement:  f(0.3),
	}
	first := fusion.Fuse(in)
	second := fusion.Fuse(in)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("fusion not deterministic:\n%s", diff)
	}
}
