package fusion

import "math"

const (
	// AgreementThreshold is the agreement below which scores are adjusted.
	AgreementThreshold = 0.6
	// ItemScale denormalizes per-item scores back onto the 0..3 option range.
	ItemScale = 3.0
	// AlgorithmVersion is stored with every analysis record.
	AlgorithmVersion = "v1"
)

// Input holds normalized per-item scores in ordinal order. A nil objective
// entry means no inferred signal for that item.
type Input struct {
	Subjective []float64
	Objective  []*float64
	Agreement  *float64
}

// Result is the outcome of one fusion run.
type Result struct {
	Subjective      []float64
	Objective       []float64
	Adjusted        []float64
	Alphas          []float64
	NeedsAdjustment bool
	SubjectiveTotal float64
	ObjectiveTotal  float64
	AdjustedTotal   float64
	Version         string
}

// Alpha returns the blending weight for a per-item deviation d. The lower
// bounds are closed: 0.1 selects 0.3 and 0.3 selects 0.5.
func Alpha(d float64) float64 {
	switch {
	case d >= 0.3:
		return 0.5
	case d >= 0.1:
		return 0.3
	default:
		return 0
	}
}

// NeedsAdjustment reports whether the agreement statistic calls for blending.
// Missing and non-finite statistics never trigger adjustment.
func NeedsAdjustment(agreement *float64) bool {
	if agreement == nil {
		return false
	}
	a := *agreement
	if math.IsNaN(a) || math.IsInf(a, 0) {
		return false
	}
	return a < AgreementThreshold
}

// Fuse computes adjusted scores and denormalized totals. Objective entries
// beyond len(Subjective) are ignored; missing ones count as 0.
func Fuse(in Input) Result {
	n := len(in.Subjective)
	res := Result{
		Subjective:      make([]float64, n),
		Objective:       make([]float64, n),
		Adjusted:        make([]float64, n),
		Alphas:          make([]float64, n),
		NeedsAdjustment: NeedsAdjustment(in.Agreement),
		Version:         AlgorithmVersion,
	}
	copy(res.Subjective, in.Subjective)
	for i := 0; i < n && i < len(in.Objective); i++ {
		if v := in.Objective[i]; v != nil && !math.IsNaN(*v) && !math.IsInf(*v, 0) {
			res.Objective[i] = *v
		}
	}

	for i := 0; i < n; i++ {
		s := res.Subjective[i]
		if !res.NeedsAdjustment {
			res.Adjusted[i] = s
			continue
		}
		e := res.Objective[i]
		alpha := Alpha(math.Abs(s - e))
		res.Alphas[i] = alpha
		res.Adjusted[i] = (1-alpha)*s + alpha*e
	}

	res.SubjectiveTotal = Total(res.Subjective)
	res.ObjectiveTotal = Total(res.Objective)
	res.AdjustedTotal = Total(res.Adjusted)
	return res
}

// Total denormalizes each score by ItemScale and sums them in order.
func Total(scores []float64) float64 {
	total := 0.0
	for _, s := range scores {
		total += s * ItemScale
	}
	return total
}
