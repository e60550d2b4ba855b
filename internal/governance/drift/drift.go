// Package drift is the drift detector (C9): a weighted per-feature
// comparison of current structural features against a matched
// template's baseline, yielding a single score in [0, 1].
package drift

import "github.com/preflight/governor/internal/governance"

type weighted struct {
	value  float64
	weight float64
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// Score compares current against baseline and returns a weighted
// average drift in [0, 1]. Each feature contributes a fixed weight
// (element_count 0.15, table_count 0.20, page_count 0.15, text_density
// 0.15, layout_complexity 0.15, column_count 0.10, header/footer 0.10)
// regardless of whether its individual term fires, so adding or
// dropping a feature's applicability never changes the others' relative
// influence.
func Score(baseline, current governance.StructuralFeatures) float64 {
	var terms []weighted

	elemDrift := abs(float64(current.ElementCount-baseline.ElementCount)) / maxF(float64(baseline.ElementCount)*0.2, 1)
	terms = append(terms, weighted{clamp01(elemDrift), 0.15})

	if baseline.TableCount != current.TableCount {
		d := abs(float64(current.TableCount-baseline.TableCount)) / maxF(float64(baseline.TableCount), 1)
		terms = append(terms, weighted{clamp01(d), 0.20})
	} else {
		terms = append(terms, weighted{0, 0.20})
	}

	if baseline.PageCount != current.PageCount {
		d := abs(float64(current.PageCount-baseline.PageCount)) / float64(baseline.PageCount)
		terms = append(terms, weighted{clamp01(d), 0.15})
	} else {
		terms = append(terms, weighted{0, 0.15})
	}

	densityDrift := abs(current.TextDensity-baseline.TextDensity) / maxF(baseline.TextDensity*0.3, 0.1)
	terms = append(terms, weighted{clamp01(densityDrift), 0.15})

	complexityDrift := clamp01(abs(current.LayoutComplexity - baseline.LayoutComplexity))
	terms = append(terms, weighted{complexityDrift, 0.15})

	if baseline.ColumnCount != current.ColumnCount {
		terms = append(terms, weighted{1.0, 0.10})
	} else {
		terms = append(terms, weighted{0, 0.10})
	}

	headerDrift, footerDrift := 0.0, 0.0
	if baseline.HasHeader != current.HasHeader {
		headerDrift = 0.5
	}
	if baseline.HasFooter != current.HasFooter {
		footerDrift = 0.5
	}
	terms = append(terms, weighted{(headerDrift + footerDrift) / 2, 0.10})

	var totalWeight, weightedSum float64
	for _, term := range terms {
		totalWeight += term.weight
		weightedSum += term.value * term.weight
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp01(weightedSum / totalWeight)
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// MetricDelta reports one feature's baseline/current/delta for the
// debug breakdown endpoint.
type MetricDelta struct {
	Baseline float64 `json:"baseline"`
	Current  float64 `json:"current"`
	Delta    float64 `json:"delta"`
	Match    *bool   `json:"match,omitempty"`
}

// Details returns a per-feature breakdown mirroring Score's inputs, for
// the admin debug endpoint rather than the evaluate response itself.
func Details(baseline, current governance.StructuralFeatures) map[string]MetricDelta {
	columnsMatch := baseline.ColumnCount == current.ColumnCount
	return map[string]MetricDelta{
		"element_count":     {Baseline: float64(baseline.ElementCount), Current: float64(current.ElementCount), Delta: float64(current.ElementCount - baseline.ElementCount)},
		"table_count":       {Baseline: float64(baseline.TableCount), Current: float64(current.TableCount), Delta: float64(current.TableCount - baseline.TableCount)},
		"page_count":        {Baseline: float64(baseline.PageCount), Current: float64(current.PageCount), Delta: float64(current.PageCount - baseline.PageCount)},
		"text_density":      {Baseline: baseline.TextDensity, Current: current.TextDensity, Delta: current.TextDensity - baseline.TextDensity},
		"layout_complexity": {Baseline: baseline.LayoutComplexity, Current: current.LayoutComplexity, Delta: current.LayoutComplexity - baseline.LayoutComplexity},
		"column_count":      {Baseline: float64(baseline.ColumnCount), Current: float64(current.ColumnCount), Match: &columnsMatch},
	}
}
