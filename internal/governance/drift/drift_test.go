package drift

import (
	"math"
	"testing"

	"github.com/preflight/governor/internal/governance"
)

func TestScoreIdenticalFeaturesIsZero(t *testing.T) {
	f := governance.StructuralFeatures{
		ElementCount: 100, TableCount: 2, PageCount: 3,
		TextDensity: 0.4, LayoutComplexity: 0.3, ColumnCount: 2,
		HasHeader: true, HasFooter: true,
	}
	if got := Score(f, f); got != 0 {
		t.Errorf("Score(f, f) = %v, want 0", got)
	}
}

func TestScoreHighDriftScenarioReachesThreshold(t *testing.T) {
	baseline := governance.StructuralFeatures{
		ElementCount: 100, TableCount: 2, PageCount: 1,
		TextDensity: 0.4, LayoutComplexity: 0.3, ColumnCount: 2,
		HasHeader: true, HasFooter: true,
	}
	current := baseline
	current.PageCount = 3
	current.ColumnCount = 4
	current.HasHeader = false
	current.HasFooter = false

	// page_count 1→3 (1.0·0.15) + column_count (1.0·0.10) + both
	// header/footer flags flipped (0.5·0.10), over a total weight of 1.0.
	got := Score(baseline, current)
	if math.Abs(got-0.30) > 1e-9 {
		t.Errorf("Score() = %v, want 0.30 for the high-drift scenario", got)
	}
}

func TestScoreClampedToUnitInterval(t *testing.T) {
	baseline := governance.StructuralFeatures{ElementCount: 10, TableCount: 1, PageCount: 1}
	current := governance.StructuralFeatures{ElementCount: 100000, TableCount: 500, PageCount: 900}
	got := Score(baseline, current)
	if got < 0 || got > 1 {
		t.Errorf("Score() = %v, want within [0, 1]", got)
	}
	if math.IsNaN(got) {
		t.Fatal("Score() returned NaN")
	}
}

func TestScoreZeroBaselinePageCountAvoidsDivideByZero(t *testing.T) {
	// page_count baseline is guaranteed >= 1 by validation, but the
	// formula divides by it directly when it differs from current, so a
	// pathological zero baseline must not produce NaN/Inf.
	baseline := governance.StructuralFeatures{PageCount: 0}
	current := governance.StructuralFeatures{PageCount: 1}
	got := Score(baseline, current)
	if math.IsNaN(got) || math.IsInf(got, 0) {
		t.Fatalf("Score() = %v with zero baseline page_count, want a finite value", got)
	}
}
