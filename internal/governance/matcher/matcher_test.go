package matcher

import (
	"context"
	"math"
	"testing"

	"github.com/preflight/governor/internal/governance"
)

func TestCosineSimilarityIdentical(t *testing.T) {
	v := FeatureVector(governance.StructuralFeatures{ElementCount: 100, PageCount: 3, TextDensity: 0.4, LayoutComplexity: 0.3})
	if got := CosineSimilarity(v, v); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("CosineSimilarity(v, v) = %v, want 1.0", got)
	}
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	var zero [10]float64
	v := FeatureVector(governance.StructuralFeatures{ElementCount: 100})
	if got := CosineSimilarity(zero, v); got != 0 {
		t.Errorf("CosineSimilarity(zero, v) = %v, want 0", got)
	}
}

func TestFeatureVectorClampsCounts(t *testing.T) {
	v := FeatureVector(governance.StructuralFeatures{ElementCount: 10000, TableCount: 500, PageCount: 10 * maxPages})
	if v[0] != 1.0 || v[1] != 1.0 || v[4] != 1.0 {
		t.Errorf("expected over-cap counts to clamp to 1.0, got %v", v)
	}
}

type fakeLookup struct {
	exact  *governance.Template
	active []*governance.Template
}

func (f *fakeLookup) FindByFingerprint(ctx context.Context, fingerprint string) (*governance.Template, error) {
	return f.exact, nil
}

func (f *fakeLookup) ActiveTemplate(ctx context.Context, templateID string) (*governance.Template, error) {
	for _, t := range f.active {
		if t.ID == templateID {
			return t, nil
		}
	}
	return nil, nil
}

func (f *fakeLookup) ListActive(ctx context.Context) ([]*governance.Template, error) {
	return f.active, nil
}

func TestMatchExactFingerprintShortCircuits(t *testing.T) {
	exact := &governance.Template{ID: "t1", Fingerprint: "abc"}
	lookup := &fakeLookup{exact: exact}
	got, sim, err := Match(context.Background(), lookup, "abc", governance.StructuralFeatures{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != exact || sim != 1.0 {
		t.Errorf("expected exact match with similarity 1.0, got %v sim=%v", got, sim)
	}
}

func TestMatchFallsBackToFullScanBelowThresholdReturnsNil(t *testing.T) {
	baseline := governance.Template{ID: "t1", StructuralFeatures: governance.StructuralFeatures{ElementCount: 900, TableCount: 40, PageCount: 400}}
	lookup := &fakeLookup{active: []*governance.Template{&baseline}}
	got, _, err := Match(context.Background(), lookup, "nomatch", governance.StructuralFeatures{ElementCount: 1, TextBlockCount: 200, ImageCount: 100, PageCount: 1, HasHeader: true, HasFooter: true}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected no match below threshold, got %v", got)
	}
}
