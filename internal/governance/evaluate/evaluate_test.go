package evaluate

import (
	"context"
	"strings"
	"testing"

	"github.com/preflight/governor/internal/governance"
)

type fakeLookup struct {
	exact *governance.Template
}

func (f *fakeLookup) FindByFingerprint(ctx context.Context, fingerprint string) (*governance.Template, error) {
	return f.exact, nil
}

func (f *fakeLookup) ActiveTemplate(ctx context.Context, templateID string) (*governance.Template, error) {
	return nil, nil
}

func (f *fakeLookup) ListActive(ctx context.Context) ([]*governance.Template, error) {
	return nil, nil
}

type fakeProviders struct {
	provider *governance.ExtractorProvider
}

func (f *fakeProviders) ByVendor(ctx context.Context, vendor string) (*governance.ExtractorProvider, error) {
	return f.provider, nil
}

func TestRunNoMatchYieldsNewDecisionAndZeroScores(t *testing.T) {
	req := Request{
		Fingerprint: "unseen",
		Features:    governance.StructuralFeatures{ElementCount: 10, PageCount: 1},
		Extractor:   governance.ExtractorMetadata{Vendor: "nvidia", Confidence: 0.9},
		DocHash:     "hash-1",
	}
	got, err := Run(context.Background(), &fakeLookup{}, &fakeProviders{}, req)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != DecisionNew {
		t.Errorf("Decision = %v, want NEW", got.Decision)
	}
	if got.DriftScore != 0 || got.ReliabilityScore != 0 {
		t.Errorf("expected zero drift/reliability on NEW, got drift=%v reliability=%v", got.DriftScore, got.ReliabilityScore)
	}
	if got.TemplateVersionID != nil {
		t.Error("expected nil template version id on NEW")
	}
	if got.ReplayHash == "" {
		t.Error("expected a non-empty replay hash")
	}
}

func TestRunNewDecisionSuppressesLowReliabilityAlert(t *testing.T) {
	req := Request{
		Fingerprint: "unseen",
		Features:    governance.StructuralFeatures{ElementCount: 10, PageCount: 1},
		Extractor:   governance.ExtractorMetadata{Vendor: "nvidia", Confidence: 0.9},
		DocHash:     "hash-1",
	}
	got, err := Run(context.Background(), &fakeLookup{}, &fakeProviders{}, req)
	if err != nil {
		t.Fatal(err)
	}
	for _, a := range got.Alerts {
		if strings.HasPrefix(a, "Low reliability:") {
			t.Errorf("expected no Low reliability alert on a NEW decision, got %v", got.Alerts)
		}
	}
}

func TestRunExactMatchComputesDriftAndRules(t *testing.T) {
	tmpl := &governance.Template{
		ID:          "11111111-1111-1111-1111-111111111111",
		TemplateID:  "invoice-v1",
		Version:     "1",
		Fingerprint: "known",
		StructuralFeatures: governance.StructuralFeatures{
			ElementCount: 100, PageCount: 2, TableCount: 1, TextDensity: 0.4, LayoutComplexity: 0.3,
		},
		BaselineReliability: 0.9,
	}
	req := Request{
		Fingerprint: "known",
		Features: governance.StructuralFeatures{
			ElementCount: 100, PageCount: 2, TableCount: 1, TextDensity: 0.4, LayoutComplexity: 0.3,
		},
		Extractor: governance.ExtractorMetadata{Vendor: "nvidia", Confidence: 0.92},
		DocHash:   "hash-2",
	}
	got, err := Run(context.Background(), &fakeLookup{exact: tmpl}, &fakeProviders{}, req)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != DecisionMatch {
		t.Errorf("Decision = %v, want MATCH for identical features", got.Decision)
	}
	if got.DriftScore != 0 {
		t.Errorf("DriftScore = %v, want 0 for identical features", got.DriftScore)
	}
	if got.TemplateVersionID == nil || *got.TemplateVersionID != "invoice-v1:1" {
		t.Errorf("TemplateVersionID = %v, want invoice-v1:1", got.TemplateVersionID)
	}
	if got.MatchedTemplateID == nil {
		t.Error("expected a matched template id")
	}
}

func TestRunSafeguardIssuesSurfaceInAlerts(t *testing.T) {
	req := Request{
		Fingerprint: "unseen",
		Features:    governance.StructuralFeatures{ElementCount: 0, PageCount: 1},
		Extractor:   governance.ExtractorMetadata{Vendor: "nvidia", Confidence: 0.9},
		DocHash:     "hash-3",
	}
	got, err := Run(context.Background(), &fakeLookup{}, &fakeProviders{}, req)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, a := range got.Alerts {
		if strings.Contains(a, "Zero elements detected") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected zero-elements safeguard issue in alerts, got %v", got.Alerts)
	}
}
