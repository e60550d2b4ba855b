package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/preflight/governor/internal/governance"
	"github.com/preflight/governor/internal/governance/evaluate"
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

func TestRunActivitiesNoMatchYieldsNewDecision(t *testing.T) {
	job := Job{
		WorkflowID:  uuid.New(),
		TenantID:    uuid.New(),
		Fingerprint: "unseen",
		Features:    governance.StructuralFeatures{ElementCount: 5, PageCount: 1},
		Extractor:   governance.ExtractorMetadata{Vendor: "nvidia", Confidence: 0.9},
		DocHash:     "doc-hash-1",
	}

	got, err := RunActivities(context.Background(), &fakeLookup{}, job)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != evaluate.DecisionNew {
		t.Errorf("Decision = %v, want NEW", got.Decision)
	}
	if got.WorkflowID != job.WorkflowID {
		t.Errorf("WorkflowID = %v, want %v", got.WorkflowID, job.WorkflowID)
	}
	if got.ReplayHash == "" {
		t.Error("expected a non-empty replay hash")
	}
	if len(got.CorrectionRules) != 0 {
		t.Errorf("expected no correction rules on NEW, got %v", got.CorrectionRules)
	}
}

func TestRunActivitiesMatchRunsFullChain(t *testing.T) {
	tmpl := &governance.Template{
		ID:                  uuid.New().String(),
		TemplateID:          "invoice-v1",
		Version:             "1",
		Fingerprint:         "known",
		StructuralFeatures:  governance.StructuralFeatures{ElementCount: 10, PageCount: 1, TableCount: 2},
		BaselineReliability: 0.9,
		CorrectionRules:     []governance.CorrectionRule{{Field: "total", Rule: "round_decimal"}},
		Status:              governance.TemplateStatusActive,
	}
	job := Job{
		WorkflowID:  uuid.New(),
		TenantID:    uuid.New(),
		Fingerprint: "known",
		Features:    tmpl.StructuralFeatures,
		Extractor:   governance.ExtractorMetadata{Vendor: "nvidia", Confidence: 0.97},
		DocHash:     "doc-hash-2",
	}

	got, err := RunActivities(context.Background(), &fakeLookup{exact: tmpl}, job)
	if err != nil {
		t.Fatal(err)
	}
	if got.Decision != evaluate.DecisionMatch {
		t.Errorf("Decision = %v, want MATCH", got.Decision)
	}
	if got.TemplateVersionID == nil || *got.TemplateVersionID != "invoice-v1:1" {
		t.Errorf("TemplateVersionID = %v, want invoice-v1:1", got.TemplateVersionID)
	}
	if got.ReliabilityScore <= 0 {
		t.Errorf("expected a positive reliability score, got %v", got.ReliabilityScore)
	}
}

func TestRunActivityRetriesThenSucceeds(t *testing.T) {
	attempts := 0
	policy := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxAttempts: 3}

	err := runActivity(context.Background(), "flaky", policy, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("transient failure")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRunActivityExhaustsRetriesAndReturnsWrappedError(t *testing.T) {
	policy := RetryPolicy{InitialInterval: time.Millisecond, MaxInterval: time.Millisecond, MaxAttempts: 2}

	err := runActivity(context.Background(), "always-fails", policy, func(context.Context) error {
		return errors.New("permanent failure")
	})
	if err == nil {
		t.Fatal("expected an error after exhausting retries")
	}
}

func TestRunActivityRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := RetryPolicy{InitialInterval: 10 * time.Millisecond, MaxInterval: 10 * time.Millisecond, MaxAttempts: 3}
	calls := 0
	err := runActivity(ctx, "cancelled", policy, func(context.Context) error {
		calls++
		return errors.New("fails every time")
	})
	if err == nil {
		t.Fatal("expected an error when context is cancelled mid-backoff")
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt before the cancelled context aborted backoff, got %d", calls)
	}
}
