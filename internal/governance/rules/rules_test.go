package rules

import (
	"testing"

	"github.com/preflight/governor/internal/governance"
)

func TestSelectHighReliabilityAddsNothing(t *testing.T) {
	tmpl := governance.Template{}
	got := Select(tmpl, 0.98)
	if len(got) != 0 {
		t.Errorf("Select() = %v, want no rules above 0.95", got)
	}
}

func TestSelectModerateReliabilityAddsCrossField(t *testing.T) {
	got := Select(governance.Template{}, 0.90)
	if len(got) != 1 || got[0].Rule != "cross_field_validation" {
		t.Errorf("Select() = %v, want single cross_field_validation rule", got)
	}
	if got[0].Parameters["strict"] != false {
		t.Errorf("expected strict=false above 0.80, got %v", got[0].Parameters["strict"])
	}
}

func TestSelectLowReliabilityAddsEnhancedAndStrict(t *testing.T) {
	got := Select(governance.Template{}, 0.70)
	names := map[string]bool{}
	for _, r := range got {
		names[r.Rule] = true
	}
	for _, want := range []string{"cross_field_validation", "confidence_threshold", "enhanced_validation"} {
		if !names[want] {
			t.Errorf("Select() missing %q, got %v", want, got)
		}
	}
	for _, r := range got {
		if r.Rule == "cross_field_validation" && r.Parameters["strict"] != true {
			t.Error("expected strict=true below 0.80")
		}
	}
}

func TestSelectVeryLowReliabilityFlagsForReview(t *testing.T) {
	got := Select(governance.Template{}, 0.40)
	found := false
	for _, r := range got {
		if r.Rule == "flag_for_review" {
			found = true
			if r.Parameters["threshold"] != 0.40 {
				t.Errorf("expected threshold 0.40, got %v", r.Parameters["threshold"])
			}
		}
	}
	if !found {
		t.Error("expected flag_for_review below 0.60")
	}
}

func TestSelectDoesNotDuplicateTemplateRule(t *testing.T) {
	tmpl := governance.Template{
		CorrectionRules: []governance.CorrectionRule{
			{Field: "*", Rule: "cross_field_validation", Parameters: map[string]any{"strict": true}},
		},
	}
	got := Select(tmpl, 0.90)
	count := 0
	for _, r := range got {
		if r.Rule == "cross_field_validation" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected cross_field_validation to appear once, got %d", count)
	}
}

func TestValidateFlagsFieldMismatch(t *testing.T) {
	errs := Validate([]governance.CorrectionRule{
		{Field: "amount", Rule: "sum_line_items"},
	})
	if len(errs) != 1 {
		t.Fatalf("expected one validation error, got %v", errs)
	}
}

func TestValidateAllowsWildcardAgainstSpecificStandardRule(t *testing.T) {
	errs := Validate([]governance.CorrectionRule{
		{Field: "*", Rule: "sum_line_items"},
	})
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
}

func TestValidateAcceptsCustomRuleUnchecked(t *testing.T) {
	errs := Validate([]governance.CorrectionRule{
		{Field: "weird_field", Rule: "totally_custom_rule"},
	})
	if len(errs) != 0 {
		t.Errorf("expected custom rules to pass unchecked, got %v", errs)
	}
}
