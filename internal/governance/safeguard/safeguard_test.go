package safeguard

import (
	"strings"
	"testing"

	"github.com/preflight/governor/internal/governance"
)

func TestValidateZeroElementsIsError(t *testing.T) {
	issues := Validate(governance.StructuralFeatures{ElementCount: 0, PageCount: 1}, governance.ExtractorMetadata{Confidence: 0.9}, nil)
	if !HasError(issues) {
		t.Errorf("expected an ERROR finding for zero elements, got %v", issues)
	}
}

func TestValidateHealthyRequestHasNoErrors(t *testing.T) {
	f := governance.StructuralFeatures{
		ElementCount: 100, PageCount: 2, TableCount: 1, TextBlockCount: 20,
		TextDensity: 0.4, LayoutComplexity: 0.3, ColumnCount: 1,
		BoundingBoxes: []governance.BoundingBox{
			{ElementType: "text", X: 0, Y: 0, Width: 0.1, Height: 0.1},
		},
	}
	issues := Validate(f, governance.ExtractorMetadata{Confidence: 0.9}, nil)
	if HasError(issues) {
		t.Errorf("expected no ERROR findings, got %v", issues)
	}
}

func TestValidateZeroAreaBoundingBoxWarns(t *testing.T) {
	f := governance.StructuralFeatures{
		ElementCount: 1, PageCount: 1,
		BoundingBoxes: []governance.BoundingBox{{ElementType: "text", Width: 0, Height: 0}},
	}
	issues := Validate(f, governance.ExtractorMetadata{Confidence: 0.9}, nil)
	found := false
	for _, i := range issues {
		if strings.Contains(i, "Zero-area bounding box") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected zero-area warning, got %v", issues)
	}
}

func TestValidatePerfectConfidenceWarns(t *testing.T) {
	f := governance.StructuralFeatures{ElementCount: 10, PageCount: 1}
	issues := Validate(f, governance.ExtractorMetadata{Confidence: 1.0}, nil)
	found := false
	for _, i := range issues {
		if strings.Contains(i, "Perfect confidence") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected perfect-confidence warning, got %v", issues)
	}
}

func TestValidateProviderUnsupportedElementType(t *testing.T) {
	f := governance.StructuralFeatures{
		ElementCount: 1, PageCount: 1,
		BoundingBoxes: []governance.BoundingBox{{ElementType: "chart", Width: 0.1, Height: 0.1}},
	}
	provider := governance.ExtractorProvider{
		DisplayName:           "Acme OCR",
		SupportedElementTypes: []string{"text", "table"},
		ConfidenceMultiplier:  1.0,
	}
	issues := Validate(f, governance.ExtractorMetadata{Confidence: 0.9}, &provider)
	found := false
	for _, i := range issues {
		if strings.Contains(i, "Unknown element types") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected unknown element type warning, got %v", issues)
	}
}
