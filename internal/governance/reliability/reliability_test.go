package reliability

import (
	"testing"

	"github.com/preflight/governor/internal/governance"
)

func TestIsKnownExtractorCaseInsensitive(t *testing.T) {
	if !IsKnownExtractor("AZURE") {
		t.Error("expected AZURE to be recognised case-insensitively")
	}
	if IsKnownExtractor("some-new-vendor") {
		t.Error("expected unrecognised vendor to report false")
	}
}

func TestScoreNoDriftKnownExtractor(t *testing.T) {
	tmpl := governance.Template{BaselineReliability: 0.9}
	extractor := governance.ExtractorMetadata{Vendor: "azure", Confidence: 0.9}
	got := Score(tmpl, extractor, 0)
	want := 0.9*baselineWeight + 0.9*confidenceWeight + 1.0*driftWeight
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("Score() = %v, want %v", got, want)
	}
}

func TestScoreUnknownExtractorPenalty(t *testing.T) {
	tmpl := governance.Template{BaselineReliability: 0.9}
	known := Score(tmpl, governance.ExtractorMetadata{Vendor: "azure", Confidence: 0.9}, 0)
	unknown := Score(tmpl, governance.ExtractorMetadata{Vendor: "mystery-ocr", Confidence: 0.9}, 0)
	if unknown >= known {
		t.Errorf("expected unknown extractor score %v to be penalized below known score %v", unknown, known)
	}
}

func TestScoreHighDriftPenaltyAndClamp(t *testing.T) {
	tmpl := governance.Template{BaselineReliability: 1.0}
	extractor := governance.ExtractorMetadata{Vendor: "azure", Confidence: 1.0}
	got := Score(tmpl, extractor, 0.9)
	if got > 1.0 || got < 0 {
		t.Errorf("Score() = %v, want within [0, 1]", got)
	}
}

func TestScoreHighConfidenceBonusCappedAtOne(t *testing.T) {
	tmpl := governance.Template{BaselineReliability: 1.0}
	extractor := governance.ExtractorMetadata{Vendor: "azure", Confidence: 1.0}
	got := Score(tmpl, extractor, 0)
	if got > 1.0 {
		t.Errorf("Score() = %v, must be capped at 1.0", got)
	}
}
