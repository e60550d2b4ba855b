// Package reliability is the reliability scorer (C10): a weighted blend
// of a template's baseline reliability, the extractor's reported
// confidence, and an exponential drift penalty, with further
// adjustments for unknown extractors, severe drift, and very high
// confidence.
package reliability

import (
	"math"
	"strings"

	"github.com/preflight/governor/internal/governance"
)

const (
	baselineWeight   = 0.40
	confidenceWeight = 0.35
	driftWeight      = 0.25
)

// knownExtractors are vendors this service has historical performance
// data for; an unrecognised vendor is penalized since its confidence
// reporting hasn't been validated against outcomes.
var knownExtractors = map[string]bool{
	"nvidia": true, "abbyy": true, "tesseract": true,
	"azure": true, "google": true, "aws": true,
}

// IsKnownExtractor reports whether vendor has historical performance
// data backing its confidence reports.
func IsKnownExtractor(vendor string) bool {
	return knownExtractors[strings.ToLower(vendor)]
}

// Score blends baseline, confidence and drift into a single value in
// [0, 1].
func Score(template governance.Template, extractor governance.ExtractorMetadata, driftScore float64) float64 {
	driftFactor := math.Exp(-2.0 * driftScore)

	score := template.BaselineReliability*baselineWeight +
		extractor.Confidence*confidenceWeight +
		driftFactor*driftWeight

	if !IsKnownExtractor(extractor.Vendor) {
		score *= 0.90
	}
	if driftScore > 0.50 {
		score *= 0.85
	}
	if extractor.Confidence > 0.95 {
		score = math.Min(1.0, score*1.05)
	}

	return math.Max(0.0, math.Min(1.0, score))
}

// ComponentBreakdown is the debug-endpoint view of how a score was
// reached.
type ComponentBreakdown struct {
	BaselineReliability     float64 `json:"baseline_reliability"`
	ExtractorConfidence     float64 `json:"extractor_confidence"`
	DriftFactor             float64 `json:"drift_factor"`
	DriftScore              float64 `json:"drift_score"`
	UnknownExtractorPenalty bool    `json:"unknown_extractor_penalty"`
	HighDriftPenalty        bool    `json:"high_drift_penalty"`
	HighConfidenceBonus     bool    `json:"high_confidence_bonus"`
	IsKnownExtractor        bool    `json:"is_known_extractor"`
}

// Breakdown returns the same inputs Score computes from, for the admin
// debug endpoint.
func Breakdown(template governance.Template, extractor governance.ExtractorMetadata, driftScore float64) ComponentBreakdown {
	return ComponentBreakdown{
		BaselineReliability:     template.BaselineReliability,
		ExtractorConfidence:     extractor.Confidence,
		DriftFactor:             math.Exp(-2.0 * driftScore),
		DriftScore:              driftScore,
		UnknownExtractorPenalty: !IsKnownExtractor(extractor.Vendor),
		HighDriftPenalty:        driftScore > 0.50,
		HighConfidenceBonus:     extractor.Confidence > 0.95,
		IsKnownExtractor:        IsKnownExtractor(extractor.Vendor),
	}
}
