// Package safeguard is the safeguard engine (C12): non-blocking
// completeness, layout, provider-specific and anomaly checks over
// structural features and extractor metadata. Every finding is a
// "WARN: " or "ERROR: " prefixed string; ERROR never short-circuits the
// evaluation, it only flags the result for downstream attention.
package safeguard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/preflight/governor/internal/governance"
)

// Validate runs every check and returns the accumulated findings. An
// empty slice means no issues were detected.
func Validate(features governance.StructuralFeatures, extractor governance.ExtractorMetadata, provider *governance.ExtractorProvider) []string {
	var issues []string
	issues = append(issues, checkCompleteness(features)...)
	issues = append(issues, checkLayoutConsistency(features)...)
	if provider != nil {
		issues = append(issues, checkProviderSpecific(features, extractor, *provider)...)
	}
	issues = append(issues, checkAnomalies(features, extractor)...)
	return issues
}

func checkCompleteness(f governance.StructuralFeatures) []string {
	var issues []string

	if len(f.BoundingBoxes) == 0 {
		issues = append(issues, "WARN: No bounding boxes provided - layout matching will be limited")
	}
	if f.ElementCount == 0 {
		issues = append(issues, "ERROR: Zero elements detected - extraction may have failed completely")
	}
	if f.PageCount == 0 {
		issues = append(issues, "ERROR: Zero pages reported - invalid document structure")
	}

	bboxCount := len(f.BoundingBoxes)
	if bboxCount > 0 && f.ElementCount > 0 {
		ratio := float64(bboxCount) / float64(f.ElementCount)
		if ratio < 0.1 {
			issues = append(issues, fmt.Sprintf(
				"WARN: Only %d bounding boxes for %d elements (%.1f%%) - layout data may be incomplete",
				bboxCount, f.ElementCount, ratio*100,
			))
		}
	}
	return issues
}

func checkLayoutConsistency(f governance.StructuralFeatures) []string {
	var issues []string
	zeroArea, outOfBounds := 0, 0

	for i, bbox := range f.BoundingBoxes {
		if bbox.Width == 0 || bbox.Height == 0 {
			zeroArea++
			if zeroArea <= 3 {
				issues = append(issues, fmt.Sprintf("WARN: Zero-area bounding box at index %d", i))
			}
		}
		if bbox.X+bbox.Width > 1.01 || bbox.Y+bbox.Height > 1.01 {
			outOfBounds++
			if outOfBounds <= 3 {
				issues = append(issues, fmt.Sprintf("WARN: Bounding box %d exceeds normalized page bounds", i))
			}
		}
		if bbox.X < 0 || bbox.Y < 0 {
			issues = append(issues, fmt.Sprintf("WARN: Bounding box %d has negative coordinates", i))
		}
	}

	if zeroArea > 3 {
		issues = append(issues, fmt.Sprintf("WARN: %d total zero-area bounding boxes detected", zeroArea))
	}
	if outOfBounds > 3 {
		issues = append(issues, fmt.Sprintf("WARN: %d total out-of-bounds bounding boxes detected", outOfBounds))
	}

	if f.LayoutComplexity > 0.95 {
		issues = append(issues, "WARN: Extremely high layout complexity (>0.95) - document may be corrupted")
	}
	if f.TextDensity == 0 && f.TextBlockCount > 0 {
		issues = append(issues, "WARN: Text density is 0 but text blocks exist - check density calculation")
	}
	return issues
}

func checkProviderSpecific(f governance.StructuralFeatures, extractor governance.ExtractorMetadata, provider governance.ExtractorProvider) []string {
	var issues []string

	if len(provider.SupportedElementTypes) > 0 {
		supported := make(map[string]bool, len(provider.SupportedElementTypes))
		for _, t := range provider.SupportedElementTypes {
			supported[strings.ToLower(t)] = true
		}
		unknownSet := map[string]bool{}
		for _, bbox := range f.BoundingBoxes {
			if !supported[strings.ToLower(bbox.ElementType)] {
				unknownSet[bbox.ElementType] = true
			}
		}
		if len(unknownSet) > 0 {
			unknown := make([]string, 0, len(unknownSet))
			for t := range unknownSet {
				unknown = append(unknown, t)
			}
			sort.Strings(unknown)
			extra := ""
			if len(unknown) > 5 {
				extra = fmt.Sprintf(" (+%d more)", len(unknown)-5)
				unknown = unknown[:5]
			}
			issues = append(issues, fmt.Sprintf(
				"WARN: Unknown element types for %s: %s%s",
				provider.DisplayName, strings.Join(unknown, ", "), extra,
			))
		}
	}

	if provider.TypicalLatencyMS > 0 {
		if extractor.LatencyMS > provider.TypicalLatencyMS*3 {
			issues = append(issues, fmt.Sprintf(
				"WARN: Latency %dms is 3x typical (%dms) for %s",
				extractor.LatencyMS, provider.TypicalLatencyMS, provider.DisplayName,
			))
		} else if float64(extractor.LatencyMS) < float64(provider.TypicalLatencyMS)*0.1 {
			issues = append(issues, fmt.Sprintf(
				"WARN: Latency %dms is unusually low for %s (typical: %dms)",
				extractor.LatencyMS, provider.DisplayName, provider.TypicalLatencyMS,
			))
		}
	}

	if provider.ConfidenceMultiplier != 1.0 {
		calibrated := extractor.Confidence * provider.ConfidenceMultiplier
		if calibrated > 1.0 {
			issues = append(issues, fmt.Sprintf(
				"WARN: After calibration, confidence would exceed 1.0 (%.2f * %.2f = %.2f)",
				extractor.Confidence, provider.ConfidenceMultiplier, calibrated,
			))
		}
	}
	return issues
}

func checkAnomalies(f governance.StructuralFeatures, extractor governance.ExtractorMetadata) []string {
	var issues []string

	if extractor.Confidence < 0.5 && f.ElementCount > 100 {
		issues = append(issues, fmt.Sprintf(
			"WARN: Low confidence (%.2f) with many elements (%d) - review recommended",
			extractor.Confidence, f.ElementCount,
		))
	}
	if extractor.Confidence > 0.95 && f.ElementCount < 5 {
		issues = append(issues, fmt.Sprintf(
			"WARN: Very high confidence (%.2f) with few elements (%d) - may be incomplete extraction",
			extractor.Confidence, f.ElementCount,
		))
	}
	if extractor.Confidence == 1.0 {
		issues = append(issues, "WARN: Perfect confidence score (1.0) is unusual - verify extraction")
	}
	if f.PageCount > 10 && f.TableCount == 0 && f.TextBlockCount < 50 {
		issues = append(issues, fmt.Sprintf(
			"WARN: %d pages with no tables and few text blocks (%d) - possible scan/extraction failure",
			f.PageCount, f.TextBlockCount,
		))
	}
	if f.ColumnCount > 10 {
		issues = append(issues, fmt.Sprintf("WARN: Unusually high column count (%d) - verify layout detection", f.ColumnCount))
	}
	return issues
}

// HasError reports whether any finding is an ERROR-severity issue.
func HasError(issues []string) bool {
	for _, i := range issues {
		if strings.HasPrefix(i, "ERROR:") {
			return true
		}
	}
	return false
}
