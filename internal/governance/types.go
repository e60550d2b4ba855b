// Package governance holds the shared value types the evaluation
// pipeline's stages (matcher, drift, reliability, rules, safeguard) all
// operate on, so none of those packages needs to import another's
// internals just to describe a document.
package governance

import "time"

// BoundingBox is a normalized (0..1) element location on a page.
type BoundingBox struct {
	ElementType string  `json:"element_type"`
	X           float64 `json:"x"`
	Y           float64 `json:"y"`
	Width       float64 `json:"width"`
	Height      float64 `json:"height"`
}

// StructuralFeatures is the structural fingerprint of a document's
// layout, as reported by an extractor — never the document bytes
// themselves.
type StructuralFeatures struct {
	ElementCount     int           `json:"element_count"`
	TableCount       int           `json:"table_count"`
	TextBlockCount   int           `json:"text_block_count"`
	ImageCount       int           `json:"image_count"`
	PageCount        int           `json:"page_count"`
	TextDensity      float64       `json:"text_density"`
	LayoutComplexity float64       `json:"layout_complexity"`
	ColumnCount      int           `json:"column_count"`
	HasHeader        bool          `json:"has_header"`
	HasFooter        bool          `json:"has_footer"`
	BoundingBoxes    []BoundingBox `json:"bounding_boxes"`
}

// ExtractorMetadata describes the extraction run that produced the
// features under evaluation.
type ExtractorMetadata struct {
	Vendor     string  `json:"vendor"`
	Model      string  `json:"model"`
	Version    string  `json:"version"`
	Confidence float64 `json:"confidence"`
	LatencyMS  int     `json:"latency_ms"`
}

// ExtractorProvider is tenant-level configuration for a known extractor
// vendor, used by safeguard's provider-specific checks.
type ExtractorProvider struct {
	DisplayName           string
	SupportedElementTypes []string
	TypicalLatencyMS      int
	ConfidenceMultiplier  float64
}

// CorrectionRule is a single post-extraction correction to apply to a
// field (or "*" for all fields).
type CorrectionRule struct {
	Field      string         `json:"field"`
	Rule       string         `json:"rule"`
	Parameters map[string]any `json:"parameters"`
}

// TemplateStatus is a template's lifecycle state.
type TemplateStatus string

const (
	TemplateStatusActive     TemplateStatus = "ACTIVE"
	TemplateStatusDeprecated TemplateStatus = "DEPRECATED"
	TemplateStatusReview     TemplateStatus = "REVIEW"
)

// Template is a learned document archetype: a baseline feature set, a
// reliability baseline, and the correction rules known to apply to
// documents matching it.
type Template struct {
	ID                  string
	TenantID            string
	TemplateID          string
	Version             string
	Fingerprint         string
	StructuralFeatures  StructuralFeatures
	BaselineReliability float64
	CorrectionRules     []CorrectionRule
	Status              TemplateStatus
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
