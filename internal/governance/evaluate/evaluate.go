// Package evaluate is the evaluation orchestrator (C13): it runs the
// matcher, drift detector, reliability scorer, correction-rule
// selector and safeguard engine in sequence and assembles the decision
// returned to the caller and persisted as an Evaluation row.
package evaluate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/preflight/governor/internal/governance"
	"github.com/preflight/governor/internal/governance/drift"
	"github.com/preflight/governor/internal/governance/matcher"
	"github.com/preflight/governor/internal/governance/reliability"
	"github.com/preflight/governor/internal/governance/rules"
	"github.com/preflight/governor/internal/governance/safeguard"
	"github.com/preflight/governor/internal/idgen"
)

// Decision is the evaluate outcome for a document.
type Decision string

const (
	DecisionNew    Decision = "NEW"
	DecisionReview Decision = "REVIEW"
	DecisionMatch  Decision = "MATCH"
	// DecisionReject is reserved for future anomaly-detection use; the
	// current pipeline never emits it.
	DecisionReject Decision = "REJECT"
)

const (
	reviewThreshold = 0.50
	matchThreshold  = 0.85
)

func decide(confidence float64, t *governance.Template) Decision {
	if t == nil || confidence < reviewThreshold {
		return DecisionNew
	}
	if confidence < matchThreshold {
		return DecisionReview
	}
	return DecisionMatch
}

// Request is the input to Run: document metadata for one evaluate call.
type Request struct {
	TenantID      uuid.UUID
	CorrelationID string
	Fingerprint   string
	Features      governance.StructuralFeatures
	Extractor     governance.ExtractorMetadata
	DocHash       string
	CandidateIDs  []string
}

// Result is what Run returns: the full decision plus everything the
// caller needs to persist and respond with.
type Result struct {
	EvaluationID      uuid.UUID
	Decision          Decision
	TemplateVersionID *string
	DriftScore        float64
	ReliabilityScore  float64
	CorrectionRules   []governance.CorrectionRule
	SafeguardIssues   []string
	Alerts            []string
	ReplayHash        string
	ProcessingTimeMS  int64
	MatchedTemplateID *uuid.UUID
}

// ProviderLookup resolves a known extractor provider's configuration by
// vendor name (case-insensitive), or nil if the vendor is unrecognised.
type ProviderLookup interface {
	ByVendor(ctx context.Context, vendor string) (*governance.ExtractorProvider, error)
}

// Run executes the full pipeline: match, decide, (conditionally) drift
// + reliability + rules, safeguards, then assembles the replay hash and
// alert list. It does not persist anything; the caller commits the
// returned Result on its own tenant-scoped session.
func Run(ctx context.Context, lookup matcher.TemplateLookup, providers ProviderLookup, req Request) (Result, error) {
	start := time.Now()

	t, confidence, err := matcher.Match(ctx, lookup, req.Fingerprint, req.Features, req.CandidateIDs)
	if err != nil {
		return Result{}, fmt.Errorf("matching template: %w", err)
	}

	decision := decide(confidence, t)

	var driftScore, reliabilityScore float64
	var correctionRules []governance.CorrectionRule
	var templateVersionID *string
	var matchedID *uuid.UUID

	if decision != DecisionNew {
		driftScore = drift.Score(t.StructuralFeatures, req.Features)
		reliabilityScore = reliability.Score(*t, req.Extractor, driftScore)
		correctionRules = rules.Select(*t, reliabilityScore)
		v := t.TemplateID + ":" + t.Version
		templateVersionID = &v
		id, parseErr := uuid.Parse(t.ID)
		if parseErr == nil {
			matchedID = &id
		}
	} else {
		correctionRules = []governance.CorrectionRule{}
	}

	var provider *governance.ExtractorProvider
	if providers != nil {
		provider, err = providers.ByVendor(ctx, req.Extractor.Vendor)
		if err != nil {
			return Result{}, fmt.Errorf("resolving extractor provider: %w", err)
		}
	}
	safeguardIssues := safeguard.Validate(req.Features, req.Extractor, provider)

	evaluationID := idgen.New()
	replayHash := computeReplayHash(evaluationID.String(), req.DocHash, string(decision))

	alerts := buildAlerts(driftScore, reliabilityScore, decision, safeguardIssues)

	return Result{
		EvaluationID:      evaluationID,
		Decision:          decision,
		TemplateVersionID: templateVersionID,
		DriftScore:        driftScore,
		ReliabilityScore:  reliabilityScore,
		CorrectionRules:   correctionRules,
		SafeguardIssues:   safeguardIssues,
		Alerts:            alerts,
		ReplayHash:        replayHash,
		ProcessingTimeMS:  time.Since(start).Milliseconds(),
		MatchedTemplateID: matchedID,
	}, nil
}

func computeReplayHash(evaluationID, docHash, decision string) string {
	h := sha256.Sum256([]byte(evaluationID + ":" + docHash + ":" + decision))
	return hex.EncodeToString(h[:])
}

func buildAlerts(driftScore, reliabilityScore float64, decision Decision, safeguardIssues []string) []string {
	var alerts []string
	if decision != DecisionNew && driftScore > 0.30 {
		alerts = append(alerts, fmt.Sprintf("High drift detected: %.2f", driftScore))
	}
	if decision != DecisionNew && reliabilityScore < 0.80 {
		alerts = append(alerts, fmt.Sprintf("Low reliability: %.2f", reliabilityScore))
	}
	alerts = append(alerts, safeguardIssues...)
	return alerts
}

// IsReviewDrift reports whether a "High drift detected: " alert is
// present, a convenience for tests asserting on the alert list shape
// without string-matching the formatted float.
func IsReviewDrift(alerts []string) bool {
	for _, a := range alerts {
		if strings.HasPrefix(a, "High drift detected:") {
			return true
		}
	}
	return false
}
