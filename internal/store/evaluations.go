// evaluations.go persists the result of running the evaluation
// orchestrator (internal/governance/evaluate) so a completed decision
// can be replayed, audited, and inspected via the admin breakdown
// endpoint after the request that produced it has long since returned.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preflight/governor/internal/governance"
)

// Evaluation is a persisted evaluate decision: the inputs that produced
// it plus the outputs, everything the breakdown endpoint needs to
// recompute drift.Details and reliability.Breakdown without re-running
// the pipeline.
type Evaluation struct {
	ID                uuid.UUID
	CorrelationID     string
	Fingerprint       string
	Features          governance.StructuralFeatures
	Extractor         governance.ExtractorMetadata
	DocHash           string
	Decision          string
	MatchedTemplateID *uuid.UUID
	TemplateVersionID *string
	DriftScore        float64
	ReliabilityScore  float64
	CorrectionRules   []governance.CorrectionRule
	SafeguardIssues   []string
	Alerts            []string
	ReplayHash        string
	ProcessingTimeMS  int64
	CreatedAt         time.Time
}

const evaluationColumns = `id, correlation_id, fingerprint, features, extractor, doc_hash, decision,
	matched_template_id, template_version_id, drift_score, reliability_score, correction_rules,
	safeguard_issues, alerts, replay_hash, processing_time_ms, created_at`

func scanEvaluation(row pgx.Row) (Evaluation, error) {
	var (
		e           Evaluation
		featuresJS  []byte
		extractorJS []byte
		rulesJS     []byte
		issuesJS    []byte
		alertsJS    []byte
	)
	err := row.Scan(
		&e.ID, &e.CorrelationID, &e.Fingerprint, &featuresJS, &extractorJS, &e.DocHash, &e.Decision,
		&e.MatchedTemplateID, &e.TemplateVersionID, &e.DriftScore, &e.ReliabilityScore, &rulesJS,
		&issuesJS, &alertsJS, &e.ReplayHash, &e.ProcessingTimeMS, &e.CreatedAt,
	)
	if err != nil {
		return Evaluation{}, err
	}
	if err := json.Unmarshal(featuresJS, &e.Features); err != nil {
		return Evaluation{}, fmt.Errorf("decoding features: %w", err)
	}
	if err := json.Unmarshal(extractorJS, &e.Extractor); err != nil {
		return Evaluation{}, fmt.Errorf("decoding extractor: %w", err)
	}
	if len(rulesJS) > 0 {
		if err := json.Unmarshal(rulesJS, &e.CorrectionRules); err != nil {
			return Evaluation{}, fmt.Errorf("decoding correction_rules: %w", err)
		}
	}
	if len(issuesJS) > 0 {
		if err := json.Unmarshal(issuesJS, &e.SafeguardIssues); err != nil {
			return Evaluation{}, fmt.Errorf("decoding safeguard_issues: %w", err)
		}
	}
	if len(alertsJS) > 0 {
		if err := json.Unmarshal(alertsJS, &e.Alerts); err != nil {
			return Evaluation{}, fmt.Errorf("decoding alerts: %w", err)
		}
	}
	return e, nil
}

// EvaluationStore persists and retrieves evaluation rows over a
// tenant-scoped Querier.
type EvaluationStore struct {
	q Querier
}

func NewEvaluationStore(q Querier) *EvaluationStore {
	return &EvaluationStore{q: q}
}

// CreateEvaluationParams is the input to Create, mirroring
// evaluate.Request plus evaluate.Result.
type CreateEvaluationParams struct {
	ID                uuid.UUID
	CorrelationID     string
	Fingerprint       string
	Features          governance.StructuralFeatures
	Extractor         governance.ExtractorMetadata
	DocHash           string
	Decision          string
	MatchedTemplateID *uuid.UUID
	TemplateVersionID *string
	DriftScore        float64
	ReliabilityScore  float64
	CorrectionRules   []governance.CorrectionRule
	SafeguardIssues   []string
	Alerts            []string
	ReplayHash        string
	ProcessingTimeMS  int64
}

// Create persists one evaluation row. Best-effort from the caller's
// perspective: a failure here is logged, not surfaced as a failed
// evaluation, since the decision has already been computed and
// returned by the time persistence runs.
func (s *EvaluationStore) Create(ctx context.Context, p CreateEvaluationParams) error {
	featuresJS, err := json.Marshal(p.Features)
	if err != nil {
		return fmt.Errorf("encoding features: %w", err)
	}
	extractorJS, err := json.Marshal(p.Extractor)
	if err != nil {
		return fmt.Errorf("encoding extractor: %w", err)
	}
	rulesJS, err := json.Marshal(p.CorrectionRules)
	if err != nil {
		return fmt.Errorf("encoding correction_rules: %w", err)
	}
	issuesJS, err := json.Marshal(p.SafeguardIssues)
	if err != nil {
		return fmt.Errorf("encoding safeguard_issues: %w", err)
	}
	alertsJS, err := json.Marshal(p.Alerts)
	if err != nil {
		return fmt.Errorf("encoding alerts: %w", err)
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO evaluations (id, correlation_id, fingerprint, features, extractor, doc_hash, decision,
			matched_template_id, template_version_id, drift_score, reliability_score, correction_rules,
			safeguard_issues, alerts, replay_hash, processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, now())`,
		p.ID, p.CorrelationID, p.Fingerprint, featuresJS, extractorJS, p.DocHash, p.Decision,
		p.MatchedTemplateID, p.TemplateVersionID, p.DriftScore, p.ReliabilityScore, rulesJS,
		issuesJS, alertsJS, p.ReplayHash, p.ProcessingTimeMS,
	)
	if err != nil {
		return fmt.Errorf("creating evaluation: %w", err)
	}
	return nil
}

// Get fetches a single evaluation by ID.
func (s *EvaluationStore) Get(ctx context.Context, id uuid.UUID) (*Evaluation, error) {
	row := s.q.QueryRow(ctx, `SELECT `+evaluationColumns+` FROM evaluations WHERE id = $1`, id)
	e, err := scanEvaluation(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &e, nil
}
