// Package api mounts the governance domain onto HTTP: evaluate and
// template-registry handlers, each wrapping a chi.Router.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/audit"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/governance"
	"github.com/preflight/governor/internal/governance/evaluate"
	"github.com/preflight/governor/internal/httpserver"
	"github.com/preflight/governor/internal/lsh"
	"github.com/preflight/governor/internal/store"
	"github.com/preflight/governor/internal/telemetry"
)

// EvaluateRequest is the JSON body for POST /v1/evaluate.
type EvaluateRequest struct {
	CorrelationID string                        `json:"correlation_id"`
	Fingerprint   string                        `json:"fingerprint" validate:"required"`
	Features      governance.StructuralFeatures `json:"features" validate:"required"`
	Extractor     governance.ExtractorMetadata  `json:"extractor" validate:"required"`
	DocHash       string                        `json:"doc_hash" validate:"required"`
}

// EvaluateResponse is the JSON response for a completed evaluation.
type EvaluateResponse struct {
	EvaluationID      string                      `json:"evaluation_id"`
	Decision          evaluate.Decision           `json:"decision"`
	TemplateVersionID *string                     `json:"template_version_id"`
	DriftScore        float64                     `json:"drift_score"`
	ReliabilityScore  float64                     `json:"reliability_score"`
	CorrectionRules   []governance.CorrectionRule `json:"correction_rules"`
	SafeguardIssues   []string                    `json:"safeguard_issues"`
	Alerts            []string                    `json:"alerts"`
	ReplayHash        string                      `json:"replay_hash"`
	ProcessingTimeMS  int64                       `json:"processing_time_ms"`
}

// EvaluateHandler serves POST /v1/evaluate: the synchronous document
// governance pipeline.
type EvaluateHandler struct {
	logger    *slog.Logger
	audit     *audit.Writer
	index     *lsh.Index
	providers *store.ProviderStore
}

func NewEvaluateHandler(logger *slog.Logger, aw *audit.Writer, index *lsh.Index, providers *store.ProviderStore) *EvaluateHandler {
	return &EvaluateHandler{logger: logger, audit: aw, index: index, providers: providers}
}

func (h *EvaluateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleEvaluate)
	return r
}

func (h *EvaluateHandler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	sess := store.FromContext(r.Context())
	if id == nil || sess == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	logger := telemetry.WithTenant(h.logger, id.TenantID.String())
	lookup := store.NewTemplateStore(sess)

	var candidateIDs []string
	if h.index != nil {
		candidates, err := h.index.Query(r.Context(), req.Features, id.TenantID.String(), 20)
		if err != nil {
			logger.Warn("lsh candidate query degraded, falling back to full scan", "error", err)
		}
		for _, c := range candidates {
			candidateIDs = append(candidateIDs, c.TemplateID)
		}
	}

	result, err := evaluate.Run(r.Context(), lookup, h.providers, evaluate.Request{
		TenantID:      id.TenantID,
		CorrelationID: req.CorrelationID,
		Fingerprint:   req.Fingerprint,
		Features:      req.Features,
		Extractor:     req.Extractor,
		DocHash:       req.DocHash,
		CandidateIDs:  candidateIDs,
	})
	if err != nil {
		logger.Error("running evaluation", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "evaluation failed", err))
		return
	}

	evalStore := store.NewEvaluationStore(sess)
	if err := evalStore.Create(r.Context(), store.CreateEvaluationParams{
		ID:                result.EvaluationID,
		CorrelationID:     req.CorrelationID,
		Fingerprint:       req.Fingerprint,
		Features:          req.Features,
		Extractor:         req.Extractor,
		DocHash:           req.DocHash,
		Decision:          string(result.Decision),
		MatchedTemplateID: result.MatchedTemplateID,
		TemplateVersionID: result.TemplateVersionID,
		DriftScore:        result.DriftScore,
		ReliabilityScore:  result.ReliabilityScore,
		CorrectionRules:   result.CorrectionRules,
		SafeguardIssues:   result.SafeguardIssues,
		Alerts:            result.Alerts,
		ReplayHash:        result.ReplayHash,
		ProcessingTimeMS:  result.ProcessingTimeMS,
	}); err != nil {
		logger.Error("persisting evaluation", "error", err, "evaluation_id", result.EvaluationID)
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionEvaluationRequested, &id.TenantID, id.APIKeyID, "evaluation",
			result.EvaluationID.String(), map[string]any{
				"decision":          result.Decision,
				"drift_score":       result.DriftScore,
				"reliability_score": result.ReliabilityScore,
			}))
	}

	httpserver.Respond(w, http.StatusOK, EvaluateResponse{
		EvaluationID:      result.EvaluationID.String(),
		Decision:          result.Decision,
		TemplateVersionID: result.TemplateVersionID,
		DriftScore:        result.DriftScore,
		ReliabilityScore:  result.ReliabilityScore,
		CorrectionRules:   result.CorrectionRules,
		SafeguardIssues:   result.SafeguardIssues,
		Alerts:            result.Alerts,
		ReplayHash:        result.ReplayHash,
		ProcessingTimeMS:  result.ProcessingTimeMS,
	})
}
