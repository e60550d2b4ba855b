package admin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/governance/drift"
	"github.com/preflight/governor/internal/governance/reliability"
	"github.com/preflight/governor/internal/httpserver"
	"github.com/preflight/governor/internal/store"
)

// EvaluationBreakdown is the debug view of how a persisted evaluation's
// drift and reliability scores were reached: every per-feature delta
// and per-component contribution that fed the single numbers in the
// original response.
type EvaluationBreakdown struct {
	EvaluationID string                         `json:"evaluation_id"`
	Decision     string                         `json:"decision"`
	DriftDeltas  map[string]drift.MetricDelta   `json:"drift_deltas,omitempty"`
	Reliability  *reliability.ComponentBreakdown `json:"reliability,omitempty"`
}

// EvaluationHandler serves the admin-only evaluation introspection
// endpoint. Unlike the other admin handlers, fetching an evaluation
// requires a tenant-scoped RLS session (evaluations and templates both
// carry tenant isolation), so it holds the store.Gateway rather than
// the bare pool. The session is opened for the caller's own tenant; a
// superadmin caller may name another tenant with an optional tenant_id
// query parameter.
type EvaluationHandler struct {
	logger *slog.Logger
	store  *store.Gateway
}

func NewEvaluationHandler(logger *slog.Logger, gw *store.Gateway) *EvaluationHandler {
	return &EvaluationHandler{logger: logger, store: gw}
}

func (h *EvaluationHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{id}/breakdown", h.handleBreakdown)
	return r
}

func (h *EvaluationHandler) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if caller == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	evalID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid evaluation id")
		return
	}

	tenantID := caller.TenantID
	if caller.IsSuperadmin() {
		if q := r.URL.Query().Get("tenant_id"); q != "" {
			id, err := uuid.Parse(q)
			if err != nil {
				httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant_id")
				return
			}
			tenantID = id
		}
	}

	sess, err := h.store.WithTenant(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("establishing tenant session", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to establish tenant session", err))
		return
	}
	defer sess.Release()

	ev, err := store.NewEvaluationStore(sess).Get(r.Context(), evalID)
	if err != nil {
		h.logger.Error("fetching evaluation", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to fetch evaluation", err))
		return
	}
	if ev == nil {
		httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "evaluation not found")
		return
	}

	breakdown := EvaluationBreakdown{EvaluationID: ev.ID.String(), Decision: ev.Decision}

	if ev.MatchedTemplateID != nil {
		tmpl, err := store.NewTemplateStore(sess).Get(r.Context(), ev.MatchedTemplateID.String())
		if err != nil {
			h.logger.Error("fetching matched template for breakdown", "error", err)
			httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to fetch matched template", err))
			return
		}
		if tmpl != nil {
			deltas := drift.Details(tmpl.StructuralFeatures, ev.Features)
			breakdown.DriftDeltas = deltas
			rb := reliability.Breakdown(*tmpl, ev.Extractor, ev.DriftScore)
			breakdown.Reliability = &rb
		}
	}

	httpserver.Respond(w, http.StatusOK, breakdown)
}
