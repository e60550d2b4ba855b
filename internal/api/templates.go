package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/audit"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/governance"
	"github.com/preflight/governor/internal/governance/rules"
	"github.com/preflight/governor/internal/httpserver"
	"github.com/preflight/governor/internal/lsh"
	"github.com/preflight/governor/internal/store"
)

// TemplateRequest is the JSON body for creating a template.
type TemplateRequest struct {
	TemplateID          string                        `json:"template_id" validate:"required"`
	Version             string                        `json:"version" validate:"required"`
	Fingerprint         string                        `json:"fingerprint" validate:"required"`
	StructuralFeatures  governance.StructuralFeatures `json:"structural_features" validate:"required"`
	BaselineReliability float64                       `json:"baseline_reliability" validate:"gte=0,lte=1"`
	CorrectionRules     []governance.CorrectionRule   `json:"correction_rules"`
}

// StatusRequest is the JSON body for PATCH /v1/templates/{id}/status.
type StatusRequest struct {
	Status governance.TemplateStatus `json:"status" validate:"required,oneof=ACTIVE DEPRECATED REVIEW"`
}

// TemplateHandler serves the template registry CRUD surface.
type TemplateHandler struct {
	logger *slog.Logger
	audit  *audit.Writer
	index  *lsh.Index
}

func NewTemplateHandler(logger *slog.Logger, aw *audit.Writer, index *lsh.Index) *TemplateHandler {
	return &TemplateHandler{logger: logger, audit: aw, index: index}
}

func (h *TemplateHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}/status", h.handleUpdateStatus)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *TemplateHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req TemplateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if errs := rules.Validate(req.CorrectionRules); len(errs) > 0 {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, strings.Join(errs, "; "))
		return
	}

	id := auth.FromContext(r.Context())
	sess := store.FromContext(r.Context())
	if id == nil || sess == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	ts := store.NewTemplateStore(sess)
	tmpl, err := ts.Create(r.Context(), store.CreateTemplateParams{
		TemplateID:          req.TemplateID,
		Version:             req.Version,
		Fingerprint:         req.Fingerprint,
		StructuralFeatures:  req.StructuralFeatures,
		BaselineReliability: req.BaselineReliability,
		CorrectionRules:     req.CorrectionRules,
	})
	if err != nil {
		h.logger.Error("creating template", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to create template", err))
		return
	}

	if h.index != nil {
		if err := h.index.Add(r.Context(), tmpl.ID, id.TenantID.String(), tmpl.StructuralFeatures); err != nil {
			h.logger.Warn("indexing template for LSH retrieval", "error", err, "template_id", tmpl.ID)
		}
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionTemplateCreated, &id.TenantID, id.APIKeyID, "template", tmpl.ID, map[string]any{
			"template_id": tmpl.TemplateID, "version": tmpl.Version,
		}))
	}

	httpserver.Respond(w, http.StatusCreated, tmpl)
}

func (h *TemplateHandler) handleList(w http.ResponseWriter, r *http.Request) {
	sess := store.FromContext(r.Context())
	if sess == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, err.Error())
		return
	}

	ts := store.NewTemplateStore(sess)
	items, total, err := ts.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing templates", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to list templates", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *TemplateHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess := store.FromContext(r.Context())
	if sess == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	ts := store.NewTemplateStore(sess)
	tmpl, err := ts.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("fetching template", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to fetch template", err))
		return
	}
	if tmpl == nil {
		httpserver.RespondAppErr(w, apperr.NotFound(apperr.CodeTemplateNotFound, "template not found"))
		return
	}

	httpserver.Respond(w, http.StatusOK, tmpl)
}

func (h *TemplateHandler) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id := auth.FromContext(r.Context())
	sess := store.FromContext(r.Context())
	if id == nil || sess == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	templateID := chi.URLParam(r, "id")
	ts := store.NewTemplateStore(sess)
	if err := ts.UpdateStatus(r.Context(), templateID, req.Status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondAppErr(w, apperr.NotFound(apperr.CodeTemplateNotFound, "template not found"))
			return
		}
		h.logger.Error("updating template status", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to update template status", err))
		return
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionTemplateUpdated, &id.TenantID, id.APIKeyID, "template", templateID, map[string]any{
			"status": req.Status,
		}))
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"id": templateID, "status": string(req.Status)})
}

func (h *TemplateHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := auth.FromContext(r.Context())
	sess := store.FromContext(r.Context())
	if id == nil || sess == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	templateID := chi.URLParam(r, "id")
	ts := store.NewTemplateStore(sess)
	if err := ts.Delete(r.Context(), templateID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondAppErr(w, apperr.NotFound(apperr.CodeTemplateNotFound, "template not found"))
			return
		}
		h.logger.Error("deleting template", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to delete template", err))
		return
	}

	if h.index != nil {
		if err := h.index.Remove(r.Context(), templateID); err != nil {
			h.logger.Warn("removing template from LSH index", "error", err, "template_id", templateID)
		}
	}

	if h.audit != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionTemplateUpdated, &id.TenantID, id.APIKeyID, "template", templateID, map[string]any{
			"deleted": true,
		}))
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
