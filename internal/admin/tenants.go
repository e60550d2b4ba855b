// Package admin mounts tenant and API key administration onto HTTP.
// Every route here except the evaluation breakdown (evaluations.go, which
// opens a tenant-scoped session) runs on the unscoped pool and requires the "admin"
// (own tenant) or "superadmin" (cross-tenant) scope, checked in
// internal/httpserver/server.go's route wiring rather than per-handler,
// so access is resolved before the handler runs.
package admin

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/audit"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/httpserver"
	"github.com/preflight/governor/internal/store"
)

// TenantRequest is the JSON body for POST /admin/tenants.
type TenantRequest struct {
	Name      string `json:"name" validate:"required"`
	Slug      string `json:"slug" validate:"required"`
	RateLimit int    `json:"rate_limit"`
}

// RateLimitRequest is the JSON body for PATCH /admin/tenants/{id}/rate-limit.
type RateLimitRequest struct {
	RateLimit int `json:"rate_limit" validate:"required,gt=0"`
}

// TenantHandler serves tenant administration. Every operation runs
// against the unscoped pool: tenants are the isolation root, so they
// cannot be RLS-scoped to themselves.
type TenantHandler struct {
	logger *slog.Logger
	audit  *audit.Writer
	pool   *pgxpool.Pool
}

func NewTenantHandler(logger *slog.Logger, aw *audit.Writer, pool *pgxpool.Pool) *TenantHandler {
	return &TenantHandler{logger: logger, audit: aw, pool: pool}
}

func (h *TenantHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}/rate-limit", h.handleUpdateRateLimit)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *TenantHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req TenantRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	caller := auth.FromContext(r.Context())
	ts := store.NewTenantStore(h.pool)
	t, err := ts.Create(r.Context(), req.Name, req.Slug, req.RateLimit)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, err.Error())
		return
	}

	if h.audit != nil && caller != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionTenantCreated, &t.ID, caller.APIKeyID, "tenant", t.ID.String(), map[string]any{
			"name": t.Name, "slug": t.Slug,
		}))
	}

	httpserver.Respond(w, http.StatusCreated, t)
}

func (h *TenantHandler) handleList(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, err.Error())
		return
	}

	ts := store.NewTenantStore(h.pool)
	items, total, err := ts.List(r.Context(), params.PageSize, params.Offset)
	if err != nil {
		h.logger.Error("listing tenants", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to list tenants", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(items, params, total))
}

func (h *TenantHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}

	ts := store.NewTenantStore(h.pool)
	t, err := ts.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("fetching tenant", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to fetch tenant", err))
		return
	}
	if t == nil {
		httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "tenant not found")
		return
	}

	httpserver.Respond(w, http.StatusOK, t)
}

func (h *TenantHandler) handleUpdateRateLimit(w http.ResponseWriter, r *http.Request) {
	var req RateLimitRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}

	caller := auth.FromContext(r.Context())
	ts := store.NewTenantStore(h.pool)
	if err := ts.UpdateRateLimit(r.Context(), id, req.RateLimit); err != nil {
		if err == pgx.ErrNoRows {
			httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "tenant not found")
			return
		}
		h.logger.Error("updating tenant rate limit", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to update tenant", err))
		return
	}

	if h.audit != nil && caller != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionTenantUpdated, &id, caller.APIKeyID, "tenant", id.String(), map[string]any{
			"rate_limit": req.RateLimit,
		}))
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"id": id, "rate_limit": req.RateLimit})
}

func (h *TenantHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}

	caller := auth.FromContext(r.Context())
	ts := store.NewTenantStore(h.pool)
	if err := ts.Delete(r.Context(), id); err != nil {
		if err == pgx.ErrNoRows {
			httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "tenant not found")
			return
		}
		h.logger.Error("deleting tenant", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to delete tenant", err))
		return
	}

	if h.audit != nil && caller != nil {
		h.audit.LogFromRequest(r, audit.New(audit.ActionTenantDeleted, &id, caller.APIKeyID, "tenant", id.String(), nil))
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
