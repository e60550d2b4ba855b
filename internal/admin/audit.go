package admin

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/auth"
	"github.com/preflight/governor/internal/httpserver"
	"github.com/preflight/governor/internal/store"
)

// AuditHandler serves GET /admin/audit-logs. A caller with only the
// "admin" scope is confined to its own tenant's entries regardless of
// a ?tenant_id filter it supplies; "superadmin" may query any tenant,
// or omit the filter entirely for a cross-tenant view.
type AuditHandler struct {
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func NewAuditHandler(logger *slog.Logger, pool *pgxpool.Pool) *AuditHandler {
	return &AuditHandler{logger: logger, pool: pool}
}

func (h *AuditHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	return r
}

func (h *AuditHandler) handleList(w http.ResponseWriter, r *http.Request) {
	caller := auth.FromContext(r.Context())
	if caller == nil {
		httpserver.RespondAppErr(w, apperr.Auth(apperr.CodeMissingAPIKey, "missing authentication"))
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, err.Error())
		return
	}

	tenantFilter := &caller.TenantID
	if caller.IsSuperadmin() {
		if q := r.URL.Query().Get("tenant_id"); q != "" {
			id, err := uuid.Parse(q)
			if err != nil {
				httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant_id")
				return
			}
			tenantFilter = &id
		} else {
			tenantFilter = nil
		}
	}

	var afterCreatedAt *time.Time
	var afterID *uuid.UUID
	if params.After != nil {
		afterCreatedAt = &params.After.CreatedAt
		afterID = &params.After.ID
	}

	as := store.NewAuditStore(h.pool)
	items, err := as.ListCursor(r.Context(), tenantFilter, afterCreatedAt, afterID, params.Limit+1)
	if err != nil {
		h.logger.Error("listing audit entries", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to list audit entries", err))
		return
	}

	page := httpserver.NewCursorPage(items, params.Limit, func(e *store.AuditEntry) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	httpserver.Respond(w, http.StatusOK, page)
}
