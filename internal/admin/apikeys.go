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

// APIKeyRequest is the JSON body for POST /admin/tenants/{tenantID}/api-keys.
type APIKeyRequest struct {
	Name      string   `json:"name" validate:"required"`
	Scopes    []string `json:"scopes" validate:"required,min=1"`
	RateLimit int      `json:"rate_limit"`
}

// APIKeyResponse carries the raw key exactly once, at creation or
// rotation time; every other read exposes only the stored prefix.
type APIKeyResponse struct {
	*store.APIKey
	RawKey string `json:"raw_key,omitempty"`
}

// APIKeyHandler serves API key administration. Raw keys are generated
// via auth.GenerateAPIKey (cp_-prefixed) and stored only as a salted
// SHA-256 digest plus an unsalted 8-character lookup prefix.
type APIKeyHandler struct {
	logger *slog.Logger
	audit  *audit.Writer
	pool   *pgxpool.Pool
	salt   string
}

func NewAPIKeyHandler(logger *slog.Logger, aw *audit.Writer, pool *pgxpool.Pool, apiKeySalt string) *APIKeyHandler {
	return &APIKeyHandler{logger: logger, audit: aw, pool: pool, salt: apiKeySalt}
}

func (h *APIKeyHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Get("/", h.handleList)
	r.Post("/{id}/rotate", h.handleRotate)
	r.Delete("/{id}", h.handleRevoke)
	return r
}

func (h *APIKeyHandler) tenantID(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	return id, err == nil
}

func (h *APIKeyHandler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req APIKeyRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	tenantID, ok := h.tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}

	raw, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.Error("generating api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to generate api key", err))
		return
	}

	ks := store.NewAPIKeyStore(h.pool)
	k, err := ks.Create(r.Context(), store.CreateAPIKeyParams{
		TenantID:  tenantID,
		Name:      req.Name,
		KeyHash:   auth.HashAPIKey(h.salt, raw),
		Prefix:    prefix,
		Scopes:    req.Scopes,
		RateLimit: req.RateLimit,
	})
	if err != nil {
		h.logger.Error("creating api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to create api key", err))
		return
	}

	if h.audit != nil {
		caller := auth.FromContext(r.Context())
		var actorID *uuid.UUID
		if caller != nil {
			actorID = caller.APIKeyID
		}
		h.audit.LogFromRequest(r, audit.New(audit.ActionAPIKeyCreated, &tenantID, actorID, "api_key", k.ID.String(), map[string]any{
			"name": k.Name, "scopes": k.Scopes,
		}))
	}

	httpserver.Respond(w, http.StatusCreated, APIKeyResponse{APIKey: k, RawKey: raw})
}

func (h *APIKeyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}

	ks := store.NewAPIKeyStore(h.pool)
	items, err := ks.List(r.Context(), tenantID)
	if err != nil {
		h.logger.Error("listing api keys", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to list api keys", err))
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]any{"keys": items, "count": len(items)})
}

// handleRotate issues a fresh key for the same tenant/name/scopes and
// revokes the old one in the same request, so a compromised key can be
// replaced without a window where both are unusable.
func (h *APIKeyHandler) handleRotate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}
	oldID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid api key id")
		return
	}

	unscopedKS := store.NewAPIKeyStore(h.pool)
	old, err := unscopedKS.Get(r.Context(), oldID)
	if err != nil {
		h.logger.Error("fetching api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to fetch api key", err))
		return
	}
	if old == nil || old.TenantID != tenantID {
		httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "api key not found")
		return
	}

	raw, prefix, err := auth.GenerateAPIKey()
	if err != nil {
		h.logger.Error("generating api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to generate api key", err))
		return
	}

	// Create the replacement and revoke the original in the same
	// transaction: a crash or error between the two must never leave
	// both keys simultaneously active.
	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.logger.Error("beginning api key rotation transaction", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to rotate api key", err))
		return
	}
	defer tx.Rollback(r.Context())

	ks := store.NewAPIKeyStore(tx)
	fresh, err := ks.Create(r.Context(), store.CreateAPIKeyParams{
		TenantID:  tenantID,
		Name:      old.Name,
		KeyHash:   auth.HashAPIKey(h.salt, raw),
		Prefix:    prefix,
		Scopes:    old.Scopes,
		RateLimit: old.RateLimit,
	})
	if err != nil {
		h.logger.Error("creating rotated api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to create api key", err))
		return
	}

	if err := ks.Revoke(r.Context(), oldID); err != nil && err != pgx.ErrNoRows {
		h.logger.Error("revoking old api key during rotation", "error", err, "old_id", oldID)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to rotate api key", err))
		return
	}

	if err := tx.Commit(r.Context()); err != nil {
		h.logger.Error("committing api key rotation", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to rotate api key", err))
		return
	}

	if h.audit != nil {
		caller := auth.FromContext(r.Context())
		var actorID *uuid.UUID
		if caller != nil {
			actorID = caller.APIKeyID
		}
		h.audit.LogFromRequest(r, audit.New(audit.ActionAPIKeyRotated, &tenantID, actorID, "api_key", fresh.ID.String(), map[string]any{
			"replaced_key_id": oldID.String(),
		}))
	}

	httpserver.Respond(w, http.StatusCreated, APIKeyResponse{APIKey: fresh, RawKey: raw})
}

func (h *APIKeyHandler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := h.tenantID(r)
	if !ok {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid tenant id")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apperr.CodeInvalidRequest, "invalid api key id")
		return
	}

	ks := store.NewAPIKeyStore(h.pool)
	k, err := ks.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("fetching api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to fetch api key", err))
		return
	}
	if k == nil || k.TenantID != tenantID {
		httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "api key not found")
		return
	}

	if err := ks.Revoke(r.Context(), id); err != nil {
		if err == pgx.ErrNoRows {
			httpserver.RespondError(w, http.StatusNotFound, apperr.CodeInvalidRequest, "api key not found or already revoked")
			return
		}
		h.logger.Error("revoking api key", "error", err)
		httpserver.RespondAppErr(w, apperr.Infra(apperr.CodeInternalError, "failed to revoke api key", err))
		return
	}

	if h.audit != nil {
		caller := auth.FromContext(r.Context())
		var actorID *uuid.UUID
		if caller != nil {
			actorID = caller.APIKeyID
		}
		h.audit.LogFromRequest(r, audit.New(audit.ActionAPIKeyRevoked, &tenantID, actorID, "api_key", id.String(), nil))
	}

	httpserver.Respond(w, http.StatusNoContent, nil)
}
