package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preflight/governor/internal/apperr"
	"github.com/preflight/governor/internal/audit"
	"github.com/preflight/governor/internal/store"
)

// apiKeyRow is what the identity lookup needs from the api_keys/tenants
// join, unscoped (tenant isolation hasn't been established yet — that's
// what authenticating gives us).
type apiKeyRow struct {
	keyID      uuid.UUID
	keyName    string
	tenantID   uuid.UUID
	tenantName string
	keyHash    string
	scopes     []string
	rateLimit  int
	revokedAt  *time.Time
}

func lookupAPIKey(ctx context.Context, q store.Querier, prefix string) (*apiKeyRow, error) {
	var row apiKeyRow
	err := q.QueryRow(ctx, `
		SELECT k.id, k.name, k.tenant_id, t.name, k.key_hash, k.scopes, k.rate_limit, k.revoked_at
		FROM api_keys k
		JOIN tenants t ON t.id = k.tenant_id
		WHERE k.key_prefix = $1`, prefix,
	).Scan(&row.keyID, &row.keyName, &row.tenantID, &row.tenantName, &row.keyHash, &row.scopes, &row.rateLimit, &row.revokedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func touchLastUsed(pool store.Querier, keyID uuid.UUID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, _ = pool.Exec(ctx, `UPDATE api_keys SET last_used_at = now() WHERE id = $1`, keyID)
	}()
}

// Middleware authenticates incoming requests against the X-API-Key
// header, resolves tenant isolation, and populates the request context
// with an Identity and a tenant-scoped store session. It replaces the
// originating codebase's OIDC/session-cookie chain entirely: every
// authenticated API call here carries a service-issued API key, not a
// browser session.
type Middleware struct {
	store *store.Gateway
	salt  string
	audit *audit.Writer
}

func NewMiddleware(st *store.Gateway, apiKeySalt string, aw *audit.Writer) *Middleware {
	return &Middleware{store: st, salt: apiKeySalt, audit: aw}
}

// RequireAPIKey authenticates the request and, on success, wraps the
// handler's context with both the caller's Identity and a tenant-scoped
// database session (released automatically once the handler returns).
func (m *Middleware) RequireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		if raw == "" {
			m.authFailed(r, "", "missing")
			writeAuthError(w, apperr.Auth(apperr.CodeMissingAPIKey, "X-API-Key header is required"))
			return
		}
		if !IsValidAPIKeyFormat(raw) {
			m.authFailed(r, raw[:min(len(raw), 8)], "invalid")
			writeAuthError(w, apperr.Auth(apperr.CodeInvalidAPIKey, "API key format is invalid"))
			return
		}

		prefix := raw[:8]
		row, err := lookupAPIKey(r.Context(), m.store.Unscoped(), prefix)
		if err != nil {
			writeAuthError(w, apperr.Infra(apperr.CodeInternalError, "looking up API key", err))
			return
		}
		if row == nil || !VerifyAPIKeyHash(HashAPIKey(m.salt, raw), row.keyHash) {
			m.authFailed(r, prefix, "invalid")
			writeAuthError(w, apperr.Auth(apperr.CodeInvalidAPIKey, "API key is invalid"))
			return
		}
		if row.revokedAt != nil {
			m.authFailed(r, prefix, "revoked")
			writeAuthError(w, apperr.Auth(apperr.CodeRevokedAPIKey, "API key has been revoked"))
			return
		}

		touchLastUsed(m.store.Unscoped(), row.keyID)

		id := &Identity{
			TenantID:   row.tenantID,
			TenantName: row.tenantName,
			APIKeyID:   &row.keyID,
			APIKeyName: row.keyName,
			Scopes:     row.scopes,
			RateLimit:  row.rateLimit,
		}

		sess, err := m.store.WithTenant(r.Context(), row.tenantID)
		if err != nil {
			writeAuthError(w, apperr.Infra(apperr.CodeInternalError, "establishing tenant session", err))
			return
		}
		defer sess.Release()

		ctx := NewContext(r.Context(), id)
		ctx = store.NewContext(ctx, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope rejects requests whose identity lacks scope s. Must run
// after RequireAPIKey.
func (m *Middleware) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil || !id.HasScope(scope) {
				writeAuthError(w, apperr.Forbidden(apperr.CodeInsufficientPerms, "missing required scope: "+scope))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m *Middleware) authFailed(r *http.Request, keyPrefix, reason string) {
	if m.audit == nil {
		return
	}
	m.audit.LogFromRequest(r, audit.New(audit.ActionAuthFailed, nil, nil, "api_key", keyPrefix, map[string]any{
		"reason": reason,
	}))
}

// writeAuthError is a minimal envelope writer local to this package so
// auth failures don't depend on the HTTP surface package; the HTTP
// surface's central error handler renders the same envelope for errors
// returned from handlers further down the chain.
func writeAuthError(w http.ResponseWriter, err *apperr.Error) {
	status := http.StatusUnauthorized
	switch err.Kind {
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindInfra:
		status = http.StatusInternalServerError
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "ApiKey")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"code":"` + err.Code + `","message":"` + strings.ReplaceAll(err.Message, `"`, `'`) + `"}`))
}
