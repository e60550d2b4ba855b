// audit.go is the read side of the audit log: admin tooling's query
// path over the rows internal/audit.Writer appends. It lives in store,
// not audit, so audit stays write-only and dependency-free of the
// Querier/Gateway split.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AuditEntry is a single audit_log row as returned to a caller.
type AuditEntry struct {
	ID           uuid.UUID
	CreatedAt    time.Time
	TenantID     *uuid.UUID
	ActorID      *uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	RequestID    string
}

// AuditStore queries the append-only audit log. It operates on the
// unscoped pool since audit_log carries no row-level-security policy:
// a tenant admin's view is narrowed by an explicit tenant_id filter,
// not by RLS, so a superadmin can still run an unfiltered query.
type AuditStore struct {
	q Querier
}

func NewAuditStore(q Querier) *AuditStore {
	return &AuditStore{q: q}
}

// ListCursor returns audit entries newest-first using keyset pagination:
// callers fetch limit+1 rows and the caller detects HasMore from the
// extra row. afterCreatedAt/afterID, when both set, exclude rows at or
// after that position. Audit logs are append-only and grow without
// bound, so offset pagination degrades on deep pages; keyset avoids
// the large OFFSET scan entirely.
func (s *AuditStore) ListCursor(ctx context.Context, tenantID *uuid.UUID, afterCreatedAt *time.Time, afterID *uuid.UUID, limit int) ([]*AuditEntry, error) {
	const cols = `id, created_at, tenant_id, actor_id, action, resource_type, resource_id, details, ip_address, request_id`

	var (
		rows pgx.Rows
		err  error
	)
	switch {
	case tenantID != nil && afterCreatedAt != nil:
		rows, err = s.q.Query(ctx, `SELECT `+cols+` FROM audit_log
			WHERE tenant_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC LIMIT $4`, *tenantID, *afterCreatedAt, *afterID, limit)
	case tenantID != nil:
		rows, err = s.q.Query(ctx, `SELECT `+cols+` FROM audit_log
			WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, *tenantID, limit)
	case afterCreatedAt != nil:
		rows, err = s.q.Query(ctx, `SELECT `+cols+` FROM audit_log
			WHERE (created_at, id) < ($1, $2)
			ORDER BY created_at DESC, id DESC LIMIT $3`, *afterCreatedAt, *afterID, limit)
	default:
		rows, err = s.q.Query(ctx, `SELECT `+cols+` FROM audit_log ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("listing audit entries: %w", err)
	}
	defer rows.Close()

	var out []*AuditEntry
	for rows.Next() {
		var (
			e          AuditEntry
			detailsRaw []byte
		)
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.TenantID, &e.ActorID, &e.Action, &e.ResourceType,
			&e.ResourceID, &detailsRaw, &e.IPAddress, &e.RequestID); err != nil {
			return nil, fmt.Errorf("scanning audit entry: %w", err)
		}
		if len(detailsRaw) > 0 {
			if err := json.Unmarshal(detailsRaw, &e.Details); err != nil {
				return nil, fmt.Errorf("decoding audit details: %w", err)
			}
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
