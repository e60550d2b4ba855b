// Package store is the persistence gateway (C2). It hands out two kinds
// of database session: unscoped, for admin/cross-tenant queries and
// identity lookups that precede tenant resolution, and tenant-scoped,
// which sets the row-level-security session variable `app.tenant_id`
// before any other statement runs on that connection so every
// tenant-scoped table's RLS policy confines visibility automatically.
//
// This replaces the schema-per-tenant + search_path pattern the
// originating codebase used for the same purpose: one dedicated
// connection per request, but the isolation mechanism is a session GUC
// consumed by `USING (tenant_id = current_setting('app.tenant_id')::uuid)`
// policies rather than a `search_path` pointed at `tenant_<slug>`.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is the narrow surface both a pooled connection and a
// transaction satisfy; domain stores depend on this, not on pgxpool
// directly, so they work identically scoped or unscoped.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Gateway owns the pool and constructs scoped and unscoped sessions.
type Gateway struct {
	Pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Gateway {
	return &Gateway{Pool: pool}
}

// Unscoped returns the pool itself for queries that are not tenant
// scoped: admin tooling across tenants, audit log queries, and the
// identity lookups (API key hash, tenant row) that run before a tenant
// is known.
func (g *Gateway) Unscoped() *pgxpool.Pool {
	return g.Pool
}

// Session is a tenant-scoped database session: one dedicated connection
// with `app.tenant_id` set for its lifetime. Callers must call Release
// when done, typically via a defer registered immediately after
// WithTenant returns.
type Session struct {
	conn     *pgxpool.Conn
	TenantID uuid.UUID
}

// Exec, Query and QueryRow proxy to the underlying scoped connection.
func (s *Session) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.conn.Exec(ctx, sql, args...)
}

func (s *Session) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.conn.Query(ctx, sql, args...)
}

func (s *Session) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.conn.QueryRow(ctx, sql, args...)
}

// Release returns the underlying connection to the pool.
func (s *Session) Release() {
	if s != nil && s.conn != nil {
		s.conn.Release()
	}
}

// WithTenant acquires a dedicated connection and sets the RLS session
// variable for tenantID. The caller owns the returned Session and must
// Release it.
func (g *Gateway) WithTenant(ctx context.Context, tenantID uuid.UUID) (*Session, error) {
	conn, err := g.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT set_config('app.tenant_id', $1, false)", tenantID.String()); err != nil {
		conn.Release()
		return nil, fmt.Errorf("setting tenant context: %w", err)
	}

	return &Session{conn: conn, TenantID: tenantID}, nil
}

// contextKey is an unexported type to avoid context key collisions.
type contextKey int

const sessionKey contextKey = iota

// NewContext stores a tenant-scoped Session on ctx for handlers and
// services to retrieve without threading it through every call.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// FromContext retrieves the tenant-scoped Session, or nil if none was
// set (e.g. on unauthenticated routes).
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(sessionKey).(*Session)
	return s
}
