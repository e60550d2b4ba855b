// tenants.go is the persistence side of tenant administration. Unlike
// the originating codebase's Provisioner, creating a tenant here is a
// single row insert: there is no per-tenant schema to create or
// migrate, because row-level security on the shared tables is what
// isolates tenants now (see store.go).
package store

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preflight/governor/internal/idgen"
)

// slugPattern restricts tenant slugs to safe, URL-friendly identifiers.
var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9-]{1,62}$`)

// Tenant is a governed organization: the root of every RLS policy's
// isolation boundary.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	Slug      string
	RateLimit int
	CreatedAt time.Time
}

const tenantColumns = `id, name, slug, rate_limit, created_at`

func scanTenant(row pgx.Row) (Tenant, error) {
	var t Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.RateLimit, &t.CreatedAt)
	return t, err
}

// TenantStore operates on the unscoped pool: tenant rows are the
// isolation root, so they cannot themselves be RLS-scoped.
type TenantStore struct {
	q Querier
}

func NewTenantStore(q Querier) *TenantStore {
	return &TenantStore{q: q}
}

// Create provisions a new tenant: validates the slug, inserts the row.
// No schema creation, no migrations — the shared tables already exist
// and the tenant's rows simply appear as it starts using API keys
// scoped to its tenant_id.
func (s *TenantStore) Create(ctx context.Context, name, slug string, rateLimit int) (*Tenant, error) {
	if !slugPattern.MatchString(slug) {
		return nil, fmt.Errorf("invalid tenant slug %q: must match %s", slug, slugPattern.String())
	}
	if rateLimit <= 0 {
		rateLimit = 1000
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO tenants (id, name, slug, rate_limit, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING `+tenantColumns,
		idgen.New(), name, slug, rateLimit,
	)
	t, err := scanTenant(row)
	if err != nil {
		return nil, fmt.Errorf("creating tenant: %w", err)
	}
	return &t, nil
}

// Get fetches a tenant by ID.
func (s *TenantStore) Get(ctx context.Context, id uuid.UUID) (*Tenant, error) {
	row := s.q.QueryRow(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenant(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// List returns every tenant, newest first.
func (s *TenantStore) List(ctx context.Context, limit, offset int) ([]*Tenant, int, error) {
	var total int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM tenants`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting tenants: %w", err)
	}

	rows, err := s.q.Query(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing tenants: %w", err)
	}
	defer rows.Close()

	var out []*Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning tenant row: %w", err)
		}
		out = append(out, &t)
	}
	return out, total, rows.Err()
}

// UpdateRateLimit changes a tenant's default per-minute request budget.
func (s *TenantStore) UpdateRateLimit(ctx context.Context, id uuid.UUID, rateLimit int) error {
	tag, err := s.q.Exec(ctx, `UPDATE tenants SET rate_limit = $1 WHERE id = $2`, rateLimit, id)
	if err != nil {
		return fmt.Errorf("updating tenant rate limit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete removes a tenant. Every tenant-scoped table carries
// `ON DELETE CASCADE` on its tenant_id foreign key, so this also
// removes the tenant's templates, API keys and evaluation history.
func (s *TenantStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM tenants WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
