// apikeys.go is the persistence side of API key administration: the
// column set auth/middleware.go's lookupAPIKey expects, with a
// key_prefix/key_hash pair, a scopes array, and a per-key rate_limit
// override, queried over the unscoped pool.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/preflight/governor/internal/idgen"
)

// APIKey is an API key row as returned to admin callers. KeyHash is
// never exposed; the raw key is returned exactly once, at creation or
// rotation time, by the caller that holds it.
type APIKey struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	Name       string
	Prefix     string
	Scopes     []string
	RateLimit  int
	LastUsedAt *time.Time
	RevokedAt  *time.Time
	CreatedAt  time.Time
}

const apiKeyColumns = `id, tenant_id, name, key_prefix, scopes, rate_limit, last_used_at, revoked_at, created_at`

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var k APIKey
	err := row.Scan(&k.ID, &k.TenantID, &k.Name, &k.Prefix, &k.Scopes, &k.RateLimit, &k.LastUsedAt, &k.RevokedAt, &k.CreatedAt)
	return k, err
}

// APIKeyStore operates on the unscoped pool: authentication happens
// before a tenant session exists, and admin tooling manages keys across
// (or within) tenants by explicit tenant_id filter rather than RLS.
type APIKeyStore struct {
	q Querier
}

func NewAPIKeyStore(q Querier) *APIKeyStore {
	return &APIKeyStore{q: q}
}

// CreateAPIKeyParams is the input to Create.
type CreateAPIKeyParams struct {
	TenantID  uuid.UUID
	Name      string
	KeyHash   string
	Prefix    string
	Scopes    []string
	RateLimit int
}

// Create inserts a new, unrevoked API key row.
func (s *APIKeyStore) Create(ctx context.Context, p CreateAPIKeyParams) (*APIKey, error) {
	row := s.q.QueryRow(ctx, `
		INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, rate_limit, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		RETURNING `+apiKeyColumns,
		idgen.New(), p.TenantID, p.Name, p.KeyHash, p.Prefix, p.Scopes, p.RateLimit,
	)
	k, err := scanAPIKey(row)
	if err != nil {
		return nil, fmt.Errorf("creating api key: %w", err)
	}
	return &k, nil
}

// List returns every API key belonging to tenantID, newest first.
func (s *APIKeyStore) List(ctx context.Context, tenantID uuid.UUID) ([]*APIKey, error) {
	rows, err := s.q.Query(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE tenant_id = $1 ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	defer rows.Close()

	var out []*APIKey
	for rows.Next() {
		k, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning api key row: %w", err)
		}
		out = append(out, &k)
	}
	return out, rows.Err()
}

// Get fetches a single key by ID, regardless of tenant, for ownership
// checks before a mutation.
func (s *APIKeyStore) Get(ctx context.Context, id uuid.UUID) (*APIKey, error) {
	row := s.q.QueryRow(ctx, `SELECT `+apiKeyColumns+` FROM api_keys WHERE id = $1`, id)
	k, err := scanAPIKey(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &k, nil
}

// Revoke marks a key unusable without deleting its row, preserving it
// for audit history.
func (s *APIKeyStore) Revoke(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `UPDATE api_keys SET revoked_at = now() WHERE id = $1 AND revoked_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete permanently removes a key row.
func (s *APIKeyStore) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
