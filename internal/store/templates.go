// Package store's templates.go is the persistence side of template
// governance: CRUD for the template registry plus the read paths the
// matcher and evaluation orchestrator depend on.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/preflight/governor/internal/governance"
	"github.com/preflight/governor/internal/idgen"
)

const templateColumns = `id, tenant_id, template_id, version, fingerprint, structural_features,
	baseline_reliability, correction_rules, status, created_at, updated_at`

// TemplateStore provides template registry operations over a
// tenant-scoped Querier (every template row is RLS-confined to the
// caller's tenant).
type TemplateStore struct {
	q Querier
}

func NewTemplateStore(q Querier) *TemplateStore {
	return &TemplateStore{q: q}
}

func scanTemplate(row pgx.Row) (governance.Template, error) {
	var (
		t          governance.Template
		featuresJS []byte
		rulesJS    []byte
	)
	err := row.Scan(
		&t.ID, &t.TenantID, &t.TemplateID, &t.Version, &t.Fingerprint, &featuresJS,
		&t.BaselineReliability, &rulesJS, &t.Status, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return governance.Template{}, err
	}
	if err := json.Unmarshal(featuresJS, &t.StructuralFeatures); err != nil {
		return governance.Template{}, fmt.Errorf("decoding structural_features: %w", err)
	}
	if len(rulesJS) > 0 {
		if err := json.Unmarshal(rulesJS, &t.CorrectionRules); err != nil {
			return governance.Template{}, fmt.Errorf("decoding correction_rules: %w", err)
		}
	}
	return t, nil
}

// FindByFingerprint looks up an active template by exact structural
// fingerprint, satisfying matcher.TemplateLookup.
func (s *TemplateStore) FindByFingerprint(ctx context.Context, fingerprint string) (*governance.Template, error) {
	row := s.q.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE fingerprint = $1 AND status = 'ACTIVE' ORDER BY version DESC LIMIT 1`, fingerprint)
	t, err := scanTemplate(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ActiveTemplate returns the active template row for templateID,
// satisfying matcher.TemplateLookup.
func (s *TemplateStore) ActiveTemplate(ctx context.Context, templateID string) (*governance.Template, error) {
	row := s.q.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE template_id = $1 AND status = 'ACTIVE' ORDER BY version DESC LIMIT 1`, templateID)
	t, err := scanTemplate(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// ListActive returns every active template for the caller's tenant,
// satisfying matcher.TemplateLookup's full-scan fallback path.
func (s *TemplateStore) ListActive(ctx context.Context) ([]*governance.Template, error) {
	rows, err := s.q.Query(ctx, `SELECT `+templateColumns+` FROM templates WHERE status = 'ACTIVE'`)
	if err != nil {
		return nil, fmt.Errorf("listing active templates: %w", err)
	}
	defer rows.Close()

	var out []*governance.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Get fetches a single template by its primary key, regardless of status.
func (s *TemplateStore) Get(ctx context.Context, id string) (*governance.Template, error) {
	row := s.q.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = $1`, id)
	t, err := scanTemplate(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// List returns every template for the tenant regardless of status,
// paginated by offset.
func (s *TemplateStore) List(ctx context.Context, limit, offset int) ([]*governance.Template, int, error) {
	var total int
	if err := s.q.QueryRow(ctx, `SELECT count(*) FROM templates`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting templates: %w", err)
	}

	rows, err := s.q.Query(ctx, `SELECT `+templateColumns+` FROM templates
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var out []*governance.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scanning template row: %w", err)
		}
		out = append(out, &t)
	}
	return out, total, rows.Err()
}

// CreateTemplateParams is the input to Create.
type CreateTemplateParams struct {
	TemplateID          string
	Version             string
	Fingerprint         string
	StructuralFeatures  governance.StructuralFeatures
	BaselineReliability float64
	CorrectionRules     []governance.CorrectionRule
}

// Create inserts a new template version, always in ACTIVE status.
func (s *TemplateStore) Create(ctx context.Context, p CreateTemplateParams) (*governance.Template, error) {
	featuresJS, err := json.Marshal(p.StructuralFeatures)
	if err != nil {
		return nil, fmt.Errorf("encoding structural_features: %w", err)
	}
	rulesJS, err := json.Marshal(p.CorrectionRules)
	if err != nil {
		return nil, fmt.Errorf("encoding correction_rules: %w", err)
	}

	row := s.q.QueryRow(ctx, `
		INSERT INTO templates (id, template_id, version, fingerprint, structural_features,
			baseline_reliability, correction_rules, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'ACTIVE', now(), now())
		RETURNING `+templateColumns,
		idgen.New(), p.TemplateID, p.Version, p.Fingerprint, featuresJS, p.BaselineReliability, rulesJS,
	)
	t, err := scanTemplate(row)
	if err != nil {
		return nil, fmt.Errorf("creating template: %w", err)
	}
	return &t, nil
}

// UpdateStatus transitions a template's lifecycle status (ACTIVE,
// DEPRECATED, REVIEW).
func (s *TemplateStore) UpdateStatus(ctx context.Context, id string, status governance.TemplateStatus) error {
	tag, err := s.q.Exec(ctx, `UPDATE templates SET status = $1, updated_at = now() WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating template status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// Delete permanently removes a template version.
func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	tag, err := s.q.Exec(ctx, `DELETE FROM templates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ProviderStore resolves extractor provider configuration by vendor, on
// the unscoped (cross-tenant) connection pool: providers are global
// reference data, not tenant data.
type ProviderStore struct {
	q Querier
}

func NewProviderStore(q Querier) *ProviderStore {
	return &ProviderStore{q: q}
}

// ByVendor satisfies evaluate.ProviderLookup.
func (s *ProviderStore) ByVendor(ctx context.Context, vendor string) (*governance.ExtractorProvider, error) {
	var (
		p             governance.ExtractorProvider
		supportedJSON []byte
	)
	err := s.q.QueryRow(ctx, `
		SELECT display_name, supported_element_types, typical_latency_ms, confidence_multiplier
		FROM extractor_providers WHERE lower(vendor) = lower($1)`, vendor,
	).Scan(&p.DisplayName, &supportedJSON, &p.TypicalLatencyMS, &p.ConfidenceMultiplier)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("looking up extractor provider: %w", err)
	}
	if err := json.Unmarshal(supportedJSON, &p.SupportedElementTypes); err != nil {
		return nil, fmt.Errorf("decoding supported_element_types: %w", err)
	}
	return &p, nil
}
