// Package audit is the append-only audit log (C6). Entries are
// sanitized, then either written on the caller's tenant-scoped session
// (left uncommitted — the caller owns the transaction) or enqueued on an
// async buffered Writer that owns its own unscoped connection. audit_log
// itself carries no row-level-security policy: it is intentionally
// queryable across tenants by admin tooling.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/preflight/governor/internal/idgen"
)

// Action enumerates audit event types.
type Action string

const (
	ActionAPIKeyCreated       Action = "api_key_created"
	ActionAPIKeyRotated       Action = "api_key_rotated"
	ActionAPIKeyRevoked       Action = "api_key_revoked"
	ActionTemplateCreated     Action = "template_created"
	ActionTemplateUpdated     Action = "template_updated"
	ActionEvaluationRequested Action = "evaluation_requested"
	ActionAuthFailed          Action = "auth_failed"
	ActionRateLimitExceeded   Action = "rate_limit_exceeded"
	ActionTenantCreated       Action = "tenant_created"
	ActionTenantUpdated       Action = "tenant_updated"
	ActionTenantDeleted       Action = "tenant_deleted"
)

// warnLevelActions are logged at WARNING instead of INFO.
var warnLevelActions = map[Action]bool{
	ActionAuthFailed:        true,
	ActionRateLimitExceeded: true,
}

// Entry is a single audit log row to be written.
type Entry struct {
	ID           uuid.UUID
	Timestamp    time.Time
	TenantID     *uuid.UUID
	ActorID      *uuid.UUID
	Action       Action
	ResourceType string
	ResourceID   string
	Details      map[string]any
	IPAddress    string
	RequestID    string
}

func newEntry(action Action) Entry {
	return Entry{
		ID:        idgen.New(),
		Timestamp: time.Now().UTC(),
		Action:    action,
	}
}

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Writer is an async, buffered audit log writer backed by its own
// connections (never the caller's tenant-scoped session).
type Writer struct {
	pool    *pgxpool.Pool
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

func NewWriter(pool *pgxpool.Pool, logger *slog.Logger) *Writer {
	return &Writer{pool: pool, logger: logger, entries: make(chan Entry, bufferSize)}
}

// Start begins the background flush loop.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close waits for all pending entries to be flushed.
func (w *Writer) Close() {
	close(w.entries)
	w.wg.Wait()
}

// Log sanitizes details, logs a structured line, and enqueues the entry
// for a background write. It never blocks the caller; a full buffer
// drops the entry with a logged warning, matching the failure semantics
// of an observability sink that must not throttle request traffic.
func (w *Writer) Log(e Entry) {
	e.Details = Sanitize(e.Details)
	w.logLine(e)

	select {
	case w.entries <- e:
	default:
		w.logger.Warn("audit log buffer full, dropping entry", "action", e.Action)
	}
}

func (w *Writer) logLine(e Entry) {
	level := slog.LevelInfo
	if warnLevelActions[e.Action] {
		level = slog.LevelWarn
	}
	w.logger.Log(context.Background(), level, "audit_event",
		"action", e.Action,
		"tenant_id", uuidOrNil(e.TenantID),
		"actor_id", uuidOrNil(e.ActorID),
		"resource_type", e.ResourceType,
		"resource_id", e.ResourceID,
		"request_id", e.RequestID,
	)
}

func uuidOrNil(u *uuid.UUID) string {
	if u == nil {
		return ""
	}
	return u.String()
}

// LogFromRequest fills IP and request id from an HTTP request before
// enqueuing the entry.
func (w *Writer) LogFromRequest(r *http.Request, e Entry) {
	e.IPAddress = clientIP(r)
	if rid := r.Header.Get("X-Request-ID"); rid != "" {
		e.RequestID = rid
	}
	w.Log(e)
}

// New constructs a populated Entry ready for Log / LogFromRequest.
func New(action Action, tenantID, actorID *uuid.UUID, resourceType, resourceID string, details map[string]any) Entry {
	e := newEntry(action)
	e.TenantID = tenantID
	e.ActorID = actorID
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	e.Details = details
	return e
}

// Execer is the minimal surface WriteScoped needs; store.Session and
// store.Gateway.Unscoped() both satisfy it without this package
// depending on the store package's concrete types.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// WriteScoped inserts e on the caller's own session/transaction without
// committing — the caller owns the transaction boundary, so an error
// here surfaces to the caller exactly like any other write in the same
// unit of work. Use this for audit events that must be atomic with the
// business write they describe (e.g. a template creation and its audit
// row succeeding or failing together); use Writer.Log for independent,
// best-effort entries (e.g. EVALUATION_REQUESTED after commit).
func WriteScoped(ctx context.Context, q Execer, e Entry) error {
	e.Details = Sanitize(e.Details)
	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO audit_log
			(id, created_at, tenant_id, actor_id, action, resource_type, resource_id, details, ip_address, request_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.Timestamp, e.TenantID, e.ActorID, string(e.Action), e.ResourceType, e.ResourceID, detailsJSON, e.IPAddress, e.RequestID,
	)
	return err
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		w.flush(batch)
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(entries []Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		w.logger.Error("acquiring connection for audit flush", "error", err)
		return
	}
	defer conn.Release()

	for _, e := range entries {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			w.logger.Error("marshaling audit details", "error", err, "action", e.Action)
			continue
		}

		_, err = conn.Exec(ctx, `
			INSERT INTO audit_log
				(id, created_at, tenant_id, actor_id, action, resource_type, resource_id, details, ip_address, request_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			e.ID, e.Timestamp, e.TenantID, e.ActorID, string(e.Action), e.ResourceType, e.ResourceID, detailsJSON, e.IPAddress, e.RequestID,
		)
		if err != nil {
			w.logger.Error("writing audit log entry", "error", err, "action", e.Action)
		}
	}
}

// clientIP extracts the client IP, preferring X-Forwarded-For and
// X-Real-IP over RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.SplitN(xff, ",", 2)
		if addr, err := netip.ParseAddr(strings.TrimSpace(parts[0])); err == nil {
			return addr.String()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.String()
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		return addr.String()
	}
	return ""
}
