package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lishushu94/provider-console/internal/audit"
)

// AuditRepo persists and reads the provider audit trail. It shares the
// console's pool but stays a separate type: the gateway links the write
// side only.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// NewAuditRepoFrom reuses an existing provider repo's pool.
func NewAuditRepoFrom(r *ProviderRepo) *AuditRepo {
	return &AuditRepo{pool: r.pool}
}

func (r *AuditRepo) WriteBatch(ctx context.Context, entries []audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	const numFields = 13
	var sb strings.Builder
	vals := make([]interface{}, 0, len(entries)*numFields)

	for i, e := range entries {
		if i > 0 {
			sb.WriteString(",")
		}
		p := i * numFields
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10, p+11, p+12, p+13)

		vals = append(vals,
			e.ID, e.TraceID, e.ProviderID, string(e.Kind), e.Actor, e.Action,
			e.FromStatus, e.ToStatus, e.Remark, e.Status, e.Error, e.DurationMs, e.Timestamp,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO audit_entries
			(id, trace_id, provider_id, kind, actor, action,
			 from_status, to_status, remark, status, error, duration_ms, timestamp)
		VALUES %s`, sb.String())

	_, err := r.pool.Exec(ctx, query, vals...)
	if err != nil {
		return fmt.Errorf("postgres: failed to write audit batch: %w", err)
	}
	return nil
}

// FetchRecent returns the latest trail entries for a provider, newest first.
func (r *AuditRepo) FetchRecent(ctx context.Context, providerID string, limit int) ([]audit.Entry, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
		SELECT id, trace_id, provider_id, kind, actor, action,
		       from_status, to_status, remark, status, error, duration_ms, timestamp
		FROM audit_entries`

	var args []interface{}
	if providerID != "" {
		query += " WHERE provider_id = $1"
		args = append(args, providerID)
	}
	query += fmt.Sprintf(" ORDER BY timestamp DESC LIMIT %d", limit)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query audit entries: %w", err)
	}
	defer rows.Close()

	results := make([]audit.Entry, 0)
	for rows.Next() {
		var e audit.Entry
		var kind string
		err := rows.Scan(
			&e.ID, &e.TraceID, &e.ProviderID, &kind, &e.Actor, &e.Action,
			&e.FromStatus, &e.ToStatus, &e.Remark, &e.Status, &e.Error, &e.DurationMs, &e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan audit entry: %w", err)
		}
		e.Kind = audit.EntryKind(kind)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}
