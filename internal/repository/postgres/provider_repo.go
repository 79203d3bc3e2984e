package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/infra"
)

type ProviderRepo struct {
	pool *pgxpool.Pool
}

// NewProviderRepo builds the pgx pool shared by all provider queries.
func NewProviderRepo(ctx context.Context, cfg infra.DatabaseConfig) (*ProviderRepo, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: invalid database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to create pool: %w", err)
	}
	return &ProviderRepo{pool: pool}, nil
}

func (r *ProviderRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *ProviderRepo) Close() {
	r.pool.Close()
}

const providerColumns = `id, name, vendor, base_url, owner_id, visibility,
	audit_status, operation_status, limit_qps, reject_reason,
	last_activity, created_at, updated_at`

func scanProvider(row pgx.Row) (*domain.Provider, error) {
	var p domain.Provider
	var limitQPS sql.NullInt32
	var rejectReason sql.NullString

	err := row.Scan(
		&p.ID, &p.Name, &p.Vendor, &p.BaseURL, &p.OwnerID, &p.Visibility,
		&p.Audit, &p.Operation, &limitQPS, &rejectReason,
		&p.LastActivity, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if limitQPS.Valid {
		v := int(limitQPS.Int32)
		p.LimitQPS = &v
	}
	if rejectReason.Valid {
		v := rejectReason.String
		p.RejectReason = &v
	}
	return &p, nil
}

func (r *ProviderRepo) GetProvider(ctx context.Context, id string) (*domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers WHERE id = $1`

	p, err := scanProvider(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to fetch provider: %w", err)
	}

	models, err := r.getModels(ctx, id)
	if err != nil {
		return nil, err
	}
	p.Models = models
	return p, nil
}

func (r *ProviderRepo) getModels(ctx context.Context, providerID string) ([]domain.ProviderModel, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT name, disabled FROM provider_models WHERE provider_id = $1 ORDER BY name`, providerID)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query models: %w", err)
	}
	defer rows.Close()

	models := make([]domain.ProviderModel, 0)
	for rows.Next() {
		var m domain.ProviderModel
		if err := rows.Scan(&m.Name, &m.Disabled); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan model: %w", err)
		}
		models = append(models, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return models, nil
}

func (r *ProviderRepo) ListProviders(ctx context.Context) ([]*domain.Provider, error) {
	query := `SELECT ` + providerColumns + ` FROM providers ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query providers: %w", err)
	}
	defer rows.Close()

	// Empty slice so JSON renders [] instead of null.
	results := make([]*domain.Provider, 0)
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan provider: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// UpdateAuditStatus atomically moves a provider from one audit status to
// another. The WHERE clause on the expected current status prevents double
// decisions: a second concurrent reviewer gets ErrAlreadyDecided, never a
// silent overwrite. Approvals also flip the provider live in the same write.
func (r *ProviderRepo) UpdateAuditStatus(
	ctx context.Context,
	id string,
	from, to domain.AuditStatus,
	limitQPS *int,
	rejectReason *string,
) error {
	query := `
		UPDATE providers
		SET audit_status = $1,
		    limit_qps = $2,
		    reject_reason = $3,
		    operation_status = CASE WHEN $1 IN ('approved', 'approved_limited')
		                            THEN 'active' ELSE operation_status END,
		    updated_at = NOW()
		WHERE id = $4 AND audit_status = $5
		RETURNING id`

	var returned string
	err := r.pool.QueryRow(ctx, query, to, limitQPS, rejectReason, id, from).Scan(&returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Wrong ID or (more often) the decision was already made.
			return fmt.Errorf("%w (id: %s)", domain.ErrAlreadyDecided, id)
		}
		return fmt.Errorf("postgres: failed to update audit status: %w", err)
	}
	return nil
}

// UpdateOperationStatus guards the operation axis the same way; fromAny lists
// the states the transition is legal from.
func (r *ProviderRepo) UpdateOperationStatus(
	ctx context.Context,
	id string,
	fromAny []domain.OperationStatus,
	to domain.OperationStatus,
) error {
	states := make([]string, 0, len(fromAny))
	for _, s := range fromAny {
		states = append(states, string(s))
	}

	query := `
		UPDATE providers
		SET operation_status = $1, updated_at = NOW()
		WHERE id = $2 AND operation_status = ANY($3)
		RETURNING id`

	var returned string
	err := r.pool.QueryRow(ctx, query, to, id, states).Scan(&returned)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w (id: %s)", domain.ErrAlreadyDecided, id)
		}
		return fmt.Errorf("postgres: failed to update operation status: %w", err)
	}
	return nil
}

func (r *ProviderRepo) SetModelDisabled(ctx context.Context, providerID, model string, disabled bool) error {
	query := `UPDATE provider_models SET disabled = $1 WHERE provider_id = $2 AND name = $3`

	tag, err := r.pool.Exec(ctx, query, disabled, providerID, model)
	if err != nil {
		return fmt.Errorf("postgres: failed to toggle model: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetProviderByModel resolves the serving provider for a model: approved,
// model enabled. Used by the gateway hot path.
func (r *ProviderRepo) GetProviderByModel(ctx context.Context, model string) (*domain.Provider, error) {
	query := `
		SELECT ` + providerColumns + `
		FROM providers p
		JOIN provider_models m ON m.provider_id = p.id
		WHERE m.name = $1
		  AND m.disabled = FALSE
		  AND p.audit_status IN ('approved', 'approved_limited')
		ORDER BY p.last_activity DESC
		LIMIT 1`

	p, err := scanProvider(r.pool.QueryRow(ctx, query, model))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("postgres: failed to resolve provider for model: %w", err)
	}
	return p, nil
}

// ListProviderIDsByOperationStatus feeds the gateway state-cache warmup.
func (r *ProviderRepo) ListProviderIDsByOperationStatus(ctx context.Context, status domain.OperationStatus) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM providers WHERE operation_status = $1`, status)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch providers by status: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan provider id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}

// TouchLastActivity is best-effort bookkeeping from the gateway.
func (r *ProviderRepo) TouchLastActivity(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `UPDATE providers SET last_activity = NOW() WHERE id = $1`, id)
	return err
}
