package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tealbay/nftmarketd/internal/domain"
)

// ActivityStore implements domain.ActivityStore using PostgreSQL.
type ActivityStore struct {
	pool *pgxpool.Pool
}

// NewActivityStore creates a new ActivityStore backed by the given connection pool.
func NewActivityStore(pool *pgxpool.Pool) *ActivityStore {
	return &ActivityStore{pool: pool}
}

// Insert records one settlement or cancellation event.
func (s *ActivityStore) Insert(ctx context.Context, a domain.Activity) error {
	const query = `
		INSERT INTO activity (id, kind, tx_id, policy_id, unit, lovelace, caller, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.pool.Exec(ctx, query,
		a.ID, string(a.Kind), a.TxID, a.PolicyID, a.Unit, a.Lovelace, a.Caller, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert activity %s: %w", a.ID, err)
	}
	return nil
}

// ListRecent returns activity rows newest-first with pagination and optional
// time filtering.
func (s *ActivityStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.Activity, error) {
	query := `SELECT id, kind, tx_id, policy_id, unit, lovelace, caller, created_at
		FROM activity WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity: %w", err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListByPolicy returns activity rows for one minting policy, newest-first.
func (s *ActivityStore) ListByPolicy(ctx context.Context, policyID string, opts domain.ListOpts) ([]domain.Activity, error) {
	query := `SELECT id, kind, tx_id, policy_id, unit, lovelace, caller, created_at
		FROM activity WHERE policy_id = $1 ORDER BY created_at DESC`
	args := []any{policyID}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity by policy %s: %w", policyID, err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// ListBefore returns every activity row created before the cutoff, oldest
// first. Used by the archiver to export and prune history.
func (s *ActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Activity, error) {
	const query = `SELECT id, kind, tx_id, policy_id, unit, lovelace, caller, created_at
		FROM activity WHERE created_at < $1 ORDER BY created_at ASC`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list activity before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanActivities(rows)
}

// DeleteBefore removes activity rows older than the cutoff after a successful
// archive export.
func (s *ActivityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM activity WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete activity before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

func scanActivities(rows pgx.Rows) ([]domain.Activity, error) {
	var out []domain.Activity
	for rows.Next() {
		var a domain.Activity
		var kind string
		if err := rows.Scan(&a.ID, &kind, &a.TxID, &a.PolicyID, &a.Unit, &a.Lovelace, &a.Caller, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan activity: %w", err)
		}
		a.Kind = domain.ActivityKind(kind)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list activity rows: %w", err)
	}
	return out, nil
}

// Compile-time interface check.
var _ domain.ActivityStore = (*ActivityStore)(nil)
