// Package postgres provides a PostgreSQL implementation of the limits.Store
// interface. All mutations are single guarded UPDATE statements or explicit
// transactions; a guarded statement that matches no row reports false so the
// engine can take its fallback path. Time is read from the database clock.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/libra-dev/subscription-limits/pkg/limits"
)

// counterColumns maps resource kinds to their counter column. Column names
// come only from this map, never from caller input.
var counterColumns = map[limits.Resource]string{
	limits.ResourceAIMessage: "ai_nums",
	limits.ResourceEnhance:   "enhance_nums",
	limits.ResourceProject:   "project_nums",
	limits.ResourceDeploy:    "deploy_limit",
}

const recordColumns = `id, organization_id, plan_name, COALESCE(stripe_customer_id, ''),
		ai_nums, enhance_nums, upload_limit, deploy_limit, seats, project_nums,
		period_start, period_end, is_active, created_at, updated_at`

// Store implements limits.Store using PostgreSQL
type Store struct {
	pool   *pgxpool.Pool
	config Config
}

// Config holds PostgreSQL store configuration
type Config struct {
	// ConnectionString is the PostgreSQL connection string
	ConnectionString string

	// Pool configuration
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxConns:        10,
		MinConns:        2,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}
}

// New creates a new PostgreSQL store adapter
func New(ctx context.Context, config Config) (*Store, error) {
	if config.ConnectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}

	poolConfig, err := pgxpool.ParseConfig(config.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	if config.MaxConns > 0 {
		poolConfig.MaxConns = config.MaxConns
	}
	if config.MinConns > 0 {
		poolConfig.MinConns = config.MinConns
	}
	if config.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = config.MaxConnLifetime
	}
	if config.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool, config: config}, nil
}

// Close closes the PostgreSQL connection pool
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks the PostgreSQL connection
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Now implements limits.Store using the database clock. Period boundaries
// are written and compared against this clock, never the application host's.
func (s *Store) Now(ctx context.Context) (time.Time, error) {
	var now time.Time
	if err := s.pool.QueryRow(ctx, `SELECT now()`).Scan(&now); err != nil {
		return time.Time{}, fmt.Errorf("failed to read database time: %w", err)
	}
	return now.UTC(), nil
}

// ActiveRecord implements limits.Store
func (s *Store) ActiveRecord(ctx context.Context, orgID string, tier limits.Tier) (*limits.LimitRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM subscription_limits
			WHERE organization_id = $1 AND is_active AND %s
			ORDER BY created_at DESC
			LIMIT 1`,
		recordColumns, tierPredicate(tier))

	rec, err := scanRecord(s.pool.QueryRow(ctx, query, orgID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active record: %w", err)
	}
	return rec, nil
}

// ActiveRecords implements limits.Store
func (s *Store) ActiveRecords(ctx context.Context, orgID string) (*limits.LimitRecord, *limits.LimitRecord, error) {
	query := fmt.Sprintf(
		`SELECT %s FROM subscription_limits
			WHERE organization_id = $1 AND is_active
			ORDER BY created_at DESC`,
		recordColumns)

	rows, err := s.pool.Query(ctx, query, orgID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get active records: %w", err)
	}
	defer rows.Close()

	var free, paid *limits.LimitRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan record: %w", err)
		}
		if rec.PlanName == limits.PlanFree {
			if free == nil {
				free = rec
			}
		} else if paid == nil {
			paid = rec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read active records: %w", err)
	}
	return free, paid, nil
}

// DeductCounter implements limits.Store. The WHERE guard makes the decrement
// a compare-and-swap: two concurrent calls cannot both spend the last unit.
func (s *Store) DeductCounter(ctx context.Context, req *limits.DeductRequest) (bool, error) {
	col, ok := counterColumns[req.Resource]
	if !ok {
		return false, limits.ErrInvalidResource
	}

	query := fmt.Sprintf(
		`UPDATE subscription_limits
			SET %s = %s - 1, updated_at = now()
			WHERE organization_id = $1 AND is_active AND %s
				AND %s > 0 AND period_end >= $2
			RETURNING id`,
		col, col, tierPredicate(req.Tier), col)

	var id string
	err := s.pool.QueryRow(ctx, query, req.OrganizationID, req.Now).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to deduct counter: %w", err)
	}
	return true, nil
}

// RefreshAndDeduct implements limits.Store. Reset and spend are one atomic
// write, CAS-guarded on the previous period_end: no request can observe a
// refreshed-but-not-yet-deducted record, and a racing refresher loses with
// zero rows affected.
func (s *Store) RefreshAndDeduct(ctx context.Context, req *limits.RefreshRequest) (bool, error) {
	col, ok := counterColumns[req.Resource]
	if !ok {
		return false, limits.ErrInvalidResource
	}

	target := req.Limits.Ceiling(req.Resource) - 1
	if target < 0 {
		// Plan with a zero ceiling for this resource has nothing to spend.
		return false, nil
	}

	query := fmt.Sprintf(
		`UPDATE subscription_limits
			SET ai_nums = $1, enhance_nums = $2, upload_limit = $3,
				deploy_limit = $4, seats = $5, project_nums = $6,
				%s = $7,
				period_start = $8, period_end = $9, updated_at = now()
			WHERE organization_id = $10 AND is_active AND plan_name = 'FREE'
				AND period_end = $11
			RETURNING id`,
		col)

	var id string
	err := s.pool.QueryRow(ctx, query,
		req.Limits.AINums, req.Limits.EnhanceNums, req.Limits.UploadLimit,
		req.Limits.DeployLimit, req.Limits.Seats, req.Limits.ProjectNums,
		target,
		req.PeriodStart, req.PeriodEnd,
		req.OrganizationID, req.PrevPeriodEnd,
	).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to refresh and deduct: %w", err)
	}
	return true, nil
}

// RestoreCounter implements limits.Store
func (s *Store) RestoreCounter(ctx context.Context, req *limits.RestoreRequest) (bool, error) {
	col, ok := counterColumns[req.Resource]
	if !ok {
		return false, limits.ErrInvalidResource
	}

	query := fmt.Sprintf(
		`UPDATE subscription_limits
			SET %s = %s + 1, updated_at = now()
			WHERE organization_id = $1 AND is_active AND %s
				AND %s < $2
			RETURNING id`,
		col, col, tierPredicate(req.Tier), col)

	var id string
	err := s.pool.QueryRow(ctx, query, req.OrganizationID, req.Ceiling).Scan(&id)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to restore counter: %w", err)
	}
	return true, nil
}

// InsertRecord implements limits.Store
func (s *Store) InsertRecord(ctx context.Context, rec *limits.LimitRecord) error {
	if rec == nil || rec.OrganizationID == "" {
		return fmt.Errorf("invalid record")
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO subscription_limits
			(organization_id, plan_name, stripe_customer_id,
			 ai_nums, enhance_nums, upload_limit, deploy_limit, seats, project_nums,
			 period_start, period_end, is_active, created_at, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
			RETURNING id`,
		rec.OrganizationID, rec.PlanName, rec.StripeCustomerID,
		rec.AINums, rec.EnhanceNums, rec.UploadLimit, rec.DeployLimit,
		rec.Seats, rec.ProjectNums,
		rec.PeriodStart, rec.PeriodEnd, rec.IsActive,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

// TouchFreeRecord implements limits.Store
func (s *Store) TouchFreeRecord(ctx context.Context, orgID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscription_limits
			SET updated_at = now()
			WHERE organization_id = $1 AND is_active AND plan_name = 'FREE'`,
		orgID)
	if err != nil {
		return false, fmt.Errorf("failed to touch free record: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ReplacePaidRecord implements limits.Store. Deactivation and insertion are
// one transaction so plan-change races cannot leave two active paid records.
func (s *Store) ReplacePaidRecord(ctx context.Context, rec *limits.LimitRecord) error {
	if rec == nil || rec.OrganizationID == "" {
		return fmt.Errorf("invalid record")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		//nolint:errcheck // Rollback error is safe to ignore if transaction was committed
		_ = tx.Rollback(ctx)
	}()

	_, err = tx.Exec(ctx,
		`UPDATE subscription_limits
			SET is_active = false, updated_at = now()
			WHERE organization_id = $1 AND is_active AND plan_name <> 'FREE'`,
		rec.OrganizationID)
	if err != nil {
		return fmt.Errorf("failed to deactivate paid records: %w", err)
	}

	err = tx.QueryRow(ctx,
		`INSERT INTO subscription_limits
			(organization_id, plan_name, stripe_customer_id,
			 ai_nums, enhance_nums, upload_limit, deploy_limit, seats, project_nums,
			 period_start, period_end, is_active, created_at, updated_at)
			VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, true, now(), now())
			RETURNING id`,
		rec.OrganizationID, rec.PlanName, rec.StripeCustomerID,
		rec.AINums, rec.EnhanceNums, rec.UploadLimit, rec.DeployLimit,
		rec.Seats, rec.ProjectNums,
		rec.PeriodStart, rec.PeriodEnd,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert paid record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// DeactivatePaidRecords implements limits.Store
func (s *Store) DeactivatePaidRecords(ctx context.Context, orgID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE subscription_limits
			SET is_active = false, updated_at = now()
			WHERE organization_id = $1 AND is_active AND plan_name <> 'FREE'`,
		orgID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate paid records: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// tierPredicate returns the SQL predicate selecting a ledger slot.
func tierPredicate(tier limits.Tier) string {
	if tier == limits.TierFree {
		return `plan_name = 'FREE'`
	}
	return `plan_name <> 'FREE'`
}

func scanRecord(row pgx.Row) (*limits.LimitRecord, error) {
	var rec limits.LimitRecord
	err := row.Scan(
		&rec.ID,
		&rec.OrganizationID,
		&rec.PlanName,
		&rec.StripeCustomerID,
		&rec.AINums,
		&rec.EnhanceNums,
		&rec.UploadLimit,
		&rec.DeployLimit,
		&rec.Seats,
		&rec.ProjectNums,
		&rec.PeriodStart,
		&rec.PeriodEnd,
		&rec.IsActive,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.PeriodStart = rec.PeriodStart.UTC()
	rec.PeriodEnd = rec.PeriodEnd.UTC()
	return &rec, nil
}
