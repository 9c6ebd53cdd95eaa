package postgres

import (
	"context"
	"fmt"
)

// schema is the full table definition for the ledger. The partial unique
// indexes enforce the central invariant in the database itself: at most one
// active FREE and one active paid record per organization.
const schema = `
CREATE TABLE IF NOT EXISTS subscription_limits (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	organization_id TEXT NOT NULL,
	plan_name TEXT NOT NULL,
	stripe_customer_id TEXT,
	ai_nums INTEGER NOT NULL DEFAULT 0 CHECK (ai_nums >= 0),
	enhance_nums INTEGER NOT NULL DEFAULT 0 CHECK (enhance_nums >= 0),
	upload_limit INTEGER NOT NULL DEFAULT 0 CHECK (upload_limit >= 0),
	deploy_limit INTEGER NOT NULL DEFAULT 0 CHECK (deploy_limit >= 0),
	seats INTEGER NOT NULL DEFAULT 0 CHECK (seats >= 0),
	project_nums INTEGER NOT NULL DEFAULT 0 CHECK (project_nums >= 0),
	period_start TIMESTAMPTZ NOT NULL,
	period_end TIMESTAMPTZ NOT NULL,
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT subscription_limits_period_order CHECK (period_end > period_start)
);

CREATE UNIQUE INDEX IF NOT EXISTS subscription_limits_one_active_free
	ON subscription_limits (organization_id)
	WHERE is_active AND plan_name = 'FREE';

CREATE UNIQUE INDEX IF NOT EXISTS subscription_limits_one_active_paid
	ON subscription_limits (organization_id)
	WHERE is_active AND plan_name <> 'FREE';

CREATE INDEX IF NOT EXISTS subscription_limits_org_active
	ON subscription_limits (organization_id, is_active);
`

// Migrate creates the ledger table and indexes if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
