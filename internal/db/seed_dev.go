package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

type SeedDevOptions struct {
	// TenantID of the demo estate. Defaults to "estate-dev".
	TenantID string
}

// SeedDev inserts a small demo estate: one resident vehicle, one expected
// visitor and one blacklisted phone.  Rows that already exist are left alone.
func SeedDev(ctx context.Context, db *sqlx.DB, opt SeedDevOptions) error {
	tenant := opt.TenantID
	if tenant == "" {
		tenant = "estate-dev"
	}
	now := time.Now().UTC().UnixMilli()

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO vehicles(id, tenant_id, resident_id, plate, tag_code, make, model, color, status, updated_at_ms)
VALUES ('veh-dev-1', ?, 'res-dev-1', 'LAG234XY', 'TAG0001', 'Toyota', 'Corolla', 'Silver', 'ACTIVE', ?);`,
		tenant, now); err != nil {
		return fmt.Errorf("seed vehicles: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO visitors(id, tenant_id, resident_id, name, phone, vehicle_plate, status)
VALUES ('vis-dev-1', ?, 'res-dev-1', 'Ada Visitor', '+2348030000001', '', 'EXPECTED');`,
		tenant); err != nil {
		return fmt.Errorf("seed visitors: %w", err)
	}

	if _, err := db.ExecContext(ctx, `
INSERT OR IGNORE INTO blacklist_entries(tenant_id, kind, value, active, reason, created_at_ms)
VALUES (?, 'PHONE', '+234700000', 1, 'dev: known trespasser', ?);`,
		tenant, now); err != nil {
		return fmt.Errorf("seed blacklist: %w", err)
	}

	return nil
}
