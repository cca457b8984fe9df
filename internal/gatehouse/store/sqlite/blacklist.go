package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	dbpkg "github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// Blacklist reads the blacklist_entries table.  Entries are maintained by the
// estate administration; Add exists for seeding and tests.
type Blacklist struct {
	db     *sqlx.DB
	writer *dbpkg.Worker
}

func NewBlacklist(db *sqlx.DB, writer *dbpkg.Worker) *Blacklist {
	return &Blacklist{db: db, writer: writer}
}

var _ store.BlacklistStore = (*Blacklist)(nil)

func (b *Blacklist) Add(ctx context.Context, e types.BlacklistEntry) error {
	switch e.Kind {
	case types.BlacklistPlate:
		e.Value = normalize.Plate(e.Value)
	case types.BlacklistPhone:
		e.Value = normalize.Phone(e.Value)
	}
	return b.writer.Do(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO blacklist_entries(tenant_id, kind, value, active, reason, created_at_ms)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(tenant_id, kind, value) DO UPDATE SET
  active = excluded.active,
  reason = excluded.reason;`,
			e.TenantID, string(e.Kind), e.Value, e.Active, e.Reason, time.Now().UTC().UnixMilli(),
		); err != nil {
			return fmt.Errorf("blacklist add: %w", err)
		}
		return nil
	})
}

func (b *Blacklist) IsPlateBlacklisted(ctx context.Context, tenantID, plate string) (bool, error) {
	return b.active(ctx, tenantID, types.BlacklistPlate, plate)
}

func (b *Blacklist) IsPhoneBlacklisted(ctx context.Context, tenantID, phone string) (bool, error) {
	return b.active(ctx, tenantID, types.BlacklistPhone, phone)
}

func (b *Blacklist) active(ctx context.Context, tenantID string, kind types.BlacklistKind, value string) (bool, error) {
	if value == "" {
		return false, nil
	}
	var n int
	err := b.db.GetContext(ctx, &n, `
SELECT COUNT(*) FROM blacklist_entries
WHERE tenant_id = ? AND kind = ? AND value = ? AND active = 1;`,
		tenantID, string(kind), value)
	if err != nil {
		return false, fmt.Errorf("blacklist lookup: %w", err)
	}
	return n > 0, nil
}
