// Package sqlite implements the gate store on SQLite.  All writes go through
// the single-writer db.Worker; a partial unique index backs the one OPEN
// session per vehicle rule.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/normalize"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

type Store struct {
	db     *sqlx.DB
	writer *dbpkg.Worker
}

func New(db *sqlx.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

var _ store.Store = (*Store)(nil)

// Atomic runs fn inside one Worker transaction.  fn must only use the Repos
// it is given; the connection is held until it returns.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context, r store.Repos) error) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, repos{q: tx})
	})
}

func (s *Store) Vehicles() store.VehicleRepo   { return s.repos() }
func (s *Store) Sessions() store.SessionRepo   { return s.repos() }
func (s *Store) Approvals() store.ApprovalRepo { return s.repos() }
func (s *Store) Visitors() store.VisitorRepo   { return s.repos() }
func (s *Store) Passes() store.PassRepo        { return s.repos() }

func (s *Store) repos() repos { return repos{q: s.db, writer: s.writer} }

// PutVehicle inserts or replaces a vehicle, normalizing plate and tag code.
// Vehicles are owned by the estate registry; this is the sync/seed hook.
func (s *Store) PutVehicle(ctx context.Context, v types.Vehicle) error {
	row := toVehicleRow(v)
	row.Plate = normalize.Plate(row.Plate)
	row.TagCode = normalize.Code(row.TagCode)
	return s.writer.Do(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := sqlx.NamedExecContext(ctx, tx, `
INSERT INTO vehicles(id, tenant_id, resident_id, plate, tag_code, make, model, color, status, updated_at_ms)
VALUES (:id, :tenant_id, :resident_id, :plate, :tag_code, :make, :model, :color, :status, :updated_at_ms)
ON CONFLICT(id) DO UPDATE SET
  resident_id = excluded.resident_id,
  plate = excluded.plate,
  tag_code = excluded.tag_code,
  make = excluded.make,
  model = excluded.model,
  color = excluded.color,
  status = excluded.status,
  updated_at_ms = excluded.updated_at_ms;`, row)
		if err != nil {
			return fmt.Errorf("PutVehicle: %w", mapErr(err))
		}
		return nil
	})
}

// PutVisitor inserts or replaces a visitor, normalizing phone and plate.
func (s *Store) PutVisitor(ctx context.Context, v types.Visitor) error {
	v.Phone = normalize.Phone(v.Phone)
	v.VehiclePlate = normalize.Plate(v.VehiclePlate)
	row := toVisitorRow(v)
	return s.writer.Do(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		_, err := sqlx.NamedExecContext(ctx, tx, `
INSERT INTO visitors(id, tenant_id, resident_id, name, phone, vehicle_plate, status, checked_in_at_ms, checked_out_at_ms)
VALUES (:id, :tenant_id, :resident_id, :name, :phone, :vehicle_plate, :status, :checked_in_at_ms, :checked_out_at_ms)
ON CONFLICT(id) DO UPDATE SET
  resident_id = excluded.resident_id,
  name = excluded.name,
  phone = excluded.phone,
  vehicle_plate = excluded.vehicle_plate,
  status = excluded.status;`, row)
		if err != nil {
			return fmt.Errorf("PutVisitor: %w", mapErr(err))
		}
		return nil
	})
}

// repos implements every repository over either the pooled connection or an
// open transaction.  Outside a transaction, writer is set and each write is
// submitted to the Worker on its own.
type repos struct {
	q      sqlx.ExtContext
	writer *dbpkg.Worker
}

func (r repos) Vehicles() store.VehicleRepo   { return r }
func (r repos) Sessions() store.SessionRepo   { return r }
func (r repos) Approvals() store.ApprovalRepo { return r }
func (r repos) Visitors() store.VisitorRepo   { return r }
func (r repos) Passes() store.PassRepo        { return r }

func (r repos) write(ctx context.Context, fn func(ctx context.Context, q sqlx.ExtContext) error) error {
	if r.writer == nil {
		return fn(ctx, r.q)
	}
	return r.writer.Do(ctx, func(ctx context.Context, tx *sqlx.Tx) error {
		return fn(ctx, tx)
	})
}

// mapErr translates driver errors into store sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isConstraintViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrConflict, err)
	}
	return err
}

func isConstraintViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE,
			sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
			sqlite3.SQLITE_CONSTRAINT_CHECK:
			return true
		}
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "CHECK constraint failed")
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
