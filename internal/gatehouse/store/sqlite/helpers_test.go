package sqlite_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/sqlite"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production.  The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	// The shared-cache URI keeps the database alive for the lifetime of the
	// pool even if sql.DB recycles the underlying connection.
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		name,
	)

	conn, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sqlx.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn, closed when the test
// finishes.
func newTestWriter(t *testing.T, conn *sqlx.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func newTestStore(t *testing.T) (*sqlite.Store, *sqlx.DB, *db.Worker) {
	t.Helper()
	conn := openTestDB(t)
	w := newTestWriter(t, conn)
	return sqlite.New(conn, w), conn, w
}

func seedVisitor(t *testing.T, s *sqlite.Store, id, tenant string) {
	t.Helper()
	err := s.PutVisitor(context.Background(), types.Visitor{
		ID: id, TenantID: tenant, ResidentID: "res-1", Name: "Ada", Phone: "+234 800",
		Status: types.VisitorExpected,
	})
	if err != nil {
		t.Fatalf("seedVisitor: %v", err)
	}
}

func openSession(id, tenant, vehicle string) types.GateSession {
	return types.GateSession{
		ID: id, TenantID: tenant, VehicleID: vehicle, ResidentID: "res-" + vehicle,
		Plate: "ABC123", Status: types.SessionOpen, EntryAt: t0, EntryGuard: "g1",
	}
}
