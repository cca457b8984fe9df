package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/gatehouse/internal/db"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/events"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
	sqlitestore "github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/sqlite"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/token"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

const (
	tenantA  = "estate-a"
	tenantB  = "estate-b"
	guard    = "guard-1"
	resident = "res-1"
)

// t0 is a Monday.
var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// fakeClock is shared by the services and the token codecs.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type harness struct {
	clock     *fakeClock
	store     *memory.Store
	log       *memory.EventStore
	blacklist *memory.Blacklist
	metrics   *metrics.Metrics
	reg       *prometheus.Registry

	exitCodec    *token.Codec
	visitorCodec *token.Codec

	sessions  *service.SessionService
	approvals *service.ApprovalService
	visits    *service.VisitService
}

type harnessOpts struct {
	approvalTTL time.Duration
	loc         *time.Location
}

func newHarness(t *testing.T, opts ...func(*harnessOpts)) *harness {
	t.Helper()
	o := harnessOpts{approvalTTL: time.Minute}
	for _, fn := range opts {
		fn(&o)
	}

	h := &harness{
		clock:     &fakeClock{t: t0},
		store:     memory.New(),
		log:       memory.NewEventStore(),
		blacklist: memory.NewBlacklist(),
		reg:       prometheus.NewRegistry(),
	}
	h.metrics = metrics.New(h.reg)

	var err error
	h.exitCodec, err = token.NewCodec("exit-secret")
	require.NoError(t, err)
	h.exitCodec.WithClock(h.clock.Now)
	h.visitorCodec, err = token.NewCodec("visitor-secret")
	require.NoError(t, err)
	h.visitorCodec.WithClock(h.clock.Now)

	deps := service.Deps{
		Store:    h.store,
		Emitter:  events.NewInstrumented(events.NewStoreSink(h.log), h.metrics),
		EventLog: h.log,
		Metrics:  h.metrics,
		Logger:   zap.NewNop(),
	}
	h.sessions = service.NewSessionService(deps, h.exitCodec, 300*time.Second).WithClock(h.clock.Now)
	h.approvals = service.NewApprovalService(deps, o.approvalTTL).WithClock(h.clock.Now)
	h.visits = service.NewVisitService(deps, h.blacklist, h.visitorCodec, service.VisitOptions{Location: o.loc}).WithClock(h.clock.Now)

	seedEstate(h.store)
	return h
}

func seedEstate(s *memory.Store) {
	s.PutVehicle(types.Vehicle{
		ID: "veh-1", TenantID: tenantA, ResidentID: resident,
		Plate: "LAG-234 XY", TagCode: "tag 0001", Make: "Toyota", Model: "Corolla", Color: "Silver",
		Status: types.VehicleActive,
	})
	s.PutVehicle(types.Vehicle{
		ID: "veh-2", TenantID: tenantA, ResidentID: "res-2",
		Plate: "KJA-100 AA", Status: types.VehicleSuspended,
	})
	s.PutVehicle(types.Vehicle{
		ID: "veh-b", TenantID: tenantB, ResidentID: "res-b",
		Plate: "LAG-234 XY", Status: types.VehicleActive,
	})
	s.PutVisitor(types.Visitor{
		ID: "vis-1", TenantID: tenantA, ResidentID: resident,
		Name: "Ada", Phone: "+234 800 111", Status: types.VisitorExpected,
	})
	s.PutVisitor(types.Visitor{
		ID: "vis-2", TenantID: tenantA, ResidentID: resident,
		Name: "Bayo", Phone: "+234-700-000", Status: types.VisitorExpected,
	})
	s.PutVisitor(types.Visitor{
		ID: "vis-3", TenantID: tenantA, ResidentID: resident,
		Name: "Chi", VehiclePlate: "abc 123 de", Status: types.VisitorExpected,
	})
}

func guardCtx() context.Context {
	return reqctx.With(context.Background(), tenantA, guard)
}

func residentCtx(id string) context.Context {
	return reqctx.With(context.Background(), tenantA, id)
}

// kinds lists the recorded event kinds with their success flag, in order.
func (h *harness) kinds() []string {
	var out []string
	for _, ev := range h.log.Events() {
		out = append(out, fmt.Sprintf("%s:%t", ev.Kind, ev.Success))
	}
	return out
}

func (h *harness) lastEvent(t *testing.T) types.GateEvent {
	t.Helper()
	evs := h.log.Events()
	require.NotEmpty(t, evs)
	return evs[len(evs)-1]
}

func (h *harness) enter(t *testing.T) types.GateSession {
	t.Helper()
	sess, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "lag 234xy"})
	require.NoError(t, err)
	return sess
}

func intPtr(n int) *int { return &n }

// newSQLiteStore returns a migrated in-memory SQLite gate store.
func newSQLiteStore(t *testing.T) store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", name)

	conn, err := sqlx.Open("sqlite", dsn)
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(context.Background(), conn))
	require.NoError(t, db.SeedDev(context.Background(), conn, db.SeedDevOptions{TenantID: tenantA}))

	w := db.NewWorker(conn)
	t.Cleanup(w.Close)
	return sqlitestore.New(conn, w)
}
