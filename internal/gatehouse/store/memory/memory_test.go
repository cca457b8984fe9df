package memory_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func openSession(id, tenant, vehicle string) types.GateSession {
	return types.GateSession{
		ID: id, TenantID: tenant, VehicleID: vehicle,
		Status: types.SessionOpen, EntryAt: t0,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Vehicles
// ═══════════════════════════════════════════════════════════════════════════

func TestFindVehicleByCode_NormalizedAndTenantScoped(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	s.PutVehicle(types.Vehicle{ID: "v1", TenantID: "a", Plate: "abc-123", TagCode: "tag 7", Status: types.VehicleActive})

	v, err := s.Vehicles().FindVehicleByCode(ctx, "a", "ABC123")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.Equal(t, "ABC123", v.Plate)

	v, err = s.Vehicles().FindVehicleByCode(ctx, "a", "TAG7")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)

	_, err = s.Vehicles().FindVehicleByCode(ctx, "b", "ABC123")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.Vehicles().GetVehicle(ctx, "b", "v1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// ═══════════════════════════════════════════════════════════════════════════
// Sessions
// ═══════════════════════════════════════════════════════════════════════════

func TestCreateSession_SecondOpenConflicts(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	require.NoError(t, s.Sessions().CreateSession(ctx, openSession("s1", "a", "v1")))
	err := s.Sessions().CreateSession(ctx, openSession("s2", "a", "v1"))
	assert.ErrorIs(t, err, store.ErrConflict)

	// Same vehicle id in another tenant is a different vehicle.
	require.NoError(t, s.Sessions().CreateSession(ctx, openSession("s3", "b", "v1")))
}

func TestCloseSession_ThenReopen(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Sessions().CreateSession(ctx, openSession("s1", "a", "v1")))

	exit := t0.Add(time.Hour)
	closed := openSession("s1", "a", "v1")
	closed.ExitAt = &exit
	closed.ExitGuard = "g2"
	closed.ExitMethod = types.ExitByPass
	require.NoError(t, s.Sessions().CloseSession(ctx, closed))

	got, err := s.Sessions().GetSession(ctx, "a", "s1")
	require.NoError(t, err)
	assert.Equal(t, types.SessionClosed, got.Status)
	assert.Equal(t, "g2", got.ExitGuard)

	// Closing twice fails, and a new entry is allowed.
	assert.ErrorIs(t, s.Sessions().CloseSession(ctx, closed), store.ErrNotFound)
	require.NoError(t, s.Sessions().CreateSession(ctx, openSession("s2", "a", "v1")))

	_, err = s.Sessions().FindOpenSession(ctx, "a", "v1")
	require.NoError(t, err)
}

func TestListSessions_FilterAndPage(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i := range 5 {
		require.NoError(t, s.Sessions().CreateSession(ctx, openSession(fmt.Sprintf("s%d", i), "a", fmt.Sprintf("v%d", i))))
	}
	require.NoError(t, s.Sessions().CreateSession(ctx, openSession("other", "b", "v9")))

	rows, total, err := s.Sessions().ListSessions(ctx, "a", store.SessionFilter{}, store.Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, rows, 2)
	assert.Equal(t, "s3", rows[0].ID, "newest first")
	assert.Equal(t, "s2", rows[1].ID)

	rows, total, err = s.Sessions().ListSessions(ctx, "a", store.SessionFilter{VehicleID: "v4"}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "s4", rows[0].ID)
}

// ═══════════════════════════════════════════════════════════════════════════
// Atomic
// ═══════════════════════════════════════════════════════════════════════════

func TestAtomic_RollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	boom := errors.New("boom")

	err := s.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		if err := r.Sessions().CreateSession(ctx, openSession("s1", "a", "v1")); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.Sessions().GetSession(ctx, "a", "s1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAtomic_CommitsOnSuccess(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	err := s.Atomic(ctx, func(ctx context.Context, r store.Repos) error {
		return r.Sessions().CreateSession(ctx, openSession("s1", "a", "v1"))
	})
	require.NoError(t, err)

	_, err = s.Sessions().FindOpenSession(ctx, "a", "v1")
	assert.NoError(t, err)
}

func TestAtomic_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := memory.New().Atomic(ctx, func(context.Context, store.Repos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

// ═══════════════════════════════════════════════════════════════════════════
// Approvals
// ═══════════════════════════════════════════════════════════════════════════

func TestApprovals_ListAndStale(t *testing.T) {
	ctx := context.Background()
	s := memory.New()

	mk := func(id, tenant string, created time.Time) types.ExitApproval {
		return types.ExitApproval{
			ID: id, TenantID: tenant, SessionID: "s1", ResidentID: "r1",
			Status: types.ApprovalPending, CreatedAt: created, ExpiresAt: created.Add(time.Minute),
		}
	}
	require.NoError(t, s.Approvals().CreateApproval(ctx, mk("a1", "a", t0)))
	require.NoError(t, s.Approvals().CreateApproval(ctx, mk("a2", "a", t0.Add(time.Hour))))
	require.NoError(t, s.Approvals().CreateApproval(ctx, mk("b1", "b", t0)))

	pending, err := s.Approvals().ListApprovalsByResident(ctx, "a", "r1", types.ApprovalPending)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a1", pending[0].ID)

	latest, err := s.Approvals().LatestApprovalForSession(ctx, "a", "s1", types.ApprovalPending)
	require.NoError(t, err)
	assert.Equal(t, "a2", latest.ID)

	stale, err := s.Approvals().ListStalePending(ctx, t0.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, stale, 2, "a1 and b1 across tenants")
}

// ═══════════════════════════════════════════════════════════════════════════
// Passes
// ═══════════════════════════════════════════════════════════════════════════

func TestPasses_LookupAndQuotaGuard(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	limit := 1
	p := types.VisitPass{
		ID: "p1", TenantID: "a", VisitorID: "vis1", PassCode: "VP-1", Token: "tok",
		VerificationCode: "123456", Type: types.PassMultiUse, Status: types.PassActive,
		MaxEntries: &limit,
	}
	require.NoError(t, s.Passes().CreatePass(ctx, p))

	got, err := s.Passes().GetPassByToken(ctx, "a", "tok")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	got, err = s.Passes().FindActivePassByCode(ctx, "a", "123456")
	require.NoError(t, err)
	assert.Equal(t, "p1", got.ID)

	_, err = s.Passes().FindActivePassByCode(ctx, "b", "123456")
	assert.ErrorIs(t, err, store.ErrNotFound)

	dup := p
	dup.ID, dup.PassCode, dup.Token = "p2", "VP-2", "tok2"
	assert.ErrorIs(t, s.Passes().CreatePass(ctx, dup), store.ErrConflict, "verification code in use")

	p.UsedEntries = 2
	assert.ErrorIs(t, s.Passes().UpdatePass(ctx, p), store.ErrConflict)
}

func TestPasses_LatestActive(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	for i, code := range []string{"111111", "222222"} {
		require.NoError(t, s.Passes().CreatePass(ctx, types.VisitPass{
			ID: fmt.Sprintf("p%d", i), TenantID: "a", VisitorID: "vis1",
			PassCode: fmt.Sprintf("VP-%d", i), Token: fmt.Sprintf("tok%d", i),
			VerificationCode: code, Status: types.PassActive,
		}))
	}

	latest, err := s.Passes().LatestActivePass(ctx, "a", "vis1")
	require.NoError(t, err)
	assert.Equal(t, "p1", latest.ID)

	all, err := s.Passes().ListActivePasses(ctx, "a", "vis1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// ═══════════════════════════════════════════════════════════════════════════
// Blacklist and events
// ═══════════════════════════════════════════════════════════════════════════

func TestBlacklist_NormalizesAndScopes(t *testing.T) {
	ctx := context.Background()
	b := memory.NewBlacklist()
	b.Add(types.BlacklistEntry{TenantID: "a", Kind: types.BlacklistPhone, Value: "+234-700-000", Active: true})
	b.Add(types.BlacklistEntry{TenantID: "a", Kind: types.BlacklistPlate, Value: "kja 1", Active: false})

	hit, err := b.IsPhoneBlacklisted(ctx, "a", "+234700000")
	require.NoError(t, err)
	assert.True(t, hit)

	hit, _ = b.IsPhoneBlacklisted(ctx, "b", "+234700000")
	assert.False(t, hit)

	hit, _ = b.IsPlateBlacklisted(ctx, "a", "KJA1")
	assert.False(t, hit, "inactive entry")

	hit, _ = b.IsPhoneBlacklisted(ctx, "a", "")
	assert.False(t, hit)
}

func TestEventStore_ListFilters(t *testing.T) {
	ctx := context.Background()
	s := memory.NewEventStore()
	require.NoError(t, s.AppendEvent(ctx, types.GateEvent{ID: "e1", TenantID: "a", VehicleID: "v1", Kind: types.EventEntryScan}))
	require.NoError(t, s.AppendEvent(ctx, types.GateEvent{ID: "e2", TenantID: "a", VehicleID: "v1", Kind: types.EventExitScan}))
	require.NoError(t, s.AppendEvent(ctx, types.GateEvent{ID: "e3", TenantID: "b", VehicleID: "v1", Kind: types.EventExitScan}))

	rows, total, err := s.ListEvents(ctx, "a", store.EventFilter{VehicleID: "v1"}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, "e2", rows[0].ID)

	rows, total, err = s.ListEvents(ctx, "a", store.EventFilter{Kind: types.EventEntryScan}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "e1", rows[0].ID)

	assert.Equal(t, []types.EventKind{types.EventEntryScan, types.EventExitScan, types.EventExitScan}, s.Kinds())
}
