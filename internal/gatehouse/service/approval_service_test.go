package service_test

import (
	"context"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

func (h *harness) requestApproval(t *testing.T) types.ApprovalView {
	t.Helper()
	sess := h.enter(t)
	a, err := h.approvals.Request(guardCtx(), sess.ID, "lost pass")
	require.NoError(t, err)
	return a
}

func (h *harness) expiredCount(t *testing.T, source string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, h.metrics.ApprovalsExpired.WithLabelValues(source).Write(&m))
	return m.GetCounter().GetValue()
}

func TestRequest_CreatesPending(t *testing.T) {
	h := newHarness(t)

	a := h.requestApproval(t)

	assert.Equal(t, types.ApprovalPending, a.Status)
	assert.Equal(t, resident, a.ResidentID)
	assert.Equal(t, guard, a.GuardID)
	assert.Equal(t, t0.Add(time.Minute), a.ExpiresAt)
	require.NotNil(t, a.Vehicle)
	assert.Equal(t, "LAG234XY", a.Vehicle.Plate)
	assert.Equal(t, "Corolla", a.Vehicle.Model)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventRemoteApprovalRequested, ev.Kind)
	assert.Equal(t, a.SessionID, ev.SessionID)
}

func TestRequest_SessionNotOpen(t *testing.T) {
	h := newHarness(t)
	sess := h.enter(t)
	pass, err := h.sessions.IssueExitPass(residentCtx(resident), "veh-1")
	require.NoError(t, err)
	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: pass.Token})
	require.NoError(t, err)

	_, err = h.approvals.Request(guardCtx(), sess.ID, "")
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, "session not open", gateerr.ReasonOf(err))
	ev := h.lastEvent(t)
	assert.Equal(t, types.EventRemoteApprovalRequested, ev.Kind)
	assert.False(t, ev.Success)
	assert.Equal(t, sess.ID, ev.SessionID)
	assert.Equal(t, guard, ev.ActorID)

	_, err = h.approvals.Request(guardCtx(), "missing", "")
	assert.ErrorIs(t, err, gateerr.ErrNotFound)
}

func TestApprove_ByResident(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)
	h.clock.Advance(20 * time.Second)

	got, err := h.approvals.Approve(residentCtx(resident), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, got.Status)
	require.NotNil(t, got.RespondedAt)
	assert.Equal(t, t0.Add(20*time.Second), *got.RespondedAt)
	assert.Equal(t, types.EventRemoteApprovalApproved, h.lastEvent(t).Kind)

	_, err = h.approvals.Approve(residentCtx(resident), a.ID)
	assert.ErrorIs(t, err, gateerr.ErrInvalidState)
	_, err = h.approvals.Deny(residentCtx(resident), a.ID, "")
	assert.ErrorIs(t, err, gateerr.ErrInvalidState)
}

func TestApprove_OtherActorDenied(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	_, err := h.approvals.Approve(guardCtx(), a.ID)
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventRemoteApprovalApproved, ev.Kind)
	assert.False(t, ev.Success)
	assert.Equal(t, guard, ev.ActorID)

	got, err := h.approvals.Get(guardCtx(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalPending, got.Status)
}

func TestApprove_OtherActorOnAnsweredRequest(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)
	_, err := h.approvals.Deny(residentCtx(resident), a.ID, "")
	require.NoError(t, err)
	before := len(h.log.Events())

	_, err = h.approvals.Approve(guardCtx(), a.ID)
	assert.ErrorIs(t, err, gateerr.ErrInvalidState)
	assert.Len(t, h.log.Events(), before)
}

func TestDeny(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	got, err := h.approvals.Deny(residentCtx(resident), a.ID, "not my guest")
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalDenied, got.Status)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventRemoteApprovalDenied, ev.Kind)
	assert.Equal(t, "not my guest", ev.Details)

	// A denied request does not let the vehicle out.
	_, err = h.sessions.ExitWithApproval(guardCtx(), a.SessionID, "")
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, "EXIT_SCAN:false", h.kinds()[len(h.kinds())-1])
}

func TestApprove_AfterExpiry(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	h.clock.Advance(61 * time.Second)
	_, err := h.approvals.Approve(residentCtx(resident), a.ID)
	assert.ErrorIs(t, err, gateerr.ErrInvalidState)
	assert.Equal(t, types.EventRemoteApprovalExpired, h.lastEvent(t).Kind)

	got, err := h.approvals.Get(residentCtx(resident), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, got.Status)

	_, err = h.approvals.Deny(residentCtx(resident), a.ID, "")
	assert.ErrorIs(t, err, gateerr.ErrInvalidState)

	// Expired exactly once.
	var expired int
	for _, ev := range h.log.Events() {
		if ev.Kind == types.EventRemoteApprovalExpired {
			expired++
		}
	}
	assert.Equal(t, 1, expired)
	assert.Equal(t, 1.0, h.expiredCount(t, "read"))
}

func TestApprove_AtExpiryInstantStillValid(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	h.clock.Advance(time.Minute)
	got, err := h.approvals.Approve(residentCtx(resident), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalApproved, got.Status)
}

func TestGet_ExpiresOnRead(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	h.clock.Advance(2 * time.Minute)
	got, err := h.approvals.Get(guardCtx(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, got.Status)
	assert.Equal(t, types.EventRemoteApprovalExpired, h.lastEvent(t).Kind)
	assert.False(t, h.lastEvent(t).Success)
}

func TestListPending_DropsExpired(t *testing.T) {
	h := newHarness(t)
	stale := h.requestApproval(t)

	h.clock.Advance(50 * time.Second)
	fresh, err := h.approvals.Request(guardCtx(), stale.SessionID, "second try")
	require.NoError(t, err)

	h.clock.Advance(20 * time.Second)
	list, err := h.approvals.ListPending(residentCtx(resident))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, fresh.ID, list[0].ID)

	got, err := h.approvals.Get(residentCtx(resident), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, got.Status)

	other, err := h.approvals.ListPending(residentCtx("res-2"))
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestView_MissingVehicle(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	// Drop the vehicle from the registry; the approval still renders.
	h.store.PutVehicle(types.Vehicle{ID: "veh-1", TenantID: tenantB})

	got, err := h.approvals.Get(guardCtx(), a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Vehicle)
}

// ── Sweeper ──────────────────────────────────────────────────────────────────

func TestExpireStale_AcrossTenants(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)

	ctxB := reqctx.With(context.Background(), tenantB, "guard-b")
	sessB, err := h.sessions.Entry(ctxB, types.EntryRequest{VehicleCode: "LAG234XY"})
	require.NoError(t, err)
	b, err := h.approvals.Request(ctxB, sessB.ID, "")
	require.NoError(t, err)

	h.clock.Advance(90 * time.Second)
	c, err := h.approvals.Request(guardCtx(), a.SessionID, "fresh")
	require.NoError(t, err)

	n, err := h.approvals.ExpireStale(context.Background(), 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, h.expiredCount(t, "sweep"))

	for _, id := range []string{a.ID, c.ID} {
		got, err := h.approvals.Get(guardCtx(), id)
		require.NoError(t, err)
		want := types.ApprovalExpired
		if id == c.ID {
			want = types.ApprovalPending
		}
		assert.Equal(t, want, got.Status)
	}
	gotB, err := h.approvals.Get(ctxB, b.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ApprovalExpired, gotB.Status)

	n, err = h.approvals.ExpireStale(context.Background(), 100)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestApprovalSweeper_DisabledWhenIntervalZero(t *testing.T) {
	h := newHarness(t)
	sw := service.NewApprovalSweeper(h.approvals, 0, zap.NewNop())

	sw.Start(context.Background())
	// Stop should return immediately.
	sw.Stop()
}

func TestApprovalSweeper_ExpiresInBackground(t *testing.T) {
	h := newHarness(t)
	a := h.requestApproval(t)
	h.clock.Advance(5 * time.Minute)

	sw := service.NewApprovalSweeper(h.approvals, 10*time.Millisecond, zap.NewNop())
	sw.Start(context.Background())
	defer sw.Stop()

	require.Eventually(t, func() bool {
		evs := h.log.Events()
		return evs[len(evs)-1].Kind == types.EventRemoteApprovalExpired
	}, time.Second, 5*time.Millisecond)

	ev := h.lastEvent(t)
	assert.Equal(t, a.SessionID, ev.SessionID)
	assert.Equal(t, "system:approval-sweeper", ev.ActorID)
	assert.Equal(t, 1.0, h.expiredCount(t, "sweep"))
}

func TestApprovalSweeper_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	sw := service.NewApprovalSweeper(h.approvals, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sw.Start(ctx)
	sw.Stop()
	sw.Stop()
}
