package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/service"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/token"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/reqctx"
)

// ── Entry ────────────────────────────────────────────────────────────────────

func TestEntry_OpensSession(t *testing.T) {
	h := newHarness(t)

	sess := h.enter(t)

	assert.Equal(t, types.SessionOpen, sess.Status)
	assert.Equal(t, "veh-1", sess.VehicleID)
	assert.Equal(t, resident, sess.ResidentID)
	assert.Equal(t, "LAG234XY", sess.Plate)
	assert.Equal(t, guard, sess.EntryGuard)
	assert.Equal(t, t0, sess.EntryAt)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventEntryScan, ev.Kind)
	assert.True(t, ev.Success)
	assert.Equal(t, sess.ID, ev.SessionID)
	assert.Equal(t, guard, ev.ActorID)
	assert.NotEmpty(t, ev.ID)
}

func TestEntry_ByTagCode(t *testing.T) {
	h := newHarness(t)

	sess, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "TAG-0001"})
	require.NoError(t, err)
	assert.Equal(t, "veh-1", sess.VehicleID)
}

func TestEntry_SecondEntryDenied(t *testing.T) {
	h := newHarness(t)
	first := h.enter(t)

	_, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "LAG234XY"})
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)

	assert.Equal(t, []string{"ENTRY_SCAN:true", "ENTRY_SCAN:false"}, h.kinds())
	assert.Equal(t, first.ID, h.lastEvent(t).SessionID)

	open, total, err := h.sessions.ListSessions(guardCtx(), store.SessionFilter{VehicleID: "veh-1", Status: types.SessionOpen}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.ID, open[0].ID)
}

func TestEntry_UnknownVehicle(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "NOPE 1"})
	assert.ErrorIs(t, err, gateerr.ErrNotFound)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventEntryScan, ev.Kind)
	assert.False(t, ev.Success)
	assert.Contains(t, ev.Details, "NOPE1")
}

func TestEntry_InactiveVehicleDenied(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "KJA100AA"})
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, []string{"ENTRY_SCAN:false"}, h.kinds())
	assert.Equal(t, "veh-2", h.lastEvent(t).VehicleID)
}

func TestEntry_TenantIsolation(t *testing.T) {
	h := newHarness(t)
	h.enter(t)

	// Same plate in another estate is a different vehicle.
	sess, err := h.sessions.Entry(reqctx.With(context.Background(), tenantB, "guard-b"), types.EntryRequest{VehicleCode: "LAG234XY"})
	require.NoError(t, err)
	assert.Equal(t, "veh-b", sess.VehicleID)
}

func TestEntry_RequiresContext(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.Entry(context.Background(), types.EntryRequest{VehicleCode: "LAG234XY"})
	assert.ErrorIs(t, err, gateerr.ErrUnauthorized)

	_, err = h.sessions.Entry(reqctx.WithTenant(context.Background(), tenantA), types.EntryRequest{VehicleCode: "LAG234XY"})
	assert.ErrorIs(t, err, gateerr.ErrUnauthorized)
	assert.Empty(t, h.log.Events())
}

func TestEntry_EmptyCode(t *testing.T) {
	h := newHarness(t)
	_, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: " - "})
	assert.ErrorIs(t, err, gateerr.ErrInvalid)
}

func TestEntry_ConcurrentSingleWinner(t *testing.T) {
	h := newHarness(t)

	const guards = 25
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		denied int
	)
	for range guards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "LAG234XY"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case gateerr.KindOf(err) == gateerr.KindAccessDenied:
				denied++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, guards-1, denied)
}

func TestEntry_ConcurrentSingleWinner_SQLite(t *testing.T) {
	st := newSQLiteStore(t)
	svc := service.NewSessionService(service.Deps{Store: st}, mustCodec(t, "exit"), time.Minute)

	const guards = 10
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for range guards {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Entry(guardCtx(), types.EntryRequest{VehicleCode: "lag-234-xy"})
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	_, total, err := svc.ListSessions(guardCtx(), store.SessionFilter{Status: types.SessionOpen}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func mustCodec(t *testing.T, secret string) *token.Codec {
	t.Helper()
	c, err := token.NewCodec(secret)
	require.NoError(t, err)
	return c
}

// ── Exit with pass ───────────────────────────────────────────────────────────

func TestExitWithPass_Scenario(t *testing.T) {
	h := newHarness(t)
	sess := h.enter(t)

	pass, err := h.sessions.IssueExitPass(residentCtx(resident), "veh-1")
	require.NoError(t, err)
	assert.Equal(t, t0.Add(300*time.Second), pass.ExpiresAt)

	h.clock.Advance(100 * time.Second)
	closed, err := h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: pass.Token, Note: "bye"})
	require.NoError(t, err)

	assert.Equal(t, sess.ID, closed.ID)
	assert.Equal(t, types.SessionClosed, closed.Status)
	assert.Equal(t, types.ExitByPass, closed.ExitMethod)
	require.NotNil(t, closed.ExitAt)
	assert.Equal(t, t0.Add(100*time.Second), *closed.ExitAt)
	assert.Equal(t, []string{"ENTRY_SCAN:true", "EXIT_PASS_VALIDATED:true", "EXIT_SCAN:true"}, h.kinds())

	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: pass.Token})
	assert.ErrorIs(t, err, gateerr.ErrNotFound)

	got, err := h.sessions.GetSession(guardCtx(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SessionClosed, got.Status)
	assert.Equal(t, "bye", got.ExitNote)
}

func TestExitWithPass_ExpiredPass(t *testing.T) {
	h := newHarness(t)
	h.enter(t)
	pass, err := h.sessions.IssueExitPass(residentCtx(resident), "veh-1")
	require.NoError(t, err)

	h.clock.Advance(301 * time.Second)
	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: pass.Token})
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventExitPassFailed, ev.Kind)
	assert.Equal(t, "expired", ev.Details)

	_, total, err := h.sessions.ListSessions(guardCtx(), store.SessionFilter{Status: types.SessionOpen}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestExitWithPass_WrongVehicleOrTenant(t *testing.T) {
	h := newHarness(t)
	h.enter(t)

	otherVehicle, _, err := h.exitCodec.Issue("veh-2", "res-2", tenantA, time.Minute)
	require.NoError(t, err)
	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: otherVehicle})
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, "subject_mismatch", h.lastEvent(t).Details)

	otherTenant, _, err := h.exitCodec.Issue("veh-1", resident, tenantB, time.Minute)
	require.NoError(t, err)
	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: otherTenant})
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, "tenant_mismatch", h.lastEvent(t).Details)

	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: "garbage"})
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, "malformed", h.lastEvent(t).Details)
}

func TestExitWithPass_NoOpenSession(t *testing.T) {
	h := newHarness(t)
	pass, err := h.sessions.IssueExitPass(residentCtx(resident), "veh-1")
	require.NoError(t, err)

	_, err = h.sessions.ExitWithPass(guardCtx(), types.ExitRequest{VehicleCode: "LAG234XY", Token: pass.Token})
	assert.ErrorIs(t, err, gateerr.ErrNotFound)
	assert.Empty(t, h.log.Events())
}

func TestIssueExitPass_Rules(t *testing.T) {
	h := newHarness(t)

	_, err := h.sessions.IssueExitPass(residentCtx("someone-else"), "veh-1")
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	ev := h.lastEvent(t)
	assert.Equal(t, types.EventExitPassFailed, ev.Kind)
	assert.Equal(t, "veh-1", ev.VehicleID)
	assert.Equal(t, "someone-else", ev.ActorID)

	_, err = h.sessions.IssueExitPass(residentCtx("res-2"), "veh-2")
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	assert.Equal(t, "veh-2", h.lastEvent(t).VehicleID)
	assert.Equal(t, []string{"EXIT_PASS_FAILED:false", "EXIT_PASS_FAILED:false"}, h.kinds())

	_, err = h.sessions.IssueExitPass(residentCtx(resident), "veh-404")
	assert.ErrorIs(t, err, gateerr.ErrNotFound)

	_, err = h.sessions.IssueExitPass(residentCtx(resident), "")
	assert.ErrorIs(t, err, gateerr.ErrInvalid)
}

// ── Exit with approval ───────────────────────────────────────────────────────

func TestExitWithApproval(t *testing.T) {
	h := newHarness(t)
	sess := h.enter(t)

	_, err := h.sessions.ExitWithApproval(guardCtx(), sess.ID, "")
	assert.ErrorIs(t, err, gateerr.ErrAccessDenied)
	refused := h.lastEvent(t)
	assert.Equal(t, types.EventExitScan, refused.Kind)
	assert.False(t, refused.Success)
	assert.Equal(t, sess.ID, refused.SessionID)
	assert.Equal(t, "veh-1", refused.VehicleID)

	req, err := h.approvals.Request(guardCtx(), sess.ID, "no pass")
	require.NoError(t, err)
	_, err = h.approvals.Approve(residentCtx(resident), req.ID)
	require.NoError(t, err)

	closed, err := h.sessions.ExitWithApproval(guardCtx(), sess.ID, "released")
	require.NoError(t, err)
	assert.Equal(t, types.SessionClosed, closed.Status)
	assert.Equal(t, types.ExitByRemoteApproval, closed.ExitMethod)

	ev := h.lastEvent(t)
	assert.Equal(t, types.EventExitScan, ev.Kind)
	assert.Contains(t, ev.Details, "remote approval")

	_, err = h.sessions.ExitWithApproval(guardCtx(), sess.ID, "")
	assert.ErrorIs(t, err, gateerr.ErrInvalidState)
}

// ── Reads ────────────────────────────────────────────────────────────────────

func TestGetSession_TenantScoped(t *testing.T) {
	h := newHarness(t)
	sess := h.enter(t)

	_, err := h.sessions.GetSession(reqctx.With(context.Background(), tenantB, guard), sess.ID)
	assert.ErrorIs(t, err, gateerr.ErrNotFound)
}

func TestListEvents_Filters(t *testing.T) {
	h := newHarness(t)
	sess := h.enter(t)
	_, _ = h.sessions.Entry(guardCtx(), types.EntryRequest{VehicleCode: "KJA100AA"})

	evs, total, err := h.sessions.ListEvents(guardCtx(), store.EventFilter{SessionID: sess.ID}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, sess.ID, evs[0].SessionID)

	evs, total, err = h.sessions.ListEvents(guardCtx(), store.EventFilter{Kind: types.EventEntryScan}, store.Page{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, evs, 1)
	assert.Equal(t, "veh-2", evs[0].VehicleID, "newest first")
}
