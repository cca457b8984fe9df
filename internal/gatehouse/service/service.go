// Package service implements the gate workflows: vehicle entry and exit,
// remote exit approvals and visitor check-in.  Every operation reads the
// tenant and acting user from the request context (see reqctx) and runs its
// writes as one store.Store unit of work.  Gate events are emitted after the
// unit commits; a failed emit is logged and never fails the operation.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/events"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
)

// Deps are the collaborators shared by every service.
type Deps struct {
	Store   store.Store
	Emitter events.Emitter
	// EventLog backs access-log queries.  Optional.
	EventLog store.GateEventStore
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

type base struct {
	store    store.Store
	emitter  events.Emitter
	eventLog store.GateEventStore
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func newBase(d Deps, name string) base {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	em := d.Emitter
	if em == nil {
		em = events.NewFanout()
	}
	return base{
		store:    d.Store,
		emitter:  em,
		eventLog: d.EventLog,
		metrics:  d.Metrics,
		log:      log.Named(name),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// emit stamps ev and hands it to the emitter.  The caller's cancellation does
// not apply: a decision that was made is always recorded.
func (b *base) emit(ctx context.Context, ev types.GateEvent) {
	ev.ID = uuid.NewString()
	ev.OccurredAt = b.now()
	if err := b.emitter.Emit(context.WithoutCancel(ctx), ev); err != nil {
		b.log.Warn("gate event not delivered",
			zap.String("kind", string(ev.Kind)),
			zap.String("tenant_id", ev.TenantID),
			zap.Error(err))
	}
}

// lookupErr turns a store miss into a NotFound domain error and wraps
// anything else.
func lookupErr(err error, what string) error {
	if errors.Is(err, store.ErrNotFound) {
		return gateerr.NotFound(what + " not found")
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// denial records a refused operation: the event is emitted once the unit of
// work has rolled back.
type denial struct {
	err error
	ev  types.GateEvent
}

func (d *denial) Error() string { return d.err.Error() }
func (d *denial) Unwrap() error { return d.err }

func deny(err error, ev types.GateEvent) error {
	return &denial{err: err, ev: ev}
}

// settle emits the event carried by a denial and returns the domain error.
// Other errors pass through unchanged.
func (b *base) settle(ctx context.Context, err error) error {
	var d *denial
	if errors.As(err, &d) {
		b.emit(ctx, d.ev)
		return d.err
	}
	return err
}
