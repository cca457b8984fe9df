// Package events delivers gate events to the access log and any downstream
// consumers.  Delivery is best effort: callers log a failed Emit and carry on.
package events

import (
	"context"
	"errors"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// Emitter accepts one gate event.
type Emitter interface {
	Emit(ctx context.Context, ev types.GateEvent) error
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(ctx context.Context, ev types.GateEvent) error

func (f EmitterFunc) Emit(ctx context.Context, ev types.GateEvent) error { return f(ctx, ev) }

// StoreSink appends events to a GateEventStore so they can be listed as the
// access log.
type StoreSink struct {
	store store.GateEventStore
}

func NewStoreSink(s store.GateEventStore) *StoreSink {
	return &StoreSink{store: s}
}

func (s *StoreSink) Emit(ctx context.Context, ev types.GateEvent) error {
	return s.store.AppendEvent(ctx, ev)
}

// Fanout emits to every emitter in order.  All emitters are attempted; the
// returned error joins every failure.
type Fanout []Emitter

func NewFanout(emitters ...Emitter) Fanout {
	out := make(Fanout, 0, len(emitters))
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func (f Fanout) Emit(ctx context.Context, ev types.GateEvent) error {
	var errs []error
	for _, e := range f {
		if err := e.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
