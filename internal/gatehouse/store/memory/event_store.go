package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

// EventStore is an in-memory append-only gate access log.
type EventStore struct {
	mu     sync.Mutex
	events []types.GateEvent
}

func NewEventStore() *EventStore {
	return &EventStore{}
}

var _ store.GateEventStore = (*EventStore)(nil)

func (s *EventStore) AppendEvent(_ context.Context, ev types.GateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// ListEvents returns matching events newest first.
func (s *EventStore) ListEvents(_ context.Context, tenantID string, f store.EventFilter, p store.Page) ([]types.GateEvent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []types.GateEvent
	for _, ev := range slices.Backward(s.events) {
		if ev.TenantID != tenantID {
			continue
		}
		if f.SessionID != "" && ev.SessionID != f.SessionID {
			continue
		}
		if f.VehicleID != "" && ev.VehicleID != f.VehicleID {
			continue
		}
		if f.VisitorID != "" && ev.VisitorID != f.VisitorID {
			continue
		}
		if f.Kind != "" && ev.Kind != f.Kind {
			continue
		}
		out = append(out, ev)
	}
	return paginate(out, p), len(out), nil
}

// Events returns a copy of all recorded events in append order.  Test-only
// helper.
func (s *EventStore) Events() []types.GateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.GateEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of all recorded events in append order.
func (s *EventStore) Kinds() []types.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.EventKind, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Kind
	}
	return out
}
