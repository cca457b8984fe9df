package events

import (
	"context"
	"strconv"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
)

// Instrumented counts every event by kind and outcome before forwarding it,
// and counts forwarding failures separately.
type Instrumented struct {
	next Emitter
	m    *metrics.Metrics
}

func NewInstrumented(next Emitter, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, m: m}
}

func (i *Instrumented) Emit(ctx context.Context, ev types.GateEvent) error {
	kind := string(ev.Kind)
	i.m.GateEvents.WithLabelValues(kind, strconv.FormatBool(ev.Success)).Inc()
	if err := i.next.Emit(ctx, ev); err != nil {
		i.m.EmitFailures.WithLabelValues(kind).Inc()
		return err
	}
	return nil
}
