package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/events"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/store/memory"
	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
	"github.com/BrandonDHaskell/gatehouse/internal/metrics"
)

func sampleEvent() types.GateEvent {
	return types.GateEvent{
		ID:         "ev-1",
		TenantID:   "estate-a",
		VisitorID:  "vis-1",
		Kind:       types.EventVisitorDeniedBlacklist,
		ActorID:    "guard-1",
		Details:    "phone blacklisted",
		Success:    false,
		OccurredAt: time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestStoreSink_AppendsToStore(t *testing.T) {
	es := memory.NewEventStore()
	sink := events.NewStoreSink(es)

	require.NoError(t, sink.Emit(context.Background(), sampleEvent()))

	got, total, err := es.ListEvents(context.Background(), "estate-a", store.EventFilter{}, store.Page{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "ev-1", got[0].ID)
}

func TestFanout_AttemptsAllAndJoinsErrors(t *testing.T) {
	boom1 := errors.New("boom1")
	boom2 := errors.New("boom2")
	var calls int
	failing := func(err error) events.Emitter {
		return events.EmitterFunc(func(context.Context, types.GateEvent) error {
			calls++
			return err
		})
	}

	f := events.NewFanout(failing(boom1), nil, failing(nil), failing(boom2))
	err := f.Emit(context.Background(), sampleEvent())

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, boom1)
	assert.ErrorIs(t, err, boom2)
}

func TestFanout_Empty(t *testing.T) {
	assert.NoError(t, events.NewFanout().Emit(context.Background(), sampleEvent()))
}

func TestInstrumented_CountsEventsAndFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	ok := events.NewInstrumented(events.EmitterFunc(func(context.Context, types.GateEvent) error { return nil }), m)
	bad := events.NewInstrumented(events.EmitterFunc(func(context.Context, types.GateEvent) error { return errors.New("down") }), m)

	ev := sampleEvent()
	require.NoError(t, ok.Emit(context.Background(), ev))
	require.Error(t, bad.Emit(context.Background(), ev))

	kind := string(types.EventVisitorDeniedBlacklist)
	assert.Equal(t, 2.0, counterValue(t, m.GateEvents.WithLabelValues(kind, "false")))
	assert.Equal(t, 1.0, counterValue(t, m.EmitFailures.WithLabelValues(kind)))
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	m := <-ch

	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	return pb.GetCounter().GetValue()
}

// ═══════════════════════════════════════════════════════════════════════════
// AMQP
// ═══════════════════════════════════════════════════════════════════════════

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	sent []published
	err  error
}

func (c *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "gate.entry_scan", events.RoutingKey(types.EventEntryScan))
	assert.Equal(t, "gate.remote_approval_expired", events.RoutingKey(types.EventRemoteApprovalExpired))
}

func TestAMQPPublisher_Publishes(t *testing.T) {
	ch := &fakeChannel{}
	p := events.NewAMQPPublisher(ch, "gate.events")

	ev := sampleEvent()
	require.NoError(t, p.Emit(context.Background(), ev))
	require.Len(t, ch.sent, 1)

	got := ch.sent[0]
	assert.Equal(t, "gate.events", got.exchange)
	assert.Equal(t, "gate.visitor_denied_blacklist", got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "ev-1", got.msg.MessageId)
	assert.Equal(t, "VISITOR_DENIED_BLACKLIST", got.msg.Type)
	assert.Equal(t, "estate-a", got.msg.Headers["tenant_id"])

	var env events.Envelope
	require.NoError(t, json.Unmarshal(got.msg.Body, &env))
	assert.Equal(t, "VISITOR_DENIED_BLACKLIST", env.EventType)
	assert.Equal(t, "gatehouse", env.Service)
	assert.Equal(t, ev, env.Event)
}

func TestAMQPPublisher_WrapsPublishError(t *testing.T) {
	down := errors.New("channel closed")
	p := events.NewAMQPPublisher(&fakeChannel{err: down}, "gate.events")

	err := p.Emit(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, down)
	assert.Contains(t, err.Error(), "gate.visitor_denied_blacklist")
}

func TestAMQPPublisher_CloseWithoutDialIsNoop(t *testing.T) {
	p := events.NewAMQPPublisher(&fakeChannel{}, "x")
	assert.NoError(t, p.Close())
}
