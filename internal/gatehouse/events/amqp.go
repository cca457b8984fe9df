package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/types"
)

const serviceName = "gatehouse"

// Channel is the part of *amqp.Channel the publisher needs.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Envelope is the JSON body published for each gate event.
type Envelope struct {
	EventType string          `json:"event_type"`
	Service   string          `json:"service"`
	Timestamp time.Time       `json:"timestamp"`
	Event     types.GateEvent `json:"event"`
}

// AMQPPublisher publishes gate events to a topic exchange with routing key
// "gate.<kind>", e.g. "gate.visitor_denied_blacklist".
type AMQPPublisher struct {
	ch       Channel
	exchange string
	closers  []func() error
}

func NewAMQPPublisher(ch Channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

// DialAMQP connects to url, opens a channel and declares exchange as a
// durable topic exchange.
func DialAMQP(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("amqp declare exchange %s: %w", exchange, err)
	}

	p := NewAMQPPublisher(ch, exchange)
	p.closers = []func() error{ch.Close, conn.Close}
	return p, nil
}

// RoutingKey returns the routing key used for kind.
func RoutingKey(kind types.EventKind) string {
	return "gate." + strings.ToLower(string(kind))
}

func (p *AMQPPublisher) Emit(ctx context.Context, ev types.GateEvent) error {
	body, err := json.Marshal(Envelope{
		EventType: string(ev.Kind),
		Service:   serviceName,
		Timestamp: ev.OccurredAt,
		Event:     ev,
	})
	if err != nil {
		return fmt.Errorf("marshal gate event: %w", err)
	}

	key := RoutingKey(ev.Kind)
	err = p.ch.PublishWithContext(ctx, p.exchange, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Type:         string(ev.Kind),
		Timestamp:    ev.OccurredAt,
		AppId:        serviceName,
		Headers: amqp.Table{
			"tenant_id": ev.TenantID,
			"success":   ev.Success,
		},
		Body: body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}
	return nil
}

// Close releases the channel and connection opened by DialAMQP.
func (p *AMQPPublisher) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
