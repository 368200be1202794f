// Package bus implements the internal event publisher: a topic-exchange
// publisher over AMQP, used by the inbound pipeline (C7) to emit the
// process_patient/process_location/process_encounter event, per
// spec.md §4.7 step 8 and §6.
package bus

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event is the envelope published to the bus.
type Event struct {
	MessageUUID string `json:"dhos_connector_message_uuid"`
	Actions     any    `json:"actions"`
}

// Publisher publishes Events to a topic exchange with a fixed routing
// key. It owns a single AMQP connection/channel pair; per spec.md §5 this
// is one of the three process-wide shared resources (alongside the store
// pool and the trustomer cache).
type Publisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

// Dial connects to url and declares exchange as a durable topic exchange.
func Dial(url, exchange, routingKey string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("bus: declare exchange: %w", err)
	}
	return &Publisher{conn: conn, channel: ch, exchange: exchange, routingKey: routingKey}, nil
}

func (p *Publisher) Close() error {
	chErr := p.channel.Close()
	connErr := p.conn.Close()
	if chErr != nil {
		return chErr
	}
	return connErr
}

// Publish sends evt to the exchange with the publisher's fixed routing
// key. Per spec.md §5's ordering guarantee, the caller must have already
// committed the corresponding message record before calling Publish.
func (p *Publisher) Publish(ctx context.Context, evt Event) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("bus: marshal event: %w", err)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
	})
}
