package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher sends JSON messages to a topology's exchange. Safe for concurrent use.
type Publisher[T any] struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	topology Topology
}

func NewPublisher[T any](conn *amqp.Connection, topology Topology) (*Publisher[T], error) {
	p := &Publisher[T]{conn: conn, topology: topology}
	if err := p.open(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher[T]) open() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := p.topology.Declare(ch); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare topology: %w", err)
	}
	p.ch = ch
	return nil
}

func (p *Publisher[T]) Publish(ctx context.Context, message T) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		if err := p.open(); err != nil {
			return err
		}
	}

	return p.ch.PublishWithContext(ctx, p.topology.Exchange, p.topology.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

func (p *Publisher[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}
