package rabbitmq

import (
	amqp "github.com/rabbitmq/amqp091-go"
	"lecture-narrator/constant"
)

// Topology names a work queue bound to an exchange, with a dead-letter
// exchange and queue that receive messages which exhausted their retries.
type Topology struct {
	Kind           string
	Exchange       string
	Queue          string
	RoutingKey     string
	DeadExchange   string
	DeadQueue      string
	DeadRoutingKey string
}

func PipelineTopology(kind string) Topology {
	if kind == "" {
		kind = amqp.ExchangeDirect
	}
	return Topology{
		Kind:           kind,
		Exchange:       constant.PipelineExchange,
		Queue:          constant.PipelineQueue,
		RoutingKey:     constant.PipelineRoutingKey,
		DeadExchange:   constant.PipelineDeadExchange,
		DeadQueue:      constant.PipelineDeadQueue,
		DeadRoutingKey: constant.PipelineDeadRoutingKey,
	}
}

// declarer is the subset of *amqp.Channel used to declare a topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// Declare creates the exchanges and durable queues. It is idempotent.
func (t Topology) Declare(ch declarer) error {
	if err := ch.ExchangeDeclare(t.Exchange, t.Kind, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(t.DeadExchange, t.Kind, true, false, false, false, nil); err != nil {
		return err
	}

	dlq, err := ch.QueueDeclare(t.DeadQueue, true, false, false, false, nil)
	if err != nil {
		return err
	}
	if err := ch.QueueBind(dlq.Name, t.DeadRoutingKey, t.DeadExchange, false, nil); err != nil {
		return err
	}

	args := amqp.Table{
		"x-dead-letter-exchange":    t.DeadExchange,
		"x-dead-letter-routing-key": t.DeadRoutingKey,
	}
	q, err := ch.QueueDeclare(t.Queue, true, false, false, false, args)
	if err != nil {
		return err
	}
	return ch.QueueBind(q.Name, t.RoutingKey, t.Exchange, false, nil)
}
