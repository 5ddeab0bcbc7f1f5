package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"recload/internal/faults"
)

// Channel is the slice of the AMQP channel API the operator uses.
// *amqp091.Channel satisfies it; tests substitute a fake.
type Channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueuePurge(name string, noWait bool) (int, error)
	Get(queue string, autoAck bool) (amqp.Delivery, bool, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error)
	Close() error
}

// Connection hands out channels. The operator keeps one primary channel for
// its lifetime and opens short-lived side channels for operations that can
// poison a channel on failure (queue deletion).
type Connection interface {
	Channel() (Channel, error)
	Close() error
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c *amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c *amqpConnection) Close() error {
	return c.conn.Close()
}

// Dial connects to the broker and wraps the connection for the operator.
func Dial(url string) (Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "broker", "dial", url, err)
	}
	return &amqpConnection{conn: conn}, nil
}
