package testsupport

import (
	"context"
	"errors"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"recload/internal/broker"
)

// FakeAcknowledger records ack/nack calls for assertions.
type FakeAcknowledger struct {
	mu      sync.Mutex
	Acked   []uint64
	Nacked  []uint64
	FailAck error
}

func (a *FakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.FailAck != nil {
		return a.FailAck
	}
	a.Acked = append(a.Acked, tag)
	return nil
}

func (a *FakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Nacked = append(a.Nacked, tag)
	return nil
}

func (a *FakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

// FakeBroker is an in-memory stand-in for the AMQP client: named queues of
// deliveries, channel accounting and failure injection.
type FakeBroker struct {
	mu       sync.Mutex
	queues   map[string][]amqp.Delivery
	nextTag  uint64
	channels int

	Acknowledger *FakeAcknowledger

	declares int

	// Failure injection.
	DeclareErr error
	GetErr     error
	PublishErr error
}

func NewFakeBroker() *FakeBroker {
	return &FakeBroker{
		queues:       make(map[string][]amqp.Delivery),
		Acknowledger: &FakeAcknowledger{},
	}
}

// Connection exposes the fake as the operator's Connection dependency.
func (b *FakeBroker) Connection() broker.Connection {
	return &fakeConnection{broker: b}
}

// Seed places a message on a queue and returns the delivery it stored.
func (b *FakeBroker) Seed(queue, correlationID string, headers amqp.Table, body []byte) amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextTag++
	msg := amqp.Delivery{
		Acknowledger:  b.Acknowledger,
		CorrelationId: correlationID,
		Headers:       headers,
		Body:          body,
		DeliveryTag:   b.nextTag,
	}
	b.queues[queue] = append(b.queues[queue], msg)
	return msg
}

// Inject appends an exact delivery, letting tests plant duplicates.
func (b *FakeBroker) Inject(queue string, msg amqp.Delivery) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg.Acknowledger = b.Acknowledger
	b.queues[queue] = append(b.queues[queue], msg)
}

// Queue returns a copy of the pending messages on a queue.
func (b *FakeBroker) Queue(name string) []amqp.Delivery {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]amqp.Delivery, len(b.queues[name]))
	copy(out, b.queues[name])
	return out
}

// HasQueue reports whether the named queue exists.
func (b *FakeBroker) HasQueue(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.queues[name]
	return ok
}

// DeclareCount counts QueueDeclare calls across all channels.
func (b *FakeBroker) DeclareCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.declares
}

// OpenedChannels counts how many channels were handed out.
func (b *FakeBroker) OpenedChannels() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels
}

type fakeConnection struct {
	broker *FakeBroker
	closed bool
}

func (c *fakeConnection) Channel() (broker.Channel, error) {
	c.broker.mu.Lock()
	defer c.broker.mu.Unlock()
	c.broker.channels++
	return &fakeChannel{broker: c.broker}, nil
}

func (c *fakeConnection) Close() error {
	c.closed = true
	return nil
}

type fakeChannel struct {
	broker *FakeBroker
	closed bool
}

func (ch *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	ch.broker.declares++
	if ch.closed {
		return amqp.Queue{}, errors.New("channel closed")
	}
	if ch.broker.DeclareErr != nil {
		return amqp.Queue{}, ch.broker.DeclareErr
	}
	if _, ok := ch.broker.queues[name]; !ok {
		ch.broker.queues[name] = nil
	}
	return amqp.Queue{Name: name, Messages: len(ch.broker.queues[name])}, nil
}

func (ch *fakeChannel) QueuePurge(name string, noWait bool) (int, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	pending, ok := ch.broker.queues[name]
	if !ok {
		// Purging an undeclared queue poisons the channel, like the real broker.
		ch.closed = true
		return 0, errors.New("NOT_FOUND - no queue '" + name + "'")
	}
	count := len(pending)
	ch.broker.queues[name] = nil
	return count, nil
}

func (ch *fakeChannel) Get(queue string, autoAck bool) (amqp.Delivery, bool, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	if ch.broker.GetErr != nil {
		return amqp.Delivery{}, false, ch.broker.GetErr
	}
	pending := ch.broker.queues[queue]
	if len(pending) == 0 {
		return amqp.Delivery{}, false, nil
	}
	msg := pending[0]
	ch.broker.queues[queue] = pending[1:]
	return msg, true, nil
}

func (ch *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	if ch.broker.PublishErr != nil {
		return ch.broker.PublishErr
	}
	ch.broker.nextTag++
	ch.broker.queues[key] = append(ch.broker.queues[key], amqp.Delivery{
		Acknowledger:  ch.broker.Acknowledger,
		CorrelationId: msg.CorrelationId,
		Headers:       msg.Headers,
		Body:          msg.Body,
		DeliveryTag:   ch.broker.nextTag,
	})
	return nil
}

func (ch *fakeChannel) QueueDelete(name string, ifUnused, ifEmpty, noWait bool) (int, error) {
	ch.broker.mu.Lock()
	defer ch.broker.mu.Unlock()
	pending, ok := ch.broker.queues[name]
	if !ok {
		// A failed delete poisons the channel it ran on, like the real broker.
		ch.closed = true
		return 0, errors.New("NOT_FOUND - no queue '" + name + "'")
	}
	delete(ch.broker.queues, name)
	return len(pending), nil
}

func (ch *fakeChannel) Close() error {
	ch.closed = true
	return nil
}
