package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"recload/internal/faults"
	"recload/internal/logging"
)

// Style selects what a CheckQueue call reads.
type Style int

const (
	// StyleCountOnly returns the current message count.
	StyleCountOnly Style = iota
	// StyleOne returns at most one message.
	StyleOne
	// StyleChunk returns a duplicate-filtered chunk bounded by the chunk cap.
	StyleChunk
)

func (s Style) String() string {
	switch s {
	case StyleCountOnly:
		return "count-only"
	case StyleOne:
		return "one"
	case StyleChunk:
		return "chunk"
	default:
		return fmt.Sprintf("style(%d)", int(s))
	}
}

// CheckRequest parameterizes a queue inspection or read.
type CheckRequest struct {
	Queue     string
	Style     Style
	ToRecords bool
	Purge     bool
}

// SendRequest parameterizes a publish.
type SendRequest struct {
	Queue         string
	CorrelationID string
	Headers       amqp.Table
	Data          []byte
}

// Operator mediates all interaction with the broker for one logical
// connection: assertion, chunked and single consumption, send, ack/nack,
// queue removal and an optional health-check loop. One primary channel
// serves every operation except queue deletion, which runs on a throwaway
// side channel so a missing-queue failure cannot poison the primary.
type Operator struct {
	conn    Connection
	channel Channel
	logger  *slog.Logger

	chunkSize      int
	healthQueue    string
	healthInterval time.Duration

	closed     chan struct{}
	closeOnce  sync.Once
	healthErrs chan error
}

// Option adjusts operator construction.
type Option func(*Operator)

// WithChunkSize overrides the chunk cap (default 50).
func WithChunkSize(n int) Option {
	return func(o *Operator) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// WithHealthCheck enables the background loop that asserts the sentinel
// queue on every tick. The loop stops when the channel or connection is
// closed; failures surface on HealthErrors and in the log, they never crash
// the owning process.
func WithHealthCheck(queue string, interval time.Duration) Option {
	return func(o *Operator) {
		o.healthQueue = queue
		o.healthInterval = interval
	}
}

// DefaultChunkSize caps one chunked consume.
const DefaultChunkSize = 50

// DefaultHealthInterval is the period of the health-check loop.
const DefaultHealthInterval = 200 * time.Millisecond

// NewOperator opens the primary channel and, when configured, starts the
// health-check loop.
func NewOperator(conn Connection, logger *slog.Logger, opts ...Option) (*Operator, error) {
	channel, err := conn.Channel()
	if err != nil {
		return nil, faults.Wrap(faults.ErrUpstream, "broker", "open channel", "", err)
	}

	operator := &Operator{
		conn:       conn,
		channel:    channel,
		logger:     logging.NewComponentLogger(logger, "broker"),
		chunkSize:  DefaultChunkSize,
		closed:     make(chan struct{}),
		healthErrs: make(chan error, 1),
	}
	for _, opt := range opts {
		opt(operator)
	}

	if operator.healthQueue != "" {
		if operator.healthInterval <= 0 {
			operator.healthInterval = DefaultHealthInterval
		}
		go operator.runHealthCheck()
	}

	return operator, nil
}

// CheckQueue asserts the queue (durable), optionally purges it, and reads
// according to the requested style. The assertion runs before the purge, so
// purging a queue nobody has declared yet cannot fail the channel. An empty
// or undefined queue name is an invalid argument; an empty queue yields the
// empty sentinel result.
func (o *Operator) CheckQueue(req CheckRequest) (Result, error) {
	queue := strings.TrimSpace(req.Queue)
	if queue == "" {
		return Result{}, faults.Wrap(faults.ErrInvalidArgument, "broker", "check queue", "queue name is empty", nil)
	}

	declared, err := o.assertQueue(queue)
	if err != nil {
		return Result{}, err
	}

	if req.Purge {
		if _, err := o.channel.QueuePurge(queue, false); err != nil {
			return Result{}, faults.Wrap(faults.ErrUpstream, "broker", "purge queue", queue, err)
		}
		// Re-read so the result reflects the post-purge count.
		req.Purge = false
		return o.CheckQueue(req)
	}

	switch req.Style {
	case StyleCountOnly:
		return Result{Count: declared.Messages}, nil
	case StyleOne:
		if declared.Messages == 0 {
			return emptyResult, nil
		}
		return o.ConsumeOne(queue, req.ToRecords)
	case StyleChunk:
		if declared.Messages == 0 {
			return emptyResult, nil
		}
		return o.ConsumeChunk(queue, req.ToRecords)
	default:
		return Result{}, faults.Wrap(faults.ErrInvalidArgument, "broker", "check queue",
			fmt.Sprintf("unsupported style %s", req.Style), nil)
	}
}

// ConsumeOne asserts the queue and fetches exactly one message, or the empty
// sentinel when the queue has nothing.
func (o *Operator) ConsumeOne(queue string, toRecords bool) (Result, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return Result{}, faults.Wrap(faults.ErrInvalidArgument, "broker", "consume one", "queue name is empty", nil)
	}
	if _, err := o.assertQueue(queue); err != nil {
		return Result{}, err
	}

	msg, ok, err := o.channel.Get(queue, false)
	if err != nil {
		return Result{}, faults.Wrap(faults.ErrUpstream, "broker", "get message", queue, err)
	}
	if !ok {
		return emptyResult, nil
	}

	result := Result{Count: 1, Headers: msg.Headers, Messages: []amqp.Delivery{msg}}
	if toRecords {
		if result.Records, err = ToRecords(result.Messages); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// ConsumeChunk asserts the queue and pulls up to min(count, chunk cap)
// messages one at a time, filtering exact (correlationId, deliveryTag)
// duplicates within the chunk. Headers come from the first message;
// downstream must not assume per-message header variance inside one chunk.
func (o *Operator) ConsumeChunk(queue string, toRecords bool) (Result, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return Result{}, faults.Wrap(faults.ErrInvalidArgument, "broker", "consume chunk", "queue name is empty", nil)
	}
	declared, err := o.assertQueue(queue)
	if err != nil {
		return Result{}, err
	}
	if declared.Messages == 0 {
		return emptyResult, nil
	}

	want := min(declared.Messages, o.chunkSize)
	seen := make(map[[2]any]struct{}, want)
	messages := make([]amqp.Delivery, 0, want)
	for i := 0; i < want; i++ {
		msg, ok, err := o.channel.Get(queue, false)
		if err != nil {
			return Result{}, faults.Wrap(faults.ErrUpstream, "broker", "get message", queue, err)
		}
		if !ok {
			break
		}
		key := duplicateKey(msg)
		if _, duplicate := seen[key]; duplicate {
			o.logger.Warn("filtered duplicate message in chunk",
				logging.CorrelationID(msg.CorrelationId),
				logging.Int64("deliveryTag", int64(msg.DeliveryTag)))
			continue
		}
		seen[key] = struct{}{}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return emptyResult, nil
	}

	result := Result{Count: len(messages), Headers: messages[0].Headers, Messages: messages}
	if toRecords {
		if result.Records, err = ToRecords(messages); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// AckMessages acknowledges each message in order.
func (o *Operator) AckMessages(messages []amqp.Delivery) error {
	for _, msg := range messages {
		if err := msg.Ack(false); err != nil {
			return faults.Wrap(faults.ErrUpstream, "broker", "ack", msg.CorrelationId, err)
		}
	}
	return nil
}

// NackMessages requeues each message in order.
func (o *Operator) NackMessages(messages []amqp.Delivery) error {
	for _, msg := range messages {
		if err := msg.Nack(false, true); err != nil {
			return faults.Wrap(faults.ErrUpstream, "broker", "nack", msg.CorrelationId, err)
		}
	}
	return nil
}

// SendToQueue asserts the queue (durable) and publishes a persistent message
// carrying the correlation id and headers.
func (o *Operator) SendToQueue(ctx context.Context, req SendRequest) error {
	queue := strings.TrimSpace(req.Queue)
	if queue == "" {
		return faults.Wrap(faults.ErrInvalidArgument, "broker", "send", "queue name is empty", nil)
	}
	if _, err := o.assertQueue(queue); err != nil {
		return err
	}

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: req.CorrelationID,
		DeliveryMode:  amqp.Persistent,
		Headers:       req.Headers,
		Body:          req.Data,
	}
	if err := o.channel.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return faults.Wrap(faults.ErrUpstream, "broker", "send", queue, err)
	}
	return nil
}

// RemoveQueue deletes a queue over a throwaway side channel, so a
// missing-queue failure closes only that channel and the primary stays
// usable. This isolation is a required property, not an optimization.
func (o *Operator) RemoveQueue(queue string) error {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return faults.Wrap(faults.ErrInvalidArgument, "broker", "remove queue", "queue name is empty", nil)
	}

	side, err := o.conn.Channel()
	if err != nil {
		return faults.Wrap(faults.ErrUpstream, "broker", "open side channel", queue, err)
	}
	defer side.Close()

	if _, err := side.QueueDelete(queue, false, false, false); err != nil {
		return faults.Wrap(faults.ErrUpstream, "broker", "remove queue", queue, err)
	}
	return nil
}

// HealthErrors exposes failures observed by the health-check loop. Reacting
// (for example by reconnecting) is the caller's integration decision.
func (o *Operator) HealthErrors() <-chan error {
	return o.healthErrs
}

// CloseChannel tears down the primary channel and stops the health loop.
func (o *Operator) CloseChannel() error {
	o.signalClosed()
	return o.channel.Close()
}

// CloseConnection tears down the whole connection and stops the health loop.
func (o *Operator) CloseConnection() error {
	o.signalClosed()
	return o.conn.Close()
}

func (o *Operator) assertQueue(queue string) (amqp.Queue, error) {
	declared, err := o.channel.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return amqp.Queue{}, faults.Wrap(faults.ErrUpstream, "broker", "assert queue", queue, err)
	}
	return declared, nil
}

func (o *Operator) signalClosed() {
	o.closeOnce.Do(func() {
		close(o.closed)
	})
}

func (o *Operator) runHealthCheck() {
	ticker := time.NewTicker(o.healthInterval)
	defer ticker.Stop()

	logger := o.logger.With(logging.String("loop", "health-check"))
	for {
		select {
		case <-o.closed:
			return
		case <-ticker.C:
			if _, err := o.channel.QueueDeclare(o.healthQueue, true, false, false, false, nil); err != nil {
				wrapped := faults.Wrap(faults.ErrUpstream, "broker", "health check", o.healthQueue, err)
				logger.Error("health check failed", logging.Error(wrapped))
				select {
				case o.healthErrs <- wrapped:
				default:
				}
			}
		}
	}
}
