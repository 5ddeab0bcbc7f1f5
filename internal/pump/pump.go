package pump

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	amqp "github.com/rabbitmq/amqp091-go"

	"recload/internal/broker"
	"recload/internal/config"
	"recload/internal/faults"
	"recload/internal/fixup"
	"recload/internal/itemstore"
	"recload/internal/logging"
	"recload/internal/marc"
)

// Pump drains the import queue: it consumes record chunks, applies the fixup
// passes, records the outcome on each message's work item and acknowledges.
// Messages whose work item is gone or aborted are requeued; messages whose
// payload cannot be decoded are acknowledged after the item is marked failed,
// so a poisoned payload never loops forever.
type Pump struct {
	operator *broker.Operator
	store    *itemstore.Store
	settings fixup.Settings
	logger   *slog.Logger

	queue    string
	interval time.Duration
	lockPath string
}

func New(operator *broker.Operator, store *itemstore.Store, settings fixup.Settings, cfg *config.Config, logger *slog.Logger) *Pump {
	return &Pump{
		operator: operator,
		store:    store,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "pump"),
		queue:    cfg.Pump.Queue,
		interval: time.Duration(cfg.Pump.PollInterval) * time.Second,
		lockPath: cfg.Pump.LockPath,
	}
}

// Run polls the queue until the context is canceled. A file lock guards
// against two pumps sharing one store.
func (p *Pump) Run(ctx context.Context) error {
	lock := flock.New(p.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire pump lock: %w", err)
	}
	if !locked {
		return faults.Wrap(faults.ErrInvalidArgument, "pump", "run",
			"another pump already holds "+p.lockPath, nil)
	}
	defer func() { _ = lock.Unlock() }()

	p.logger.Info("pump started",
		logging.String("queue", p.queue),
		logging.Duration("pollInterval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pump stopped")
			return nil
		case err := <-p.operator.HealthErrors():
			return err
		case <-ticker.C:
			if err := p.DrainOnce(ctx); err != nil {
				p.logger.Error("drain failed", logging.Error(err))
			}
		}
	}
}

// DrainOnce consumes and processes at most one chunk.
func (p *Pump) DrainOnce(ctx context.Context) error {
	result, err := p.operator.ConsumeChunk(p.queue, false)
	if err != nil {
		return err
	}
	if result.Empty {
		return nil
	}

	byItem := make(map[string][]amqp.Delivery)
	order := make([]string, 0, len(result.Messages))
	for _, msg := range result.Messages {
		if _, seen := byItem[msg.CorrelationId]; !seen {
			order = append(order, msg.CorrelationId)
		}
		byItem[msg.CorrelationId] = append(byItem[msg.CorrelationId], msg)
	}

	for _, correlationID := range order {
		p.processItem(ctx, correlationID, byItem[correlationID])
	}
	return nil
}

func (p *Pump) processItem(ctx context.Context, correlationID string, messages []amqp.Delivery) {
	logger := p.logger.With(logging.CorrelationID(correlationID))

	// The staleness guard runs before any work: a stuck item aborts here.
	item, err := p.store.QueryByID(ctx, correlationID, true)
	if err != nil {
		logger.Warn("work item unavailable, requeuing", logging.Error(err))
		p.requeue(logger, messages)
		return
	}
	if item.State.IsTerminal() {
		logger.Warn("work item already terminal, dropping messages",
			logging.String("state", string(item.State)))
		p.ack(logger, messages)
		return
	}
	if item.State != itemstore.StateInQueue {
		// Queuing has not caught up with the messages yet; retry later.
		logger.Warn("work item not queued yet, requeuing",
			logging.String("state", string(item.State)))
		p.requeue(logger, messages)
		return
	}

	fresh, err := p.store.CheckAndSetState(ctx, correlationID, itemstore.StateChange{
		State:     itemstore.StateInProcess,
		ImportJob: itemstore.ImportJobProcessing,
	})
	if err != nil {
		logger.Warn("state transition failed, requeuing", logging.Error(err))
		p.requeue(logger, messages)
		return
	}
	if !fresh {
		// The staleness guard aborted the item between the read and here.
		logger.Warn("work item aborted by staleness guard, dropping messages")
		p.ack(logger, messages)
		return
	}

	handled, rejected, decodeErr := p.processRecords(messages)
	if decodeErr != nil {
		p.failItem(ctx, logger, correlationID, decodeErr)
		// The payload will not get better on redelivery.
		p.ack(logger, messages)
		return
	}

	if _, err := p.store.PushIDs(ctx, correlationID, handled, rejected); err != nil {
		logger.Error("push ids failed, requeuing", logging.Error(err))
		p.requeue(logger, messages)
		return
	}
	if _, err := p.store.PushMessages(ctx, correlationID, "", []itemstore.Message{{
		Time:  time.Now().UTC(),
		Level: "info",
		Text:  fmt.Sprintf("Processed %d record(s), %d handled, %d rejected", len(messages), len(handled), len(rejected)),
	}}); err != nil {
		logger.Error("push messages failed, requeuing", logging.Error(err))
		p.requeue(logger, messages)
		return
	}

	if _, err := p.store.SetState(ctx, correlationID, itemstore.StateChange{
		State:     itemstore.StateDone,
		ImportJob: itemstore.ImportJobDone,
	}); err != nil {
		logger.Error("finalize failed, requeuing", logging.Error(err))
		p.requeue(logger, messages)
		return
	}

	p.ack(logger, messages)
	logger.Info("work item processed",
		logging.Int("records", len(messages)),
		logging.Int("handled", len(handled)),
		logging.Int("rejected", len(rejected)))
}

// processRecords decodes and normalizes each payload. A record without a
// control number after fixup lands in the rejected list.
func (p *Pump) processRecords(messages []amqp.Delivery) (handled, rejected []string, err error) {
	for _, msg := range messages {
		var record marc.Record
		if unmarshalErr := json.Unmarshal(msg.Body, &record); unmarshalErr != nil {
			return nil, nil, faults.Wrap(faults.ErrInvalidArgument, "pump", "decode record",
				"correlationId "+msg.CorrelationId, unmarshalErr)
		}

		fixed := fixup.Apply(record, p.settings)
		if id := controlNumber(fixed); id != "" {
			handled = append(handled, id)
		} else {
			rejected = append(rejected, msg.CorrelationId+"/"+fmt.Sprint(msg.DeliveryTag))
		}
	}
	return handled, rejected, nil
}

func (p *Pump) failItem(ctx context.Context, logger *slog.Logger, correlationID string, cause error) {
	status := faults.StatusFor(cause)
	if _, err := p.store.PushMessages(ctx, correlationID, "", []itemstore.Message{{
		Time:  time.Now().UTC(),
		Level: "error",
		Text:  cause.Error(),
	}}); err != nil {
		logger.Error("record failure message", logging.Error(err))
	}
	if _, err := p.store.SetState(ctx, correlationID, itemstore.StateChange{
		State:        itemstore.StateError,
		ImportJob:    itemstore.ImportJobError,
		ErrorMessage: cause.Error(),
		ErrorStatus:  status,
	}); err != nil {
		logger.Error("mark item failed", logging.Error(err))
	}
	logger.Warn("work item failed", logging.Error(cause), logging.Int("errorStatus", status))
}

func (p *Pump) ack(logger *slog.Logger, messages []amqp.Delivery) {
	if err := p.operator.AckMessages(messages); err != nil {
		logger.Error("ack failed", logging.Error(err))
	}
}

func (p *Pump) requeue(logger *slog.Logger, messages []amqp.Delivery) {
	if err := p.operator.NackMessages(messages); err != nil {
		logger.Error("nack failed", logging.Error(err))
	}
}

func controlNumber(record marc.Record) string {
	for _, field := range record.GetTag("001") {
		if field.Value != "" {
			return field.Value
		}
	}
	return ""
}
