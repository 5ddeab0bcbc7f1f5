package broker

import (
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"recload/internal/faults"
	"recload/internal/marc"
)

// Result is what a queue read yields. Empty marks the typed empty-queue
// sentinel: asking a queue with nothing in it is not an error.
type Result struct {
	Empty    bool
	Count    int
	Headers  amqp.Table
	Records  []marc.Record
	Messages []amqp.Delivery
}

var emptyResult = Result{Empty: true}

// ToRecords decodes each message body into the domain record form.
func ToRecords(messages []amqp.Delivery) ([]marc.Record, error) {
	records := make([]marc.Record, 0, len(messages))
	for _, msg := range messages {
		var record marc.Record
		if err := json.Unmarshal(msg.Body, &record); err != nil {
			return nil, faults.Wrap(faults.ErrInvalidArgument, "broker", "decode record",
				"correlationId "+msg.CorrelationId, err)
		}
		records = append(records, record)
	}
	return records, nil
}

func duplicateKey(msg amqp.Delivery) [2]any {
	return [2]any{msg.CorrelationId, msg.DeliveryTag}
}
