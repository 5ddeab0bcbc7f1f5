// Package broker implements the queue operator: chunked message retrieval
// with duplicate filtering, queue assertion and purge, acknowledgement
// protocol, publish, and a ticker-driven health-check loop over one AMQP
// connection.
package broker
