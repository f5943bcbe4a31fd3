// Package queue is the durable channel between the inference role and the
// persistence role. A Broker publishes raw payloads under one routing
// identifier and delivers them, one at a time, to a single consumer that
// decides how each delivery is settled.
package queue

import (
	"context"
	"fmt"
	"net/url"

	"aerotool/internal/logger"
)

// DefaultName is the routing identifier shared by publisher and consumer.
const DefaultName = "analysis_results"

// Outcome tells the broker how to settle a delivery.
type Outcome int

const (
	// Ack removes the message for good.
	Ack Outcome = iota
	// Requeue leaves the message on the queue for redelivery.
	Requeue
	// Drop discards a message that can never be processed.
	Drop
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Handler processes one delivery. Deliveries are handed over strictly one
// after another; the next one is not fetched until the handler returned and
// the outcome was applied.
type Handler func(ctx context.Context, body []byte) Outcome

// Broker is a durable, at-least-once message channel.
type Broker interface {
	// Publish emits body once.
	Publish(ctx context.Context, body []byte) error
	// Consume blocks, feeding deliveries to handle until ctx is done or the
	// connection to the broker is lost.
	Consume(ctx context.Context, handle Handler) error
	Close() error
}

// Open returns the Broker selected by the scheme of rawURL: amqp(s)://,
// redis(s):// or memory://.
func Open(rawURL, name string, log *logger.Logger) (Broker, error) {
	if name == "" {
		name = DefaultName
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse queue url: %w", err)
	}

	switch u.Scheme {
	case "amqp", "amqps":
		return NewAMQPBroker(rawURL, name, log), nil
	case "redis", "rediss":
		return NewRedisBroker(rawURL, name, log), nil
	case "memory":
		return NewMemoryBroker(), nil
	default:
		return nil, fmt.Errorf("unsupported queue scheme %q", u.Scheme)
	}
}
