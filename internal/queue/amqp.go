package queue

import (
	"context"
	"errors"
	"fmt"

	"aerotool/internal/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrConnectionLost is returned by AMQPBroker.Consume when the broker
// closes the delivery channel.
var ErrConnectionLost = errors.New("broker connection lost")

// AMQPBroker talks to a RabbitMQ compatible broker through the default
// exchange. The queue is declared durable on both sides and messages are
// published persistent.
type AMQPBroker struct {
	url    string
	name   string
	logger *logger.Logger
}

func NewAMQPBroker(rawURL, name string, log *logger.Logger) *AMQPBroker {
	return &AMQPBroker{url: rawURL, name: name, logger: log}
}

// Publish opens a short lived connection for each message.
func (b *AMQPBroker) Publish(ctx context.Context, body []byte) error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := b.declare(ch); err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", b.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

func (b *AMQPBroker) Consume(ctx context.Context, handle Handler) error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := b.declare(ch); err != nil {
		return err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(b.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}
	b.logger.Info("Waiting for messages on %s", b.name)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrConnectionLost
			}
			if err := settleDelivery(d, handle(ctx, d.Body)); err != nil {
				return err
			}
		}
	}
}

// Close is a no-op; connections are scoped to Publish and Consume calls.
func (b *AMQPBroker) Close() error {
	return nil
}

func (b *AMQPBroker) declare(ch *amqp.Channel) error {
	if _, err := ch.QueueDeclare(b.name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", b.name, err)
	}
	return nil
}

func settleDelivery(d amqp.Delivery, outcome Outcome) error {
	var err error
	switch outcome {
	case Ack:
		err = d.Ack(false)
	case Requeue:
		err = d.Nack(false, true)
	default:
		err = d.Reject(false)
	}
	if err != nil {
		return fmt.Errorf("failed to %s delivery: %w", outcome, err)
	}
	return nil
}
