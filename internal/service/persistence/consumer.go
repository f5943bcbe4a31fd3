// Package persistence stores recognition operations delivered over the
// durable channel.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aerotool/internal/logger"
	"aerotool/internal/metrics"
	"aerotool/internal/model"
	"aerotool/internal/queue"
	"aerotool/internal/repository"
)

// ErrInvalidPayload marks a message that can never be stored.
var ErrInvalidPayload = errors.New("invalid payload")

// ReconnectDelay is the pause before consuming again after the broker
// connection was lost.
const ReconnectDelay = 5 * time.Second

// Consumer is the single subscriber of the result channel. A message is
// acknowledged only after its transaction committed; unparsable messages
// are dropped and storage failures are handed back for redelivery.
type Consumer struct {
	broker          queue.Broker
	repo            repository.OperationRepository
	metrics         *metrics.ConsumerMetrics
	logger          *logger.Logger
	redeliveryDelay time.Duration
	reconnectDelay  time.Duration
}

func NewConsumer(broker queue.Broker, repo repository.OperationRepository, metrics *metrics.ConsumerMetrics, redeliveryDelay time.Duration, logger *logger.Logger) *Consumer {
	return &Consumer{
		broker:          broker,
		repo:            repo,
		metrics:         metrics,
		logger:          logger,
		redeliveryDelay: redeliveryDelay,
		reconnectDelay:  ReconnectDelay,
	}
}

// Run consumes until ctx is done, reconnecting whenever the broker drops
// the subscription.
func (c *Consumer) Run(ctx context.Context) error {
	c.logger.Info("Starting result consumer")
	for {
		err := c.broker.Consume(ctx, c.Handle)
		if ctx.Err() != nil {
			c.logger.Info("Result consumer stopped")
			return nil
		}
		if errors.Is(err, queue.ErrClosed) {
			return err
		}

		c.logger.Error("Consumer connection lost: %v, retrying in %v", err, c.reconnectDelay)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
	}
}

// Handle stores one delivery and tells the broker how to settle it.
func (c *Consumer) Handle(ctx context.Context, body []byte) queue.Outcome {
	op, err := Decode(body)
	if err != nil {
		c.metrics.Dropped()
		c.logger.Error("Dropping message: %v", err)
		return queue.Drop
	}

	id, err := c.repo.SaveOperation(ctx, op)
	if err != nil {
		c.metrics.Requeued()
		c.logger.Error("Failed to store operation %s, requeueing: %v", op.ID, err)
		select {
		case <-ctx.Done():
		case <-time.After(c.redeliveryDelay):
		}
		return queue.Requeue
	}

	c.metrics.Stored()
	c.logger.Info("Operation %s stored as #%d (%d images)", op.ID, id, len(op.Images))
	return queue.Ack
}

// Decode parses a channel payload. The summary is recomputed from the
// images so the stored aggregate always agrees with the stored rows.
func Decode(body []byte) (*model.RecognitionOperation, error) {
	var op model.RecognitionOperation
	if err := json.Unmarshal(body, &op); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if op.Timestamp.IsZero() {
		return nil, fmt.Errorf("%w: missing timestamp", ErrInvalidPayload)
	}
	for i, img := range op.Images {
		if img.ImageURL == "" {
			return nil, fmt.Errorf("%w: image %d has no url", ErrInvalidPayload, i)
		}
	}

	op.Summary = model.Summarize(op.Images)
	return &op, nil
}
