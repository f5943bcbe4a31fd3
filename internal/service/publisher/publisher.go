// Package publisher hands finished recognition operations to the durable
// channel without holding up the request that produced them.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"aerotool/internal/logger"
	"aerotool/internal/metrics"
	"aerotool/internal/model"
	"aerotool/internal/queue"
)

// PublishTimeout bounds a single detached publish.
const PublishTimeout = 30 * time.Second

// Publisher emits every operation exactly once. Failures are logged and
// counted but never retried and never reported to the caller.
type Publisher struct {
	broker  queue.Broker
	metrics *metrics.PublisherMetrics
	logger  *logger.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewPublisher(broker queue.Broker, metrics *metrics.PublisherMetrics, logger *logger.Logger) *Publisher {
	return &Publisher{
		broker:  broker,
		metrics: metrics,
		logger:  logger,
		timeout: PublishTimeout,
	}
}

// Publish serializes op and emits it from a background goroutine. It
// returns as soon as the payload is serialized; later changes to op do not
// affect what is sent.
func (p *Publisher) Publish(op *model.RecognitionOperation) {
	p.metrics.Attempt()

	body, err := json.Marshal(op)
	if err != nil {
		err = fmt.Errorf("failed to encode operation %s: %w", op.ID, err)
		p.metrics.Failure(err)
		p.logger.Error("%v", err)
		return
	}

	id, images := op.ID, len(op.Images)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := p.broker.Publish(ctx, body); err != nil {
			p.metrics.Failure(err)
			p.logger.Error("Failed to publish operation %s: %v", id, err)
			return
		}
		p.metrics.Success()
		p.logger.Info("Published operation %s (%d images)", id, images)
	}()
}

// Wait blocks until every publish started so far has finished.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
