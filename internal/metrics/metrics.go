// Package metrics keeps in-process counters for the publish and consume
// sides of the result channel.
package metrics

import (
	"sync"
	"time"
)

// PublisherMetrics counts publish attempts and their outcomes. Failed
// publishes are otherwise only visible in the logs.
type PublisherMetrics struct {
	mu          sync.RWMutex
	attempted   int64
	published   int64
	failed      int64
	lastFailure time.Time
	lastError   string
}

// PublisherSnapshot is a point-in-time copy of PublisherMetrics.
type PublisherSnapshot struct {
	Attempted   int64     `json:"attempted"`
	Published   int64     `json:"published"`
	Failed      int64     `json:"failed"`
	LastFailure time.Time `json:"last_failure,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

func (m *PublisherMetrics) Attempt() {
	m.mu.Lock()
	m.attempted++
	m.mu.Unlock()
}

func (m *PublisherMetrics) Success() {
	m.mu.Lock()
	m.published++
	m.mu.Unlock()
}

func (m *PublisherMetrics) Failure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed++
	m.lastFailure = time.Now()
	if err != nil {
		m.lastError = err.Error()
	}
}

func (m *PublisherMetrics) Snapshot() PublisherSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return PublisherSnapshot{
		Attempted:   m.attempted,
		Published:   m.published,
		Failed:      m.failed,
		LastFailure: m.lastFailure,
		LastError:   m.lastError,
	}
}

// ConsumerMetrics counts how consumed messages were settled.
type ConsumerMetrics struct {
	mu       sync.RWMutex
	stored   int64
	dropped  int64
	requeued int64
}

// ConsumerSnapshot is a point-in-time copy of ConsumerMetrics.
type ConsumerSnapshot struct {
	Stored   int64 `json:"stored"`
	Dropped  int64 `json:"dropped"`
	Requeued int64 `json:"requeued"`
}

func (m *ConsumerMetrics) Stored() {
	m.mu.Lock()
	m.stored++
	m.mu.Unlock()
}

func (m *ConsumerMetrics) Dropped() {
	m.mu.Lock()
	m.dropped++
	m.mu.Unlock()
}

func (m *ConsumerMetrics) Requeued() {
	m.mu.Lock()
	m.requeued++
	m.mu.Unlock()
}

func (m *ConsumerMetrics) Snapshot() ConsumerSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ConsumerSnapshot{
		Stored:   m.stored,
		Dropped:  m.dropped,
		Requeued: m.requeued,
	}
}
