package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Manager drives the poll loop, caches the latest sample per GPU, and
// fans batches out to subscribers (viewer engine, recorder).
type Manager struct {
	interval time.Duration
	source   Source
	logger   *slog.Logger

	mu          sync.RWMutex
	latest      map[int]Sample
	primed      bool
	subscribers map[*subscriber]struct{}
}

// NewManager builds a Manager around a pre-constructed source.
func NewManager(interval time.Duration, source Source, logger *slog.Logger) (*Manager, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("interval must be > 0")
	}
	if source == nil {
		return nil, fmt.Errorf("source must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		interval:    interval,
		source:      source,
		logger:      logger.With("component", "telemetry_manager"),
		latest:      make(map[int]Sample),
		subscribers: make(map[*subscriber]struct{}),
	}, nil
}

// Run polls until the context is canceled. Poll failures are logged and
// the loop continues; the source may recover on a later tick.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("poller started", "interval", m.interval)

	// Initial poll to prime the cache before the first tick.
	m.pollOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("poller stopping", "reason", ctx.Err())
			m.closeSubscribers()
			return ctx.Err()
		case <-ticker.C:
			m.pollOnce(ctx)
		}
	}
}

func (m *Manager) pollOnce(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.interval)
	batch, err := m.source.Poll(pollCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("poll failed", "err", err)
		}
		return
	}
	if len(batch) == 0 {
		return
	}
	m.storeBatch(batch)
}

// Latest returns the most recent sample for the given GPU.
func (m *Manager) Latest(gpuID int) (Sample, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sample, ok := m.latest[gpuID]
	return sample, ok
}

// Ready reports whether at least one batch has been published.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.primed
}

// Subscribe registers a listener for sample batches. The returned
// cancel function must be called to release the subscription.
func (m *Manager) Subscribe() (<-chan []Sample, func()) {
	sub := newSubscriber()

	m.mu.Lock()
	m.subscribers[sub] = struct{}{}
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		delete(m.subscribers, sub)
		m.mu.Unlock()
		sub.close()
	}
	return sub.channel(), unsubscribe
}

func (m *Manager) storeBatch(batch []Sample) {
	m.mu.Lock()
	for _, sample := range batch {
		m.latest[sample.GPUID] = sample
	}
	m.primed = true
	targets := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		targets = append(targets, sub)
	}
	m.mu.Unlock()

	for _, sub := range targets {
		sub.send(batch)
	}
}

func (m *Manager) closeSubscribers() {
	m.mu.Lock()
	subs := make([]*subscriber, 0, len(m.subscribers))
	for sub := range m.subscribers {
		subs = append(subs, sub)
	}
	m.subscribers = make(map[*subscriber]struct{})
	m.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

type subscriber struct {
	ch     chan []Sample
	mu     sync.Mutex
	closed bool
}

func newSubscriber() *subscriber {
	return &subscriber{ch: make(chan []Sample, 1)}
}

func (s *subscriber) channel() <-chan []Sample {
	return s.ch
}

func (s *subscriber) send(batch []Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- batch:
		return
	default:
	}
	// Drop oldest to make room for the new batch.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- batch:
	default:
	}
}

func (s *subscriber) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
