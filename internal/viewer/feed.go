package viewer

import "sync"

// Feed fans freshly computed view-models out to renderers. View-models
// are immutable, so the same pointer is handed to every subscriber. A
// slow subscriber loses intermediate frames, never the latest one.
type Feed struct {
	mu     sync.RWMutex
	latest *ViewModel
	subs   map[*feedSub]struct{}
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[*feedSub]struct{})}
}

// Publish stores vm as the latest frame and notifies subscribers.
func (f *Feed) Publish(vm *ViewModel) {
	if vm == nil {
		return
	}

	f.mu.Lock()
	f.latest = vm
	targets := make([]*feedSub, 0, len(f.subs))
	for sub := range f.subs {
		targets = append(targets, sub)
	}
	f.mu.Unlock()

	for _, sub := range targets {
		sub.send(vm)
	}
}

// Latest returns the most recently published view-model.
func (f *Feed) Latest() (*ViewModel, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, f.latest != nil
}

// Subscribe registers a listener. The latest frame, if any, is queued
// immediately. The cancel function releases the subscription.
func (f *Feed) Subscribe() (<-chan *ViewModel, func()) {
	sub := &feedSub{ch: make(chan *ViewModel, 1)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	f.subs[sub] = struct{}{}
	latest := f.latest
	f.mu.Unlock()

	if latest != nil {
		sub.send(latest)
	}

	cancel := func() {
		f.mu.Lock()
		delete(f.subs, sub)
		f.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

// Close drops all subscribers. Publish becomes a no-op for them.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	subs := make([]*feedSub, 0, len(f.subs))
	for sub := range f.subs {
		subs = append(subs, sub)
	}
	f.subs = make(map[*feedSub]struct{})
	f.mu.Unlock()

	for _, sub := range subs {
		sub.close()
	}
}

type feedSub struct {
	ch     chan *ViewModel
	mu     sync.Mutex
	closed bool
}

func (s *feedSub) send(vm *ViewModel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- vm:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- vm:
	default:
	}
}

func (s *feedSub) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	close(s.ch)
	s.closed = true
}
