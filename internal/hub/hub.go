// Package hub implements the process-wide change notification fan-out.
//
// Signals carry no payload: observers re-fetch authoritative state after a
// "topic changed" wake-up, which sidesteps ordering and lost-update concerns
// on the push channel itself.
package hub

import (
	"sync"

	"conductor/internal/logging"
	"conductor/internal/metrics"
)

// Well-known topics used by the orchestration core.
const (
	TopicTasks     = "tasks"
	TopicSchedules = "schedules"
)

// Subscription is one observer's registration on a single topic.
type Subscription struct {
	topic string
	ch    chan struct{}
}

// Topic returns the topic this subscription is registered on.
func (s *Subscription) Topic() string { return s.topic }

// Changed returns the signal channel. A receive means "the topic changed at
// least once since the last receive"; consecutive changes coalesce.
func (s *Subscription) Changed() <-chan struct{} { return s.ch }

// Hub fans out topic-changed signals to registered subscriptions.
// Delivery is best-effort and never blocks the notifier.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	logger logging.Logger
	closed bool
}

// New creates an empty hub.
func New(logger logging.Logger) *Hub {
	return &Hub{
		topics: make(map[string]map[*Subscription]struct{}),
		logger: logging.OrNop(logger),
	}
}

// Subscribe registers an observer on topic and returns its subscription.
// The signal channel has a one-slot buffer: a pending signal already means
// "changed", so further notifies coalesce instead of queueing.
func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan struct{}, 1)}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(sub.ch)
		return sub
	}
	subs := h.topics[topic]
	if subs == nil {
		subs = make(map[*Subscription]struct{})
		h.topics[topic] = subs
	}
	subs[sub] = struct{}{}
	h.logger.Debug("Hub: subscribed to %q (%d observers)", topic, len(subs))
	return sub
}

// Unsubscribe removes the subscription and closes its signal channel.
// Safe to call more than once.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[sub.topic]
	if !ok {
		return
	}
	if _, registered := subs[sub]; !registered {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(h.topics, sub.topic)
	}
	close(sub.ch)
	h.logger.Debug("Hub: unsubscribed from %q (%d observers left)", sub.topic, len(subs))
}

// Notify signals every subscription on topic that it changed.
// Never blocks: when a subscriber's buffer already holds an unread signal
// the new one coalesces into it.
func (h *Hub) Notify(topic string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- struct{}{}:
		default:
			metrics.NotificationsDropped.Inc()
		}
	}
}

// Connected reports whether at least one observer is subscribed to topic.
// Callers use it to decide between relying on push alone or supplementing
// with periodic re-fetch.
func (h *Hub) Connected(topic string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic]) > 0
}

// SubscriberCount returns the number of observers on topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}

// Close unregisters every subscription and closes their channels.
// Notify and Subscribe become no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for topic, subs := range h.topics {
		for sub := range subs {
			close(sub.ch)
		}
		delete(h.topics, topic)
	}
}
