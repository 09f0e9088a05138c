package sealpost

import (
	"sync"
	"sync/atomic"
)

// subscription represents an active message subscription.
type subscription struct {
	id       uint64
	callback func(*Message)
	active   atomic.Bool

	// mu serializes callbacks and guards seen, the ids this subscription
	// has already been handed.
	mu   sync.Mutex
	seen map[uint64]struct{}
}

// hasSeen reports whether id was already delivered to this subscription.
func (s *subscription) hasSeen(id uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// deliver hands msg to the callback unless the subscription is inactive or
// already saw msg.ID. Reports whether the callback ran.
func (s *subscription) deliver(msg *Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active.Load() {
		return false
	}
	if _, ok := s.seen[msg.ID]; ok {
		return false
	}
	s.seen[msg.ID] = struct{}{}
	s.callback(msg)
	return true
}

// subscriptionManager handles message subscriptions with safe lifecycle
// management. Each subscription sees a given message id at most once.
type subscriptionManager struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subs: make(map[uint64]*subscription),
	}
}

// subscribe registers a callback for new messages. Returns the subscription
// and an unsubscribe function that is safe to call more than once.
func (m *subscriptionManager) subscribe(callback func(*Message)) (*subscription, func()) {
	sub := &subscription{
		id:       m.nextID.Add(1),
		callback: callback,
		seen:     make(map[uint64]struct{}),
	}
	sub.active.Store(true)

	m.mu.Lock()
	m.subs[sub.id] = sub
	m.mu.Unlock()

	return sub, func() {
		m.unsubscribe(sub.id)
	}
}

func (m *subscriptionManager) unsubscribe(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if sub, ok := m.subs[id]; ok {
		sub.active.Store(false)
		delete(m.subs, id)
	}
}

func (m *subscriptionManager) count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs)
}

// pending returns the active subscriptions that have not yet seen id.
func (m *subscriptionManager) pending(id uint64) []*subscription {
	m.mu.RLock()
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	out := subs[:0]
	for _, sub := range subs {
		if sub.active.Load() && !sub.hasSeen(id) {
			out = append(out, sub)
		}
	}
	return out
}

// notify delivers msg to every subscription that has not seen it yet.
func (m *subscriptionManager) notify(msg *Message) {
	for _, sub := range m.pending(msg.ID) {
		sub.deliver(msg)
	}
}

// clear removes all subscriptions. Called during Client.Close().
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs {
		sub.active.Store(false)
	}
	m.subs = make(map[uint64]*subscription)
}
