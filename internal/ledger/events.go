package ledger

import (
	"sync"
	"sync/atomic"
)

// Event is emitted after a state change has been committed.
// It is either a *MessageSent or a *KeyRegistered.
type Event interface {
	event()
}

// MessageSent is emitted for every accepted message. It carries everything
// except the signature.
type MessageSent struct {
	ID                       uint64
	Sender                   Identity
	Recipient                Identity
	Timestamp                uint64
	ContentDigest            Hash
	IV                       IV
	ContentLocatorCommitment Hash
	KeyLocatorCommitment     Hash
	Nonce                    uint64
}

// KeyRegistered is emitted whenever an identity registers or rotates its key.
type KeyRegistered struct {
	Owner            Identity
	PublicKeyDigest  Hash
	PublicKeyLocator string
	UpdatedAt        uint64
}

func (*MessageSent) event()   {}
func (*KeyRegistered) event() {}

func messageSentEvent(m *MessageMeta) *MessageSent {
	return &MessageSent{
		ID:                       m.ID,
		Sender:                   m.Sender,
		Recipient:                m.Recipient,
		Timestamp:                m.Timestamp,
		ContentDigest:            m.ContentDigest,
		IV:                       m.IV,
		ContentLocatorCommitment: m.ContentLocatorCommitment,
		KeyLocatorCommitment:     m.KeyLocatorCommitment,
		Nonce:                    m.Nonce,
	}
}

type subscription struct {
	callback func(Event)
	active   atomic.Bool
}

// subscriptionManager ensures callbacks are never invoked after
// unsubscription completes.
type subscriptionManager struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	nextID atomic.Uint64
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{subs: make(map[uint64]*subscription)}
}

func (m *subscriptionManager) subscribe(callback func(Event)) func() {
	id := m.nextID.Add(1)
	sub := &subscription{callback: callback}
	sub.active.Store(true)

	m.mu.Lock()
	m.subs[id] = sub
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if s, ok := m.subs[id]; ok {
			s.active.Store(false)
			delete(m.subs, id)
		}
	}
}

// notify invokes callbacks synchronously after releasing the read lock.
func (m *subscriptionManager) notify(ev Event) {
	m.mu.RLock()
	if len(m.subs) == 0 {
		m.mu.RUnlock()
		return
	}
	subs := make([]*subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.callback(ev)
		}
	}
}

func (m *subscriptionManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, sub := range m.subs {
		sub.active.Store(false)
		delete(m.subs, id)
	}
}
