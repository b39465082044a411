package nanorelay

import (
	"strconv"
	"sync"
	"sync/atomic"
)

// watchAll is the subscription key matching every conversation.
const watchAll = "*"

// subscription represents an active message subscription.
type subscription struct {
	id       string
	key      string
	callback func(*StoredMessage)
	active   atomic.Bool
}

// subscriptionManager routes delivered messages to watchers with safe
// lifecycle management: callbacks are never invoked after their
// unsubscribe completes.
type subscriptionManager struct {
	mu     sync.RWMutex
	subs   map[string]map[string]*subscription // key -> subID -> subscription
	nextID atomic.Uint64
}

func newSubscriptionManager() *subscriptionManager {
	return &subscriptionManager{
		subs: make(map[string]map[string]*subscription),
	}
}

// subscribe registers a callback for messages in one conversation, or
// all of them with the watchAll key. Returns an unsubscribe function.
func (m *subscriptionManager) subscribe(key string, callback func(*StoredMessage)) func() {
	id := strconv.FormatUint(m.nextID.Add(1), 10)

	sub := &subscription{id: id, key: key, callback: callback}
	sub.active.Store(true)

	m.mu.Lock()
	if m.subs[key] == nil {
		m.subs[key] = make(map[string]*subscription)
	}
	m.subs[key][id] = sub
	m.mu.Unlock()

	return func() {
		m.unsubscribe(key, id)
	}
}

// unsubscribe removes a subscription. Safe to call multiple times.
func (m *subscriptionManager) unsubscribe(key, subID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if keySubs, ok := m.subs[key]; ok {
		if sub, ok := keySubs[subID]; ok {
			sub.active.Store(false)
			delete(keySubs, subID)
			if len(keySubs) == 0 {
				delete(m.subs, key)
			}
		}
	}
}

// notify invokes the callbacks subscribed to the message's
// conversation plus the catch-all watchers. Callbacks run after the
// read lock is released.
func (m *subscriptionManager) notify(msg *StoredMessage) {
	m.mu.RLock()
	var subs []*subscription
	for _, sub := range m.subs[msg.ConversationID] {
		subs = append(subs, sub)
	}
	for _, sub := range m.subs[watchAll] {
		subs = append(subs, sub)
	}
	m.mu.RUnlock()

	for _, sub := range subs {
		if sub.active.Load() {
			sub.callback(msg)
		}
	}
}

// clear removes all subscriptions. Called during Client.Close().
func (m *subscriptionManager) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, keySubs := range m.subs {
		for _, sub := range keySubs {
			sub.active.Store(false)
		}
	}
	m.subs = make(map[string]map[string]*subscription)
}
