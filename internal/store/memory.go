package store

import (
	"sync"
)

// DefaultCapacity is the number of records a [MemoryStore] keeps when
// created with a non-positive capacity.
const DefaultCapacity = 500

const subscriberBuffer = 100

// MemoryStore is a bounded, in-memory implementation of [Store].
//
// Records are kept in arrival order. Once the store holds its capacity the
// oldest record is evicted on each new Add. Records are keyed by Identity;
// re-adding an identity replaces the record without moving it.
//
// Subscribers receive updates via buffered channels (buffer size 100). Updates
// are sent non-blocking; if a subscriber's buffer is full, the update is dropped
// for that subscriber.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	order    []string
	records  map[string]EventRecord

	subMu       sync.RWMutex
	subscribers map[chan EventRecord]struct{}
}

// NewMemoryStore creates a [MemoryStore] holding at most capacity records.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity:    capacity,
		order:       make([]string, 0, capacity),
		records:     make(map[string]EventRecord, capacity),
		subscribers: make(map[chan EventRecord]struct{}),
	}
}

// Add stores a record and notifies all subscribers.
func (m *MemoryStore) Add(record EventRecord) {
	m.mu.Lock()
	if _, exists := m.records[record.Identity]; !exists {
		if len(m.order) >= m.capacity {
			oldest := m.order[0]
			m.order = m.order[1:]
			delete(m.records, oldest)
		}
		m.order = append(m.order, record.Identity)
	}
	m.records[record.Identity] = record
	m.mu.Unlock()

	m.notifySubscribers(record)
}

// GetAll returns a snapshot of the stored records, oldest first.
func (m *MemoryStore) GetAll() []EventRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]EventRecord, 0, len(m.order))
	for _, id := range m.order {
		results = append(results, m.records[id])
	}
	return results
}

// Len returns the number of stored records.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.order)
}

// Subscribe creates a new subscription and returns a channel for receiving updates.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan EventRecord {
	ch := make(chan EventRecord, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan EventRecord) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the record to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(record EventRecord) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- record:
		default:
			// subscriber is slow, drop the message
		}
	}
}
