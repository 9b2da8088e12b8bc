package store

import (
	"sort"
	"sync"
)

// subscriberBuffer is the channel capacity handed to each subscriber.
const subscriberBuffer = 100

// MemoryStore is the in-memory [Store].
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[int]FacilityStatus

	subMu       sync.RWMutex
	subscribers map[chan FacilityStatus]struct{}
}

// NewMemoryStore creates an empty [MemoryStore].
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		statuses:    make(map[int]FacilityStatus),
		subscribers: make(map[chan FacilityStatus]struct{}),
	}
}

// Update stores status under its facility id and notifies subscribers.
func (m *MemoryStore) Update(status FacilityStatus) {
	m.mu.Lock()
	m.statuses[status.FacilityID] = status
	m.mu.Unlock()

	m.publish(status)
}

// GetAll returns a copy of every stored status in ascending facility order.
func (m *MemoryStore) GetAll() []FacilityStatus {
	m.mu.RLock()
	out := make([]FacilityStatus, 0, len(m.statuses))
	for _, s := range m.statuses {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FacilityID < out[j].FacilityID })
	return out
}

// Get returns the status of one facility.
func (m *MemoryStore) Get(facilityID int) (FacilityStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.statuses[facilityID]
	return s, ok
}

// Subscribe registers a new subscriber.
func (m *MemoryStore) Subscribe() <-chan FacilityStatus {
	ch := make(chan FacilityStatus, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes ch and closes it.
func (m *MemoryStore) Unsubscribe(ch <-chan FacilityStatus) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	for sub := range m.subscribers {
		if sub == ch {
			delete(m.subscribers, sub)
			close(sub)
			return
		}
	}
}

func (m *MemoryStore) publish(status FacilityStatus) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- status:
		default:
			// slow subscriber, drop
		}
	}
}
