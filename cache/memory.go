package cache

import "sync"

// MemoryStore is a Store that lives only for the life of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[Key][]byte
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[Key][]byte)}
}

func (m *MemoryStore) Load(key Key) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrStoreClosed
	}
	data, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStore) Save(key Key, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.entries[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemoryStore) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.entries = make(map[Key][]byte)
	return nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
