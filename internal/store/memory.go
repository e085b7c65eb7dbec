package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/seatrail/ticket-ledger/internal/keys"
)

// memoryStore is an in-memory KV used by unit tests and embedded runs
type memoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

// NewMemory creates an empty in-memory ledger store
func NewMemory() KV {
	return &memoryStore{records: make(map[string][]byte)}
}

func (m *memoryStore) Get(_ context.Context, key keys.Key) ([]byte, error) {
	if err := key.Valid(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.records[key.String()]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (m *memoryStore) Put(_ context.Context, key keys.Key, value []byte) error {
	if err := key.Valid(); err != nil {
		return err
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key.String()] = stored
	return nil
}

func (m *memoryStore) Delete(_ context.Context, key keys.Key) error {
	if err := key.Valid(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key.String())
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix keys.Key) ([]Entry, error) {
	p := prefix.String()
	m.mu.RLock()
	matched := make([]string, 0)
	for k := range m.records {
		if strings.HasPrefix(k, p) {
			matched = append(matched, k)
		}
	}
	sort.Strings(matched)
	entries := make([]Entry, 0, len(matched))
	for _, k := range matched {
		parsed, err := keys.Parse(k)
		if err != nil {
			m.mu.RUnlock()
			return nil, err
		}
		value := make([]byte, len(m.records[k]))
		copy(value, m.records[k])
		entries = append(entries, Entry{Key: parsed, Value: value})
	}
	m.mu.RUnlock()
	return entries, nil
}
