package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// memKVStore is the in-memory implementation of KVStore
type memKVStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemKVStore instantiates an in-memory KV store
func NewMemKVStore() KVStore {
	return &memKVStore{data: make(map[string][]byte)}
}

func (m *memKVStore) Start(_ context.Context) error { return nil }

func (m *memKVStore) Stop(_ context.Context) error { return nil }

// Get retrieves a record
func (m *memKVStore) Get(_ context.Context, namespace string, key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(compositeKey(namespace, key))]
	if !ok {
		return nil, errors.Wrapf(ErrNotExist, "key = %s/%s doesn't exist", namespace, key)
	}
	return append([]byte(nil), v...), nil
}

// Commit commits a batch
func (m *memKVStore) Commit(_ context.Context, b *Batch) error {
	for _, w := range b.writes {
		if w.Type != Put && w.Type != Delete {
			return errors.Errorf("unexpected write type %d", w.Type)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range b.writes {
		k := string(compositeKey(w.Namespace, w.Key))
		if w.Type == Put {
			m.data[k] = append([]byte(nil), w.Value...)
		} else {
			delete(m.data, k)
		}
	}
	return nil
}
