package storage

import (
	"github.com/patrickmn/go-cache"
)

// MemoryStore keeps values in a process-local go-cache without expiry.
// Contents are lost on restart.
type MemoryStore struct {
	cache *cache.Cache
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{cache: cache.New(cache.NoExpiration, 0)}
}

func (m *MemoryStore) Get(key string, dst any) (bool, error) {
	raw, ok := m.cache.Get(key)
	if !ok {
		return false, nil
	}
	data, ok := raw.([]byte)
	if !ok {
		return false, nil
	}
	if err := decode(key, data, dst); err != nil {
		return true, err
	}
	return true, nil
}

func (m *MemoryStore) Set(key string, value any) error {
	data, err := encode(key, value)
	if err != nil {
		return err
	}
	m.cache.Set(key, data, cache.NoExpiration)
	return nil
}

func (m *MemoryStore) Remove(key string) error {
	m.cache.Delete(key)
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	return m.cache.ItemCount()
}
