package storage

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MockShard keeps every shard in memory; used in tests.
func MockShard() Shard {
	return func(shard string) (Persistence, error) {
		return NewMockStorage(), nil
	}
}

// MockStorage serializes values in memory, so that loads observe
// the same snapshot isolation as the file implementation.
type MockStorage struct {
	elements map[Key]string
	mutex    *sync.RWMutex
	// FailStores makes the next n Store calls fail; used to exercise
	// the atomicity guarantees of the registries.
	FailStores int
}

func NewMockStorage() *MockStorage {
	return &MockStorage{
		elements: make(map[Key]string),
		mutex:    new(sync.RWMutex),
	}
}

func (m *MockStorage) Store(k Key, value interface{}) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.FailStores > 0 {
		m.FailStores--
		return fmt.Errorf("store failed for '%+v': %w", k, UnavailableErr)
	}
	bb, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("could not marshal value: %w", err)
	}
	m.elements[k] = string(bb)
	return nil
}

func (m *MockStorage) Load(k Key, value interface{}) error {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	v, ok := m.elements[k]
	if !ok {
		return fmt.Errorf("not found '%+v': %w", k, NotFoundErr)
	}
	err := json.Unmarshal([]byte(v), value)
	if err != nil {
		return fmt.Errorf("could not unmarshal value: %w", err)
	}
	return nil
}
