package tokenstore

import "sync"

// MemoryBackend is an in-process Backend. The zero value is ready to use.
//
// It is used for tests and for runs that must not touch disk. FailWith makes
// every subsequent operation fail, which exercises the Store's best-effort path.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[string]string
	failOn map[string]error
	all    error
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data:   make(map[string]string),
		failOn: make(map[string]error),
	}
}

// Get implements Backend.
func (m *MemoryBackend) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure(key); err != nil {
		return "", false, err
	}
	v, ok := m.data[key]
	return v, ok, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(key); err != nil {
		return err
	}
	if m.data == nil {
		m.data = make(map[string]string)
	}
	m.data[key] = value
	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(key); err != nil {
		return err
	}
	delete(m.data, key)
	return nil
}

// FailWith makes every operation return err. Pass nil to recover.
func (m *MemoryBackend) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.all = err
}

// FailKey makes operations on one key return err. Pass nil to recover.
func (m *MemoryBackend) FailKey(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failOn, key)
		return
	}
	if m.failOn == nil {
		m.failOn = make(map[string]error)
	}
	m.failOn[key] = err
}

// Snapshot returns a copy of the stored entries.
func (m *MemoryBackend) Snapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.data))
	for k, v := range m.data {
		out[k] = v
	}
	return out
}

func (m *MemoryBackend) failure(key string) error {
	if m.all != nil {
		return m.all
	}
	return m.failOn[key]
}
