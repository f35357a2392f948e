// Package kv defines the durable key-value port the session store writes
// through, plus in-memory and Redis adapters. The sqlite adapter lives in
// the db package.
package kv

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Get when the key has never been written
var ErrNotFound = errors.New("kv: key not found")

// Store is a durable get/set-by-key store
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Memory is a process-local Store, used in tests and with
// storage_backend = "memory".
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}
