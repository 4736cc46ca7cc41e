// Package store provides durable key-value backends for the timer engine.
//
// Every backend stores opaque byte values under string keys and returns
// (nil, nil) from Get for a key that was never written. Writes replace the
// whole value; no backend offers or needs multi-key transactions.
package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a durable key-value store with an explicit lifetime.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendDiskv  = "diskv"
)

// Config selects and parameterizes a backend.
type Config struct {
	Backend string
	// Path is a directory for file, badger and diskv, and a database file
	// for sqlite. It is ignored by memory and redis.
	Path  string
	Redis RedisConfig
}

var (
	ErrUnknownBackend = errors.New("unknown store backend")
	ErrInvalidKey     = errors.New("invalid key")
)

// Open constructs the backend named by cfg.Backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendMemory, "":
		return NewMemory(), nil
	case BackendFile:
		return OpenFile(cfg.Path)
	case BackendBadger:
		return OpenBadger(cfg.Path)
	case BackendSQLite:
		return OpenSQLite(cfg.Path)
	case BackendRedis:
		return OpenRedis(cfg.Redis)
	case BackendDiskv:
		return OpenDiskv(cfg.Path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}

// Memory is a process-local Store. It does not survive restarts and exists
// for tests and dry runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Close() error { return nil }

// validKey rejects keys that could escape a directory-based backend.
func validKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) || filepath.Base(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
