package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"

	"pomodoro/store"
)

// ErrAlreadyRunning is returned when another daemon holds the instance lock.
var ErrAlreadyRunning = errors.New("another pomodorod instance is running")

// instanceLock is an advisory flock held for the daemon's lifetime. Two
// daemons sharing a store would each schedule their own wake and both
// advance the phase.
type instanceLock struct {
	f *os.File
}

// acquireLock takes an exclusive non-blocking lock on path, creating the
// file and its directory if needed.
func acquireLock(path string) (*instanceLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%w (lock %s)", ErrAlreadyRunning, path)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}

	// Best-effort: record our pid for humans.
	if err := f.Truncate(0); err == nil {
		_, _ = fmt.Fprintf(f, "%d\n", os.Getpid())
	}
	return &instanceLock{f: f}, nil
}

func (l *instanceLock) Release() error {
	if l == nil || l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

// lockPath picks where the instance lock lives. Path-based stores lock next
// to their data; memory and redis lock next to the IPC socket.
func lockPath(cfg *Config) string {
	switch cfg.Store.Backend {
	case store.BackendMemory, store.BackendRedis:
		return cfg.IPC.SocketPath + ".lock"
	case store.BackendSQLite:
		return ExpandPath(cfg.Store.Path) + ".lock"
	default:
		return filepath.Join(ExpandPath(cfg.Store.Path), "pomodorod.lock")
	}
}
