package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// File keeps one JSON document per key in a directory. Each write goes through
// a pending file that is fsynced and renamed over the old one, so a crash
// leaves either the previous or the new document, never a torn one.
type File struct {
	dir string
}

// OpenFile creates dir if needed.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("file store: empty path")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("file store: create %s: %w", dir, err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file store: read %s: %w", key, err)
	}
	return data, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(f.path(key), renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("file store: create pending %s: %w", key, err)
	}
	defer pending.Cleanup() //nolint:errcheck

	if _, err := pending.Write(value); err != nil {
		return fmt.Errorf("file store: write %s: %w", key, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("file store: replace %s: %w", key, err)
	}
	return nil
}

func (f *File) Close() error { return nil }
