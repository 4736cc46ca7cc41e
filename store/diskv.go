package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/peterbourgon/diskv/v3"
)

// Diskv stores each key as a file under a flat diskv tree with a small read
// cache in front.
type Diskv struct {
	d *diskv.Diskv
}

// OpenDiskv roots the tree at dir.
func OpenDiskv(dir string) (*Diskv, error) {
	if dir == "" {
		return nil, errors.New("diskv store: empty path")
	}
	d := diskv.New(diskv.Options{
		BasePath:     dir,
		Transform:    func(string) []string { return []string{} },
		CacheSizeMax: 64 * 1024,
		FilePerm:     0o600,
		PathPerm:     0o700,
	})
	return &Diskv{d: d}, nil
}

func (s *Diskv) Get(_ context.Context, key string) ([]byte, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	val, err := s.d.Read(key)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("diskv store: read %s: %w", key, err)
	}
	return val, nil
}

func (s *Diskv) Set(_ context.Context, key string, value []byte) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := s.d.WriteStream(key, bytes.NewReader(value), true); err != nil {
		return fmt.Errorf("diskv store: write %s: %w", key, err)
	}
	return nil
}

func (s *Diskv) Close() error { return nil }
