package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

// Badger stores values in an embedded badger database.
type Badger struct {
	db *badger.DB
}

// OpenBadger opens (or creates) the database in dir. Badger's own logger is
// silenced; errors surface through return values.
func OpenBadger(dir string) (*Badger, error) {
	if dir == "" {
		return nil, errors.New("badger store: empty path")
	}
	db, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return nil, fmt.Errorf("badger store: open %s: %w", dir, err)
	}
	return &Badger{db: db}, nil
}

func (b *Badger) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("badger store: get %s: %w", key, err)
	}
	return out, nil
}

func (b *Badger) Set(_ context.Context, key string, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("badger store: set %s: %w", key, err)
	}
	return nil
}

func (b *Badger) Close() error { return b.db.Close() }
