package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const badgerKeyPrefix = "img/"

// BadgerStore keeps images in an embedded Badger database. Images are served
// by the API under urlPath.
type BadgerStore struct {
	db      *badger.DB
	urlPath string
}

// OpenBadgerStore opens (or creates) the database at dir. An empty dir keeps
// everything in memory.
func OpenBadgerStore(dir, urlPath string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if strings.TrimSpace(dir) == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	urlPath = strings.TrimRight(strings.TrimSpace(urlPath), "/")
	if urlPath == "" {
		urlPath = "/api/images"
	}
	return &BadgerStore{db: db, urlPath: urlPath}, nil
}

// Put stores data under key.
func (s *BadgerStore) Put(ctx context.Context, key, _ string, data []byte) (Object, error) {
	if err := validateKey(key); err != nil {
		return Object{}, err
	}
	if err := ctx.Err(); err != nil {
		return Object{}, err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+key), data)
	})
	if err != nil {
		return Object{}, fmt.Errorf("store image: %w", err)
	}
	return Object{
		Key:    key,
		URL:    path.Join(s.urlPath, key),
		Digest: Digest(data),
		Size:   len(data),
	}, nil
}

// Get loads the image stored under key.
func (s *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load image: %w", err)
	}
	return data, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
