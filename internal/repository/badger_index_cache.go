package repository

import (
	"fmt"
	"os"

	"epub-reader-session/internal/domain"

	"github.com/dgraph-io/badger/v4"
)

const indexKeyPrefix = "locidx:"

// BadgerIndexCache implements domain.IndexCache on an embedded BadgerDB.
// A location index is a deterministic function of the book's content, so
// entries are written once per book and never expire.
type BadgerIndexCache struct {
	db     *badger.DB
	logger domain.Logger
}

// NewBadgerIndexCache opens (creating if needed) a persistent cache at path
func NewBadgerIndexCache(path string, logger domain.Logger) (domain.IndexCache, error) {
	if path == "" {
		return nil, fmt.Errorf("index cache path is required")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create index cache directory %s: %w", path, err)
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open index cache: %w", err)
	}

	logger.Info("Location index cache opened", "path", path)
	return &BadgerIndexCache{db: db, logger: logger}, nil
}

// NewInMemoryIndexCache opens a non-persistent cache, used in tests
func NewInMemoryIndexCache(logger domain.Logger) (domain.IndexCache, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory index cache: %w", err)
	}
	return &BadgerIndexCache{db: db, logger: logger}, nil
}

// Get returns the cached raw index for the document, or (nil, nil) on a miss
func (c *BadgerIndexCache) Get(documentID string) ([]byte, error) {
	var raw []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(indexKeyPrefix + documentID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached index: %w", err)
	}
	return raw, nil
}

// Put stores the raw index for the document, replacing any previous value
func (c *BadgerIndexCache) Put(documentID string, raw []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(indexKeyPrefix+documentID), raw)
	})
	if err != nil {
		return fmt.Errorf("failed to write cached index: %w", err)
	}
	return nil
}

// Close releases the underlying database
func (c *BadgerIndexCache) Close() error {
	return c.db.Close()
}
