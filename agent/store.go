package agent

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/pierrec/lz4/v4"
)

// StoreName is the version-tagged name of the persistent cache store. Bumping
// the version abandons every previously persisted entry; stale sibling stores
// are removed on open.
const StoreName = "addr-index-cache-v1"

const storeNamePrefix = "addr-index-cache-"

// Store persists fetched bundle bodies keyed by full resource URL.
type Store interface {
	// Get returns the persisted body for url.
	Get(url string) ([]byte, bool, error)
	// Has reports whether url is persisted without reading the body.
	Has(url string) (bool, error)
	// Put persists a body under url, replacing any existing entry.
	Put(url string, body []byte) error
	// Clear drops every entry.
	Clear() error
	// Keys returns every persisted URL.
	Keys() ([]string, error)
	// Size returns the total stored size in bytes.
	Size() (int64, error)
	Close() error
}

// BadgerStore is a Store backed by an embedded badger database, with bodies
// lz4-compressed on disk and a small expiring in-memory layer in front of the
// hottest entries.
type BadgerStore struct {
	db  *badger.DB
	hot *expirable.LRU[string, []byte]
}

// BadgerStoreOptions configures OpenBadgerStore.
type BadgerStoreOptions struct {
	// HotEntries is the capacity of the in-memory hot layer.
	HotEntries int
	// HotTTL is how long hot-layer entries live.
	HotTTL time.Duration
}

// OpenBadgerStore opens (or creates) the named store under dir and removes
// stale version-tagged siblings left behind by earlier releases.
func OpenBadgerStore(dir string, optFns ...func(o *BadgerStoreOptions)) (*BadgerStore, error) {
	opts := BadgerStoreOptions{
		HotEntries: 64,
		HotTTL:     5 * time.Minute,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	removeStaleStores(dir)

	dbOpts := badger.DefaultOptions(filepath.Join(dir, StoreName)).
		WithLogger(nil)

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}

	return &BadgerStore{
		db:  db,
		hot: expirable.NewLRU[string, []byte](opts.HotEntries, nil, opts.HotTTL),
	}, nil
}

func removeStaleStores(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), storeNamePrefix) && e.Name() != StoreName {
			_ = os.RemoveAll(filepath.Join(dir, e.Name()))
		}
	}
}

// Get returns the persisted body for url, consulting the hot layer first.
func (s *BadgerStore) Get(url string) ([]byte, bool, error) {
	if body, ok := s.hot.Get(url); ok {
		return body, true, nil
	}

	var compressed []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(url))
		if err != nil {
			return err
		}
		compressed, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	body, err := lz4Decompress(compressed)
	if err != nil {
		return nil, false, err
	}

	s.hot.Add(url, body)
	return body, true, nil
}

// Has reports whether url is persisted.
func (s *BadgerStore) Has(url string) (bool, error) {
	if _, ok := s.hot.Get(url); ok {
		return true, nil
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(url))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Put persists a body under url.
func (s *BadgerStore) Put(url string, body []byte) error {
	compressed, err := lz4Compress(body)
	if err != nil {
		return err
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(url), compressed)
	})
	if err != nil {
		return err
	}

	s.hot.Add(url, body)
	return nil
}

// Clear drops every entry, hot layer included.
func (s *BadgerStore) Clear() error {
	s.hot.Purge()
	return s.db.DropAll()
}

// Keys returns every persisted URL.
func (s *BadgerStore) Keys() ([]string, error) {
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Size returns the total on-disk (compressed) size of all entries in bytes.
func (s *BadgerStore) Size() (int64, error) {
	var total int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			total += it.Item().ValueSize()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// Close closes the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func lz4Compress(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lz4Decompress(data []byte) ([]byte, error) {
	return io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
}

// MemoryStore is an in-memory Store implementation for testing.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]byte)}
}

func (m *MemoryStore) Get(url string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	body, ok := m.entries[url]
	if !ok {
		return nil, false, nil
	}
	copied := make([]byte, len(body))
	copy(copied, body)
	return copied, true, nil
}

func (m *MemoryStore) Has(url string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[url]
	return ok, nil
}

func (m *MemoryStore) Put(url string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]byte, len(body))
	copy(copied, body)
	m.entries[url] = copied
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string][]byte)
	return nil
}

func (m *MemoryStore) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	return keys, nil
}

func (m *MemoryStore) Size() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, body := range m.entries {
		total += int64(len(body))
	}
	return total, nil
}

func (m *MemoryStore) Close() error { return nil }
