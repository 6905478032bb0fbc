// Package ingestcache remembers the records produced for a source so a full
// reindex does not repeat downloads, transcriptions and page fetches.
package ingestcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"ragchat/internal/domain"
)

const keyPrefix = "ingest:"

// Cache is a badger-backed map from source fingerprint to records.
type Cache struct {
	db     *badger.DB
	logger *zap.Logger
}

type entry struct {
	Records  []domain.Record `json:"records"`
	StoredAt time.Time       `json:"stored_at"`
}

// Open opens (or creates) the cache in dir. An empty dir keeps the cache in memory.
func Open(dir string, logger *zap.Logger) (*Cache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating cache directory: %w", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening ingest cache: %w", err)
	}
	logger.Debug("ingest cache opened", zap.String("dir", dir))
	return &Cache{db: db, logger: logger}, nil
}

// Key fingerprints a source. Files are keyed by path, size and modification
// time so an overwritten upload misses; pointer kinds are keyed by URL.
func Key(desc domain.SourceDescriptor, url string) (string, error) {
	if desc.Kind == domain.KindPDF {
		info, err := os.Stat(desc.Location)
		if err != nil {
			return "", err
		}
		return keyPrefix + string(desc.Kind) + "|" + desc.Location + "|" +
			strconv.FormatInt(info.Size(), 10) + "|" + strconv.FormatInt(info.ModTime().UnixNano(), 10), nil
	}
	if url == "" {
		return "", errors.New("pointer source without URL")
	}
	return keyPrefix + string(desc.Kind) + "|" + url, nil
}

// Get returns cached records for key.
func (c *Cache) Get(key string) ([]domain.Record, bool, error) {
	var e entry
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return e.Records, true, nil
}

// Put stores records under key. ttl <= 0 keeps them until purged.
func (c *Cache) Put(key string, records []domain.Record, ttl time.Duration) error {
	if len(records) == 0 {
		return errors.New("refusing to cache an empty result")
	}
	data, err := json.Marshal(entry{Records: records, StoredAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), data)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
}

// Delete drops a single key.
func (c *Cache) Delete(key string) error {
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// Len counts live entries.
func (c *Cache) Len() (int, error) {
	n := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Purge removes every entry and returns how many there were.
func (c *Cache) Purge() (int, error) {
	n, err := c.Len()
	if err != nil {
		return 0, err
	}
	if err := c.db.DropPrefix([]byte(keyPrefix)); err != nil {
		return 0, err
	}
	c.logger.Info("ingest cache purged", zap.Int("entries", n))
	return n, nil
}

func (c *Cache) Close() error {
	return c.db.Close()
}
