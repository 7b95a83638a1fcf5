package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const infoKeyPrefix = "info:"

// InfoCache 星座介绍缓存，badger 存储，条目按 TTL 过期
type InfoCache struct {
	db  *badger.DB
	ttl time.Duration
}

type cachedInfo struct {
	Name     string    `json:"name"`
	Info     string    `json:"info"`
	CachedAt time.Time `json:"cached_at"`
}

// OpenInfoCache opens a badger database at path, or in memory when path is empty.
func OpenInfoCache(path string, ttl time.Duration) (*InfoCache, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.ValueLogFileSize = 16 << 20

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for info cache: %w", err)
	}
	return &InfoCache{db: db, ttl: ttl}, nil
}

func infoKey(name string) []byte {
	return []byte(infoKeyPrefix + strings.ToLower(strings.TrimSpace(name)))
}

// Get returns ok=false on a miss or an expired entry.
func (c *InfoCache) Get(_ context.Context, name string) (string, bool, error) {
	var entry cachedInfo
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(infoKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get info: %w", err)
	}
	return entry.Info, true, nil
}

func (c *InfoCache) Set(_ context.Context, name, info string) error {
	data, err := json.Marshal(cachedInfo{Name: name, Info: info, CachedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal info: %w", err)
	}
	return c.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(infoKey(name), data)
		if c.ttl > 0 {
			e = e.WithTTL(c.ttl)
		}
		return txn.SetEntry(e)
	})
}

// Len counts live entries.
func (c *InfoCache) Len() int {
	n := 0
	_ = c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(infoKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

func (c *InfoCache) Close() error {
	return c.db.Close()
}
