package engine

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerCacheConfig configures a BadgerDB-backed completion cache.
type BadgerCacheConfig struct {
	// Dir is the database directory. Empty means in-memory.
	Dir string

	// SyncWrites fsyncs every write. Ignored in memory.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. Nil disables them.
	Logger *slog.Logger
}

// BadgerCache stores completions in BadgerDB.
//
// Keys are the SHA-256 of CacheKey so that long prompts stay within
// BadgerDB's key size limit.
type BadgerCache struct {
	db *badger.DB
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// OpenBadgerCache opens (or creates) a cache database.
// The caller must Close it.
func OpenBadgerCache(cfg BadgerCacheConfig) (*BadgerCache, error) {
	var opts badger.Options
	if cfg.Dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Dir, err)
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerCache{db: db}, nil
}

// openCaches holds the on-disk caches opened through acquireBadgerCache.
// BadgerDB locks its directory, so engines pointing at the same directory
// share one handle.
var openCaches = struct {
	sync.Mutex
	byDir map[string]*sharedCache
}{byDir: make(map[string]*sharedCache)}

type sharedCache struct {
	cache *BadgerCache
	refs  int
}

// acquireBadgerCache opens cfg.Dir, or returns the handle already open for it.
// The returned release function closes the database once every holder has
// released it. An empty Dir always opens a private in-memory database.
func acquireBadgerCache(cfg BadgerCacheConfig) (*BadgerCache, func() error, error) {
	if cfg.Dir == "" {
		cache, err := OpenBadgerCache(cfg)
		if err != nil {
			return nil, nil, err
		}
		return cache, cache.Close, nil
	}

	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve cache directory %s: %w", cfg.Dir, err)
	}
	cfg.Dir = dir

	openCaches.Lock()
	defer openCaches.Unlock()

	shared, ok := openCaches.byDir[dir]
	if !ok {
		cache, err := OpenBadgerCache(cfg)
		if err != nil {
			return nil, nil, err
		}
		shared = &sharedCache{cache: cache}
		openCaches.byDir[dir] = shared
	}
	shared.refs++

	var once sync.Once
	release := func() error {
		var err error
		once.Do(func() {
			openCaches.Lock()
			defer openCaches.Unlock()
			shared.refs--
			if shared.refs == 0 {
				delete(openCaches.byDir, dir)
				err = shared.cache.Close()
			}
		})
		return err
	}
	return shared.cache, release, nil
}

func hashKey(key string) []byte {
	sum := sha256.Sum256([]byte(key))
	return sum[:]
}

// Get implements Cache.
func (c *BadgerCache) Get(key string) (string, bool, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(hashKey(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("badger cache get: %w", err)
	}
	return string(value), true, nil
}

// Set implements Cache.
func (c *BadgerCache) Set(key, value string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hashKey(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("badger cache set: %w", err)
	}
	return nil
}

// Close releases the database.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}
