// Package statscache keeps precomputed share statistics in BadgerDB and
// refreshes them on a cron schedule.
package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/sharegate/sharegate/internal/audit"
	"github.com/sirupsen/logrus"
)

// ErrClosed is returned after Close
var ErrClosed = errors.New("statistics cache is closed")

// BadgerCache stores statistics keyed by share id with a TTL
type BadgerCache struct {
	db     *badger.DB
	ttl    time.Duration
	ready  atomic.Bool
	logger *logrus.Logger
}

// BadgerOptions contains configuration options for BadgerCache
type BadgerOptions struct {
	DataDir string
	TTL     time.Duration // zero keeps entries until overwritten
	Logger  *logrus.Logger
}

// NewBadgerCache opens the cache under <DataDir>/stats
func NewBadgerCache(opts BadgerOptions) (*BadgerCache, error) {
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	dbPath := filepath.Join(opts.DataDir, "stats")
	badgerOpts := badger.DefaultOptions(dbPath).
		WithLogger(newBadgerLogger(opts.Logger)).
		WithNumVersionsToKeep(1)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db: %w", err)
	}

	cache := &BadgerCache{
		db:     db,
		ttl:    opts.TTL,
		logger: opts.Logger,
	}
	cache.ready.Store(true)

	opts.Logger.WithField("path", dbPath).Info("Statistics cache initialized")
	return cache, nil
}

func statsKey(shareID string) []byte {
	return []byte("stats:" + shareID)
}

// Get returns the cached statistics for a share, or nil when absent or expired
func (c *BadgerCache) Get(ctx context.Context, shareID string) (*audit.Statistics, error) {
	if !c.ready.Load() {
		return nil, ErrClosed
	}

	var stats *audit.Statistics
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(statsKey(shareID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			stats = &audit.Statistics{}
			return json.Unmarshal(val, stats)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached statistics: %w", err)
	}
	return stats, nil
}

// Put replaces the cached statistics for stats.ShareID
func (c *BadgerCache) Put(ctx context.Context, stats *audit.Statistics) error {
	if !c.ready.Load() {
		return ErrClosed
	}
	if stats == nil || stats.ShareID == "" {
		return audit.ErrShareIDRequired
	}

	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("failed to marshal statistics: %w", err)
	}

	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(statsKey(stats.ShareID), data)
		if c.ttl > 0 {
			entry = entry.WithTTL(c.ttl)
		}
		return txn.SetEntry(entry)
	})
}

// Delete drops a share's cached statistics
func (c *BadgerCache) Delete(ctx context.Context, shareID string) error {
	if !c.ready.Load() {
		return ErrClosed
	}
	return c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(statsKey(shareID))
	})
}

// Close closes the underlying database
func (c *BadgerCache) Close() error {
	if !c.ready.CompareAndSwap(true, false) {
		return nil
	}
	c.logger.Info("Closing statistics cache")
	return c.db.Close()
}

// badgerLogger adapts logrus to BadgerDB's logger interface
type badgerLogger struct {
	logger *logrus.Logger
}

func newBadgerLogger(logger *logrus.Logger) *badgerLogger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Errorf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warnf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debugf("[BadgerDB] "+format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Tracef("[BadgerDB] "+format, args...)
}
