// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 FieldGuard Contributors

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/oops"
)

// BadgerStore is a Store backed by a badger database.
type BadgerStore struct {
	db *badger.DB
}

// BadgerOption configures OpenBadger.
type BadgerOption func(*badger.Options)

// InMemory keeps the database in memory instead of on disk.
func InMemory() BadgerOption {
	return func(o *badger.Options) {
		*o = o.WithInMemory(true).WithDir("").WithValueDir("")
	}
}

// WithBadgerLogger routes badger's internal logging to logger.
func WithBadgerLogger(logger *slog.Logger) BadgerOption {
	return func(o *badger.Options) {
		*o = o.WithLogger(badgerLogger{logger: logger})
	}
}

// OpenBadger opens (or creates) the badger database in dir.
func OpenBadger(dir string, opts ...BadgerOption) (*BadgerStore, error) {
	o := badger.DefaultOptions(dir).WithLogger(nil)
	for _, opt := range opts {
		opt(&o)
	}
	db, err := badger.Open(o)
	if err != nil {
		return nil, oops.Code("CACHE_OPEN_FAILED").With("dir", dir).Wrap(err)
	}
	return &BadgerStore{db: db}, nil
}

// Get implements Store.
func (b *BadgerStore) Get(_ context.Context, key string) (string, bool, error) {
	var value string
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, oops.Code("CACHE_GET_FAILED").With("key", key).Wrap(err)
	}
	return value, true, nil
}

// Set implements Store.
func (b *BadgerStore) Set(_ context.Context, key, value string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
	if err != nil {
		return oops.Code("CACHE_SET_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Remove implements Store.
func (b *BadgerStore) Remove(_ context.Context, key string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return oops.Code("CACHE_REMOVE_FAILED").With("key", key).Wrap(err)
	}
	return nil
}

// Apply implements Batcher. All writes land in a single transaction.
func (b *BadgerStore) Apply(_ context.Context, sets map[string]string, removes []string) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		for k, v := range sets {
			if err := txn.Set([]byte(k), []byte(v)); err != nil {
				return err
			}
		}
		for _, k := range removes {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return oops.Code("CACHE_APPLY_FAILED").
			With("sets", len(sets)).
			With("removes", len(removes)).
			Wrap(err)
	}
	return nil
}

// Close flushes and closes the database.
func (b *BadgerStore) Close() error {
	if err := b.db.Close(); err != nil {
		return oops.Code("CACHE_CLOSE_FAILED").Wrap(err)
	}
	return nil
}

// badgerLogger adapts slog to badger.Logger.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) log(level slog.Level, format string, args ...any) {
	l.logger.Log(context.Background(), level, strings.TrimSpace(fmt.Sprintf(format, args...)),
		"component", "badger")
}

func (l badgerLogger) Errorf(format string, args ...any)   { l.log(slog.LevelError, format, args...) }
func (l badgerLogger) Warningf(format string, args ...any) { l.log(slog.LevelWarn, format, args...) }
func (l badgerLogger) Infof(format string, args ...any)    { l.log(slog.LevelInfo, format, args...) }
func (l badgerLogger) Debugf(format string, args ...any)   { l.log(slog.LevelDebug, format, args...) }

var (
	_ Store         = (*BadgerStore)(nil)
	_ Batcher       = (*BadgerStore)(nil)
	_ badger.Logger = badgerLogger{}
)
