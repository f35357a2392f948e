// Package storage opens the configured durable backend for the session
// collection.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/neilberkman/studychat/internal/core/config"
	"github.com/neilberkman/studychat/internal/core/db"
	"github.com/neilberkman/studychat/internal/core/kv"
	"github.com/neilberkman/studychat/internal/core/logging"
	"github.com/neilberkman/studychat/internal/core/sessions"
)

// ErrNoDatabase is returned by features that need the sqlite mirror when
// another backend is configured.
var ErrNoDatabase = errors.New("this command needs storage_backend = \"sqlite\"")

// Storage is an open durable backend
type Storage struct {
	KV kv.Store
	// DB is set only for the sqlite backend
	DB      *db.DB
	closers []io.Closer
}

// Open connects to the backend named by cfg.StorageBackend
func Open(ctx context.Context, cfg *config.Config) (*Storage, error) {
	log := logging.WithFields("storage", cfg.StorageBackend)

	switch cfg.StorageBackend {
	case config.StorageSQLite:
		database, err := db.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		log.Debug("storage opened", "path", cfg.DBPath)
		return &Storage{KV: database, DB: database, closers: []io.Closer{database}}, nil

	case config.StorageRedis:
		r, err := kv.NewRedis(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, err
		}
		log.Debug("storage opened", "addr", cfg.RedisAddr)
		return &Storage{KV: r, closers: []io.Closer{r}}, nil

	case config.StorageMemory:
		return &Storage{KV: kv.NewMemory()}, nil
	}

	return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
}

// RequireDB returns the sqlite handle or ErrNoDatabase
func (s *Storage) RequireDB() (*db.DB, error) {
	if s.DB == nil {
		return nil, ErrNoDatabase
	}
	return s.DB, nil
}

// SessionStore builds and initializes the session store over this
// backend. With sqlite the search mirror is kept current on every write.
func (s *Storage) SessionStore(ctx context.Context, cfg *config.Config) (*sessions.Store, error) {
	opts := []sessions.Option{
		sessions.WithKey(cfg.StorageKey),
		sessions.WithLogger(logging.Logger()),
	}
	if s.DB != nil {
		opts = append(opts, sessions.WithIndexer(s.DB))
	}

	store := sessions.New(s.KV, opts...)
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize sessions: %w", err)
	}
	return store, nil
}

// Close releases the backend
func (s *Storage) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
