package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"time"

	"github.com/yanmasharski/kidlock-tv/internal/storage"
	"go.etcd.io/bbolt"
)

const bucketSettings = "settings"

// Store implements storage.KV on a single bbolt file.
//
// The database is opened with NoSync so individual writes are not fsynced;
// Commit calls Sync to flush everything written so far. That maps the KV
// contract's apply-eventually default and commit-now variant onto bbolt.
type Store struct {
	db *bbolt.DB
}

// Open opens a bbolt-backed store at path, creating it if absent.
func Open(path string) (*Store, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{
		Timeout: 2 * time.Second,
		NoSync:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return storage.EnsureDir(dir)
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketSettings)); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucketSettings, err)
		}
		return nil
	})
}

// Close closes the underlying database, syncing pending writes first.
func (s *Store) Close() error {
	if err := s.db.Sync(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("sync bolt db: %w", err)
	}
	return s.db.Close()
}

// Commit forces all prior writes to stable media.
func (s *Store) Commit(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.db.Sync(); err != nil {
		return fmt.Errorf("sync bolt db: %w", err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSettings))
		if b == nil {
			return storage.ErrNotFound
		}
		raw := b.Get([]byte(key))
		if raw == nil {
			return storage.ErrNotFound
		}
		value = string(raw)
		return nil
	})
	return value, err
}

func (s *Store) put(ctx context.Context, key, value string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSettings))
		if b == nil {
			return fmt.Errorf("bucket missing: %s", bucketSettings)
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// GetString returns the value for key, or def when absent.
func (s *Store) GetString(ctx context.Context, key, def string) (string, error) {
	value, err := s.get(ctx, key)
	if err == storage.ErrNotFound {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	return value, nil
}

// GetInt returns the value for key as an int, or def when absent.
func (s *Store) GetInt(ctx context.Context, key string, def int) (int, error) {
	value, err := s.get(ctx, key)
	if err == storage.ErrNotFound {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return def, fmt.Errorf("decode int for %s: %w", key, err)
	}
	return n, nil
}

// GetInt64 returns the value for key as an int64, or def when absent.
func (s *Store) GetInt64(ctx context.Context, key string, def int64) (int64, error) {
	value, err := s.get(ctx, key)
	if err == storage.ErrNotFound {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def, fmt.Errorf("decode int64 for %s: %w", key, err)
	}
	return n, nil
}

// GetBool returns the value for key as a bool, or def when absent.
func (s *Store) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := s.get(ctx, key)
	if err == storage.ErrNotFound {
		return def, nil
	}
	if err != nil {
		return def, err
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		return def, fmt.Errorf("decode bool for %s: %w", key, err)
	}
	return v, nil
}

// SetString stores value under key.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.put(ctx, key, value)
}

// SetInt stores value under key.
func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.put(ctx, key, strconv.Itoa(value))
}

// SetInt64 stores value under key.
func (s *Store) SetInt64(ctx context.Context, key string, value int64) error {
	return s.put(ctx, key, strconv.FormatInt(value, 10))
}

// SetBool stores value under key.
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	return s.put(ctx, key, strconv.FormatBool(value))
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSettings))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}
