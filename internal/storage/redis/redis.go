package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/yanmasharski/kidlock-tv/internal/storage"
)

const keyPrefix = "kidlock:"

// Config holds the Redis connection settings.
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  string
	ReadTimeout  string
	WriteTimeout string
}

// Store implements storage.KV on a Redis server. Useful when the engine and
// a companion surface run as separate processes sharing one ledger.
type Store struct {
	client *redis.Client
}

// Open creates a new Redis-backed store and verifies connectivity.
func Open(cfg Config) (*Store, error) {
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{client: client}, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Commit issues a round-trip barrier. Redis applies commands in order on
// receipt, so a successful PING confirms every prior write has been applied.
func (s *Store) Commit(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) put(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, keyPrefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
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
	value, err := s.client.Get(ctx, keyPrefix+key).Int()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis get int %s: %w", key, err)
	}
	return value, nil
}

// GetInt64 returns the value for key as an int64, or def when absent.
func (s *Store) GetInt64(ctx context.Context, key string, def int64) (int64, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Int64()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis get int64 %s: %w", key, err)
	}
	return value, nil
}

// GetBool returns the value for key as a bool, or def when absent.
func (s *Store) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	value, err := s.client.Get(ctx, keyPrefix+key).Bool()
	if err == redis.Nil {
		return def, nil
	}
	if err != nil {
		return def, fmt.Errorf("redis get bool %s: %w", key, err)
	}
	return value, nil
}

// SetString stores value under key.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.put(ctx, key, value)
}

// SetInt stores value under key.
func (s *Store) SetInt(ctx context.Context, key string, value int) error {
	return s.put(ctx, key, fmt.Sprintf("%d", value))
}

// SetInt64 stores value under key.
func (s *Store) SetInt64(ctx context.Context, key string, value int64) error {
	return s.put(ctx, key, fmt.Sprintf("%d", value))
}

// SetBool stores value under key.
func (s *Store) SetBool(ctx context.Context, key string, value bool) error {
	if value {
		return s.put(ctx, key, "1")
	}
	return s.put(ctx, key, "0")
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
