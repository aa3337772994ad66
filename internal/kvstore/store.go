// Package kvstore is the TTL-aware key/value layer every session and one-time token
// lives in. Keys are namespaced by the callers; this package never builds them.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// ErrUnavailable wraps every backend failure that is not a plain miss.
var ErrUnavailable = errors.New("session store unavailable")

// TTL sentinels, mirroring the Redis TTL reply.
const (
	NoExpiry   int64 = -1
	KeyMissing int64 = -2
)

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// Store is a thin JSON-aware wrapper around a Redis client.
type Store struct {
	client redis.UniversalClient
}

// New creates a store for the given connection options. No I/O happens here;
// connectivity problems surface on first use (or via Ping) as ErrUnavailable.
func New(opts Options) *Store {
	return NewWithClient(redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}))
}

func NewWithClient(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Set writes value under key. Strings and byte slices are stored as-is, anything
// else is JSON-encoded. ttl <= 0 stores without expiry.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	var payload any
	switch v := value.(type) {
	case string:
		payload = v
	case []byte:
		payload = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode value for %q: %w", key, err)
		}
		payload = b
	}

	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return unavailable("set", err)
	}
	return nil
}

// GetRaw returns the stored string. found is false on a miss or after expiry.
func (s *Store) GetRaw(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable("get", err)
	}
	return val, true, nil
}

// Get returns the decoded value: JSON when it parses, the raw string otherwise.
func (s *Store) Get(ctx context.Context, key string) (any, bool, error) {
	raw, found, err := s.GetRaw(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}

	var decoded any
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return raw, true, nil
	}
	return decoded, true, nil
}

// GetJSON decodes the stored value into dst.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, found, err := s.GetRaw(ctx, key)
	if err != nil || !found {
		return found, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return true, fmt.Errorf("decode value for %q: %w", key, err)
	}
	return true, nil
}

// Delete removes key and reports whether it existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, unavailable("del", err)
	}
	return n > 0, nil
}

func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, unavailable("exists", err)
	}
	return n > 0, nil
}

// Incr atomically increments the counter at key and returns the new value. The
// expiry is reset to ttl in the same transaction; ttl <= 0 leaves it untouched.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		if ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		return nil
	})
	if err != nil {
		return 0, unavailable("incr", err)
	}
	return incr.Val(), nil
}

// TTL returns the remaining lifetime in whole seconds, NoExpiry or KeyMissing.
func (s *Store) TTL(ctx context.Context, key string) (int64, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return KeyMissing, unavailable("ttl", err)
	}
	// go-redis passes -1/-2 through unscaled
	switch d {
	case time.Duration(NoExpiry):
		return NoExpiry, nil
	case time.Duration(KeyMissing):
		return KeyMissing, nil
	}
	return int64(d / time.Second), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
