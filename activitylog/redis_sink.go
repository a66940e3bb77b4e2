package activitylog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	auth "github.com/hirelane/jobboard-auth"
	"github.com/hirelane/jobboard-auth/activitymap"
)

const (
	DefaultRedisKey   = "jobboard:activity"
	DefaultRedisLimit = 1000
)

// NewRedisPool dials addr lazily, one connection per borrower
func NewRedisPool(addr string) *redis.Pool {
	return &redis.Pool{
		MaxIdle:     3,
		IdleTimeout: 240 * time.Second,
		DialContext: func(ctx context.Context) (redis.Conn, error) {
			return redis.DialContext(ctx, "tcp", addr)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
}

// RedisSink keeps the newest entries in a capped Redis list
type RedisSink struct {
	pool  *redis.Pool
	key   string
	limit int
	opts  []activitymap.Option
}

var _ auth.ActivitySink = (*RedisSink)(nil)

type RedisOption func(*RedisSink)

func WithRedisKey(key string) RedisOption {
	return func(s *RedisSink) {
		if key != "" {
			s.key = key
		}
	}
}

// WithRedisLimit caps the list length, older entries are trimmed
func WithRedisLimit(limit int) RedisOption {
	return func(s *RedisSink) {
		if limit > 0 {
			s.limit = limit
		}
	}
}

func WithRedisNormalizeOptions(opts ...activitymap.Option) RedisOption {
	return func(s *RedisSink) {
		s.opts = append(s.opts, opts...)
	}
}

func NewRedisSink(pool *redis.Pool, opts ...RedisOption) *RedisSink {
	s := &RedisSink{
		pool:  pool,
		key:   DefaultRedisKey,
		limit: DefaultRedisLimit,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *RedisSink) Record(ctx context.Context, event auth.ActivityEvent) error {
	payload, err := json.Marshal(NewEntry(event, s.opts...))
	if err != nil {
		return fmt.Errorf("activitylog: encode: %w", err)
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("activitylog: redis conn: %w", err)
	}
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return err
	}
	if err := conn.Send("LPUSH", s.key, payload); err != nil {
		return err
	}
	if err := conn.Send("LTRIM", s.key, 0, s.limit-1); err != nil {
		return err
	}
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("activitylog: redis push: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first
func (s *RedisSink) Recent(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, nil
	}

	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("activitylog: redis conn: %w", err)
	}
	defer conn.Close()

	raw, err := redis.ByteSlices(conn.Do("LRANGE", s.key, 0, n-1))
	if err != nil {
		if err == redis.ErrNil {
			return nil, nil
		}
		return nil, fmt.Errorf("activitylog: redis range: %w", err)
	}

	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		var e Entry
		if err := json.Unmarshal(item, &e); err != nil {
			return nil, fmt.Errorf("activitylog: decode: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
