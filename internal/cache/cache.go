// Package cache keeps per-user unread counts in Redis in front of the
// message store.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/zulandar/signalbox/internal/messaging"
	"github.com/zulandar/signalbox/internal/models"
)

// ErrMiss is returned by Cache.Get when the key is absent.
var ErrMiss = errors.New("cache: miss")

// Cache is the key/value subset of Redis the store needs.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisCache implements Cache with go-redis.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to redisURL and verifies the connection.
func NewRedisCache(ctx context.Context, redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return &RedisCache{client: client}, nil
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}
	return b, err
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, val, ttl).Err()
}

// Del implements Cache.
func (c *RedisCache) Del(ctx context.Context, keys ...string) error {
	return c.client.Del(ctx, keys...).Err()
}

// Ping checks the Redis connection.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Store decorates a messaging.Store, serving UnreadCounts from the cache and
// dropping a user's entry whenever a write can change their counts. Cache
// errors are logged and fall through to the wrapped store.
type Store struct {
	messaging.Store
	cache Cache
	ttl   time.Duration
	log   zerolog.Logger
}

// NewStore wraps inner with c.
func NewStore(inner messaging.Store, c Cache, ttl time.Duration, logger zerolog.Logger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{Store: inner, cache: c, ttl: ttl, log: logger}
}

// unreadKey returns the cache key for a user's unread counts.
func unreadKey(userID uint) string {
	return fmt.Sprintf("signalbox:unread:%d", userID)
}

// Append implements messaging.Store.
func (s *Store) Append(ctx context.Context, msg *models.Message) error {
	if err := s.Store.Append(ctx, msg); err != nil {
		return err
	}
	s.invalidate(ctx, msg.ReceiverID)
	return nil
}

// ReadConversation implements messaging.Store.
func (s *Store) ReadConversation(ctx context.Context, reader, other uint) ([]models.Message, error) {
	msgs, err := s.Store.ReadConversation(ctx, reader, other)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, reader)
	return msgs, nil
}

// MarkRead implements messaging.Store.
func (s *Store) MarkRead(ctx context.Context, reader, sender uint) (int64, error) {
	n, err := s.Store.MarkRead(ctx, reader, sender)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.invalidate(ctx, reader)
	}
	return n, nil
}

// UnreadCounts implements messaging.Store.
func (s *Store) UnreadCounts(ctx context.Context, reader uint) (map[uint]int64, error) {
	key := unreadKey(reader)
	b, err := s.cache.Get(ctx, key)
	if err == nil {
		var counts map[uint]int64
		if err := json.Unmarshal(b, &counts); err == nil {
			if counts == nil {
				counts = make(map[uint]int64)
			}
			return counts, nil
		}
		s.log.Warn().Str("key", key).Msg("cache: discarding undecodable entry")
	} else if !errors.Is(err, ErrMiss) {
		s.log.Warn().Err(err).Str("key", key).Msg("cache: get failed")
	}

	counts, err := s.Store.UnreadCounts(ctx, reader)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(counts); err == nil {
		if err := s.cache.Set(ctx, key, b, s.ttl); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("cache: set failed")
		}
	}
	return counts, nil
}

func (s *Store) invalidate(ctx context.Context, userID uint) {
	if err := s.cache.Del(ctx, unreadKey(userID)); err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("cache: invalidate failed")
	}
}
