// Package redisstore keeps sessions in Redis, one JSON string per session
// under a key prefix, expiring on Redis' own TTL.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/satori-http/satori/session"
)

const (
	// DefaultPrefix is the Redis key prefix used when none is given.
	DefaultPrefix = "session:"

	// DefaultTTL is the idle time after which Redis drops a session.
	DefaultTTL = 1 * time.Hour
)

// Store implements session.Store over a Redis client.
type Store struct {
	client redis.UniversalClient
	ids    session.IDManager
	prefix string
	ttl    time.Duration
}

// New creates a Store over an existing client. An empty prefix or zero
// ttl take the defaults.
func New(client redis.UniversalClient, ids session.IDManager, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ids: ids, prefix: prefix, ttl: ttl}
}

// Dial connects to the Redis server at addr and verifies the connection.
func Dial(ctx context.Context, addr string, ids session.IDManager, prefix string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redisstore: redis connection failed: %w", err)
	}

	return New(client, ids, prefix, ttl), nil
}

func (s *Store) key(id session.SessionID) string {
	return s.prefix + string(id)
}

// Load fetches the session and pushes its TTL back.
func (s *Store) Load(ctx context.Context, id session.SessionID) (map[string]any, error) {
	data, err := s.client.GetEx(ctx, s.key(id), s.ttl).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redisstore: load: %w", err)
	}
	return session.DecodeValues(id, data)
}

// Save writes the session with a fresh TTL.
func (s *Store) Save(ctx context.Context, id session.SessionID, values map[string]any) error {
	data, err := session.EncodeValues(id, values)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redisstore: save: %w", err)
	}
	return nil
}

// Delete removes the session from Redis.
func (s *Store) Delete(ctx context.Context, id session.SessionID) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redisstore: delete: %w", err)
	}
	return nil
}

// RegenerateID renames the session's key to a fresh ID. The stored record
// embeds its ID, so it is rewritten under the new one as well.
func (s *Store) RegenerateID(ctx context.Context, id session.SessionID) (session.SessionID, error) {
	values, err := s.Load(ctx, id)
	if err != nil {
		return session.NoSessionID, err
	}

	newID := s.ids.Get()
	renamed, err := s.client.RenameNX(ctx, s.key(id), s.key(newID)).Result()
	if err != nil {
		if strings.Contains(err.Error(), "no such key") {
			return session.NoSessionID, session.ErrSessionNotFound
		}
		return session.NoSessionID, fmt.Errorf("redisstore: rename: %w", err)
	}
	if !renamed {
		// 256 random bits collided; don't clobber whoever has it
		return session.NoSessionID, errors.New("redisstore: regenerated ID already in use")
	}

	if err := s.Save(ctx, newID, values); err != nil {
		return session.NoSessionID, err
	}
	return newID, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}
