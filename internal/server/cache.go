package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/minjae-ko/turnvault/internal/store"
)

const sessionListKey = "turnvault:sessions"

// SessionCache keeps the session list in Redis between reads. A cache miss
// or any Redis failure just falls back to the document store.
type SessionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *log.Logger
}

func NewSessionCache(client *redis.Client, ttl time.Duration) *SessionCache {
	return &SessionCache{
		client: client,
		ttl:    ttl,
		logger: log.New(log.Writer(), "[CACHE] ", log.LstdFlags),
	}
}

func (c *SessionCache) Get(ctx context.Context) ([]store.Session, bool) {
	val, err := c.client.Get(ctx, sessionListKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Printf("get failed: %v", err)
		}
		return nil, false
	}
	var sessions []store.Session
	if err := json.Unmarshal([]byte(val), &sessions); err != nil {
		c.logger.Printf("bad cache entry dropped: %v", err)
		_ = c.client.Del(ctx, sessionListKey).Err()
		return nil, false
	}
	return sessions, true
}

func (c *SessionCache) Set(ctx context.Context, sessions []store.Session) {
	data, err := json.Marshal(sessions)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, sessionListKey, data, c.ttl).Err(); err != nil {
		c.logger.Printf("set failed: %v", err)
	}
}

func (c *SessionCache) Invalidate(ctx context.Context) {
	if err := c.client.Del(ctx, sessionListKey).Err(); err != nil {
		c.logger.Printf("invalidate failed: %v", err)
	}
}
