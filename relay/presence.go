/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

package relay

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Presence tracks which users currently hold a relay connection. The
// in-memory implementation serves a single relay instance; the redis
// implementation lets a fleet of relays share the registry.
type Presence interface {
	Connect(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
	IsOnline(ctx context.Context, userID string) (bool, error)
	Close() error
}

// ---- In-memory ----

// MemoryPresence is a single-instance presence registry.
type MemoryPresence struct {
	mu     sync.RWMutex
	online map[string]struct{}
}

// NewMemoryPresence creates an empty in-memory registry.
func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{online: make(map[string]struct{})}
}

// Connect marks the user online.
func (p *MemoryPresence) Connect(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.online[userID] = struct{}{}
	return nil
}

// Disconnect marks the user offline.
func (p *MemoryPresence) Disconnect(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.online, userID)
	return nil
}

// IsOnline reports whether the user is marked online.
func (p *MemoryPresence) IsOnline(_ context.Context, userID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[userID]
	return ok, nil
}

// Close implements Presence.
func (p *MemoryPresence) Close() error { return nil }

// ---- Redis ----

// RedisOptions configures the redis-backed presence registry.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	DB       int
	Prefix   string
	// TTL bounds how long a stale entry survives a relay crash; live
	// connections refresh on Connect.
	TTL time.Duration
}

// RedisPresence is a presence registry shared across relay instances.
type RedisPresence struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisPresence connects to redis and verifies the connection.
func NewRedisPresence(ctx context.Context, opts RedisOptions) (*RedisPresence, error) {
	addr := strings.TrimSpace(opts.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = "callcore:relay:presence:v1"
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	c := redis.NewClient(&redis.Options{
		Addr:     addr,
		Username: strings.TrimSpace(opts.Username),
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisPresence{client: c, prefix: prefix, ttl: ttl}, nil
}

func (p *RedisPresence) key(userID string) string {
	return p.prefix + ":" + userID
}

// Connect marks the user online with the configured TTL.
func (p *RedisPresence) Connect(ctx context.Context, userID string) error {
	return p.client.Set(ctx, p.key(userID), "1", p.ttl).Err()
}

// Disconnect removes the user's presence key.
func (p *RedisPresence) Disconnect(ctx context.Context, userID string) error {
	return p.client.Del(ctx, p.key(userID)).Err()
}

// IsOnline reports whether a presence key exists for the user.
func (p *RedisPresence) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := p.client.Exists(ctx, p.key(userID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Close releases the redis client.
func (p *RedisPresence) Close() error {
	return p.client.Close()
}
