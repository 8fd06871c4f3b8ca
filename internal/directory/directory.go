// Package directory resolves authenticated user ids to display names and roles.
package directory

import (
	"context"
	"sync"
	"time"

	"github.com/hanyusok/docplus-dev/internal/domain"
)

// Directory returns domain.ErrUserNotFound for unknown or inactive users.
type Directory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
}

// Static serves a fixed set of users from config.
type Static struct {
	users map[string]domain.User
}

func NewStatic(users ...domain.User) *Static {
	s := &Static{users: make(map[string]domain.User, len(users))}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *Static) GetUser(_ context.Context, id string) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

type cacheEntry struct {
	user    domain.User
	expires time.Time
}

// Cached keeps successful lookups for ttl; misses and errors always go to next.
type Cached struct {
	next       Directory
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

func NewCached(next Directory, ttl time.Duration, maxEntries int) *Cached {
	if maxEntries <= 0 {
		maxEntries = 10_000
	}
	return &Cached{
		next:       next,
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

func (c *Cached) GetUser(ctx context.Context, id string) (domain.User, error) {
	now := c.now()

	c.mu.Lock()
	e, ok := c.entries[id]
	c.mu.Unlock()
	if ok && now.Before(e.expires) {
		return e.user, nil
	}

	u, err := c.next.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) >= c.maxEntries {
		c.pruneLocked(now)
	}
	c.entries[id] = cacheEntry{user: u, expires: now.Add(c.ttl)}
	return u, nil
}

// pruneLocked drops expired entries, and everything if that was not enough.
func (c *Cached) pruneLocked(now time.Time) {
	for id, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, id)
		}
	}
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]cacheEntry)
	}
}
