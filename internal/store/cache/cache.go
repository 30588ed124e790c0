// Package cache adds a shared in-memory read cache in front of any store.Factory.
package cache

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/cespare/xxhash/v2"

	"github.com/tendant/wirekit/internal/metrics"
	"github.com/tendant/wirekit/internal/resource"
	"github.com/tendant/wirekit/internal/store"
)

// stripes is the number of lock stripes guarding cache fills.
const stripes = 64

// xxHasher plugs xxhash into bigcache's shard selection.
type xxHasher struct{}

func (xxHasher) Sum64(key string) uint64 {
	return xxhash.Sum64String(key)
}

// stripe serialises fills and writes for the keys hashing to it. gen is
// bumped by every write or delete, so a fill that started before one is
// dropped.
type stripe struct {
	mu  sync.Mutex
	gen uint64
}

// Cache wraps services from another factory. Entries are keyed by
// "<absoluteId>/<name>", or by the backend's canonical name when it has one,
// so services for the same resource share them.
type Cache struct {
	next    store.Factory
	cache   *bigcache.BigCache
	stripes [stripes]stripe
}

// New creates a cache whose entries live for ttl.
func New(ctx context.Context, next store.Factory, ttl time.Duration) (*Cache, error) {
	cfg := bigcache.DefaultConfig(ttl)
	cfg.Hasher = xxHasher{}
	cfg.Verbose = false

	bc, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating read cache: %w", err)
	}
	return &Cache{next: next, cache: bc}, nil
}

// Close releases the cache.
func (c *Cache) Close() error {
	return c.cache.Close()
}

// Factory returns a store.Factory producing cached services.
func (c *Cache) Factory() store.Factory {
	return func(scope resource.Scope, id string) (store.FileService, error) {
		svc, err := c.next(scope, id)
		if err != nil {
			return nil, err
		}
		abs, err := svc.Resource().AbsoluteID()
		if err != nil {
			return nil, err
		}
		return &service{next: svc, c: c, prefix: abs + "/"}, nil
	}
}

func (c *Cache) stripe(key string) *stripe {
	return &c.stripes[xxhash.Sum64String(key)%stripes]
}

// generation returns the write generation of key's stripe.
func (c *Cache) generation(key string) uint64 {
	st := c.stripe(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen
}

// fill caches data read from the backend unless key was written or deleted
// since gen was taken.
func (c *Cache) fill(key string, gen uint64, data []byte) {
	st := c.stripe(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return
	}
	_ = c.cache.Set(key, data)
}

// update records a write of key. A nil data evicts.
func (c *Cache) update(key string, data []byte) {
	st := c.stripe(key)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++
	if data == nil || c.cache.Set(key, data) != nil {
		// ErrEntryNotFound is the only error Delete returns.
		_ = c.cache.Delete(key)
	}
}

type service struct {
	next   store.FileService
	c      *Cache
	prefix string
}

func (s *service) Resource() *resource.Resource { return s.next.Resource() }

func (s *service) key(name string) string {
	if cn, ok := s.next.(store.CanonicalNamer); ok {
		return cn.CanonicalName(name)
	}
	return s.prefix + name
}

func (s *service) Read(ctx context.Context, name string) ([]byte, error) {
	key := s.key(name)
	if data, err := s.c.cache.Get(key); err == nil {
		metrics.RecordCacheLookup(true)
		return data, nil
	}
	metrics.RecordCacheLookup(false)

	gen := s.c.generation(key)
	data, err := s.next.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	s.c.fill(key, gen, data)
	return data, nil
}

func (s *service) Write(ctx context.Context, name string, data []byte, opts ...store.WriteOption) error {
	key := s.key(name)
	if err := s.next.Write(ctx, name, data, opts...); err != nil {
		// Whatever is stored now was not written through us.
		s.c.update(key, nil)
		return err
	}
	if data == nil {
		data = []byte{}
	}
	s.c.update(key, data)
	return nil
}

func (s *service) Delete(ctx context.Context, name string) error {
	err := s.next.Delete(ctx, name)
	s.c.update(s.key(name), nil)
	return err
}

func (s *service) List(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.next.List(ctx, prefix)
}

func (s *service) IsAlreadyExists(err error) bool {
	return s.next.IsAlreadyExists(err)
}
