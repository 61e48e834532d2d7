// Package cache, generic in-memory TTL cache.
//
// Membership Index, konuşma üyelerini ve kullanıcının konuşma listesini burada tutar.
// Her entry bir son kullanma zamanı taşır; süresi dolan entry Get ile okunamaz.
//
// Stale grace: süresi dolan entry, grace süresi boyunca GetStale ile hâlâ okunabilir.
// Storage erişilemediğinde son bilinen snapshot'ı sunmak için kullanılır.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// TTLCache, thread-safe generic TTL cache.
//
//	c := cache.New[string, []string](5*time.Second, time.Minute)
//	c.Set("conv-1", members)
//	members, ok := c.Get("conv-1")
type TTLCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]entry[V]
	ttl     time.Duration
	grace   time.Duration
	now     func() time.Time

	stopCleanup chan struct{}
	closeOnce   sync.Once
}

// Option, TTLCache'i yapılandırır.
type Option func(*options)

type options struct {
	grace time.Duration
	now   func() time.Time
}

// WithStaleGrace, süresi dolan entry'lerin GetStale için ne kadar tutulacağını belirler.
func WithStaleGrace(d time.Duration) Option {
	return func(o *options) { o.grace = d }
}

// WithClock, zaman kaynağını değiştirir (testler için).
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// New, yeni bir TTLCache oluşturur ve periyodik temizleme goroutine'ini başlatır.
// cleanupInterval, fiziksel silmenin sıklığıdır; okuma her zaman süreyi kontrol eder.
func New[K comparable, V any](ttl, cleanupInterval time.Duration, opts ...Option) *TTLCache[K, V] {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}

	c := &TTLCache[K, V]{
		entries:     make(map[K]entry[V]),
		ttl:         ttl,
		grace:       o.grace,
		now:         o.now,
		stopCleanup: make(chan struct{}),
	}

	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.evictExpired()
			case <-c.stopCleanup:
				return
			}
		}
	}()

	return c
}

// Get, süresi dolmamış bir değeri döner.
func (c *TTLCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// GetStale, süresi dolmuş olsa bile grace penceresindeki değeri döner.
func (c *TTLCache[K, V]) GetStale(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || c.now().After(e.expiresAt.Add(c.grace)) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set, cache'e TTL ile bir değer yazar.
func (c *TTLCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: c.now().Add(c.ttl),
	}
}

// Delete, key'i cache'ten siler (stale kopya dahil).
func (c *TTLCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
}

// DeleteFunc, predicate'i sağlayan tüm key'leri siler.
func (c *TTLCache[K, V]) DeleteFunc(predicate func(key K) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.entries {
		if predicate(key) {
			delete(c.entries, key)
		}
	}
}

// Clear, tüm cache'i boşaltır.
func (c *TTLCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]entry[V])
}

// Len, cache'teki entry sayısını döner (stale olanlar dahil).
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// Close, temizleme goroutine'ini durdurur. Birden fazla çağrılabilir.
func (c *TTLCache[K, V]) Close() {
	c.closeOnce.Do(func() { close(c.stopCleanup) })
}

func (c *TTLCache[K, V]) evictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt.Add(c.grace)) {
			delete(c.entries, key)
		}
	}
}
