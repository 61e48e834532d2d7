// Package ratelimit, anahtar bazlı (kullanıcı ID'si veya IP) sabit pencereli rate limiting sağlar.
//
// İki kullanım:
//   - Frame limiter: kullanıcı başına message/typing spam koruması.
//     5 saniyede 10 frame'e izin verilir, aşılınca 15 saniye cooldown.
//   - Handshake limiter: IP başına başarısız WebSocket auth denemeleri.
//     Cooldown = window; başarılı auth'ta Reset ile sayaç sıfırlanır.
package ratelimit

import (
	"sync"
	"time"
)

// bucket, bir anahtar için sayaç ve cooldown bilgisi tutar.
//
// İki durumlu:
//  1. Normal mod: count artırılır, windowStart bazlı pencere kontrolü.
//  2. Cooldown mod: cooldownUntil > now → tüm istekler reddedilir.
type bucket struct {
	count         int
	windowStart   time.Time
	cooldownUntil time.Time // zero value = cooldown yok
}

// Limiter, anahtar bazlı rate limiter. Arka planda süresi dolmuş bucket'ları temizler.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	max      int
	window   time.Duration
	cooldown time.Duration
	now      func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// New, limiter oluşturur ve temizleme goroutine'ini başlatır.
// max <= 0 ise limiter her isteğe izin verir. cooldown 0 ise window kullanılır.
func New(max int, window, cooldown time.Duration) *Limiter {
	if cooldown <= 0 {
		cooldown = window
	}

	l := &Limiter{
		buckets:  make(map[string]*bucket),
		max:      max,
		window:   window,
		cooldown: cooldown,
		now:      time.Now,
		stop:     make(chan struct{}),
	}

	if max > 0 {
		go l.cleanupLoop()
	}
	return l
}

// Allow, anahtar için bir isteği sayar ve izin verilip verilmediğini döner.
//
// Akış:
//  1. Cooldown'daysa → reject.
//  2. Cooldown bitmişse veya window dolmuşsa → yeni pencere başlat.
//  3. Window içindeyse → count artır, max aşıldıysa cooldown başlat.
func (l *Limiter) Allow(key string) bool {
	if l == nil || l.max <= 0 {
		return true
	}

	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &bucket{count: 1, windowStart: now}
		return true
	}

	if !b.cooldownUntil.IsZero() {
		if now.Before(b.cooldownUntil) {
			return false
		}
		b.cooldownUntil = time.Time{}
		b.count, b.windowStart = 1, now
		return true
	}

	if now.Sub(b.windowStart) > l.window {
		b.count, b.windowStart = 1, now
		return true
	}

	b.count++
	if b.count > l.max {
		b.cooldownUntil = now.Add(l.cooldown)
		return false
	}
	return true
}

// Reset, anahtarın sayacını siler (ör: başarılı auth sonrası).
func (l *Limiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// RetryAfter, cooldown'da kalan süre. Cooldown yoksa 0.
func (l *Limiter) RetryAfter(key string) time.Duration {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || b.cooldownUntil.IsZero() {
		return 0
	}
	return max(b.cooldownUntil.Sub(l.now()), 0)
}

// Close, temizleme goroutine'ini durdurur. Birden fazla çağrı güvenlidir.
func (l *Limiter) Close() {
	if l == nil {
		return
	}
	l.stopOnce.Do(func() { close(l.stop) })
}

func (l *Limiter) cleanupLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stop:
			return
		}
	}
}

// cleanup, hem window'u hem cooldown'u bitmiş bucket'ları siler.
func (l *Limiter) cleanup() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		windowExpired := now.Sub(b.windowStart) > l.window
		cooldownExpired := b.cooldownUntil.IsZero() || now.After(b.cooldownUntil)
		if windowExpired && cooldownExpired {
			delete(l.buckets, key)
		}
	}
}
