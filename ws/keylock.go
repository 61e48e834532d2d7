package ws

import "sync"

// keyedMutex, anahtar başına bir mutex tutar.
//
// Dispatcher konuşma başına, Presence kullanıcı başına kilit alır.
// Global kilit yok: farklı anahtarlar birbirini beklemez.
// Kullanılmayan kilitler referans sayacı sıfıra inince map'ten silinir,
// yani map boyutu eşzamanlı kullanılan anahtar sayısı kadardır.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock, key için kilidi alır ve bırakma fonksiyonunu döner.
//
//	unlock := km.Lock(conversationID)
//	defer unlock()
func (km *keyedMutex) Lock(key string) func() {
	km.mu.Lock()
	l, ok := km.locks[key]
	if !ok {
		l = &refLock{}
		km.locks[key] = l
	}
	l.refs++
	km.mu.Unlock()

	l.mu.Lock()

	return func() {
		l.mu.Unlock()

		km.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(km.locks, key)
		}
		km.mu.Unlock()
	}
}

// size, aktif kilit sayısı (test için).
func (km *keyedMutex) size() int {
	km.mu.Lock()
	defer km.mu.Unlock()
	return len(km.locks)
}
