package ws

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"

	"github.com/akinalp/parley/pkg/metrics"
)

// Close kodları. 1000/1008/1011 RFC 6455'ten, 4000 uygulamaya özel.
const (
	CloseNormal       = 1000
	CloseGoingAway    = 1001
	ClosePolicy       = 1008
	CloseTooBig       = 1009
	CloseInternal     = 1011
	CloseTryAgain     = 1013
	CloseSuperseded   = 4000
	reasonSuperseded  = "superseded"
	reasonSlowConsume = "slow consumer"
)

const shardCount = 32

// Peer, Registry'de tutulan canlı bağlantının soyutlaması.
//
// *Client bu interface'i karşılar. Testler sahte peer'larla
// Registry, Dispatcher ve Presence'ı socket açmadan çalıştırır.
type Peer interface {
	ID() string
	UserID() string
	// Send, hazır frame'i bloklamadan kuyruğa ekler.
	Send(frame []byte) error
	// Close, bağlantıyı verilen close koduyla kapatır. Birden fazla çağrı güvenlidir.
	Close(code int, reason string)
}

// Registry, kullanıcı → canlı bağlantı eşlemesi.
//
// Kullanıcı başına tek bağlantı tutulur (son bağlanan kazanır).
// Map, kullanıcı id'sinin xxhash'ine göre shard'lara bölünmüştür;
// her shard kendi RWMutex'ine sahiptir. Aynı kullanıcı üzerindeki
// tüm işlemler aynı shard kilidinden geçtiği için linearizable'dır.
type Registry struct {
	shards  [shardCount]*registryShard
	size    atomic.Int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type registryShard struct {
	mu    sync.RWMutex
	peers map[string]Peer
}

// NewRegistry, boş bir Registry oluşturur.
func NewRegistry(m *metrics.Metrics, logger *slog.Logger) *Registry {
	r := &Registry{metrics: m, logger: logger}
	for i := range r.shards {
		r.shards[i] = &registryShard{peers: make(map[string]Peer)}
	}
	return r
}

func (r *Registry) shard(userID string) *registryShard {
	return r.shards[xxhash.Sum64String(userID)%shardCount]
}

// Register, peer'ı kullanıcının güncel bağlantısı yapar ve önceki bağlantıyı döner.
//
// Önceki bağlantı varsa 4000 "superseded" ile kapatılır. Kapatma shard
// kilidi bırakıldıktan sonra yapılır; Close'un yan etkileri (teardown →
// Unregister) aynı shard'a tekrar girebilir.
func (r *Registry) Register(peer Peer) Peer {
	userID := peer.UserID()
	s := r.shard(userID)

	s.mu.Lock()
	previous, existed := s.peers[userID]
	s.peers[userID] = peer
	s.mu.Unlock()

	if !existed {
		r.size.Add(1)
		r.metrics.ConnectionOpened()
		return nil
	}
	if previous == peer {
		return nil
	}

	r.logger.Info("connection superseded",
		"user_id", userID,
		"old_connection_id", previous.ID(),
		"new_connection_id", peer.ID(),
	)
	previous.Close(CloseSuperseded, reasonSuperseded)
	return previous
}

// Unregister, kullanıcının kaydı hâlâ bu peer'ı gösteriyorsa siler.
// Yerine yeni bağlantı geçmiş eski bir peer için false döner ve kayda dokunmaz.
func (r *Registry) Unregister(peer Peer) bool {
	userID := peer.UserID()
	s := r.shard(userID)

	s.mu.Lock()
	current, ok := s.peers[userID]
	if !ok || current != peer {
		s.mu.Unlock()
		return false
	}
	delete(s.peers, userID)
	s.mu.Unlock()

	r.size.Add(-1)
	r.metrics.ConnectionClosed()
	return true
}

// Lookup, kullanıcının canlı bağlantısını döner.
func (r *Registry) Lookup(userID string) (Peer, bool) {
	s := r.shard(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[userID]
	return p, ok
}

// IsOnline, kullanıcının kayıtlı bir bağlantısı olup olmadığını döner.
func (r *Registry) IsOnline(userID string) bool {
	_, ok := r.Lookup(userID)
	return ok
}

// OnlineUsers, bağlı tüm kullanıcıların ID'lerini döner (sırasız).
func (r *Registry) OnlineUsers() []string {
	ids := make([]string, 0, r.Len())
	for _, s := range r.shards {
		s.mu.RLock()
		for id := range s.peers {
			ids = append(ids, id)
		}
		s.mu.RUnlock()
	}
	return ids
}

// Len, kayıtlı bağlantı sayısı.
func (r *Registry) Len() int {
	return int(r.size.Load())
}

// CloseAll, graceful shutdown sırasında tüm bağlantıları kapatır.
// Kayıtlar peer'ların kendi teardown'ı ile silinir.
func (r *Registry) CloseAll(code int, reason string) {
	var peers []Peer
	for _, s := range r.shards {
		s.mu.RLock()
		for _, p := range s.peers {
			peers = append(peers, p)
		}
		s.mu.RUnlock()
	}

	for _, p := range peers {
		p.Close(code, reason)
	}
	r.logger.Info("closed all connections", "count", len(peers), "code", code)
}
