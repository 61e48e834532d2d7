package ws

import (
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// ContactResolver, bir kullanıcıyla en az bir konuşmayı paylaşan kullanıcıları döner.
// Pratikte services.MembershipIndex karşılar.
type ContactResolver interface {
	Contacts(ctx context.Context, userID string) ([]string, error)
}

// Presence, online/offline geçişlerini Registry ile birlikte yönetir.
//
// Kullanıcı başına kilit, Register/Unregister ile yayını tek adım yapar.
// Böylece her gerçek geçiş tam bir kez yayınlanır: yeniden bağlanma
// (supersede) online'ı tekrar etmez, eski bağlantının teardown'ı
// offline yayınlamaz.
type Presence struct {
	registry   *Registry
	dispatcher *Dispatcher
	contacts   ContactResolver
	locks      *keyedMutex
	logger     *slog.Logger
}

// NewPresence, constructor.
func NewPresence(registry *Registry, dispatcher *Dispatcher, contacts ContactResolver, logger *slog.Logger) *Presence {
	return &Presence{
		registry:   registry,
		dispatcher: dispatcher,
		contacts:   contacts,
		locks:      newKeyedMutex(),
		logger:     logger,
	}
}

// Connect, peer'ı kaydeder ve kullanıcı yeni online olduysa kontaklarına yayınlar.
// Dönen liste, kullanıcının şu an online olan kontaklarıdır (ready event'i için).
func (p *Presence) Connect(ctx context.Context, peer Peer) []string {
	userID := peer.UserID()
	unlock := p.locks.Lock(userID)
	defer unlock()

	previous := p.registry.Register(peer)

	contacts, err := p.contacts.Contacts(ctx, userID)
	if err != nil {
		// Bağlantı yine de açık kalır; yayın yapılamadı
		p.logger.Error("failed to resolve contacts for presence",
			"user_id", userID,
			"error", err,
		)
		return []string{}
	}

	if previous == nil {
		res := p.dispatcher.DispatchToUsers(ctx, contacts, newStatusEvent(userID, true))
		p.logger.Debug("presence online",
			"user_id", userID,
			"recipients", res.Recipients,
		)
	}

	return lo.Filter(contacts, func(id string, _ int) bool {
		return p.registry.IsOnline(id)
	})
}

// Disconnect, peer hâlâ kullanıcının güncel bağlantısıysa kaydı siler ve
// offline yayınlar. Yerine yeni bağlantı geçmişse hiçbir şey yapmaz ve false döner.
func (p *Presence) Disconnect(ctx context.Context, peer Peer) bool {
	userID := peer.UserID()
	unlock := p.locks.Lock(userID)
	defer unlock()

	if !p.registry.Unregister(peer) {
		return false
	}

	contacts, err := p.contacts.Contacts(ctx, userID)
	if err != nil {
		p.logger.Error("failed to resolve contacts for presence",
			"user_id", userID,
			"error", err,
		)
		return true
	}

	res := p.dispatcher.DispatchToUsers(ctx, contacts, newStatusEvent(userID, false))
	p.logger.Debug("presence offline",
		"user_id", userID,
		"recipients", res.Recipients,
	)
	return true
}
