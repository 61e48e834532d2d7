package ws

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/metrics"
	"github.com/akinalp/parley/pkg/ratelimit"
)

// MessageStore, Hub'ın kalıcı yazma için kullandığı interface.
// Pratikte services.MessageLog karşılar.
//
// ws paketi services'i import etmez; interface burada, kullanıldığı yerde tanımlanır.
type MessageStore interface {
	Append(ctx context.Context, conversationID, senderID, content, contentType string) (*models.Message, error)
	MarkRead(ctx context.Context, messageID, userID string) (*models.ReadResult, error)
}

// MembershipChecker, typing yetkilendirmesi için.
type MembershipChecker interface {
	IsMember(ctx context.Context, conversationID, userID string) (bool, error)
}

// Membership, Hub'ın üyelik indeksinden beklediği her şey.
type Membership interface {
	MembersResolver
	ContactResolver
	MembershipChecker
}

// Options, bağlantı seviyesi zaman aşımları ve limitler.
type Options struct {
	IdleTimeout      time.Duration
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration
	MaxFrameBytes    int64
	SendBuffer       int
	FrameLimiter     *ratelimit.Limiter        // message/typing spam koruması; nil ise limit yok
	TrustedProxies   *ratelimit.TrustedProxies // nil ise handshake limiter anahtarı RemoteAddr
}

// Options alanlarının sıfır veya negatif olduğunda kullanılan değerleri.
const (
	defaultIdleTimeout      = 90 * time.Second
	defaultWriteTimeout     = 10 * time.Second
	defaultHandshakeTimeout = 10 * time.Second
	defaultMaxFrameBytes    = 8192
	defaultSendBuffer       = 256
)

// withDefaults, geçersiz alanları varsayılanla değiştirir.
// Sıfır bir ping periyodu ticker'ı, negatif bir kuyruk kapasitesi make'i panikletir.
func (o Options) withDefaults() Options {
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = defaultIdleTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = defaultWriteTimeout
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = defaultHandshakeTimeout
	}
	if o.MaxFrameBytes <= 0 {
		o.MaxFrameBytes = defaultMaxFrameBytes
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = defaultSendBuffer
	}
	return o
}

func (o Options) pingPeriod() time.Duration {
	return max(o.IdleTimeout/2, time.Millisecond)
}

// Hub, gerçek zamanlı çekirdeğin merkezi yapısı.
//
// Registry, Dispatcher ve Presence'ı birbirine bağlar ve client'lardan
// gelen doğrulanmış frame'leri işler. Kendi goroutine'i yoktur: her frame
// ilgili client'ın read pump goroutine'inde işlenir, paylaşılan durum
// Registry shard'ları ve Dispatcher/Presence kilitleriyle korunur.
type Hub struct {
	registry   *Registry
	dispatcher *Dispatcher
	presence   *Presence
	messages   MessageStore
	members    Membership
	opts       Options
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewHub, Registry/Dispatcher/Presence üçlüsünü kurar.
func NewHub(messages MessageStore, members Membership, opts Options, m *metrics.Metrics, logger *slog.Logger) *Hub {
	registry := NewRegistry(m, logger)
	dispatcher := NewDispatcher(registry, members, m, logger)

	return &Hub{
		registry:   registry,
		dispatcher: dispatcher,
		presence:   NewPresence(registry, dispatcher, members, logger),
		messages:   messages,
		members:    members,
		opts:       opts.withDefaults(),
		metrics:    m,
		logger:     logger,
	}
}

func (h *Hub) Registry() *Registry     { return h.registry }
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// Shutdown, tüm bağlantıları normal close koduyla kapatır.
func (h *Hub) Shutdown() {
	h.registry.CloseAll(CloseNormal, "server shutting down")
}

// handle, doğrulanmış frame'i işler. Hata dönerse client'a zaten
// error event'i gönderilmiştir; dönüş değeri sadece metrik içindir.
func (h *Hub) handle(ctx context.Context, c *Client, frame Inbound) error {
	switch f := frame.(type) {
	case *MessageFrame:
		if !h.opts.FrameLimiter.Allow(c.UserID()) {
			h.reply(c, newErrorEvent(pkg.ErrRateLimited, TypeMessage, f.TempID))
			h.reply(c, MessageSentEvent{Type: TypeMessageSent, Status: StatusFailed, TempID: f.TempID})
			return pkg.ErrRateLimited
		}
		return h.handleMessage(ctx, c, f)
	case *TypingFrame:
		// Typing kaybı önemsiz: limit aşılırsa sessizce düşürülür
		if !h.opts.FrameLimiter.Allow(c.UserID()) {
			return pkg.ErrRateLimited
		}
		return h.handleTyping(ctx, c, f)
	case *ReadFrame:
		return h.handleRead(ctx, c, f)
	case *PingFrame:
		h.reply(c, PongEvent{Type: TypePong})
		return nil
	case *LogoutFrame:
		c.Close(CloseNormal, "logout")
		return nil
	case *AuthFrame:
		err := &pkg.ProtocolError{Type: TypeAuth, Message: "already authenticated"}
		h.reply(c, newErrorEvent(err, TypeAuth, ""))
		return err
	default:
		panic("ws: unhandled inbound frame " + frame.frameType())
	}
}

// handleMessage: append → fan-out (gönderen hariç) → ack.
// Append başarısızsa fan-out yapılmaz; gönderene error ve failed ack gider.
func (h *Hub) handleMessage(ctx context.Context, c *Client, f *MessageFrame) error {
	conversationID := f.ConversationID.String()

	var stored *models.Message
	res, err := h.dispatcher.Publish(ctx, conversationID, c.UserID(), func(ctx context.Context) (Event, error) {
		msg, err := h.messages.Append(ctx, conversationID, c.UserID(), f.Content, f.ContentType)
		if err != nil {
			return nil, err
		}
		stored = msg
		return newMessageEvent(msg), nil
	})
	if err != nil {
		h.logFailure("message rejected", err,
			"user_id", c.UserID(),
			"conversation_id", conversationID,
			"temp_id", f.TempID,
		)
		h.reply(c, newErrorEvent(err, TypeMessage, f.TempID))
		h.reply(c, MessageSentEvent{Type: TypeMessageSent, Status: StatusFailed, TempID: f.TempID})
		return err
	}

	h.logger.Debug("message sent",
		"message_id", stored.ID,
		"conversation_id", conversationID,
		"recipients", res.Recipients,
		"delivered", res.Delivered,
	)
	h.reply(c, MessageSentEvent{
		Type:      TypeMessageSent,
		MessageID: stored.ID,
		Status:    StatusSent,
		TempID:    f.TempID,
	})
	return nil
}

// handleTyping, kalıcı değildir: sadece üyelik kontrolü ve fan-out.
func (h *Hub) handleTyping(ctx context.Context, c *Client, f *TypingFrame) error {
	conversationID := f.ConversationID.String()

	ok, err := h.members.IsMember(ctx, conversationID, c.UserID())
	if err == nil && !ok {
		err = pkg.ErrForbidden
	}
	if err != nil {
		h.logFailure("typing rejected", err, "user_id", c.UserID(), "conversation_id", conversationID)
		h.reply(c, newErrorEvent(err, TypeTyping, ""))
		return err
	}

	_, err = h.dispatcher.Dispatch(ctx, conversationID, TypingEvent{
		Type:           TypeTyping,
		ConversationID: conversationID,
		UserID:         c.UserID(),
		IsTyping:       f.IsTyping,
	}, c.UserID())
	if err != nil {
		h.logger.Warn("typing fan-out failed", "conversation_id", conversationID, "error", err)
	}
	return err
}

// handleRead, okundu kaydını idempotent yazar. Receipt sadece ilk kayıtta yayınlanır.
func (h *Hub) handleRead(ctx context.Context, c *Client, f *ReadFrame) error {
	res, err := h.messages.MarkRead(ctx, f.MessageID.String(), c.UserID())
	if err != nil {
		h.logFailure("read rejected", err, "user_id", c.UserID(), "message_id", f.MessageID.String())
		h.reply(c, newErrorEvent(err, TypeRead, ""))
		return err
	}
	if !res.Inserted {
		return nil
	}

	conversationID := res.Message.ConversationID
	_, err = h.dispatcher.Dispatch(ctx, conversationID, ReadReceiptEvent{
		Type:           TypeReadReceipt,
		ConversationID: conversationID,
		MessageID:      res.Message.ID,
		ReadBy:         c.UserID(),
		ReadAt:         res.Read.ReadAt,
	}, c.UserID())
	if err != nil {
		h.logger.Warn("read receipt fan-out failed", "conversation_id", conversationID, "error", err)
	}
	return nil
}

// reply, tek bir client'a event gönderir. Buffer doluysa client kapatılır.
func (h *Hub) reply(c *Client, event Event) {
	err := h.dispatcher.SendTo(c, event)
	if err == nil {
		return
	}

	h.logger.Debug("reply dropped",
		"user_id", c.UserID(),
		"connection_id", c.ID(),
		"event_type", event.EventType(),
		"error", err,
	)
	if errors.Is(err, ErrSendBufferFull) {
		c.Close(CloseTryAgain, reasonSlowConsume)
	}
}

// logFailure, istemci hatalarını warn, storage/internal hatalarını error seviyesinde loglar.
func (h *Hub) logFailure(msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err)
	switch {
	case errors.Is(err, pkg.ErrBadRequest),
		errors.Is(err, pkg.ErrForbidden),
		errors.Is(err, pkg.ErrNotFound),
		errors.Is(err, pkg.ErrRateLimited),
		errors.Is(err, pkg.ErrStorageUnavailable):
		h.logger.Warn(msg, attrs...)
	default:
		h.logger.Error(msg, attrs...)
	}
}
