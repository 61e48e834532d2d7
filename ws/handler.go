package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/akinalp/parley/models"
	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/ratelimit"
)

// Authenticator, handshake'te token doğrulaması için kullanılan interface.
// services.AuthService karşılar; ws → services bağımlılığı oluşmaz.
type Authenticator interface {
	Authenticate(token string) (*models.TokenClaims, error)
}

// Handler, /ws isteklerini WebSocket'e yükseltir ve client'ı Active duruma taşır.
type Handler struct {
	hub      *Hub
	auth     Authenticator
	attempts *ratelimit.Limiter
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler, constructor. allowedOrigins "*" içeriyorsa her origin kabul edilir.
// attempts, IP başına başarısız handshake sayacıdır; nil ise limit yok.
func NewHandler(hub *Hub, auth Authenticator, allowedOrigins []string, attempts *ratelimit.Limiter, logger *slog.Logger) *Handler {
	return &Handler{
		hub:      hub,
		auth:     auth,
		attempts: attempts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
			HandshakeTimeout: hub.opts.HandshakeTimeout,
			CheckOrigin:      checkOrigin(allowedOrigins),
		},
		logger: logger,
	}
}

// HandleConnection, bağlantının tüm yaşam döngüsünü yürütür:
//
//  0. Çok sayıda başarısız handshake yapan IP → 429 (upgrade yok)
//  1. HTTP → WebSocket upgrade (close kodu gönderebilmek için auth'tan önce)
//  2. Token: ?token=, Authorization: Bearer, ya da handshake süresi içinde {type:"auth"} frame'i
//  3. Doğrulama başarısızsa 1008 + sebep ile kapatılır
//  4. Registry kaydı + presence-online, ardından ready event'i
//  5. readPump bağlantı kapanana kadar bu goroutine'i bloklar
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	ip := h.hub.opts.TrustedProxies.ClientIP(r)
	if wait := h.attempts.RetryAfter(ip); wait > 0 {
		seconds := int(wait.Seconds()) + 1
		w.Header().Set("Retry-After", strconv.Itoa(seconds))
		pkg.ErrorWithData(w, http.StatusTooManyRequests, "too many failed handshakes",
			map[string]int{"retryAfter": seconds})
		return
	}

	token := tokenFromRequest(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade HTTP hata yanıtını zaten yazdı
		h.logger.Warn("websocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(h.hub.opts.MaxFrameBytes)

	if token == "" {
		token, err = h.awaitAuthFrame(conn)
		if err != nil {
			h.reject(conn, ip, err)
			return
		}
	}

	claims, err := h.auth.Authenticate(token)
	if err != nil {
		h.reject(conn, ip, err)
		return
	}
	h.attempts.Reset(ip)

	client, err := newClient(h.hub, conn, claims.UserID)
	if err != nil {
		h.logger.Error("failed to create client", "user_id", claims.UserID, "error", err)
		h.closeConn(conn, CloseInternal, "internal error")
		return
	}
	client.advance(StateConnecting, StateAuthenticated)

	go client.writePump()

	ctx := r.Context()
	online, err := h.activate(ctx, client)
	if err != nil {
		client.logger.Error("failed to activate connection", "error", err)
		client.Close(CloseInternal, "internal error")
		client.teardown(ctx)
		return
	}

	client.logger.Info("client connected", "online_contacts", len(online))
	h.hub.reply(client, ReadyEvent{
		Type:          TypeReady,
		UserID:        client.UserID(),
		ConnectionID:  client.ID(),
		OnlineUserIDs: online,
	})

	client.readPump(ctx)
}

// activate, Authenticated → Active geçişi. Panic'ler 1011'e çevrilir.
func (h *Handler) activate(ctx context.Context, c *Client) (online []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic during activation: %v", pkg.ErrInternal, rec)
		}
	}()

	online = h.hub.presence.Connect(ctx, c)
	if !c.advance(StateAuthenticated, StateActive) {
		// Aktivasyon sırasında yeni bir bağlantı tarafından supersede edildi
		h.logger.Debug("connection closed during activation", "user_id", c.UserID())
	}
	return online, nil
}

// awaitAuthFrame, query/header'da token yoksa ilk frame'in auth olmasını bekler.
func (h *Handler) awaitAuthFrame(conn *websocket.Conn) (string, error) {
	if err := conn.SetReadDeadline(time.Now().Add(h.hub.opts.HandshakeTimeout)); err != nil {
		return "", err
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return "", &pkg.AuthError{Reason: pkg.AuthMissing, Err: err}
	}

	frame, err := DecodeInbound(raw)
	if err != nil {
		return "", &pkg.AuthError{Reason: pkg.AuthMissing, Err: err}
	}
	auth, ok := frame.(*AuthFrame)
	if !ok {
		return "", &pkg.AuthError{Reason: pkg.AuthMissing, Err: errors.New("first frame must be auth")}
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return "", err
	}
	return auth.Token, nil
}

// reject, doğrulanamayan bağlantıyı 1008 ile kapatır. Sebep close frame'inde taşınır.
// Başarısız deneme IP'nin sayacına eklenir.
func (h *Handler) reject(conn *websocket.Conn, ip string, err error) {
	h.attempts.Allow(ip)

	reason := "unauthorized"
	var authErr *pkg.AuthError
	if errors.As(err, &authErr) {
		reason = string(authErr.Reason)
	}

	h.logger.Info("connection rejected",
		"ip", ip,
		"reason", reason,
		"error", err,
	)
	h.closeConn(conn, ClosePolicy, reason)
}

func (h *Handler) closeConn(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(h.hub.opts.WriteTimeout)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}

// tokenFromRequest, token'ı query parametresinden veya Authorization header'ından alır.
// Tarayıcılar WebSocket'te header gönderemediği için query öncelikli.
func tokenFromRequest(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}

	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 || lo.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// Tarayıcı dışı client'lar Origin göndermez
		return origin == "" || lo.Contains(allowed, origin)
	}
}
