package ws

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/akinalp/parley/pkg"
)

var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
)

// State, bağlantının protokol durumu.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client, tek bir WebSocket bağlantısını temsil eder.
//
// Her bağlantı için iki goroutine çalışır:
//   - readPump: frame'leri okur ve Hub'a iletir, protokol durumunun sahibidir
//   - writePump: send kuyruğunu socket'e yazar, socket yazımlarının tek sahibidir
//
// send channel'ı hiç kapatılmaz. Kapanış done channel'ı ile bildirilir;
// böylece kapanmış bir client'a Send yapmak panic yerine ErrConnectionClosed döner.
type Client struct {
	id     string
	userID string
	hub    *Hub
	conn   *websocket.Conn
	logger *slog.Logger

	send chan []byte
	done chan struct{}

	closeOnce    sync.Once
	teardownOnce sync.Once
	closeCode    int
	closeReason  string

	state        atomic.Int32
	lastActivity atomic.Int64
}

func newClient(hub *Hub, conn *websocket.Conn, userID string) (*Client, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	c := &Client{
		id:     id.String(),
		userID: userID,
		hub:    hub,
		conn:   conn,
		logger: hub.logger.With("user_id", userID, "connection_id", id.String()),
		send:   make(chan []byte, hub.opts.SendBuffer),
		done:   make(chan struct{}),
	}
	c.state.Store(int32(StateConnecting))
	c.touch()
	return c, nil
}

func (c *Client) ID() string     { return c.id }
func (c *Client) UserID() string { return c.userID }

func (c *Client) State() State {
	return State(c.state.Load())
}

// advance, durumu from'dan to'ya geçirir. Client bu arada kapandıysa false döner.
func (c *Client) advance(from, to State) bool {
	return c.state.CompareAndSwap(int32(from), int32(to))
}

// LastActivity, son okunan frame veya pong zamanı.
func (c *Client) LastActivity() time.Time {
	return time.Unix(0, c.lastActivity.Load())
}

func (c *Client) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// Send, frame'i bloklamadan kuyruğa ekler.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close, bağlantıyı kapatma isteği. İlk çağrının kodu geçerlidir.
// Bloklamaz: close frame'ini writePump yazar ve socket'i kapatır.
func (c *Client) Close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.closeCode = code
		c.closeReason = reason
		c.state.Store(int32(StateClosed))
		close(c.done)
	})
}

// Done, client kapandığında kapanan channel.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// readPump, bağlantı kapanana kadar frame okur. Dönüşte teardown çalışır.
func (c *Client) readPump(ctx context.Context) {
	defer c.teardown(ctx)

	idle := c.hub.opts.IdleTimeout
	c.conn.SetReadLimit(c.hub.opts.MaxFrameBytes)
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		// Idle timeout: bu süre içinde frame ya da pong gelmezse Read hata verir
		if err := c.conn.SetReadDeadline(time.Now().Add(idle)); err != nil {
			c.Close(CloseGoingAway, "")
			return
		}

		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.closeAfterReadError(err)
			return
		}
		c.touch()

		frame, err := DecodeInbound(raw)
		if err != nil {
			var protoErr *pkg.ProtocolError
			requestType := ""
			if errors.As(err, &protoErr) {
				requestType = protoErr.Type
			}
			c.logger.Debug("invalid frame", "error", err)
			c.hub.metrics.InboundFrame(frameLabel(requestType), "rejected")
			c.hub.reply(c, newErrorEvent(err, requestType, ""))
			continue
		}

		outcome := "ok"
		if err := c.hub.handle(ctx, c, frame); err != nil {
			outcome = "failed"
		}
		c.hub.metrics.InboundFrame(frame.frameType(), outcome)

		if c.State() == StateClosed {
			return
		}
	}
}

func (c *Client) closeAfterReadError(err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn("frame exceeds read limit", "limit", c.hub.opts.MaxFrameBytes)
		c.Close(CloseTooBig, "frame too large")
	case errors.As(err, &netErr) && netErr.Timeout():
		c.logger.Info("idle timeout", "last_activity", c.LastActivity())
		c.Close(CloseGoingAway, "idle timeout")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.Close(CloseNormal, "")
	default:
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.Debug("unexpected close", "error", err)
		}
		c.Close(CloseGoingAway, "")
	}
}

// writePump, send kuyruğunu socket'e yazar ve periyodik ping gönderir.
// Client kapandığında kuyrukta kalanları yazar, close frame'i gönderir ve socket'i kapatır.
func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.opts.pingPeriod())
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				c.logger.Debug("write failed", "error", err)
				c.Close(CloseGoingAway, "")
				return
			}

		case <-ticker.C:
			deadline := time.Now().Add(c.hub.opts.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("ping failed", "error", err)
				c.Close(CloseGoingAway, "")
				return
			}

		case <-c.done:
			c.flush()
			deadline := time.Now().Add(c.hub.opts.WriteTimeout)
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(c.closeCode, c.closeReason), deadline)
			return
		}
	}
}

func (c *Client) write(frame []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.hub.opts.WriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// flush, kapanıştan önce kuyrukta bekleyen frame'leri yazar (logout ack'i gibi).
func (c *Client) flush() {
	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

// teardown, bağlantı başına tam bir kez çalışır: kaydı siler ve
// bu bağlantı kullanıcının güncel bağlantısıysa offline yayınlar.
func (c *Client) teardown(ctx context.Context) {
	c.teardownOnce.Do(func() {
		c.Close(CloseNormal, "")

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.hub.opts.WriteTimeout)
		defer cancel()
		current := c.hub.presence.Disconnect(ctx, c)

		c.logger.Info("client disconnected",
			"code", c.closeCode,
			"reason", c.closeReason,
			"superseded", !current,
		)
	})
}

// frameLabel, metrik label kardinalitesini bilinen frame tipleriyle sınırlar.
func frameLabel(frameType string) string {
	switch frameType {
	case TypeAuth, TypeMessage, TypeTyping, TypeRead, TypeLogout, TypePing:
		return frameType
	case "":
		return "none"
	default:
		return "unknown"
	}
}
