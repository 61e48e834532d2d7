// Handler katmanı başlatma.
//
// Hub burada kurulur: Registry, Dispatcher ve Presence'ı içerir ve
// hem WebSocket handler'ı hem health endpoint'i tarafından kullanılır.

package main

import (
	"log/slog"

	"github.com/akinalp/parley/config"
	"github.com/akinalp/parley/handlers"
	"github.com/akinalp/parley/pkg/metrics"
	"github.com/akinalp/parley/pkg/ratelimit"
	"github.com/akinalp/parley/ws"
)

// Handlers, tüm handler instance'larını tutan container struct.
type Handlers struct {
	Hub    *ws.Hub
	WS     *ws.Handler
	Health *handlers.HealthHandler
}

func initHandlers(svcs *Services, limiters *RateLimiters, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Handlers {
	hub := ws.NewHub(svcs.Messages, svcs.Membership, ws.Options{
		IdleTimeout:      cfg.WS.IdleTimeout,
		WriteTimeout:     cfg.WS.WriteTimeout,
		HandshakeTimeout: cfg.WS.HandshakeTimeout,
		MaxFrameBytes:    cfg.WS.MaxFrameBytes,
		SendBuffer:       cfg.WS.SendBuffer,
		FrameLimiter:     limiters.Frames,
		TrustedProxies:   ratelimit.NewTrustedProxies(cfg.Server.TrustedProxies, logger),
	}, m, logger)

	return &Handlers{
		Hub:    hub,
		WS:     ws.NewHandler(hub, svcs.Auth, cfg.Server.AllowedOrigins, limiters.Handshake, logger),
		Health: handlers.NewHealthHandler(svcs.Health, hub.Registry()),
	}
}
