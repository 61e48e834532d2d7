// Service katmanı başlatma.
//
// initServices, service'leri constructor injection ile oluşturur.
//
// Sıralama kuralı: StorageHealth → MembershipIndex → MessageLog.
// Index ve log aynı health instance'ını paylaşır; biri degraded'a
// düşürürse diğeri de hızlıca reddeder.

package main

import (
	"database/sql"
	"log/slog"

	"github.com/akinalp/parley/config"
	"github.com/akinalp/parley/pkg/metrics"
	"github.com/akinalp/parley/pkg/ratelimit"
	"github.com/akinalp/parley/services"
)

// Services, tüm service instance'larını tutan container struct.
type Services struct {
	Auth          services.AuthService
	Health        *services.StorageHealth
	Membership    *services.MembershipIndex
	Messages      *services.MessageLog
	Conversations *services.ConversationService
}

// RateLimiters, tüm rate limiter instance'larını tutan container.
type RateLimiters struct {
	Frames    *ratelimit.Limiter // kullanıcı başına message/typing
	Handshake *ratelimit.Limiter // IP başına başarısız auth
}

func initServices(conn *sql.DB, repos *Repositories, cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Services {
	health := services.NewStorageHealth(conn, cfg.Storage.DegradeThreshold, cfg.Storage.ProbeInterval, m, logger)
	index := services.NewMembershipIndex(repos.Membership, health, cfg.Membership.NegativeTTL, cfg.Membership.StaleGrace, logger)

	return &Services{
		Auth:          services.NewAuthService(cfg.JWT.Secret),
		Health:        health,
		Membership:    index,
		Messages:      services.NewMessageLog(repos.Message, index, health, logger),
		Conversations: services.NewConversationService(repos.Conversation, index),
	}
}

func initRateLimiters(cfg *config.Config) *RateLimiters {
	return &RateLimiters{
		Frames:    ratelimit.New(cfg.RateLimit.FrameLimit, cfg.RateLimit.FrameWindow, cfg.RateLimit.FrameCooldown),
		Handshake: ratelimit.New(cfg.RateLimit.HandshakeLimit, cfg.RateLimit.HandshakeWindow, 0),
	}
}

// Close, arka plan goroutine'lerini durdurur.
func (s *Services) Close() {
	s.Membership.Close()
}

func (l *RateLimiters) Close() {
	l.Frames.Close()
	l.Handshake.Close()
}
