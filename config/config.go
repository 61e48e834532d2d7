// Package config, uygulamanın tüm konfigürasyonunu merkezi olarak yönetir.
// Environment variable'lardan okur, .env dosyasını da destekler.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// minIdleTimeout, ping periyodu idle süresinin yarısıdır; daha kısası anlamsızdır.
const minIdleTimeout = time.Second

// Config, uygulamanın tüm konfigürasyon değerlerini taşır.
// Her alt bölüm tek bir concern'ü temsil eder.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	WS         WSConfig
	Membership MembershipConfig
	Storage    StorageConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Tracing    TracingConfig
}

// ServerConfig, HTTP server ayarları.
type ServerConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS ve WebSocket origin kontrolü; "*" hepsine izin verir
	TrustedProxies []string // X-Forwarded-For'una güvenilen proxy IP/CIDR'ları; boşsa header yok sayılır
}

// DatabaseConfig, SQLite database ayarları.
type DatabaseConfig struct {
	Path string // SQLite dosya yolu (ör: ./data/parley.db)
}

// JWTConfig, token doğrulama ve CLI'dan token üretme ayarları.
type JWTConfig struct {
	Secret   string        // HS256 imza anahtarı, GİZLİ TUTULMALI
	TokenTTL time.Duration // `parley token` ile üretilen token'ların ömrü
}

// WSConfig, WebSocket bağlantı ayarları.
type WSConfig struct {
	IdleTimeout      time.Duration // Bu süre boyunca frame/pong gelmezse bağlantı kapanır
	WriteTimeout     time.Duration
	HandshakeTimeout time.Duration // URL'de token yoksa ilk "auth" frame'i için bekleme süresi
	MaxFrameBytes    int64
	SendBuffer       int // Bağlantı başına outbound kuyruk kapasitesi
}

// MembershipConfig, Membership Index cache ayarları.
type MembershipConfig struct {
	NegativeTTL time.Duration // Reddedilen üyelik sonucunun hatırlanma süresi; 0 kapatır
	StaleGrace  time.Duration // Storage hatasında eski snapshot'ın sunulabileceği süre
}

// StorageConfig, degraded mode ayarları.
type StorageConfig struct {
	DegradeThreshold int           // Art arda bu kadar hata → degraded
	ProbeInterval    time.Duration // Degraded iken storage'ın en sık yoklanma aralığı
}

// RateLimitConfig, spam ve handshake koruması.
//
// Mesaj/typing: Window içinde FrameLimit'ten fazla frame → Cooldown boyunca red.
// Handshake: aynı IP'den HandshakeWindow içinde HandshakeLimit'ten fazla başarısız auth → 429.
type RateLimitConfig struct {
	FrameLimit      int
	FrameWindow     time.Duration
	FrameCooldown   time.Duration
	HandshakeLimit  int
	HandshakeWindow time.Duration
}

// LogConfig, slog seviyesi (DEBUG, INFO, WARN, ERROR).
type LogConfig struct {
	Level string
}

// TracingConfig, OTLP trace exporter ayarları. Endpoint boşsa tracing kapalıdır.
type TracingConfig struct {
	Endpoint     string
	Insecure     bool
	SamplingRate float64
}

// Load, environment variable'lardan Config oluşturur.
// .env dosyası varsa önce onu yükler; yoksa sessizce devam eder.
func Load() (*Config, error) {
	_ = godotenv.Load()

	port, err := strconv.Atoi(getEnv("SERVER_PORT", "9090"))
	if err != nil {
		return nil, fmt.Errorf("invalid SERVER_PORT: %w", err)
	}

	tokenTTL, err := time.ParseDuration(getEnv("JWT_TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TOKEN_TTL: %w", err)
	}

	idle, err := time.ParseDuration(getEnv("WS_IDLE_TIMEOUT", "90s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_IDLE_TIMEOUT: %w", err)
	}

	writeTimeout, err := time.ParseDuration(getEnv("WS_WRITE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: %w", err)
	}

	handshake, err := time.ParseDuration(getEnv("WS_HANDSHAKE_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_HANDSHAKE_TIMEOUT: %w", err)
	}

	maxFrame, err := strconv.ParseInt(getEnv("WS_MAX_FRAME_BYTES", "8192"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid WS_MAX_FRAME_BYTES: %w", err)
	}

	sendBuffer, err := strconv.Atoi(getEnv("WS_SEND_BUFFER", "256"))
	if err != nil {
		return nil, fmt.Errorf("invalid WS_SEND_BUFFER: %w", err)
	}

	// Sıfır veya negatif değerler ping ticker'ını ve send kuyruğunu panikletir
	switch {
	case idle < minIdleTimeout:
		return nil, fmt.Errorf("invalid WS_IDLE_TIMEOUT: must be at least %s", minIdleTimeout)
	case writeTimeout <= 0:
		return nil, fmt.Errorf("invalid WS_WRITE_TIMEOUT: must be positive")
	case handshake <= 0:
		return nil, fmt.Errorf("invalid WS_HANDSHAKE_TIMEOUT: must be positive")
	case maxFrame <= 0:
		return nil, fmt.Errorf("invalid WS_MAX_FRAME_BYTES: must be positive")
	case sendBuffer <= 0:
		return nil, fmt.Errorf("invalid WS_SEND_BUFFER: must be positive")
	}

	negativeTTL, err := time.ParseDuration(getEnv("MEMBERSHIP_NEGATIVE_TTL", "1s"))
	if err != nil {
		return nil, fmt.Errorf("invalid MEMBERSHIP_NEGATIVE_TTL: %w", err)
	}
	if negativeTTL < 0 {
		return nil, fmt.Errorf("invalid MEMBERSHIP_NEGATIVE_TTL: must not be negative")
	}

	staleGrace, err := time.ParseDuration(getEnv("MEMBERSHIP_STALE_GRACE", "10m"))
	if err != nil {
		return nil, fmt.Errorf("invalid MEMBERSHIP_STALE_GRACE: %w", err)
	}

	threshold, err := strconv.Atoi(getEnv("STORAGE_DEGRADE_THRESHOLD", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_DEGRADE_THRESHOLD: %w", err)
	}
	if threshold < 1 {
		return nil, fmt.Errorf("STORAGE_DEGRADE_THRESHOLD must be at least 1")
	}

	probe, err := time.ParseDuration(getEnv("STORAGE_PROBE_INTERVAL", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid STORAGE_PROBE_INTERVAL: %w", err)
	}

	frameLimit, err := strconv.Atoi(getEnv("RATE_LIMIT_FRAMES", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_FRAMES: %w", err)
	}

	frameWindow, err := time.ParseDuration(getEnv("RATE_LIMIT_WINDOW", "5s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW: %w", err)
	}

	frameCooldown, err := time.ParseDuration(getEnv("RATE_LIMIT_COOLDOWN", "15s"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_COOLDOWN: %w", err)
	}

	handshakeLimit, err := strconv.Atoi(getEnv("HANDSHAKE_RATE_LIMIT", "20"))
	if err != nil {
		return nil, fmt.Errorf("invalid HANDSHAKE_RATE_LIMIT: %w", err)
	}

	handshakeWindow, err := time.ParseDuration(getEnv("HANDSHAKE_RATE_WINDOW", "1m"))
	if err != nil {
		return nil, fmt.Errorf("invalid HANDSHAKE_RATE_WINDOW: %w", err)
	}

	insecure, err := strconv.ParseBool(getEnv("OTEL_EXPORTER_OTLP_INSECURE", "true"))
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_EXPORTER_OTLP_INSECURE: %w", err)
	}

	sampling, err := strconv.ParseFloat(getEnv("OTEL_SAMPLING_RATE", "1.0"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OTEL_SAMPLING_RATE: %w", err)
	}

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET environment variable is required")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           port,
			AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),
			TrustedProxies: splitList(getEnv("TRUSTED_PROXIES", "")),
		},
		Database: DatabaseConfig{
			Path: getEnv("DATABASE_PATH", "./data/parley.db"),
		},
		JWT: JWTConfig{
			Secret:   jwtSecret,
			TokenTTL: tokenTTL,
		},
		WS: WSConfig{
			IdleTimeout:      idle,
			WriteTimeout:     writeTimeout,
			HandshakeTimeout: handshake,
			MaxFrameBytes:    maxFrame,
			SendBuffer:       sendBuffer,
		},
		Membership: MembershipConfig{
			NegativeTTL: negativeTTL,
			StaleGrace:  staleGrace,
		},
		Storage: StorageConfig{
			DegradeThreshold: threshold,
			ProbeInterval:    probe,
		},
		RateLimit: RateLimitConfig{
			FrameLimit:      frameLimit,
			FrameWindow:     frameWindow,
			FrameCooldown:   frameCooldown,
			HandshakeLimit:  handshakeLimit,
			HandshakeWindow: handshakeWindow,
		},
		Log: LogConfig{
			Level: strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		},
		Tracing: TracingConfig{
			Endpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Insecure:     insecure,
			SamplingRate: sampling,
		},
	}

	return cfg, nil
}

// Addr, HTTP server'ın dinleyeceği adresi döner (ör: "0.0.0.0:9090").
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv, environment variable'ı okur, yoksa fallback değeri döner.
func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
