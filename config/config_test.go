package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir()) // no stray .env
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := Load()

	req.NoError(err)
	req.Equal(9090, cfg.Server.Port)
	req.Equal("0.0.0.0:9090", cfg.Server.Addr())
	req.Equal([]string{"*"}, cfg.Server.AllowedOrigins)
	req.Empty(cfg.Server.TrustedProxies)
	req.Equal(90*time.Second, cfg.WS.IdleTimeout)
	req.Equal(256, cfg.WS.SendBuffer)
	req.Equal(5, cfg.Storage.DegradeThreshold)
	req.Equal(10, cfg.RateLimit.FrameLimit)
	req.Equal(15*time.Second, cfg.RateLimit.FrameCooldown)
	req.Equal("INFO", cfg.Log.Level)
}

func TestLoad_Overrides(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,192.0.2.10")
	t.Setenv("WS_IDLE_TIMEOUT", "15s")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()

	req.NoError(err)
	req.Equal(8080, cfg.Server.Port)
	req.Equal([]string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	req.Equal([]string{"10.0.0.0/8", "192.0.2.10"}, cfg.Server.TrustedProxies)
	req.Equal(15*time.Second, cfg.WS.IdleTimeout)
	req.Equal("DEBUG", cfg.Log.Level)
}

func TestLoad_WSBoundaries(t *testing.T) {
	req := require.New(t)
	t.Chdir(t.TempDir())
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("WS_IDLE_TIMEOUT", "1s")
	t.Setenv("WS_SEND_BUFFER", "1")
	t.Setenv("MEMBERSHIP_NEGATIVE_TTL", "0s")

	cfg, err := Load()

	req.NoError(err)
	req.Equal(time.Second, cfg.WS.IdleTimeout)
	req.Equal(1, cfg.WS.SendBuffer)
	req.Zero(cfg.Membership.NegativeTTL)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]map[string]string{
		"missing secret":     {"JWT_SECRET": ""},
		"bad port":           {"JWT_SECRET": "x", "SERVER_PORT": "nope"},
		"bad idle timeout":   {"JWT_SECRET": "x", "WS_IDLE_TIMEOUT": "90"},
		"threshold too low":  {"JWT_SECRET": "x", "STORAGE_DEGRADE_THRESHOLD": "0"},
		"bad rate window":    {"JWT_SECRET": "x", "RATE_LIMIT_WINDOW": "soon"},
		"zero idle timeout":  {"JWT_SECRET": "x", "WS_IDLE_TIMEOUT": "0s"},
		"tiny idle timeout":  {"JWT_SECRET": "x", "WS_IDLE_TIMEOUT": "1ns"},
		"zero write":         {"JWT_SECRET": "x", "WS_WRITE_TIMEOUT": "0s"},
		"negative handshake": {"JWT_SECRET": "x", "WS_HANDSHAKE_TIMEOUT": "-1s"},
		"zero frame size":    {"JWT_SECRET": "x", "WS_MAX_FRAME_BYTES": "0"},
		"negative buffer":    {"JWT_SECRET": "x", "WS_SEND_BUFFER": "-1"},
		"zero buffer":        {"JWT_SECRET": "x", "WS_SEND_BUFFER": "0"},
		"negative neg ttl":   {"JWT_SECRET": "x", "MEMBERSHIP_NEGATIVE_TTL": "-1s"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range env {
				t.Setenv(k, v)
			}

			_, err := Load()

			require.Error(t, err)
		})
	}
}
