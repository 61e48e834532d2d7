package ratelimit

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

func TestTrustedProxies_ClientIP(t *testing.T) {
	proxies := NewTrustedProxies([]string{"10.0.0.0/8", "192.0.2.10", "not-an-ip"}, logs.GetLoggerFromLevel(slog.LevelError))

	cases := []struct {
		name    string
		proxies *TrustedProxies
		xff     string
		remote  string
		want    string
	}{
		{"no trust ignores header", nil, "203.0.113.7", "198.51.100.9:5000", "198.51.100.9"},
		{"untrusted peer ignores header", proxies, "203.0.113.7", "198.51.100.9:5000", "198.51.100.9"},
		{"trusted peer uses forwarded", proxies, "203.0.113.7", "10.0.0.2:5000", "203.0.113.7"},
		{"spoofed left value is skipped", proxies, "1.2.3.4, 203.0.113.7, 10.0.0.5", "10.0.0.2:5000", "203.0.113.7"},
		{"single trusted ip", proxies, "203.0.113.8", "192.0.2.10:443", "203.0.113.8"},
		{"all hops trusted", proxies, "10.1.1.1, 10.0.0.5", "10.0.0.2:5000", "10.1.1.1"},
		{"trusted peer without header", proxies, "", "10.0.0.2:5000", "10.0.0.2"},
		{"ipv6 with port", proxies, "[2001:db8::1]:4711", "10.0.0.2:5000", "2001:db8::1"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			r.RemoteAddr = tc.remote
			if tc.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.xff)
			}

			require.Equal(t, tc.want, tc.proxies.ClientIP(r))
		})
	}
}

func TestNewTrustedProxies_EmptyIsNil(t *testing.T) {
	require.Nil(t, NewTrustedProxies([]string{" ", "garbage"}, logs.GetLoggerFromLevel(slog.LevelError)))
}
