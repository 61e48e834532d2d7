package ratelimit

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// TrustedProxies, X-Forwarded-For'u yazmasına güvenilen proxy adresleri.
//
// nil bir *TrustedProxies hiçbir proxy'ye güvenmez: header'lar yok sayılır,
// anahtar doğrudan RemoteAddr olur. Aksi halde istemci her istekte farklı bir
// X-Forwarded-For göndererek handshake limiter'ından kaçabilir.
type TrustedProxies struct {
	ips  map[string]struct{}
	nets []*net.IPNet
}

// NewTrustedProxies, IP ve CIDR listesinden eşleyici kurar.
// Geçersiz girdiler loglanıp atlanır; geçerli girdi yoksa nil döner.
func NewTrustedProxies(entries []string, logger *slog.Logger) *TrustedProxies {
	ips := make(map[string]struct{})
	var nets []*net.IPNet

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			_, network, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn("invalid trusted proxy CIDR", "entry", entry, "error", err)
				continue
			}
			nets = append(nets, network)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			logger.Warn("invalid trusted proxy IP", "entry", entry)
			continue
		}
		ips[ip.String()] = struct{}{}
	}

	if len(ips) == 0 && len(nets) == 0 {
		return nil
	}
	return &TrustedProxies{ips: ips, nets: nets}
}

func (t *TrustedProxies) trusts(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}
	if _, ok := t.ips[ip.String()]; ok {
		return true
	}
	for _, n := range t.nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// ClientIP, request'in client IP'sini döner.
//
// Bağlantı güvenilen bir proxy'den gelmiyorsa RemoteAddr kullanılır.
// Geliyorsa X-Forwarded-For sağdan sola yürünür ve güvenilmeyen ilk adres
// seçilir; zincirin sonundaki proxy'ler atlanır, istemcinin eklediği sahte
// soldaki değerlere hiç ulaşılmaz.
func (t *TrustedProxies) ClientIP(r *http.Request) string {
	remote := remoteIP(r)
	if remote == nil {
		return r.RemoteAddr
	}
	if !t.trusts(remote) {
		return remote.String()
	}

	hops := parseXForwardedFor(r.Header.Get("X-Forwarded-For"))
	for i := len(hops) - 1; i >= 0; i-- {
		if !t.trusts(hops[i]) {
			return hops[i].String()
		}
	}
	if len(hops) > 0 {
		return hops[0].String()
	}
	return remote.String()
}

func remoteIP(r *http.Request) net.IP {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return net.ParseIP(host)
}

func parseXForwardedFor(header string) []net.IP {
	var out []net.IP
	for _, part := range strings.Split(header, ",") {
		host := strings.Trim(strings.TrimSpace(part), "\"")
		if h, _, err := net.SplitHostPort(host); err == nil {
			host = h
		}
		host = strings.Trim(host, "[]")
		if ip := net.ParseIP(host); ip != nil {
			out = append(out, ip)
		}
	}
	return out
}
