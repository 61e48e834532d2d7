// HTTP route registration.

package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// initRoutes, endpoint'leri mux'a bağlar ve CORS ile sarar.
//
// /ws auth middleware kullanmaz: tarayıcılar WebSocket upgrade'inde header
// gönderemez, token query'den veya ilk auth frame'inden gelir. Ayrıca
// reddedilen bağlantı HTTP 401 değil 1008 close frame'i almalıdır.
func initRoutes(h *Handlers, gatherer prometheus.Gatherer, allowedOrigins []string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ws", h.WS.HandleConnection)
	mux.HandleFunc("GET /api/health", h.Health.Check)
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})

	return corsHandler.Handler(mux)
}
