// Package handlers, WebSocket dışındaki HTTP endpoint'lerini içerir.
//
// HTTP CRUD katmanı bu servisin parçası değildir; burada sadece
// operasyonel endpoint'ler bulunur.
package handlers

import (
	"net/http"

	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/services"
)

// HealthReporter, storage durumunu raporlayan interface.
// services.StorageHealth karşılar.
type HealthReporter interface {
	Status() services.HealthStatus
}

// ConnectionCounter, canlı bağlantı sayısı. ws.Registry karşılar.
type ConnectionCounter interface {
	Len() int
}

// HealthResponse, /api/health yanıtının data alanı.
type HealthResponse struct {
	Status      string                `json:"status"`
	Connections int                   `json:"connections"`
	Storage     services.HealthStatus `json:"storage"`
}

// HealthHandler, load balancer ve orkestratör yoklamaları için.
type HealthHandler struct {
	storage     HealthReporter
	connections ConnectionCounter
}

func NewHealthHandler(storage HealthReporter, connections ConnectionCounter) *HealthHandler {
	return &HealthHandler{storage: storage, connections: connections}
}

// Check, storage degraded ise 503 döner; canlı bağlantılar etkilenmez
// ama yeni mesajlar kalıcı yazılamaz.
//
// GET /api/health
// Response: { "success": true, "data": { "status": "ok", "connections": 3, "storage": {...} } }
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:      "ok",
		Connections: h.connections.Len(),
		Storage:     h.storage.Status(),
	}

	if resp.Storage.Degraded {
		resp.Status = "degraded"
		pkg.ErrorWithData(w, http.StatusServiceUnavailable, "storage unavailable", resp)
		return
	}

	pkg.JSON(w, http.StatusOK, resp)
}
