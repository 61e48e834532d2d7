package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/akinalp/parley/pkg"
	"github.com/akinalp/parley/pkg/metrics"
)

// Pinger, storage'ın erişilebilir olup olmadığını yoklar. *sql.DB bunu karşılar.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// StorageHealth, art arda gelen storage hatalarını sayar ve eşik aşılınca
// sistemi degraded moda alır. Degraded iken yazmalar hızlıca reddedilir;
// en fazla probeInterval'da bir ping atılır, başarılı ping modu kapatır.
// nil *StorageHealth her zaman sağlıklıdır.
type StorageHealth struct {
	pinger        Pinger
	threshold     int
	probeInterval time.Duration
	metrics       *metrics.Metrics
	logger        *slog.Logger
	now           func() time.Time

	mu        sync.Mutex
	failures  int
	degraded  bool
	since     time.Time
	lastProbe time.Time
	lastErr   error
}

// NewStorageHealth, constructor.
func NewStorageHealth(pinger Pinger, threshold int, probeInterval time.Duration, m *metrics.Metrics, logger *slog.Logger) *StorageHealth {
	if threshold < 1 {
		threshold = 1
	}
	return &StorageHealth{
		pinger:        pinger,
		threshold:     threshold,
		probeInterval: probeInterval,
		metrics:       m,
		logger:        logger.With("component", "storage"),
		now:           time.Now,
	}
}

// HealthStatus, /api/health yanıtında dönen storage durumu.
type HealthStatus struct {
	Degraded            bool       `json:"degraded"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	Since               *time.Time `json:"since,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
}

// Allow, bir yazma denemesinden önce çağrılır.
// Degraded değilse nil; degraded ise ve probe zamanı gelmişse ping atar.
func (h *StorageHealth) Allow(ctx context.Context) error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	if !h.degraded {
		h.mu.Unlock()
		return nil
	}
	if h.now().Sub(h.lastProbe) < h.probeInterval {
		h.mu.Unlock()
		return pkg.ErrStorageUnavailable
	}
	h.lastProbe = h.now()
	h.mu.Unlock()

	if err := h.pinger.PingContext(ctx); err != nil {
		h.logger.Warn("storage probe failed", "error", err)
		return pkg.ErrStorageUnavailable
	}

	h.recover()
	return nil
}

// Observe, bir storage işleminin sonucunu kaydeder.
// Domain hataları (not found, forbidden, bad request) ve iptal edilen context sayılmaz.
func (h *StorageHealth) Observe(op string, err error) {
	if h == nil {
		return
	}
	if err == nil {
		h.mu.Lock()
		wasDegraded := h.degraded
		h.failures = 0
		h.mu.Unlock()
		if wasDegraded {
			h.recover()
		}
		return
	}
	if !countsAsStorageFailure(err) {
		return
	}

	h.metrics.StorageError(op)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.failures++
	h.lastErr = err
	if h.degraded || h.failures < h.threshold {
		return
	}

	h.degraded = true
	h.since = h.now()
	h.lastProbe = h.now()
	h.metrics.SetDegraded(true)
	h.logger.Error("storage degraded: rejecting writes",
		"op", op, "consecutive_failures", h.failures, "error", err)
}

func (h *StorageHealth) recover() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.degraded {
		return
	}
	h.logger.Info("storage recovered", "degraded_for", h.now().Sub(h.since).String())
	h.degraded = false
	h.failures = 0
	h.lastErr = nil
	h.metrics.SetDegraded(false)
}

// Degraded, storage şu anda yazmaları reddediyor mu.
func (h *StorageHealth) Degraded() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.degraded
}

// Status, health endpoint'i için anlık görüntü döner.
func (h *StorageHealth) Status() HealthStatus {
	if h == nil {
		return HealthStatus{}
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	st := HealthStatus{Degraded: h.degraded, ConsecutiveFailures: h.failures}
	if h.degraded {
		since := h.since
		st.Since = &since
	}
	if h.lastErr != nil {
		st.LastError = h.lastErr.Error()
	}
	return st
}

func countsAsStorageFailure(err error) bool {
	switch {
	case errors.Is(err, context.Canceled),
		errors.Is(err, pkg.ErrNotFound),
		errors.Is(err, pkg.ErrForbidden),
		errors.Is(err, pkg.ErrBadRequest),
		errors.Is(err, pkg.ErrStorageUnavailable):
		return false
	}
	return true
}
