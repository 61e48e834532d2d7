// Package metrics, gerçek zamanlı çekirdeğin Prometheus metriklerini tanımlar.
//
// Metrics nil olabilir; tüm metodlar nil receiver'da no-op'tur.
// Böylece testlerde ve CLI komutlarında metrik kurmadan servis oluşturulabilir.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "parley"

// Metrics, çekirdeğin tüm sayaç ve gauge'larını taşır.
type Metrics struct {
	ActiveConnections prometheus.Gauge
	EventsDelivered   *prometheus.CounterVec
	DeliveryFailures  *prometheus.CounterVec
	DispatchDuration  prometheus.Histogram
	InboundFrames     *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec
	StorageDegraded   prometheus.Gauge
}

// New, metrikleri verilen registerer'a kaydeder.
// Production'da prometheus.DefaultRegisterer, testlerde prometheus.NewRegistry() geçilir.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Current number of registered websocket connections",
		}),
		EventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Events enqueued to a recipient connection, by event type",
		}, []string{"type"}),
		DeliveryFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Per-recipient delivery failures during fan-out, by reason",
		}, []string{"reason"}),
		DispatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent fanning out a single event",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		InboundFrames: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inbound_frames_total",
			Help:      "Client frames received, by type and outcome",
		}, []string{"type", "outcome"}),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Failed storage operations, by operation",
		}, []string{"op"}),
		StorageDegraded: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "storage_degraded",
			Help:      "1 while the message log rejects writes after repeated storage failures",
		}),
	}
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func (m *Metrics) Delivered(eventType string) {
	if m == nil {
		return
	}
	m.EventsDelivered.WithLabelValues(eventType).Inc()
}

func (m *Metrics) DeliveryFailed(reason string) {
	if m == nil {
		return
	}
	m.DeliveryFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDispatch(d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.Observe(d.Seconds())
}

func (m *Metrics) InboundFrame(frameType, outcome string) {
	if m == nil {
		return
	}
	m.InboundFrames.WithLabelValues(frameType, outcome).Inc()
}

func (m *Metrics) StorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.StorageDegraded.Set(1)
		return
	}
	m.StorageDegraded.Set(0)
}
