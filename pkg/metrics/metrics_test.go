package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	req := require.New(t)
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ConnectionOpened()
	m.ConnectionOpened()
	m.ConnectionClosed()
	m.Delivered("message")
	m.Delivered("message")
	m.DeliveryFailed("buffer_full")
	m.SetDegraded(true)

	req.Equal(float64(1), testutil.ToFloat64(m.ActiveConnections))
	req.Equal(float64(2), testutil.ToFloat64(m.EventsDelivered.WithLabelValues("message")))
	req.Equal(float64(1), testutil.ToFloat64(m.StorageDegraded))

	expected := `
# HELP parley_delivery_failures_total Per-recipient delivery failures during fan-out, by reason
# TYPE parley_delivery_failures_total counter
parley_delivery_failures_total{reason="buffer_full"} 1
`
	req.NoError(testutil.GatherAndCompare(reg, strings.NewReader(expected), "parley_delivery_failures_total"))

	m.SetDegraded(false)
	req.Equal(float64(0), testutil.ToFloat64(m.StorageDegraded))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics

	require.NotPanics(t, func() {
		m.ConnectionOpened()
		m.Delivered("typing")
		m.StorageError("append")
		m.SetDegraded(true)
		m.InboundFrame("message", "ok")
	})
}
