package metric

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ukhas/habitat-sub001/errors"
)

func gatheredNames(t *testing.T, r *MetricsRegistry) map[string]bool {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	return names
}

func TestNewMetricsRegistry(t *testing.T) {
	registry := NewMetricsRegistry()
	require.NotNil(t, registry)
	assert.Same(t, registry.Metrics, registry.CoreMetrics())

	registry.CoreMetrics().RecordMessage("TELEM")
	names := gatheredNames(t, registry)
	assert.True(t, names["habitat_router_messages_total"])
	assert.True(t, names["go_goroutines"], "go collector registered")
}

func TestMetricsRegistry_Register(t *testing.T) {
	tests := []struct {
		name     string
		register func(r *MetricsRegistry) error
		metric   string
	}{
		{"counter", func(r *MetricsRegistry) error {
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_counter", Help: "h"})
			c.Inc()
			return r.RegisterCounter("svc", "test_counter", c)
		}, "test_counter"},
		{"gauge", func(r *MetricsRegistry) error {
			g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "h"})
			return r.RegisterGauge("svc", "test_gauge", g)
		}, "test_gauge"},
		{"histogram", func(r *MetricsRegistry) error {
			h := prometheus.NewHistogram(prometheus.HistogramOpts{Name: "test_histogram", Help: "h"})
			h.Observe(1)
			return r.RegisterHistogram("svc", "test_histogram", h)
		}, "test_histogram"},
		{"counter vec", func(r *MetricsRegistry) error {
			v := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_counter_vec", Help: "h"}, []string{"l"})
			v.WithLabelValues("x").Inc()
			return r.RegisterCounterVec("svc", "test_counter_vec", v)
		}, "test_counter_vec"},
		{"gauge vec", func(r *MetricsRegistry) error {
			v := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "test_gauge_vec", Help: "h"}, []string{"l"})
			v.WithLabelValues("x").Set(2)
			return r.RegisterGaugeVec("svc", "test_gauge_vec", v)
		}, "test_gauge_vec"},
		{"histogram vec", func(r *MetricsRegistry) error {
			v := prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "test_histogram_vec", Help: "h"}, []string{"l"})
			v.WithLabelValues("x").Observe(1)
			return r.RegisterHistogramVec("svc", "test_histogram_vec", v)
		}, "test_histogram_vec"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewMetricsRegistry()
			require.NoError(t, tt.register(registry))
			assert.True(t, gatheredNames(t, registry)[tt.metric])

			err := tt.register(registry)
			require.Error(t, err, "duplicate registration")
			assert.True(t, errors.IsInvalid(err))

			assert.True(t, registry.Unregister("svc", tt.metric))
			assert.False(t, registry.Unregister("svc", tt.metric))
			assert.False(t, gatheredNames(t, registry)[tt.metric])
		})
	}
}

func TestMetricsRegistry_PrometheusConflict(t *testing.T) {
	registry := NewMetricsRegistry()
	a := prometheus.NewGauge(prometheus.GaugeOpts{Name: "conflict", Help: "h"})
	b := prometheus.NewGauge(prometheus.GaugeOpts{Name: "conflict", Help: "h"})

	require.NoError(t, registry.RegisterGauge("svc-a", "conflict", a))
	err := registry.RegisterGauge("svc-b", "conflict", b)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMetricsRegistry_Concurrent(t *testing.T) {
	registry := NewMetricsRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("concurrent_%d", i)
			c := prometheus.NewCounter(prometheus.CounterOpts{Name: name, Help: "h"})
			assert.NoError(t, registry.RegisterCounter("svc", name, c))
		}(i)
	}
	wg.Wait()
	assert.Len(t, registry.registeredMetrics, 10)
}

func TestCoreMetrics(t *testing.T) {
	m := NewMetricsRegistry().CoreMetrics()

	m.RecordMessage("TELEM")
	m.RecordMessage("TELEM")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesTotal.WithLabelValues("TELEM")))

	m.RecordDelivery("test.Sink", StatusOK, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeliveriesTotal.WithLabelValues("test.Sink", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SinkHealthy.WithLabelValues("test.Sink")))

	m.RecordDelivery("test.Sink", StatusPanic, time.Millisecond)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.SinkHealthy.WithLabelValues("test.Sink")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HandleDuration))

	m.RecordSinksLoaded(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.SinksLoaded))

	m.RecordQueueDepth("test.Sink", 7)
	assert.Equal(t, 7.0, testutil.ToFloat64(m.QueueDepth.WithLabelValues("test.Sink")))

	m.RecordLoadOperation("load", nil)
	m.RecordLoadOperation("load", fmt.Errorf("x"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadOperations.WithLabelValues("load", StatusOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadOperations.WithLabelValues("load", StatusError)))

	m.ForgetSink("test.Sink")
	assert.Equal(t, 0, testutil.CollectAndCount(m.DeliveriesTotal))
	assert.Equal(t, 0, testutil.CollectAndCount(m.QueueDepth))
	assert.Equal(t, 0, testutil.CollectAndCount(m.SinkHealthy))

	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
}

func TestMetricsRegistry_ReplaceAndOwnedUnregister(t *testing.T) {
	registry := NewMetricsRegistry()

	newVec := func() *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "habitat",
			Subsystem: "counter",
			Name:      "messages",
			Help:      "test",
		}, []string{"type"})
	}

	first := newVec()
	require.NoError(t, registry.RegisterGaugeVec("counter", "messages", first))

	second := newVec()
	require.Error(t, registry.RegisterGaugeVec("counter", "messages", second))
	require.NoError(t, registry.Replace("counter", "messages", second))

	second.WithLabelValues("TELEM").Set(3)
	assert.True(t, gatheredNames(t, registry)["habitat_counter_messages"])

	assert.False(t, registry.UnregisterCollector("counter", "messages", first), "replaced collector is not owner")
	assert.True(t, gatheredNames(t, registry)["habitat_counter_messages"])

	assert.True(t, registry.UnregisterCollector("counter", "messages", second))
	assert.False(t, gatheredNames(t, registry)["habitat_counter_messages"])
}

func gatherFamily(t *testing.T, r *MetricsRegistry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := r.PrometheusRegistry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %s not gathered", name)
	return nil
}

func labelsOf(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestCoreMetrics_DeliverySeries(t *testing.T) {
	registry := NewMetricsRegistry()
	core := registry.CoreMetrics()

	core.RecordDelivery("habitat.sinks.Counter", StatusOK, 2*time.Millisecond)
	core.RecordDelivery("habitat.sinks.Counter", StatusOK, 3*time.Millisecond)
	core.RecordDelivery("habitat.sinks.Counter", StatusError, time.Millisecond)

	deliveries := gatherFamily(t, registry, "habitat_router_deliveries_total")
	assert.Equal(t, dto.MetricType_COUNTER, deliveries.GetType())

	byStatus := make(map[string]float64)
	for _, m := range deliveries.GetMetric() {
		labels := labelsOf(m)
		assert.Equal(t, "habitat.sinks.Counter", labels["sink"])
		byStatus[labels["status"]] = m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{StatusOK: 2, StatusError: 1}, byStatus)

	durations := gatherFamily(t, registry, "habitat_router_handle_duration_seconds")
	require.Len(t, durations.GetMetric(), 1)
	assert.Equal(t, uint64(3), durations.GetMetric()[0].GetHistogram().GetSampleCount())

	healthy := gatherFamily(t, registry, "habitat_router_sink_healthy")
	require.Len(t, healthy.GetMetric(), 1)
	assert.Zero(t, healthy.GetMetric()[0].GetGauge().GetValue(), "last delivery failed")

	core.ForgetSink("habitat.sinks.Counter")
	assert.False(t, gatheredNames(t, registry)["habitat_router_deliveries_total"])
}
