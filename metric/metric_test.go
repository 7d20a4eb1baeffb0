package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/common/expfmt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/varmsg/errors"
)

func TestMetricsRegistry_DuplicateRegistration(t *testing.T) {
	r := NewMetricsRegistry()
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_total", Help: "x"}, []string{"a"})

	require.NoError(t, r.RegisterCounterVec("comp", "test_total", vec))
	err := r.RegisterCounterVec("comp", "test_total", vec)
	assert.True(t, errors.IsInvalid(err))

	other := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "test_total", Help: "x"}, []string{"a"})
	err = r.RegisterCounterVec("other", "test_total", other)
	assert.True(t, errors.IsInvalid(err), "prometheus name conflict")

	assert.True(t, r.Unregister("comp", "test_total"))
	assert.False(t, r.Unregister("comp", "test_total"))
	require.NoError(t, r.RegisterCounterVec("other", "test_total", other))
}

func TestPipelineMetrics(t *testing.T) {
	r := NewMetricsRegistry()
	pm, err := NewPipelineMetrics(r)
	require.NoError(t, err)

	pm.RecordTransmission("/gps", TriggerInterval)
	pm.RecordTransmission("/gps", TriggerInterval)
	pm.RecordTransmission("/gps", TriggerChange)
	pm.RecordError("/gps", StageDeliver)
	pm.RecordEnabled("/gps", true)
	pm.RecordCacheSizes("/gps", 1, 5)
	pm.RecordRender("/gps", 2*time.Millisecond)
	pm.RecordHeaderReloads("/gps", 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.Transmissions.WithLabelValues("/gps", TriggerInterval)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.Transmissions.WithLabelValues("/gps", TriggerChange)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.Errors.WithLabelValues("/gps", StageDeliver)))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.Enabled.WithLabelValues("/gps")))
	assert.Equal(t, 5.0, testutil.ToFloat64(pm.CacheSize.WithLabelValues("/gps", "body")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.RenderDuration))
	assert.Equal(t, 3.0, testutil.ToFloat64(pm.HeaderReloads.WithLabelValues("/gps")))

	_, err = NewPipelineMetrics(r)
	assert.Error(t, err, "second registration conflicts")
}

func TestPipelineMetrics_Nil(t *testing.T) {
	pm, err := NewPipelineMetrics(nil)
	require.NoError(t, err)
	require.Nil(t, pm)

	assert.NotPanics(t, func() {
		pm.RecordTransmission("/p", TriggerInterval)
		pm.RecordError("/p", StageRender)
		pm.RecordRender("/p", time.Second)
		pm.RecordEnabled("/p", false)
		pm.RecordCacheSizes("/p", 0, 0)
		pm.RecordHeaderReloads("/p", 1)
	})
}

func TestCoreMetrics(t *testing.T) {
	r := NewMetricsRegistry()
	m := r.CoreMetrics()

	m.RecordNATSStatus(true)
	m.RecordNATSReconnect()
	m.RecordCircuitBreakerState(true)
	m.RecordDirectoryChange()
	m.RecordNATSRTT(1500 * time.Microsecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSConnected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSReconnects))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSCircuitBreaker))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DirectoryChanges))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NATSRTT))
}

func TestHandler(t *testing.T) {
	r := NewMetricsRegistry()
	r.CoreMetrics().RecordNATSStatus(true)

	srv := httptest.NewServer(r.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	require.NoError(t, err)

	connected, ok := families["varmsg_nats_connected"]
	require.True(t, ok)
	require.Len(t, connected.GetMetric(), 1)
	assert.Equal(t, 1.0, connected.GetMetric()[0].GetGauge().GetValue())
	assert.Contains(t, families, "go_goroutines")
}
