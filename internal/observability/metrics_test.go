package observability

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics("")

	m.RecordBacktest("ok", 120)
	m.RecordBacktest("error", 0)
	m.RecordTrade("stop")
	m.RecordTrade("stop")
	m.RecordStoreCall("read_bars", time.Millisecond, errors.New("boom"))
	m.RecordGathered("spy_1day", 10)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.BacktestRuns.WithLabelValues("ok")))
	assert.Equal(t, 120.0, testutil.ToFloat64(m.BarsLoaded))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.TradesSimulated.WithLabelValues("stop")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreQueryErrors.WithLabelValues("read_bars")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.BarsGathered.WithLabelValues("spy_1day")))
}

func TestMetricsIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("")
	b := NewMetrics("")
	a.RecordTrade("flip")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.TradesSimulated.WithLabelValues("flip")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordBacktest("ok", 1)
	m.ObserveIndicator("ema", time.Second)
	m.StreamOpened()
	m.StreamClosed()
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics("")
	m.RecordRequest("/api/series", "200")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `duckweb_api_requests_total{code="200",route="/api/series"} 1`))
}
