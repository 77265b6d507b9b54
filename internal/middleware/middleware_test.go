package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/mca-tools/internal/logging"
)

func serve(r *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestPrometheusMiddleware_BasicMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewPrometheusMiddleware("test", registry).Handler())

	r.GET("/api/regions", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	r.GET("/api/block", func(c *gin.Context) { c.JSON(500, gin.H{"error": "test error"}) })

	assert.Equal(t, 200, serve(r, "/api/regions").Code)
	assert.Equal(t, 500, serve(r, "/api/block").Code)

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	var durationFound, errorsFound bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "test_http_request_duration_seconds":
			durationFound = true
			assert.Equal(t, "Длительность запросов к API по группам маршрутов.", mf.GetHelp())
			assert.Len(t, mf.Metric, 2)
		case "test_http_request_errors_total":
			errorsFound = true
			require.Len(t, mf.Metric, 1)
			assert.Equal(t, float64(1), mf.Metric[0].GetCounter().GetValue())
			assert.Equal(t, map[string]string{"group": GroupBlock, "status": "500"}, labels(mf.Metric[0]))
		}
	}

	assert.True(t, durationFound, "Duration metric not found")
	assert.True(t, errorsFound, "Errors metric not found")
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string)
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

func TestRouteGroup(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/regions", GroupRegion},
		{"/api/regions/:x/:z/chunks", GroupRegion},
		{"/api/chunk/:x/:z", GroupChunk},
		{"/api/chunk/:x/:z/blocks", GroupChunk},
		{"/api/block", GroupBlock},
		{"/api/snapshots/chunk/:x/:z", GroupSnapshot},
		{"/api/export", GroupExport},
		{"/health", GroupService},
		{"", GroupUnmatched},
		{"/debug", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, RouteGroup(tt.path))
		})
	}
}

func TestPrometheusMiddleware_ChunkRoutesShareSeries(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewPrometheusMiddleware("mca", registry).Handler())
	r.GET("/api/chunk/:x/:z", func(c *gin.Context) { c.JSON(200, gin.H{"x": c.Param("x")}) })

	for _, p := range []string{"/api/chunk/0/0", "/api/chunk/5/-3", "/api/chunk/31/31"} {
		require.Equal(t, 200, serve(r, p).Code)
	}
	serve(r, "/nowhere")

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	groups := map[string]uint64{}
	for _, mf := range metricFamilies {
		if mf.GetName() == "mca_http_request_duration_seconds" {
			for _, m := range mf.Metric {
				groups[labels(m)["group"]] += m.GetHistogram().GetSampleCount()
			}
		}
	}
	assert.Equal(t, map[string]uint64{GroupChunk: 3, GroupUnmatched: 1}, groups)
}

func TestPrometheusMiddleware_InflightReleased(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewPrometheusMiddleware("test", registry).Handler())

	var during float64
	r.GET("/slow", func(c *gin.Context) {
		mfs, _ := registry.Gather()
		for _, mf := range mfs {
			if mf.GetName() == "test_http_requests_inflight" {
				during = mf.Metric[0].GetGauge().GetValue()
			}
		}
		c.JSON(200, gin.H{"ok": true})
	})

	serve(r, "/slow")
	assert.Equal(t, float64(1), during)

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() == "test_http_requests_inflight" {
			assert.Equal(t, float64(0), mf.Metric[0].GetGauge().GetValue())
		}
	}
}

func TestPrometheusMiddleware_ErrorCounting(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewPrometheusMiddleware("error_test", registry).Handler())

	r.GET("/400", func(c *gin.Context) { c.JSON(400, gin.H{"error": "bad request"}) })
	r.GET("/403", func(c *gin.Context) { c.JSON(403, gin.H{"error": "read-only"}) })
	r.GET("/404", func(c *gin.Context) { c.JSON(404, gin.H{"error": "not found"}) })
	r.GET("/500", func(c *gin.Context) { c.JSON(500, gin.H{"error": "internal error"}) })
	r.GET("/200", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	for _, endpoint := range []string{"/400", "/403", "/404", "/500", "/200", "/200"} {
		serve(r, endpoint)
	}

	metricFamilies, err := registry.Gather()
	require.NoError(t, err)

	var totalErrors float64
	for _, mf := range metricFamilies {
		if mf.GetName() == "error_test_http_request_errors_total" {
			for _, metric := range mf.Metric {
				totalErrors += metric.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, float64(4), totalErrors)
}

func TestPrometheusMiddleware_MetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	promMw := NewPrometheusMiddleware("test", registry)
	r.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(r, registry)

	r.GET("/api/regions", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })
	assert.Equal(t, 200, serve(r, "/api/regions").Code)

	w := serve(r, "/metrics")
	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, w.Body.String(), "# HELP")
	assert.Contains(t, w.Body.String(), "test_http_request_duration_seconds")
}

func TestRequestLogger_TraceID(t *testing.T) {
	var buf bytes.Buffer

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewRequestLogger(logging.NewConsoleLogger("api", &buf, logging.INFO)).Handler())

	var capturedTraceID string
	r.GET("/api/level", func(c *gin.Context) {
		traceID, exists := c.Get("trace_id")
		require.True(t, exists, "trace_id should be set in context")
		capturedTraceID = traceID.(string)
		c.JSON(200, gin.H{"trace_id": capturedTraceID})
	})

	w := serve(r, "/api/level")
	assert.Equal(t, 200, w.Code)
	assert.NotEmpty(t, capturedTraceID)
	assert.Equal(t, capturedTraceID, w.Header().Get(TraceHeader))
	assert.Contains(t, w.Body.String(), capturedTraceID)

	assert.Contains(t, buf.String(), "GET /api/level 200")
	assert.Contains(t, buf.String(), "trace="+capturedTraceID)
}

func BenchmarkPrometheusMiddleware(b *testing.B) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(NewPrometheusMiddleware("bench", prometheus.NewRegistry()).Handler())
	r.GET("/bench", func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) })

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			serve(r, "/bench")
		}
	})
}
