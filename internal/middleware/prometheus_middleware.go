package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Группы маршрутов REST API редактора
const (
	GroupRegion    = "region"
	GroupChunk     = "chunk"
	GroupBlock     = "block"
	GroupLevel     = "level"
	GroupExport    = "export"
	GroupSave      = "save"
	GroupSnapshot  = "snapshot"
	GroupService   = "service"
	GroupUnmatched = "unmatched"
)

// routeGroups префиксы шаблонов gin и их группы
var routeGroups = []struct {
	prefix string
	group  string
}{
	{"/api/regions", GroupRegion},
	{"/api/chunk", GroupChunk},
	{"/api/block", GroupBlock},
	{"/api/level", GroupLevel},
	{"/api/export", GroupExport},
	{"/api/save", GroupSave},
	{"/api/snapshots", GroupSnapshot},
	{"/api/server", GroupService},
	{"/health", GroupService},
	{"/metrics", GroupService},
}

// RouteGroup относит шаблон маршрута gin к группе. Пустой шаблон означает,
// что маршрут не найден.
func RouteGroup(fullPath string) string {
	if fullPath == "" {
		return GroupUnmatched
	}
	for _, rg := range routeGroups {
		if strings.HasPrefix(fullPath, rg.prefix) {
			return rg.group
		}
	}
	return "other"
}

// PrometheusMiddleware считает запросы к миру по группам маршрутов, а не по
// отдельным путям: координаты в /api/chunk/:x/:z не размножают серии.
//
//	<service>_http_request_duration_seconds{group,method,status}
//	<service>_http_requests_inflight{group}
//	<service>_http_request_errors_total{group,status}
//	<service>_http_response_size_bytes{group}
//
// /metrics подключается отдельно через RegisterMetricsEndpoint.
type PrometheusMiddleware struct {
	duration *prometheus.HistogramVec
	inflight *prometheus.GaugeVec
	errors   *prometheus.CounterVec
	size     *prometheus.HistogramVec
}

// NewPrometheusMiddleware создаёт метрики с префиксом service и регистрирует их в reg
func NewPrometheusMiddleware(service string, reg prometheus.Registerer) *PrometheusMiddleware {
	pm := &PrometheusMiddleware{
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_request_duration_seconds",
			Help:      "Длительность запросов к API по группам маршрутов.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15},
		}, []string{"group", "method", "status"}),
		inflight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: service,
			Name:      "http_requests_inflight",
			Help:      "Запросы в обработке.",
		}, []string{"group"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: service,
			Name:      "http_request_errors_total",
			Help:      "Ответы со статусом 4xx и 5xx.",
		}, []string{"group", "status"}),
		size: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: service,
			Name:      "http_response_size_bytes",
			Help:      "Размер ответа; выгрузка мира и дерево чанка самые тяжёлые.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"group"}),
	}

	reg.MustRegister(pm.duration, pm.inflight, pm.errors, pm.size)
	return pm
}

// Handler middleware для router.Use
func (pm *PrometheusMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		group := RouteGroup(c.FullPath())
		inflight := pm.inflight.WithLabelValues(group)

		start := time.Now()
		inflight.Inc()
		c.Next()
		inflight.Dec()

		code := c.Writer.Status()
		status := strconv.Itoa(code)
		pm.duration.WithLabelValues(group, c.Request.Method, status).Observe(time.Since(start).Seconds())
		if size := c.Writer.Size(); size > 0 {
			pm.size.WithLabelValues(group).Observe(float64(size))
		}
		if code >= 400 {
			pm.errors.WithLabelValues(group, status).Inc()
		}
	}
}

// RegisterMetricsEndpoint публикует g на GET /metrics
func (pm *PrometheusMiddleware) RegisterMetricsEndpoint(r *gin.Engine, g prometheus.Gatherer) {
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}
