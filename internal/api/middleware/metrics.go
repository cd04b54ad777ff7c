// metrics.go — Prometheus HTTP метрики DocuKeeper.
// Регистрирует метрики: dk_http_requests_total, dk_http_request_duration_seconds.
// Нормализация путей предотвращает взрывной рост кардинальности.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dk_http_requests_total",
			Help: "Общее количество HTTP-запросов к DocuKeeper",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dk_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов к DocuKeeper в секундах",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			normalizedPath := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			httpRequestsTotal.WithLabelValues(r.Method, normalizedPath, strconv.Itoa(wrapped.statusCode)).Inc()
			httpRequestDuration.WithLabelValues(r.Method, normalizedPath).Observe(time.Since(start).Seconds())
		})
	}
}

// Префиксы путей с параметрами.
const (
	documentsPrefix      = "/api/v1/documents/"
	adminDocumentsPrefix = "/api/v1/admin/documents/"
	blobsPrefix          = "/blobs/"
)

// normalizePath заменяет параметры пути на плейсхолдеры.
// /api/v1/documents/3a7b... → /api/v1/documents/{fileHash}
// /blobs/u1/abc.pdf → /blobs/{path}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/v1/documents", "/api/v1/documents/verify",
		"/api/v1/documents/heads", "/api/v1/documents/detail",
		"/api/v1/auth/me":
		return path
	}

	switch {
	case strings.HasPrefix(path, adminDocumentsPrefix) && len(path) > len(adminDocumentsPrefix):
		return adminDocumentsPrefix + "{fileHash}"
	case strings.HasPrefix(path, documentsPrefix) && len(path) > len(documentsPrefix):
		return documentsPrefix + "{fileHash}"
	case strings.HasPrefix(path, blobsPrefix):
		return blobsPrefix + "{path}"
	}

	return "other"
}
