package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// IndexMetrics captures gallery index refreshes.
type IndexMetrics interface {
	ObserveRefresh(status string, durationSeconds float64)
	SetExtensions(count int)
}

// GatewayMetrics captures request metrics for the HTTP gateway.
type GatewayMetrics interface {
	ObserveRequest(method, route, status string, durationSeconds float64)
	IncQuery(sortBy string, fallback bool)
	IncUpdateCheck(result string)
}

// SyncMetrics captures mirror sync activity.
type SyncMetrics interface {
	IncDownload(kind, status string)
	AddBytes(kind string, n int64)
}

// Noop implements every interface without emitting anything.
type Noop struct{}

func (Noop) ObserveRefresh(string, float64)                 {}
func (Noop) SetExtensions(int)                              {}
func (Noop) ObserveRequest(string, string, string, float64) {}
func (Noop) IncQuery(string, bool)                          {}
func (Noop) IncUpdateCheck(string)                          {}
func (Noop) IncDownload(string, string)                     {}
func (Noop) AddBytes(string, int64)                         {}

// Prom implements the interfaces backed by Prometheus collectors.
type Prom struct {
	refreshes    *prometheus.HistogramVec
	extensions   prometheus.Gauge
	requests     *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	queries      *prometheus.CounterVec
	updateChecks *prometheus.CounterVec
	downloads    *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	once         sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		refreshes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "index_refresh_duration_seconds",
			Help:      "Gallery index refresh duration by status",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		extensions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "index_extensions",
			Help:      "Extensions in the current gallery snapshot",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gallery_queries_total",
			Help:      "Gallery queries by sort key and whether the recommended fallback answered",
		}, []string{"sort_by", "fallback"}),
		updateChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_checks_total",
			Help:      "Update checks by result",
		}, []string{"result"}),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_downloads_total",
			Help:      "Mirror downloads by kind and status",
		}, []string{"kind", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_bytes_total",
			Help:      "Bytes mirrored by kind",
		}, []string{"kind"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(p.refreshes, p.extensions, p.requests, p.latency,
			p.queries, p.updateChecks, p.downloads, p.bytes)
	})
}

func (p *Prom) ObserveRefresh(status string, durationSeconds float64) {
	p.refreshes.WithLabelValues(status).Observe(durationSeconds)
}

func (p *Prom) SetExtensions(count int) {
	p.extensions.Set(float64(count))
}

func (p *Prom) ObserveRequest(method, route, status string, durationSeconds float64) {
	p.requests.WithLabelValues(method, route, status).Inc()
	p.latency.WithLabelValues(method, route).Observe(durationSeconds)
}

func (p *Prom) IncQuery(sortBy string, fallback bool) {
	label := "false"
	if fallback {
		label = "true"
	}
	p.queries.WithLabelValues(sortBy, label).Inc()
}

func (p *Prom) IncUpdateCheck(result string) {
	p.updateChecks.WithLabelValues(result).Inc()
}

func (p *Prom) IncDownload(kind, status string) {
	p.downloads.WithLabelValues(kind, status).Inc()
}

func (p *Prom) AddBytes(kind string, n int64) {
	if n <= 0 {
		return
	}
	p.bytes.WithLabelValues(kind).Add(float64(n))
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
