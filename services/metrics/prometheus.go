// Package metricsvc exposes the app metrics to Prometheus.
package metricsvc

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/trezcool/huddle/core/diag"
	"github.com/trezcool/huddle/core/push"
	"github.com/trezcool/huddle/core/video"
)

const namespace = "huddle"

type Prometheus struct {
	pushDeliveries *prometheus.CounterVec
	videoSyncs     *prometheus.CounterVec
	videoSyncItems *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

var (
	_ push.Metrics      = (*Prometheus)(nil)
	_ video.SyncMetrics = (*Prometheus)(nil)
)

// NewPrometheus registers the app collectors on reg. clients, when set, backs the live websocket gauge.
func NewPrometheus(reg prometheus.Registerer, clients diag.ClientCounter) *Prometheus {
	factory := promauto.With(reg)
	m := &Prometheus{
		pushDeliveries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "push",
			Name:      "deliveries_total",
			Help:      "Push notification deliveries by result.",
		}, []string{"result"}),
		videoSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "syncs_total",
			Help:      "Channel syncs by status.",
		}, []string{"status"}),
		videoSyncItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "video",
			Name:      "sync_items_total",
			Help:      "Videos seen by channel syncs, by outcome.",
		}, []string{"outcome"}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latencies.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if clients != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "chat",
			Name:      "live_clients",
			Help:      "Open websocket connections.",
		}, func() float64 { return float64(clients.Clients()) })
	}
	return m
}

func (m *Prometheus) RecordDelivery(result string) {
	m.pushDeliveries.WithLabelValues(result).Inc()
}

func (m *Prometheus) RecordSync(res video.SyncResult, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.videoSyncs.WithLabelValues(status).Inc()
	m.videoSyncItems.WithLabelValues("created").Add(float64(res.Created))
	m.videoSyncItems.WithLabelValues("updated").Add(float64(res.Updated))
	m.videoSyncItems.WithLabelValues("skipped").Add(float64(res.Skipped))
}

// ObserveHTTP records a served request; route is the registered path, not the raw URL.
func (m *Prometheus) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
