package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics centralizes Prometheus instrumentation for the aggregation
// pipeline.
type Metrics struct {
	registry *prometheus.Registry

	fetchResults *prometheus.CounterVec
	fetchLatency *prometheus.HistogramVec

	refreshes      *prometheus.CounterVec
	overrideActive prometheus.Gauge
	entityStatus   *prometheus.GaugeVec

	alertFeedSize prometheus.Gauge
	alertUnread   prometheus.Gauge
}

// NewMetrics builds a metrics container backed by the provided registry. If
// no registry is supplied, a new one is created.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	m := &Metrics{registry: reg}

	m.fetchResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iranblackout_source_fetches_total",
		Help: "Counts of upstream source fetches grouped by source and result",
	}, []string{"source", "result"})
	m.fetchLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "iranblackout_source_fetch_seconds",
		Help:    "Upstream fetch latency distributions",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	m.refreshes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "iranblackout_refreshes_total",
		Help: "Aggregation refresh cycles grouped by outcome (live, synthetic, failed)",
	}, []string{"outcome"})
	m.overrideActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iranblackout_major_outage_override_active",
		Help: "Whether the traffic-collapse override is currently forcing all statuses offline",
	})
	m.entityStatus = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "iranblackout_entity_status_count",
		Help: "Current number of tracked entities per kind and status",
	}, []string{"kind", "status"})

	m.alertFeedSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iranblackout_alert_feed_size",
		Help: "Number of alerts retained in the feed",
	})
	m.alertUnread = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "iranblackout_alert_feed_unread",
		Help: "Number of unread alerts in the feed",
	})

	reg.MustRegister(m.fetchResults, m.fetchLatency, m.refreshes, m.overrideActive, m.entityStatus, m.alertFeedSize, m.alertUnread)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) RecordFetch(src string, ok bool, latency time.Duration) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.fetchResults.WithLabelValues(src, result).Inc()
	m.fetchLatency.WithLabelValues(src).Observe(latency.Seconds())
}

func (m *Metrics) RecordRefresh(outcome string) {
	m.refreshes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetOverrideActive(active bool) {
	if active {
		m.overrideActive.Set(1)
		return
	}
	m.overrideActive.Set(0)
}

func (m *Metrics) SetEntityStatus(kind, status string, count int) {
	m.entityStatus.WithLabelValues(kind, status).Set(float64(count))
}

func (m *Metrics) SetAlertFeed(size, unread int) {
	m.alertFeedSize.Set(float64(size))
	m.alertUnread.Set(float64(unread))
}
