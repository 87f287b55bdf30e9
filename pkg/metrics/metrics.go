// Package metrics provides the Prometheus metrics of a formquery server.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardsdata/formquery/pkg/query"
)

// Metrics holds the collectors of one server. It implements query.Observer.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal        *prometheus.CounterVec
	QueryDuration       *prometheus.HistogramVec
	RowsReturnedTotal   *prometheus.CounterVec
	SkippedNodesTotal   *prometheus.CounterVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	RequestsInFlight    prometheus.Gauge

	RepositoryNodes     prometheus.Gauge
	RepositorySizeBytes prometheus.Gauge
	SettingsReloads     *prometheus.CounterVec
}

var _ query.Observer = (*Metrics)(nil)

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.QueriesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formquery_queries_total",
			Help: "Total number of searches by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	m.QueryDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formquery_query_duration_seconds",
			Help:    "Duration of searches in seconds, pagination included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	m.RowsReturnedTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formquery_rows_returned_total",
			Help: "Total number of rows returned in result pages",
		},
		[]string{"mode"},
	)

	m.SkippedNodesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formquery_skipped_nodes_total",
			Help: "Quick-search candidates dropped during aggregation, by reason",
		},
		[]string{"reason"},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formquery_http_requests_total",
			Help: "Total number of HTTP requests by route and status code",
		},
		[]string{"route", "code"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "formquery_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	m.RequestsInFlight = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "formquery_http_requests_in_flight",
			Help: "Number of HTTP requests being served",
		},
	)

	m.RepositoryNodes = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "formquery_repository_nodes",
			Help: "Number of nodes stored in the repository",
		},
	)

	m.RepositorySizeBytes = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "formquery_repository_size_bytes",
			Help: "Size of the repository database file in bytes",
		},
	)

	m.SettingsReloads = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "formquery_settings_reloads_total",
			Help: "Configuration reloads by outcome",
		},
		[]string{"outcome"},
	)

	return m
}

// QueryServed records one search.
func (m *Metrics) QueryServed(mode query.Mode, took time.Duration, w query.Window, err error) {
	m.QueriesTotal.WithLabelValues(mode.String(), outcome(err)).Inc()
	m.QueryDuration.WithLabelValues(mode.String()).Observe(took.Seconds())
	if err == nil {
		m.RowsReturnedTotal.WithLabelValues(mode.String()).Add(float64(w.Returned))
	}
}

func (m *Metrics) NodeSkipped(reason query.SkipReason) {
	m.SkippedNodesTotal.WithLabelValues(string(reason)).Inc()
}

// RecordHTTPRequest records a served request under its route pattern.
func (m *Metrics) RecordHTTPRequest(route string, code int, took time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(took.Seconds())
}

// UpdateRepositoryStats sets the repository gauges.
func (m *Metrics) UpdateRepositoryStats(sizeBytes int64, nodes int) {
	m.RepositorySizeBytes.Set(float64(sizeBytes))
	m.RepositoryNodes.Set(float64(nodes))
}

func (m *Metrics) SettingsReloaded(err error) {
	m.SettingsReloads.WithLabelValues(outcome(err)).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, query.ErrDecode):
		return "bad_request"
	default:
		return "error"
	}
}
