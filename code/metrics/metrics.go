// Package metrics holds the Prometheus collectors of one session. A nil *Metrics is valid and
// records nothing, so components can be built without a registry in tests.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "quacklytics"

type Metrics struct {
	Registry *prometheus.Registry

	downloads     *prometheus.CounterVec
	skipped       prometheus.Counter
	imports       *prometheus.CounterVec
	importedRows  prometheus.Counter
	queryDuration prometheus.Histogram
	liveEvents    prometheus.Counter
	droppedPoints prometheus.Counter
}

// New creates the collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "downloads_total",
			Help:      "Partition downloads by result.",
		}, []string{"result"}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "skipped_files_total",
			Help:      "Catalog entries skipped because their name is not a partition name.",
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "imports_total",
			Help:      "Engine imports by kind (parquet, events) and result.",
		}, []string{"kind", "result"}),
		importedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "imported_rows_total",
			Help:      "Rows inserted by Parquet and raw event imports.",
		}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "query_duration_seconds",
			Help:      "Query execution latency.",
			Buckets:   prometheus.DefBuckets,
		}),
		liveEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "events_total",
			Help:      "Events received from the recent-events endpoint.",
		}),
		droppedPoints: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chart",
			Name:      "dropped_points_total",
			Help:      "Series points that matched no bucket boundary.",
		}),
	}
	m.Registry.MustRegister(m.downloads, m.skipped, m.imports, m.importedRows, m.queryDuration, m.liveEvents, m.droppedPoints)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveDownload(ok bool) {
	if m == nil {
		return
	}
	m.downloads.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) ObserveSkipped(n int) {
	if m == nil {
		return
	}
	m.skipped.Add(float64(n))
}

func (m *Metrics) ObserveImport(kind string, ok bool) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(kind, result(ok)).Inc()
}

func (m *Metrics) ObserveImportedRows(n int) {
	if m == nil {
		return
	}
	m.importedRows.Add(float64(n))
}

func (m *Metrics) ObserveQuery(d time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLiveEvents(n int) {
	if m == nil {
		return
	}
	m.liveEvents.Add(float64(n))
}

func (m *Metrics) ObserveDroppedPoints(n int) {
	if m == nil {
		return
	}
	m.droppedPoints.Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}
