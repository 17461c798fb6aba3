package kv

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is optional Prometheus instrumentation for the five operations
// plus compaction. An Engine with a nil Metrics simply skips recording —
// the storage engine itself never listens on a socket; a caller (the CLI
// in cmd/bitkv) owns registering these with a prometheus.Registerer and
// exposing /metrics, keeping "no networked access" true of this package.
type Metrics struct {
	gets        prometheus.Counter
	sets        prometheus.Counter
	dels        prometheus.Counter
	scans       prometheus.Counter
	tombstones  prometheus.Counter
	compactions prometheus.Counter
	logBytes    prometheus.Gauge
	compactTime prometheus.Histogram
}

// NewMetrics constructs and registers the bitkv metric set on reg.
func NewMetrics(reg prometheus.Registerer, dbName string) *Metrics {
	labels := prometheus.Labels{"db": dbName}
	m := &Metrics{
		gets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitkv_get_total", Help: "Number of Get calls.", ConstLabels: labels,
		}),
		sets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitkv_set_total", Help: "Number of Set calls.", ConstLabels: labels,
		}),
		dels: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitkv_del_total", Help: "Number of Del calls.", ConstLabels: labels,
		}),
		scans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitkv_scan_total", Help: "Number of Scan calls.", ConstLabels: labels,
		}),
		tombstones: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitkv_tombstones_written_total", Help: "Number of tombstone records appended.", ConstLabels: labels,
		}),
		compactions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bitkv_compactions_total", Help: "Number of compaction passes run.", ConstLabels: labels,
		}),
		logBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bitkv_log_bytes", Help: "Size in bytes of the on-disk log file as of the last compaction.", ConstLabels: labels,
		}),
		compactTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "bitkv_compaction_duration_seconds", Help: "Wall time of a compaction pass.", ConstLabels: labels,
		}),
	}
	reg.MustRegister(m.gets, m.sets, m.dels, m.scans, m.tombstones, m.compactions, m.logBytes, m.compactTime)
	return m
}
