// Package metrics exposes run counters in Prometheus format.
package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "agnvar"

// Metrics holds the collectors of one run. Each instance owns a private
// registry so tests and repeated runs never collide.
type Metrics struct {
	Registry *prometheus.Registry

	Chunks      *prometheus.CounterVec
	RowsRead    prometheus.Counter
	RowsJoined  prometheus.Counter
	RowsDropped prometheus.Counter
	BytesSaved  prometheus.Counter
	ChunkTime   prometheus.Histogram
}

// New registers the run collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_total",
			Help:      "Chunks processed, by outcome.",
		}, []string{"status"}),
		RowsRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_read_total",
			Help:      "AGN parameter rows read from the source database.",
		}),
		RowsJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_joined_total",
			Help:      "Rows surviving the catalog join.",
		}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_dropped_total",
			Help:      "AGN rows without a catalog match.",
		}),
		BytesSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downcast_bytes_saved_total",
			Help:      "Bytes released by numeric downcasting.",
		}),
		ChunkTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Wall time to process one chunk.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
	}
	m.Registry.MustRegister(m.Chunks, m.RowsRead, m.RowsJoined, m.RowsDropped, m.BytesSaved, m.ChunkTime)
	return m
}

// ObserveChunk records the outcome of one chunk.
func (m *Metrics) ObserveChunk(status string, read, joined int, saved int64, seconds float64) {
	m.Chunks.WithLabelValues(status).Inc()
	m.RowsRead.Add(float64(read))
	m.RowsJoined.Add(float64(joined))
	if read > joined {
		m.RowsDropped.Add(float64(read - joined))
	}
	if saved > 0 {
		m.BytesSaved.Add(float64(saved))
	}
	m.ChunkTime.Observe(seconds)
}

// Handler serves the registry on a scrape endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
