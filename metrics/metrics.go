/*
Prometheus counters for a migration run.

Each run gets its own registry, so several runs in one process (tests)
don't collide.  A nil *Metrics is valid and records nothing.
*/
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/lfsmigrate"
)

type Metrics struct {
	registry       *prometheus.Registry
	tasks          *prometheus.CounterVec
	extractedBytes prometheus.Counter
	uploads        *prometheus.CounterVec
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tasks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lfsmigrate_tasks_total",
			Help: "Conversion tasks completed, by task type and scheduler phase.",
		}, []string{"type", "phase"}),
		extractedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfsmigrate_extracted_bytes_total",
			Help: "Bytes of blob content moved out to LFS storage.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lfsmigrate_uploads_total",
			Help: "Remote uploads, by result.",
		}, []string{"result"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfsmigrate_hashcache_hits_total",
			Help: "Blob hashes served from the hash cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfsmigrate_hashcache_misses_total",
			Help: "Blob hashes computed from content.",
		}),
	}
	m.registry.MustRegister(m.tasks, m.extractedBytes, m.uploads, m.cacheHits, m.cacheMisses)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) TaskDone(taskType, phase string) {
	if m == nil {
		return
	}
	m.tasks.WithLabelValues(taskType, phase).Inc()
}

func (m *Metrics) Extracted(bytes int64) {
	if m == nil {
		return
	}
	m.extractedBytes.Add(float64(bytes))
}

// Upload counts one upload attempt by result ("ok" or "failed").
func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}

/*
WriteTextfile dumps the registry in the text exposition format, for
node_exporter's textfile collector.  The file is replaced atomically.
*/
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return Errorf(lfsmigrate.ErrLocalIO, "cannot write metrics file: %s", err)
	}
	return nil
}
