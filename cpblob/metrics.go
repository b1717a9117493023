package cpblob

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts reassembly activity.
// A single Metrics value may be shared by many reassemblers.
type Metrics struct {
	ChunksAccepted  prometheus.Counter
	ChunksRejected  prometheus.Counter
	ChunksDuplicate prometheus.Counter
	BlobsCompleted  prometheus.Counter
}

// NewMetrics returns a Metrics whose collectors are in the given namespace.
// The collectors are not registered; see [Metrics.Collectors].
func NewMetrics(namespace string) *Metrics {
	subsystem := "blob"

	return &Metrics{
		ChunksAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_accepted",
			Help:      "Number of verified chunks copied into a blob.",
		}),
		ChunksRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_rejected",
			Help:      "Number of chunks that failed verification or shape checks.",
		}),
		ChunksDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_duplicate",
			Help:      "Number of chunks received for an index already held.",
		}),
		BlobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "blobs_completed",
			Help:      "Number of blobs fully reassembled.",
		}),
	}
}

// Collectors returns every collector in m, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ChunksAccepted,
		m.ChunksRejected,
		m.ChunksDuplicate,
		m.BlobsCompleted,
	}
}

// The helpers below are no-ops on a nil receiver,
// so that Metrics is optional in configs.

func (m *Metrics) accepted() {
	if m != nil {
		m.ChunksAccepted.Inc()
	}
}

func (m *Metrics) rejected() {
	if m != nil {
		m.ChunksRejected.Inc()
	}
}

func (m *Metrics) duplicate() {
	if m != nil {
		m.ChunksDuplicate.Inc()
	}
}

func (m *Metrics) completed() {
	if m != nil {
		m.BlobsCompleted.Inc()
	}
}
