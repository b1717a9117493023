package cpfetch

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts chunk transfer activity on both sides of the protocol.
type Metrics struct {
	ChunksServed   prometheus.Counter
	RequestsFailed prometheus.Counter

	ChunksFetched prometheus.Counter
	FetchFailures prometheus.Counter
}

// NewMetrics returns a Metrics whose collectors are in the given namespace.
func NewMetrics(namespace string) *Metrics {
	subsystem := "fetch"

	return &Metrics{
		ChunksServed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_served",
			Help:      "Number of chunks written to requesting peers.",
		}),
		RequestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_failed",
			Help:      "Number of inbound requests that could not be served.",
		}),
		ChunksFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_fetched",
			Help:      "Number of verified chunks fetched from peers.",
		}),
		FetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "fetch_failures",
			Help:      "Number of chunk fetch attempts that failed or returned invalid chunks.",
		}),
	}
}

// Collectors returns every collector in m, for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ChunksServed,
		m.RequestsFailed,
		m.ChunksFetched,
		m.FetchFailures,
	}
}

func (m *Metrics) served() {
	if m != nil {
		m.ChunksServed.Inc()
	}
}

func (m *Metrics) requestFailed() {
	if m != nil {
		m.RequestsFailed.Inc()
	}
}

func (m *Metrics) fetched() {
	if m != nil {
		m.ChunksFetched.Inc()
	}
}

func (m *Metrics) fetchFailed() {
	if m != nil {
		m.FetchFailures.Inc()
	}
}
