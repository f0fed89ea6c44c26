package coordinator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are registered on the given registerer; a nil registerer keeps
// them unregistered, which is what tests use.
type Metrics struct {
	lines       *prometheus.CounterVec
	infoDropped prometheus.Counter
	stale       prometheus.Counter
	completions *prometheus.CounterVec
	requests    *prometheus.CounterVec
	refused     *prometheus.CounterVec
	panics      prometheus.Counter
	searchTime  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		lines: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "engine_lines_total",
			Help:      "Engine output lines by parsed kind.",
		}, []string{"kind"}),
		infoDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "info_dropped_total",
			Help:      "Info lines dropped while another update was in progress.",
		}),
		stale: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "stale_messages_total",
			Help:      "Engine messages whose node no longer resolves.",
		}),
		completions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "completions_total",
			Help:      "Bestmove completions by route.",
		}, []string{"route"}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "requests_total",
			Help:      "Evaluation requests sent to the engine by mode.",
		}, []string{"mode"}),
		refused: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "requests_refused_total",
			Help:      "Evaluation requests refused before reaching the engine.",
		}, []string{"reason"}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Namespace: "evalcoord",
			Name:      "handler_panics_total",
			Help:      "Recovered panics while handling engine lines.",
		}),
		searchTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "evalcoord",
			Name:      "search_seconds",
			Help:      "Time from request to completion of a search.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}
}
