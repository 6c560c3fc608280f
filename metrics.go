package fieldz

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts JSONLayer activity. A nil *Metrics records nothing.
type Metrics struct {
	SpansCreated  prometheus.Counter
	SpansReleased prometheus.Counter
	Records       prometheus.Counter
	EventsEmitted prometheus.Counter
	SinkErrors    prometheus.Counter
}

// NewMetrics registers the counters with reg under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_created_total",
			Help:      "Spans attached to the registry",
		}),
		SpansReleased: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_released_total",
			Help:      "Spans released from the registry",
		}),
		Records: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "span_records_total",
			Help:      "Field record calls merged into spans",
		}),
		EventsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_emitted_total",
			Help:      "Event documents written to the sink",
		}),
		SinkErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Documents the sink failed to write",
		}),
	}
}

func (m *Metrics) spanCreated() {
	if m != nil {
		m.SpansCreated.Inc()
	}
}

func (m *Metrics) spanReleased() {
	if m != nil {
		m.SpansReleased.Inc()
	}
}

func (m *Metrics) recorded() {
	if m != nil {
		m.Records.Inc()
	}
}

func (m *Metrics) emitted() {
	if m != nil {
		m.EventsEmitted.Inc()
	}
}

func (m *Metrics) sinkError() {
	if m != nil {
		m.SinkErrors.Inc()
	}
}
