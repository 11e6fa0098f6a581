package event

import "github.com/prometheus/client_golang/prometheus"

type busMetrics struct {
	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
}

func (b *Bus) initMetrics(registry prometheus.Registerer) {
	m := &busMetrics{
		eventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_events_published_total",
				Help: "Total number of events published, by event type",
			},
			[]string{"type"},
		),
		eventsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "eventbus_events_dropped_total",
				Help: "Total number of async events dropped because the queue was full",
			},
			[]string{"type"},
		),
	}
	registry.MustRegister(m.eventsPublished, m.eventsDropped)
	b.metrics = m
}

func (m *busMetrics) published(eventType Type) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(string(eventType)).Inc()
}

func (m *busMetrics) dropped(eventType Type) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(string(eventType)).Inc()
}
