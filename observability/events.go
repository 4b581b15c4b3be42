package observability

import (
	"context"
	"strings"
	"sync"

	"liquidstake/core/events"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type eventMetrics struct {
	emitted *prometheus.CounterVec

	// emittedOTel mirrors emitted for the OTLP exporter.
	emittedOTel metric.Int64Counter
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking emitted pool events. It
// satisfies events.Emitter so it can sit alongside other sinks.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lstake",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of emitted events segmented by type.",
			}, []string{"type"}),
		}
		prometheus.MustRegister(eventRegistry.emitted)
		eventRegistry.emittedOTel = eventCounter()
	})
	return eventRegistry
}

// Emit increments the counter for the event's type.
func (m *eventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	kind := strings.TrimSpace(evt.EventType())
	if kind == "" {
		kind = "unknown"
	}
	m.emitted.WithLabelValues(kind).Inc()
	m.emittedOTel.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", kind)))
}

// eventCounter is created against the global provider, which forwards to the
// OTLP provider once telemetry is initialised.
func eventCounter() metric.Int64Counter {
	counter, err := otel.GetMeterProvider().Meter("liquidstake/events").Int64Counter("lstake.events.emitted")
	if err != nil {
		counter, _ = noop.NewMeterProvider().Meter("liquidstake/events").Int64Counter("lstake.events.emitted")
	}
	return counter
}
