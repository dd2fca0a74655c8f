package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus collectors for the ingest pipeline and the alert bus. All are
// registered on the default registry and served from the debug mux.
var (
	IngestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "airspace",
		Subsystem: "ingest",
		Name:      "telemetry_total",
		Help:      "Telemetry reports received, by outcome.",
	}, []string{"outcome"})

	IngestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "airspace",
		Subsystem: "ingest",
		Name:      "pipeline_seconds",
		Help:      "Wall-clock duration of the full ingest pipeline.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})

	AlertsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "airspace",
		Subsystem: "alerts",
		Name:      "emitted_total",
		Help:      "New alerts created after dedup.",
	})

	AlertsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "airspace",
		Subsystem: "alerts",
		Name:      "resolved_total",
		Help:      "Alerts resolved, manually or by auto-close.",
	})

	BusDrops = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "airspace",
		Subsystem: "bus",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a subscriber channel was full.",
	})

	BusSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "airspace",
		Subsystem: "bus",
		Name:      "subscribers",
		Help:      "Currently attached bus subscribers.",
	})
)
