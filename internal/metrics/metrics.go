// Package metrics exposes the service's Prometheus collectors and the
// /metrics endpoint.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"livetrack.cityline.org/internal/logging"
)

type Collector struct {
	reg *prometheus.Registry

	FixesAccepted *prometheus.CounterVec // direction label
	FixesRejected *prometheus.CounterVec // reason label: invalid_fix|unauthorized|validation
	FixesStale    prometheus.Counter

	OnlineBuses    prometheus.Gauge
	StreamSessions prometheus.Gauge

	EventsPublished prometheus.Counter
	EventsDropped   prometheus.Counter
	NATSConnected   prometheus.Gauge

	SweepDuration prometheus.Histogram
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		FixesAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livetrack_fixes_accepted_total",
			Help: "Total GPS fixes accepted into the location store.",
		}, []string{"direction"}),
		FixesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livetrack_fixes_rejected_total",
			Help: "Total GPS fixes rejected before any store mutation.",
		}, []string{"reason"}),
		FixesStale: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_fixes_stale_total",
			Help: "Total fixes accepted out of chronological order.",
		}),
		OnlineBuses: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrack_online_buses",
			Help: "Number of buses currently online.",
		}),
		StreamSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrack_stream_sessions",
			Help: "Number of live stream sessions.",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_events_published_total",
			Help: "Total events handed to the broadcaster.",
		}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "livetrack_events_dropped_total",
			Help: "Total per-session deliveries dropped due to slow consumers.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "livetrack_nats_connected",
			Help: "1 if the NATS bridge connection is established, 0 otherwise.",
		}),
		SweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "livetrack_sweep_duration_seconds",
			Help:    "Duration of liveness sweep passes.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
	}

	reg.MustRegister(
		c.FixesAccepted, c.FixesRejected, c.FixesStale,
		c.OnlineBuses, c.StreamSessions,
		c.EventsPublished, c.EventsDropped, c.NATSConnected,
		c.SweepDuration,
	)

	return c
}

// EventPublishedInc implements broadcast.Metrics.
func (c *Collector) EventPublishedInc() { c.EventsPublished.Inc() }

// EventDroppedInc implements broadcast.Metrics.
func (c *Collector) EventDroppedInc() { c.EventsDropped.Inc() }

// SessionsSet implements broadcast.Metrics.
func (c *Collector) SessionsSet(n int) { c.StreamSessions.Set(float64(n)) }

// NATSSetConnected implements broadcast.ConnectionMetrics.
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.LogError(logger, "metrics server error", err,
				slog.String("component", "metrics"))
		}
	}()

	logging.LogOperation(logger, "metrics_listening", slog.String("addr", addr))
	return srv
}
