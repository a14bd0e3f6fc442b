package app

import (
	"log/slog"

	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/broadcast"
	"livetrack.cityline.org/internal/ingest"
	"livetrack.cityline.org/internal/metrics"
	"livetrack.cityline.org/internal/proximity"
	"livetrack.cityline.org/internal/routes"
	"livetrack.cityline.org/internal/tracker"
)

// Application holds the dependencies for our HTTP handlers, helpers, and
// middleware. Handlers reach everything through this struct rather than
// package globals.
type Application struct {
	Config      appconf.Config
	Tracking    appconf.TrackingConfig
	Logger      *slog.Logger
	Store       *tracker.Store
	Gateway     *ingest.Gateway
	Broadcaster *broadcast.Broadcaster
	Searcher    proximity.Searcher
	Routes      routes.Provider
	Metrics     *metrics.Collector
}
