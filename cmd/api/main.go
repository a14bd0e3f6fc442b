package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"livetrack.cityline.org/internal/app"
	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/auth"
	"livetrack.cityline.org/internal/broadcast"
	"livetrack.cityline.org/internal/ingest"
	"livetrack.cityline.org/internal/logging"
	"livetrack.cityline.org/internal/metrics"
	"livetrack.cityline.org/internal/proximity"
	"livetrack.cityline.org/internal/restapi"
	"livetrack.cityline.org/internal/routes"
	"livetrack.cityline.org/internal/tracker"
	"livetrack.cityline.org/internal/tracker/trackdb"
)

func main() {
	// Optional .env file for local development; flags still win.
	_ = godotenv.Load()

	var (
		port         = flag.Int("port", envInt("PORT", 4000), "API server port")
		env          = flag.String("env", envString("ENV", "development"), "Environment (development|test|production)")
		apiKeysFlag  = flag.String("api-keys", envString("API_KEYS", "test"), "Comma separated rider API keys")
		driverKeys   = flag.String("driver-keys", envString("DRIVER_KEYS", ""), "Comma separated driver credentials, each key=driverID:busID:routeID")
		rateLimit    = flag.Int("rate-limit", envInt("RATE_LIMIT", 100), "Requests per second per API key")
		trackingPath = flag.String("tracking-config", envString("TRACKING_CONFIG", ""), "Path to tracking YAML config (defaults apply when empty)")
		dbPath       = flag.String("db-path", envString("DB_PATH", ""), "SQLite path for durable location state (empty disables persistence)")
		gtfsSource   = flag.String("gtfs-source", envString("GTFS_SOURCE", ""), "URL or file path of a static GTFS zip for route geometry")
		natsURL      = flag.String("nats-url", envString("NATS_URL", ""), "NATS server URL for the event bridge (empty disables)")
		metricsAddr  = flag.String("metrics-addr", envString("METRICS_ADDR", ""), "Listen address for Prometheus metrics (empty disables)")
		verbose      = flag.Bool("verbose", false, "Verbose database logging")
	)
	flag.Parse()

	logger := logging.NewStructuredLogger(os.Stdout, logLevel(*env))

	cfg := appconf.Config{
		Port:      *port,
		Env:       appconf.EnvFlagToEnvironment(*env),
		ApiKeys:   splitAndTrim(*apiKeysFlag),
		RateLimit: *rateLimit,
	}

	tracking := appconf.DefaultTrackingConfig()
	if *trackingPath != "" {
		loaded, err := appconf.LoadTrackingConfig(*trackingPath)
		if err != nil {
			logger.Error("failed to load tracking config", "error", err, "path", *trackingPath)
			os.Exit(1)
		}
		tracking = loaded
	}

	collector := metrics.NewCollector()

	store := tracker.NewStore(tracking, logger)

	var dbClient *trackdb.Client
	if *dbPath != "" {
		client, err := trackdb.NewClient(trackdb.NewConfig(*dbPath, cfg.Env, *verbose))
		if err != nil {
			logger.Error("failed to open tracking database", "error", err, "path", *dbPath)
			os.Exit(1)
		}
		dbClient = client
		store.SetDurable(client)

		if err := store.WarmStart(context.Background()); err != nil {
			logger.Error("failed to warm-start from tracking database", "error", err)
			os.Exit(1)
		}
	}
	store.StartRetentionSweep()

	var routeProvider routes.Provider = routes.NewStaticProvider()
	if *gtfsSource != "" {
		gtfsProvider, err := routes.NewGTFSProvider(*gtfsSource)
		if err != nil {
			logger.Error("failed to load GTFS route geometry", "error", err, "source", *gtfsSource)
			os.Exit(1)
		}
		routeProvider = routes.NewCachingProvider(gtfsProvider, 256, time.Hour)
	}

	broadcaster := broadcast.NewBroadcaster(logger)
	broadcaster.SetMetrics(collector)

	var natsBridge *broadcast.NATSBridge
	if *natsURL != "" {
		bridge, err := broadcast.NewNATSBridge(*natsURL, logger, collector)
		if err != nil {
			logger.Error("failed to connect to NATS", "error", err, "url", *natsURL)
			os.Exit(1)
		}
		natsBridge = bridge
		broadcaster.SetBridge(bridge)
	}

	resolver := auth.NewStaticResolver()
	if err := loadDriverKeys(resolver, *driverKeys); err != nil {
		logger.Error("invalid driver-keys value", "error", err)
		os.Exit(1)
	}

	gateway := ingest.NewGateway(tracking, logger, store, routeProvider, broadcaster, resolver, collector)
	gateway.StartLivenessSweep()

	application := &app.Application{
		Config:      cfg,
		Tracking:    tracking,
		Logger:      logger,
		Store:       store,
		Gateway:     gateway,
		Broadcaster: broadcaster,
		Searcher:    proximity.NewIndex(store),
		Routes:      routeProvider,
		Metrics:     collector,
	}

	var metricsSrv *http.Server
	if *metricsAddr != "" {
		metricsSrv = collector.Serve(*metricsAddr, logger)
	}

	api := restapi.NewRestAPI(application)

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     api.Routes(),
		IdleTimeout: time.Minute,
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: the SSE stream holds its connection open
		// indefinitely and a write deadline would sever it.
		ErrorLog: newServerErrorLog(logger),
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env.String())
		serverErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		logger.Error("server failed", "error", err)
		os.Exit(1)
	case <-ctx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Error("server shutdown failed", "error", err)
	}
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}

	gateway.Shutdown()
	store.Shutdown()

	if natsBridge != nil {
		natsBridge.Close()
	}
	if dbClient != nil {
		logging.SafeCloseWithLogging(dbClient, logger, "tracking database")
	}

	logger.Info("shutdown complete")
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// loadDriverKeys parses entries of the form key=driverID:busID:routeID.
func loadDriverKeys(resolver *auth.StaticResolver, raw string) error {
	for _, entry := range splitAndTrim(raw) {
		key, identity, found := strings.Cut(entry, "=")
		if !found {
			return fmt.Errorf("missing '=' in %q", entry)
		}

		fields := strings.Split(identity, ":")
		if len(fields) != 3 {
			return fmt.Errorf("expected driverID:busID:routeID in %q", entry)
		}

		resolver.AddDriver(key, auth.DriverIdentity{
			DriverID: fields[0],
			BusID:    fields[1],
			RouteID:  fields[2],
		})
	}
	return nil
}

func logLevel(env string) slog.Level {
	if appconf.EnvFlagToEnvironment(env) == appconf.Production {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func newServerErrorLog(logger *slog.Logger) *log.Logger {
	return slog.NewLogLogger(logger.Handler(), slog.LevelError)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
