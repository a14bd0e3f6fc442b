// Package ingest validates fixes from authenticated driver sessions and
// writes them through the direction inferencer, the location store, and the
// broadcaster. It also runs the liveness sweep that takes silent buses
// offline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/auth"
	"livetrack.cityline.org/internal/broadcast"
	"livetrack.cityline.org/internal/direction"
	"livetrack.cityline.org/internal/logging"
	"livetrack.cityline.org/internal/metrics"
	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/routes"
	"livetrack.cityline.org/internal/tracker"
)

const busLockCount = 32

// SessionState is a driver session's position in the
// disconnected → authenticated → online → offline lifecycle.
type SessionState int

const (
	StateDisconnected SessionState = iota
	StateAuthenticated
	StateOnline
	StateOffline
)

func (s SessionState) String() string {
	switch s {
	case StateAuthenticated:
		return "authenticated"
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "disconnected"
	}
}

// Session is an authenticated driver connection.
type Session struct {
	ID       string
	DriverID string
	BusID    string
	RouteID  string

	mu    sync.Mutex
	state SessionState
}

// State returns the session's current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// Ack reports what a fix submission did.
type Ack struct {
	Record models.BusLocationRecord
	Stale  bool
}

// ValidationError carries the per-field reasons a payload was rejected.
type ValidationError struct {
	FieldErrors map[string][]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid payload: %d field(s)", len(e.FieldErrors))
}

// Gateway is the single ingest path. Per-bus processing (prior lookup,
// inference, upsert, publish) runs under a lock keyed by bus id, so fixes
// for one bus are fully serialized while different buses proceed in
// parallel, and publish order matches commit order per bus.
type Gateway struct {
	config      appconf.TrackingConfig
	logger      *slog.Logger
	store       *tracker.Store
	routes      routes.Provider
	inferencer  *direction.Inferencer
	broadcaster *broadcast.Broadcaster
	resolver    auth.Resolver
	metrics     *metrics.Collector
	validate    *validator.Validate

	busLocks [busLockCount]sync.Mutex

	sessionMu sync.Mutex
	sessions  map[string]*Session // keyed by driver session key

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewGateway(
	config appconf.TrackingConfig,
	logger *slog.Logger,
	store *tracker.Store,
	routeProvider routes.Provider,
	broadcaster *broadcast.Broadcaster,
	resolver auth.Resolver,
	collector *metrics.Collector,
) *Gateway {
	inferencer := direction.NewInferencer()
	inferencer.NoiseThresholdMeters = config.NoiseThresholdMeters
	if window := config.RecencyWindow(); window > 0 {
		inferencer.RecencyWindow = window
	}

	return &Gateway{
		config:       config,
		logger:       logger,
		store:        store,
		routes:       routeProvider,
		inferencer:   inferencer,
		broadcaster:  broadcaster,
		resolver:     resolver,
		metrics:      collector,
		validate:     validator.New(),
		sessions:     make(map[string]*Session),
		shutdownChan: make(chan struct{}),
	}
}

// Authenticate resolves a driver session key to its session, creating one
// on first use. Unknown keys fail with models.ErrUnauthorized before any
// state is touched.
func (g *Gateway) Authenticate(ctx context.Context, sessionKey string) (*Session, error) {
	g.sessionMu.Lock()
	if sess, ok := g.sessions[sessionKey]; ok {
		g.sessionMu.Unlock()
		return sess, nil
	}
	g.sessionMu.Unlock()

	identity, err := g.resolver.ResolveDriver(ctx, sessionKey)
	if err != nil {
		return nil, err
	}

	g.sessionMu.Lock()
	defer g.sessionMu.Unlock()
	if sess, ok := g.sessions[sessionKey]; ok {
		return sess, nil
	}

	sess := &Session{
		ID:       uuid.NewString(),
		DriverID: identity.DriverID,
		BusID:    identity.BusID,
		RouteID:  identity.RouteID,
		state:    StateAuthenticated,
	}
	g.sessions[sessionKey] = sess

	logging.LogOperation(g.logger, "driver_session_authenticated",
		slog.String("session_id", sess.ID),
		slog.String("bus_id", sess.BusID))
	return sess, nil
}

// SubmitFix runs the full ingest pipeline for one fix. A validation or
// authorization failure returns the reason and mutates nothing.
func (g *Gateway) SubmitFix(ctx context.Context, sess *Session, fix models.Fix) (Ack, error) {
	if err := g.validateFix(fix); err != nil {
		g.countRejected("validation")
		return Ack{}, err
	}
	if fix.BusID != sess.BusID {
		g.countRejected("unauthorized")
		return Ack{}, fmt.Errorf("%w: session for bus %s cannot ingest for bus %s",
			models.ErrUnauthorized, sess.BusID, fix.BusID)
	}

	lock := g.busLockFor(fix.BusID)
	lock.Lock()
	defer lock.Unlock()

	prior, priorErr := g.store.Get(fix.BusID)

	inferred := g.inferDirection(ctx, sess.RouteID, fix, prior, priorErr == nil)

	rec := models.NewBusLocationRecord(fix.BusID, sess.RouteID, sess.ID, fix, inferred)
	result, err := g.store.Upsert(ctx, rec)
	if err != nil {
		g.countRejected("invalid_fix")
		return Ack{}, err
	}

	sess.setState(StateOnline)
	g.broadcaster.Publish(models.NewLocationUpdatedEvent(result.Record, result.Stale))

	// A fix can bring a bus online without an explicit toggle; refresh the
	// gauge on that transition so it does not wait for the next sweep.
	if priorErr != nil || !prior.Online {
		g.updateOnlineGauge()
	}

	if g.metrics != nil {
		g.metrics.FixesAccepted.WithLabelValues(string(inferred)).Inc()
		if result.Stale {
			g.metrics.FixesStale.Inc()
		}
	}

	return Ack{Record: result.Record, Stale: result.Stale}, nil
}

// SetOnline applies an explicit online/offline toggle for the session's bus.
func (g *Gateway) SetOnline(ctx context.Context, sess *Session, online bool) (models.BusLocationRecord, error) {
	lock := g.busLockFor(sess.BusID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := g.store.SetOnline(ctx, sess.BusID, sess.RouteID, online)
	if err != nil {
		return models.BusLocationRecord{}, err
	}

	if online {
		sess.setState(StateOnline)
	} else {
		sess.setState(StateOffline)
	}

	g.broadcaster.Publish(models.NewStatusChangedEvent(rec.BusID, rec.RouteID, online, time.Now()))
	g.updateOnlineGauge()
	return rec, nil
}

// StartLivenessSweep launches the periodic task that takes buses offline
// when no fix has arrived within the liveness timeout. The transition is
// detected by the sweep, not by the absence of an event; it never blocks
// the ingest or query paths.
func (g *Gateway) StartLivenessSweep() {
	interval := g.config.SweepInterval()
	timeout := g.config.LivenessTimeout()
	if interval <= 0 || timeout <= 0 {
		return
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				g.sweepOnce(time.Now(), timeout)
			case <-g.shutdownChan:
				return
			}
		}
	}()
}

// Shutdown stops the liveness sweep and waits for it.
func (g *Gateway) Shutdown() {
	g.shutdownOnce.Do(func() {
		close(g.shutdownChan)
		g.wg.Wait()
	})
}

func (g *Gateway) sweepOnce(now time.Time, timeout time.Duration) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	transitioned := g.store.MarkStaleSessions(ctx, now.Add(-timeout))
	for _, rec := range transitioned {
		g.broadcaster.Publish(models.NewStatusChangedEvent(rec.BusID, rec.RouteID, false, now))
		g.markSessionOffline(rec.BusID)
	}

	if len(transitioned) > 0 {
		logging.LogOperation(g.logger, "liveness_sweep",
			slog.Int("marked_offline", len(transitioned)),
			slog.Duration("duration", time.Since(start)))
	}

	g.updateOnlineGauge()
	if g.metrics != nil {
		g.metrics.SweepDuration.Observe(time.Since(start).Seconds())
	}
}

// inferDirection resolves the route path and runs the inferencer. Geometry
// problems degrade to unknown rather than failing the fix.
func (g *Gateway) inferDirection(ctx context.Context, routeID string, fix models.Fix, prior models.BusLocationRecord, hasPrior bool) models.Direction {
	path, err := g.routes.RoutePath(ctx, routeID)
	if err != nil {
		if !errors.Is(err, routes.ErrRouteNotFound) {
			logging.LogError(g.logger, "route path lookup failed", err,
				slog.String("route_id", routeID),
				slog.String("component", "ingest"))
		}
		return models.DirectionUnknown
	}

	var priorFix *models.Fix
	priorDirection := models.DirectionUnknown
	if hasPrior {
		priorFix = &models.Fix{
			BusID:     prior.BusID,
			Point:     prior.Point,
			Timestamp: prior.LastFixTime,
		}
		priorDirection = prior.Direction
	}

	return g.inferencer.Infer(fix, priorFix, priorDirection, path)
}

func (g *Gateway) validateFix(fix models.Fix) error {
	fieldErrors := make(map[string][]string)

	if err := g.validate.Struct(fix); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			for _, fe := range invalid {
				field := fe.Field()
				fieldErrors[field] = append(fieldErrors[field],
					fmt.Sprintf("failed %q validation", fe.Tag()))
			}
		} else {
			fieldErrors["payload"] = []string{err.Error()}
		}
	}

	if fix.Point.Lat < -90 || fix.Point.Lat > 90 {
		fieldErrors["point.lat"] = append(fieldErrors["point.lat"], "must be between -90 and 90")
	}
	if fix.Point.Lon < -180 || fix.Point.Lon > 180 {
		fieldErrors["point.lon"] = append(fieldErrors["point.lon"], "must be between -180 and 180")
	}

	if len(fieldErrors) > 0 {
		return &ValidationError{FieldErrors: fieldErrors}
	}
	return nil
}

func (g *Gateway) busLockFor(busID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(busID))
	return &g.busLocks[h.Sum32()%busLockCount]
}

func (g *Gateway) markSessionOffline(busID string) {
	g.sessionMu.Lock()
	defer g.sessionMu.Unlock()
	for _, sess := range g.sessions {
		if sess.BusID == busID {
			sess.setState(StateOffline)
		}
	}
}

func (g *Gateway) countRejected(reason string) {
	if g.metrics != nil {
		g.metrics.FixesRejected.WithLabelValues(reason).Inc()
	}
}

func (g *Gateway) updateOnlineGauge() {
	if g.metrics == nil {
		return
	}
	online := g.store.GetAll(tracker.Filter{OnlineOnly: true})
	g.metrics.OnlineBuses.Set(float64(len(online)))
}
