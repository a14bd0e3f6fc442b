// Package tracker owns the authoritative per-bus location state: the
// current-record table and each bus's append-only history trail. All
// mutation flows through the Store; the proximity index and the broadcaster
// only read from it.
package tracker

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/geo"
	"livetrack.cityline.org/internal/logging"
	"livetrack.cityline.org/internal/models"
)

const shardCount = 32

// DurableBackend is the optional persistence layer behind the in-memory
// state. Writes to it are retried a bounded number of times; on persistent
// failure the live view stays available and a degraded-mode warning is
// logged.
type DurableBackend interface {
	UpsertCurrent(ctx context.Context, rec models.BusLocationRecord) error
	AppendHistory(ctx context.Context, entry models.LocationHistoryEntry) error
	DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error)
	TrimHistory(ctx context.Context, busID string, maxEntries int) (int64, error)
	LoadCurrent(ctx context.Context) ([]models.BusLocationRecord, error)
	HistorySince(ctx context.Context, busID string, since time.Time) ([]models.LocationHistoryEntry, error)
}

// Filter constrains GetAll results. Zero values match everything.
type Filter struct {
	RouteID    string
	Direction  models.Direction
	OnlineOnly bool
}

// UpsertResult reports what an upsert did.
type UpsertResult struct {
	Record models.BusLocationRecord
	// Stale is set when the accepted fix carries an earlier timestamp than
	// the record it replaced (out-of-order network delivery). The fix is
	// still committed; rejecting it risks losing the only signal for a bus.
	Stale           bool
	HistoryAppended bool
}

type busState struct {
	record  models.BusLocationRecord
	history []models.LocationHistoryEntry
}

type shard struct {
	mu    sync.RWMutex
	buses map[string]*busState
}

// Store holds current locations and history trails behind sharded per-bus
// locks, so concurrent upserts for different buses proceed independently
// while upserts for the same bus are linearized by arrival order.
//
// Cross-bus reads (GetAll and the proximity scans built on it) lock one
// shard at a time: a bus updated mid-scan may or may not be reflected.
// That momentary staleness is accepted behavior, not a bug.
type Store struct {
	config appconf.TrackingConfig
	logger *slog.Logger
	shards [shardCount]shard

	durable DurableBackend

	shutdownChan chan struct{}
	wg           sync.WaitGroup
	shutdownOnce sync.Once
}

func NewStore(config appconf.TrackingConfig, logger *slog.Logger) *Store {
	s := &Store{
		config:       config,
		logger:       logger,
		shutdownChan: make(chan struct{}),
	}
	for i := range s.shards {
		s.shards[i].buses = make(map[string]*busState)
	}
	return s
}

// SetDurable attaches a persistence backend. Call before the store starts
// receiving traffic.
func (s *Store) SetDurable(backend DurableBackend) {
	s.durable = backend
}

// WarmStart loads the durable current-state table and each bus's history
// trail into memory, typically right after startup so the live view and
// the history endpoint survive restarts.
func (s *Store) WarmStart(ctx context.Context) error {
	if s.durable == nil {
		return nil
	}

	records, err := s.durable.LoadCurrent(ctx)
	if err != nil {
		return err
	}

	since := time.Time{}
	if window := s.config.RetentionWindow(); window > 0 {
		since = time.Now().Add(-window)
	}

	var restored int
	for _, rec := range records {
		history, err := s.durable.HistorySince(ctx, rec.BusID, since)
		if err != nil {
			logging.LogError(s.logger, "durable history load failed, trail starts empty", err,
				slog.String("bus_id", rec.BusID),
				slog.String("component", "tracker"))
			history = nil
		}
		if maxEntries := s.config.MaxHistoryPerBus; maxEntries > 0 && len(history) > maxEntries {
			history = history[len(history)-maxEntries:]
		}
		restored += len(history)

		sh := s.shardFor(rec.BusID)
		sh.mu.Lock()
		sh.buses[rec.BusID] = &busState{record: rec, history: history}
		sh.mu.Unlock()
	}

	logging.LogOperation(s.logger, "store_warm_start",
		slog.Int("records", len(records)),
		slog.Int("history_entries", restored))
	return nil
}

// StartRetentionSweep launches the periodic history-retention task. It runs
// until Shutdown and never blocks ingest or query paths.
func (s *Store) StartRetentionSweep() {
	interval := s.config.SweepInterval()
	if interval <= 0 {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.sweepHistory(time.Now())
			case <-s.shutdownChan:
				return
			}
		}
	}()
}

// Shutdown stops background tasks and waits for them to finish.
func (s *Store) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownChan)
		s.wg.Wait()
	})
}

// Upsert commits a fix for a bus. Concurrent upserts for the same bus are
// serialized by the bus's shard lock; the last one to arrive wins
// regardless of client timestamps. A fix older than the current record is
// accepted but flagged stale in the result.
//
// Hard rejects with models.ErrInvalidFix: coordinates outside the valid
// range, or a timestamp beyond the configured future horizon (corrupt
// client clock or spoofed input).
func (s *Store) Upsert(ctx context.Context, rec models.BusLocationRecord) (UpsertResult, error) {
	if err := validatePoint(rec.Point); err != nil {
		return UpsertResult{}, err
	}
	if horizon := s.config.FutureHorizon(); horizon > 0 && rec.LastFixTime.After(time.Now().Add(horizon)) {
		return UpsertResult{}, models.ErrInvalidFix
	}

	sh := s.shardFor(rec.BusID)
	sh.mu.Lock()

	state, exists := sh.buses[rec.BusID]
	if !exists {
		state = &busState{}
		sh.buses[rec.BusID] = state
	}

	result := UpsertResult{}
	hadFix := exists && !state.record.LastFixTime.IsZero()
	if hadFix && rec.LastFixTime.Before(state.record.LastFixTime) {
		result.Stale = true
	}

	if s.shouldRecordHistory(state, rec) {
		entry := models.LocationHistoryEntry{
			BusID:     rec.BusID,
			Point:     rec.Point,
			Timestamp: rec.LastFixTime,
			Direction: rec.Direction,
		}
		state.appendHistory(entry)
		result.HistoryAppended = true
	}

	state.record = rec
	result.Record = rec
	sh.mu.Unlock()

	s.persistUpsert(ctx, result)
	return result, nil
}

// Get returns the current record for a bus.
func (s *Store) Get(busID string) (models.BusLocationRecord, error) {
	sh := s.shardFor(busID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	state, ok := sh.buses[busID]
	if !ok || state.record.LastFixTime.IsZero() {
		return models.BusLocationRecord{}, models.ErrNotFound
	}
	return state.record, nil
}

// GetAll returns current records matching the filter. The snapshot is
// consistent per shard, not across shards.
func (s *Store) GetAll(filter Filter) []models.BusLocationRecord {
	var records []models.BusLocationRecord

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, state := range sh.buses {
			if state.record.LastFixTime.IsZero() {
				continue
			}
			if matchesFilter(state.record, filter) {
				records = append(records, state.record)
			}
		}
		sh.mu.RUnlock()
	}

	return records
}

// History returns a bus's trail entries at or after since, oldest first.
// The returned slice is a copy; callers may iterate without holding any
// store state.
func (s *Store) History(busID string, since time.Time) []models.LocationHistoryEntry {
	sh := s.shardFor(busID)
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	state, ok := sh.buses[busID]
	if !ok {
		return nil
	}

	// History is kept sorted; find the first entry inside the window.
	idx := sort.Search(len(state.history), func(i int) bool {
		return !state.history[i].Timestamp.Before(since)
	})

	entries := make([]models.LocationHistoryEntry, len(state.history)-idx)
	copy(entries, state.history[idx:])
	return entries
}

// SetOnline toggles a bus's visibility. Idempotent. Setting offline keeps
// the record (the bus entity still exists); setting online for a bus with
// no record yet creates a shell that becomes visible once its first fix
// arrives.
func (s *Store) SetOnline(ctx context.Context, busID, routeID string, online bool) (models.BusLocationRecord, error) {
	sh := s.shardFor(busID)
	sh.mu.Lock()

	state, ok := sh.buses[busID]
	if !ok {
		if !online {
			sh.mu.Unlock()
			return models.BusLocationRecord{}, models.ErrNotFound
		}
		state = &busState{record: models.BusLocationRecord{
			BusID:     busID,
			RouteID:   routeID,
			Direction: models.DirectionUnknown,
		}}
		sh.buses[busID] = state
	}

	state.record.Online = online
	if routeID != "" {
		state.record.RouteID = routeID
	}
	rec := state.record
	sh.mu.Unlock()

	s.persistRecord(ctx, rec)
	return rec, nil
}

// MarkStaleSessions flips buses offline whose last fix is older than the
// liveness timeout. Called by the ingest gateway's periodic sweep; returns
// the records that transitioned so status events can be emitted.
func (s *Store) MarkStaleSessions(ctx context.Context, cutoff time.Time) []models.BusLocationRecord {
	var transitioned []models.BusLocationRecord

	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for _, state := range sh.buses {
			if !state.record.Online || state.record.LastFixTime.IsZero() {
				continue
			}
			if state.record.LastFixTime.Before(cutoff) {
				state.record.Online = false
				transitioned = append(transitioned, state.record)
			}
		}
		sh.mu.Unlock()
	}

	for _, rec := range transitioned {
		s.persistRecord(ctx, rec)
	}
	return transitioned
}

func (s *Store) shardFor(busID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(busID))
	return &s.shards[h.Sum32()%shardCount]
}

// shouldRecordHistory applies the minimum-distance-or-time threshold that
// keeps stationary buses from bloating the trail. Caller holds the shard
// lock.
func (s *Store) shouldRecordHistory(state *busState, rec models.BusLocationRecord) bool {
	if len(state.history) == 0 {
		return true
	}

	last := state.history[len(state.history)-1]
	if geo.Haversine(last.Point, rec.Point) >= s.config.MinHistoryMeters {
		return true
	}
	if interval := s.config.MinHistoryInterval(); interval > 0 && rec.LastFixTime.Sub(last.Timestamp) >= interval {
		return true
	}
	return false
}

// appendHistory inserts an entry keeping the trail sorted by timestamp, so
// an out-of-order fix lands at its recorded position instead of breaking
// the ordering invariant.
func (st *busState) appendHistory(entry models.LocationHistoryEntry) {
	n := len(st.history)
	if n == 0 || !entry.Timestamp.Before(st.history[n-1].Timestamp) {
		st.history = append(st.history, entry)
		return
	}

	idx := sort.Search(n, func(i int) bool {
		return st.history[i].Timestamp.After(entry.Timestamp)
	})
	st.history = append(st.history, models.LocationHistoryEntry{})
	copy(st.history[idx+1:], st.history[idx:])
	st.history[idx] = entry
}

func (s *Store) sweepHistory(now time.Time) {
	start := time.Now()
	var pruned int

	cutoff := time.Time{}
	if window := s.config.RetentionWindow(); window > 0 {
		cutoff = now.Add(-window)
	}
	maxEntries := s.config.MaxHistoryPerBus

	var busIDs []string
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for busID, state := range sh.buses {
			pruned += state.pruneHistory(cutoff, maxEntries)
			busIDs = append(busIDs, busID)
		}
		sh.mu.Unlock()
	}

	if s.durable != nil && (!cutoff.IsZero() || maxEntries > 0) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if !cutoff.IsZero() {
			if _, err := s.durable.DeleteHistoryBefore(ctx, cutoff); err != nil {
				logging.LogError(s.logger, "durable history retention failed", err,
					slog.String("component", "tracker"))
			}
		}
		if maxEntries > 0 {
			for _, busID := range busIDs {
				if _, err := s.durable.TrimHistory(ctx, busID, maxEntries); err != nil {
					logging.LogError(s.logger, "durable history trim failed", err,
						slog.String("bus_id", busID),
						slog.String("component", "tracker"))
				}
			}
		}
		cancel()
	}

	if pruned > 0 {
		logging.LogOperation(s.logger, "history_retention_sweep",
			slog.Int("pruned", pruned),
			slog.Duration("duration", time.Since(start)))
	}
}

// pruneHistory drops entries outside the retention window and beyond the
// per-bus cap. Caller holds the shard lock. Returns the number dropped.
func (st *busState) pruneHistory(cutoff time.Time, maxEntries int) int {
	kept := st.history

	if !cutoff.IsZero() {
		idx := sort.Search(len(kept), func(i int) bool {
			return !kept[i].Timestamp.Before(cutoff)
		})
		kept = kept[idx:]
	}

	if maxEntries > 0 && len(kept) > maxEntries {
		kept = kept[len(kept)-maxEntries:]
	}

	pruned := len(st.history) - len(kept)
	if pruned > 0 {
		st.history = append([]models.LocationHistoryEntry(nil), kept...)
	}
	return pruned
}

func (s *Store) persistUpsert(ctx context.Context, result UpsertResult) {
	if s.durable == nil {
		return
	}

	s.retryDurable(ctx, "upsert_current", func(ctx context.Context) error {
		return s.durable.UpsertCurrent(ctx, result.Record)
	})

	if result.HistoryAppended {
		entry := models.LocationHistoryEntry{
			BusID:     result.Record.BusID,
			Point:     result.Record.Point,
			Timestamp: result.Record.LastFixTime,
			Direction: result.Record.Direction,
		}
		s.retryDurable(ctx, "append_history", func(ctx context.Context) error {
			return s.durable.AppendHistory(ctx, entry)
		})
	}
}

func (s *Store) persistRecord(ctx context.Context, rec models.BusLocationRecord) {
	if s.durable == nil {
		return
	}
	s.retryDurable(ctx, "upsert_current", func(ctx context.Context) error {
		return s.durable.UpsertCurrent(ctx, rec)
	})
}

// retryDurable runs a durable write with bounded fibonacci backoff. The
// in-memory state is already committed by the time this runs, so a final
// failure degrades durability, not availability.
func (s *Store) retryDurable(ctx context.Context, operation string, fn func(ctx context.Context) error) {
	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(50*time.Millisecond))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		return retry.RetryableError(fn(ctx))
	})
	if err != nil {
		logging.LogError(s.logger, "durable write failed, live state unaffected", err,
			slog.String("operation", operation),
			slog.String("component", "tracker"))
	}
}

func validatePoint(p geo.Point) error {
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return models.ErrInvalidFix
	}
	return nil
}

func matchesFilter(rec models.BusLocationRecord, filter Filter) bool {
	if filter.OnlineOnly && !rec.Online {
		return false
	}
	if filter.RouteID != "" && rec.RouteID != filter.RouteID {
		return false
	}
	if filter.Direction != "" && rec.Direction != filter.Direction {
		return false
	}
	return true
}
