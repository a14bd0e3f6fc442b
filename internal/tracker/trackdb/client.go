// Package trackdb persists bus location state in SQLite: a current-state
// table keyed by bus id and an append-only history table keyed by
// (bus id, timestamp). The in-memory store is the writer-of-record;
// durability here is best-effort relative to live-view availability.
package trackdb

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/logging"
	"livetrack.cityline.org/internal/models"
)

// Client is the entry point for the tracking database.
type Client struct {
	config Config
	DB     *sql.DB
}

// NewClient opens (or creates) the database and ensures the schema exists.
func NewClient(config Config) (*Client, error) {
	db, err := initDB(config)
	if err != nil {
		return nil, fmt.Errorf("error creating tracking database: %w", err)
	}
	if config.verbose {
		log.Println("Successfully created tracking tables")
	}

	return &Client{config: config, DB: db}, nil
}

func (c *Client) Close() error {
	return c.DB.Close()
}

func initDB(config Config) (*sql.DB, error) {
	if config.Env == appconf.Test && config.DBPath != ":memory:" {
		log.Fatal("DB is being created in a file.", config.DBPath)
	}

	db, err := sql.Open("sqlite", config.DBPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("error starting transaction: %w", err)
	}
	defer logging.SafeRollbackWithLogging(tx, slog.Default(), "create_tracking_tables")

	_, err = tx.Exec(`
		CREATE TABLE IF NOT EXISTS bus_locations (
			bus_id TEXT PRIMARY KEY,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			heading REAL,
			speed REAL,
			last_fix_time INTEGER NOT NULL,
			online INTEGER NOT NULL,
			direction TEXT NOT NULL,
			route_id TEXT NOT NULL,
			driver_session_id TEXT
		);
		CREATE TABLE IF NOT EXISTS bus_location_history (
			bus_id TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			direction TEXT NOT NULL,
			PRIMARY KEY (bus_id, timestamp)
		);
		CREATE INDEX IF NOT EXISTS idx_history_bus_time ON bus_location_history(bus_id, timestamp);
	`)
	if err != nil {
		return nil, fmt.Errorf("error creating tables: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("error committing transaction: %w", err)
	}

	return db, nil
}

// UpsertCurrent replaces the current record for a bus.
func (c *Client) UpsertCurrent(ctx context.Context, rec models.BusLocationRecord) error {
	_, err := c.DB.ExecContext(ctx, `
		INSERT INTO bus_locations
			(bus_id, lat, lon, heading, speed, last_fix_time, online, direction, route_id, driver_session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(bus_id) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			heading = excluded.heading,
			speed = excluded.speed,
			last_fix_time = excluded.last_fix_time,
			online = excluded.online,
			direction = excluded.direction,
			route_id = excluded.route_id,
			driver_session_id = excluded.driver_session_id`,
		rec.BusID, rec.Point.Lat, rec.Point.Lon,
		nullableFloat(rec.HeadingDegrees), nullableFloat(rec.SpeedMps),
		rec.LastFixTime.UnixMilli(), boolToInt(rec.Online),
		string(rec.Direction), rec.RouteID, rec.DriverSessionID)
	return err
}

// AppendHistory stores one immutable trail entry. Replays of the same
// (bus, timestamp) pair are ignored rather than erroring so retried writes
// stay idempotent.
func (c *Client) AppendHistory(ctx context.Context, entry models.LocationHistoryEntry) error {
	_, err := c.DB.ExecContext(ctx, `
		INSERT OR IGNORE INTO bus_location_history (bus_id, timestamp, lat, lon, direction)
		VALUES (?, ?, ?, ?, ?)`,
		entry.BusID, entry.Timestamp.UnixMilli(),
		entry.Point.Lat, entry.Point.Lon, string(entry.Direction))
	return err
}

// HistorySince returns a bus's trail from the given time onward, oldest
// first.
func (c *Client) HistorySince(ctx context.Context, busID string, since time.Time) ([]models.LocationHistoryEntry, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT bus_id, timestamp, lat, lon, direction
		FROM bus_location_history
		WHERE bus_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC`,
		busID, since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close() // nolint

	var entries []models.LocationHistoryEntry
	for rows.Next() {
		var entry models.LocationHistoryEntry
		var ts int64
		var dir string
		if err := rows.Scan(&entry.BusID, &ts, &entry.Point.Lat, &entry.Point.Lon, &dir); err != nil {
			return nil, err
		}
		entry.Timestamp = time.UnixMilli(ts)
		entry.Direction = models.Direction(dir)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// DeleteHistoryBefore enforces the time-window retention policy.
func (c *Client) DeleteHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := c.DB.ExecContext(ctx,
		`DELETE FROM bus_location_history WHERE timestamp < ?`, cutoff.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TrimHistory enforces the max-entries-per-bus retention policy, keeping
// the newest entries.
func (c *Client) TrimHistory(ctx context.Context, busID string, maxEntries int) (int64, error) {
	res, err := c.DB.ExecContext(ctx, `
		DELETE FROM bus_location_history
		WHERE bus_id = ? AND timestamp < (
			SELECT COALESCE(MIN(timestamp), 0) FROM (
				SELECT timestamp FROM bus_location_history
				WHERE bus_id = ?
				ORDER BY timestamp DESC
				LIMIT ?
			)
		)`, busID, busID, maxEntries)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LoadCurrent reads all current records, used to warm the in-memory store
// on startup.
func (c *Client) LoadCurrent(ctx context.Context) ([]models.BusLocationRecord, error) {
	rows, err := c.DB.QueryContext(ctx, `
		SELECT bus_id, lat, lon, heading, speed, last_fix_time, online, direction, route_id, driver_session_id
		FROM bus_locations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close() // nolint

	var records []models.BusLocationRecord
	for rows.Next() {
		var rec models.BusLocationRecord
		var heading, speed sql.NullFloat64
		var sessionID sql.NullString
		var ts int64
		var online int
		var dir string
		err := rows.Scan(&rec.BusID, &rec.Point.Lat, &rec.Point.Lon,
			&heading, &speed, &ts, &online, &dir, &rec.RouteID, &sessionID)
		if err != nil {
			return nil, err
		}
		if heading.Valid {
			rec.HeadingDegrees = &heading.Float64
		}
		if speed.Valid {
			rec.SpeedMps = &speed.Float64
		}
		rec.LastFixTime = time.UnixMilli(ts)
		rec.Online = online != 0
		rec.Direction = models.Direction(dir)
		rec.DriverSessionID = sessionID.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
