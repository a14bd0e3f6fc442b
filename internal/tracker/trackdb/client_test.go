package trackdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/geo"
	"livetrack.cityline.org/internal/models"
)

func createTestClient(t *testing.T) *Client {
	client, err := NewClient(NewConfig(":memory:", appconf.Test, false))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func testRecord(busID string, at time.Time) models.BusLocationRecord {
	return models.BusLocationRecord{
		BusID:       busID,
		Point:       geo.Point{Lat: 47.6, Lon: -122.3},
		LastFixTime: at,
		Online:      true,
		Direction:   models.DirectionOutbound,
		RouteID:     "route-7",
	}
}

func TestUpsertCurrentAndLoadCurrent(t *testing.T) {
	client := createTestClient(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	heading := 92.5
	rec := testRecord("bus-1", now)
	rec.HeadingDegrees = &heading
	require.NoError(t, client.UpsertCurrent(ctx, rec))

	// Second upsert replaces, not duplicates.
	rec.Point = geo.Point{Lat: 47.61, Lon: -122.31}
	rec.LastFixTime = now.Add(time.Minute)
	require.NoError(t, client.UpsertCurrent(ctx, rec))

	records, err := client.LoadCurrent(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)

	got := records[0]
	assert.Equal(t, "bus-1", got.BusID)
	assert.Equal(t, 47.61, got.Point.Lat)
	assert.Equal(t, now.Add(time.Minute).UnixMilli(), got.LastFixTime.UnixMilli())
	assert.True(t, got.Online)
	assert.Equal(t, models.DirectionOutbound, got.Direction)
	assert.Equal(t, "route-7", got.RouteID)
	require.NotNil(t, got.HeadingDegrees)
	assert.Equal(t, 92.5, *got.HeadingDegrees)
	assert.Nil(t, got.SpeedMps)
}

func TestHistoryAppendAndQuery(t *testing.T) {
	client := createTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		entry := models.LocationHistoryEntry{
			BusID:     "bus-1",
			Point:     geo.Point{Lat: 47.6 + float64(i)*0.001, Lon: -122.3},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Direction: models.DirectionOutbound,
		}
		require.NoError(t, client.AppendHistory(ctx, entry))
	}

	entries, err := client.HistorySince(ctx, "bus-1", base.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i := 1; i < len(entries); i++ {
		assert.True(t, !entries[i].Timestamp.Before(entries[i-1].Timestamp))
	}
}

func TestAppendHistoryDuplicateTimestampIsIgnored(t *testing.T) {
	client := createTestClient(t)
	ctx := context.Background()
	at := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	entry := models.LocationHistoryEntry{
		BusID:     "bus-1",
		Point:     geo.Point{Lat: 47.6, Lon: -122.3},
		Timestamp: at,
		Direction: models.DirectionOutbound,
	}
	require.NoError(t, client.AppendHistory(ctx, entry))
	require.NoError(t, client.AppendHistory(ctx, entry))

	entries, err := client.HistorySince(ctx, "bus-1", at.Add(-time.Hour))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeleteHistoryBefore(t *testing.T) {
	client := createTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 4; i++ {
		require.NoError(t, client.AppendHistory(ctx, models.LocationHistoryEntry{
			BusID:     "bus-1",
			Point:     geo.Point{Lat: 47.6, Lon: -122.3},
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Direction: models.DirectionUnknown,
		}))
	}

	deleted, err := client.DeleteHistoryBefore(ctx, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	entries, err := client.HistorySince(ctx, "bus-1", base)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestTrimHistoryKeepsNewestEntries(t *testing.T) {
	client := createTestClient(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 10; i++ {
		require.NoError(t, client.AppendHistory(ctx, models.LocationHistoryEntry{
			BusID:     "bus-1",
			Point:     geo.Point{Lat: 47.6, Lon: -122.3},
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Direction: models.DirectionUnknown,
		}))
	}

	trimmed, err := client.TrimHistory(ctx, "bus-1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), trimmed)

	entries, err := client.HistorySince(ctx, "bus-1", base)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, base.Add(7*time.Minute).UnixMilli(), entries[0].Timestamp.UnixMilli())
}
