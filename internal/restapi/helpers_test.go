package restapi

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"livetrack.cityline.org/internal/app"
	"livetrack.cityline.org/internal/appconf"
	"livetrack.cityline.org/internal/auth"
	"livetrack.cityline.org/internal/broadcast"
	"livetrack.cityline.org/internal/geo"
	"livetrack.cityline.org/internal/ingest"
	"livetrack.cityline.org/internal/models"
	"livetrack.cityline.org/internal/proximity"
	"livetrack.cityline.org/internal/routes"
	"livetrack.cityline.org/internal/tracker"
)

const (
	testAPIKey     = "TEST"
	testSessionKey = "driver-key-1"
)

func createTestApi(t *testing.T) *RestAPI {
	t.Helper()

	logger := slog.Default()
	tracking := appconf.DefaultTrackingConfig()

	store := tracker.NewStore(tracking, logger)
	t.Cleanup(store.Shutdown)

	provider := routes.NewStaticProvider()
	provider.AddRoute("42", true, []geo.Point{
		{Lat: 0, Lon: 0},
		{Lat: 0, Lon: 1},
		{Lat: 0, Lon: 2},
	})

	broadcaster := broadcast.NewBroadcaster(logger)

	resolver := auth.NewStaticResolver()
	resolver.AddDriver(testSessionKey, auth.DriverIdentity{
		DriverID: "driver-1",
		BusID:    "bus-1",
		RouteID:  "42",
	})

	gateway := ingest.NewGateway(tracking, logger, store, provider, broadcaster, resolver, nil)
	t.Cleanup(gateway.Shutdown)

	application := &app.Application{
		Config: appconf.Config{
			Port:      4000,
			Env:       appconf.Test,
			ApiKeys:   []string{testAPIKey},
			RateLimit: 1000,
		},
		Tracking:    tracking,
		Logger:      logger,
		Store:       store,
		Gateway:     gateway,
		Broadcaster: broadcaster,
		Searcher:    proximity.NewIndex(store),
		Routes:      provider,
	}

	return NewRestAPI(application)
}

func createTestServer(t *testing.T) (*RestAPI, *httptest.Server) {
	t.Helper()
	api := createTestApi(t)
	server := httptest.NewServer(api.Routes())
	t.Cleanup(server.Close)
	return api, server
}

func serveAndRetrieveEndpoint(t *testing.T, path string) (*RestAPI, *http.Response, models.ResponseModel) {
	t.Helper()
	api, server := createTestServer(t)

	resp, err := http.Get(server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	return api, resp, decodeResponseModel(t, resp)
}

func decodeResponseModel(t *testing.T, resp *http.Response) models.ResponseModel {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var model models.ResponseModel
	require.NoError(t, json.Unmarshal(body, &model))
	return model
}

func postJSON(t *testing.T, url, sessionKey, payload string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(payload))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if sessionKey != "" {
		req.Header.Set("X-Session-Key", sessionKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func submitTestFix(t *testing.T, server *httptest.Server, busID string, lat, lon float64, at time.Time) *http.Response {
	t.Helper()

	payload, err := json.Marshal(models.Fix{
		BusID:     busID,
		Point:     geo.Point{Lat: lat, Lon: lon},
		Timestamp: at,
	})
	require.NoError(t, err)

	return postJSON(t, server.URL+"/api/track/fix", testSessionKey, string(payload))
}
