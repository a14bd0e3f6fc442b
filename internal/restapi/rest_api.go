// Package restapi exposes the tracking service over HTTP: driver ingest
// endpoints, rider query endpoints, and the server-sent-events live stream.
package restapi

import (
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"livetrack.cityline.org/internal/app"
)

type RestAPI struct {
	*app.Application
	rateLimiter func(http.Handler) http.Handler
}

// NewRestAPI creates a new RestAPI instance with initialized rate limiter
func NewRestAPI(app *app.Application) *RestAPI {
	return &RestAPI{
		Application: app,
		rateLimiter: NewRateLimitMiddleware(app.Config.RateLimit, time.Second),
	}
}

// Routes assembles the full handler chain. Query endpoints are compressed;
// the SSE stream is registered uncompressed because gzip buffering defeats
// per-event flushing.
func (api *RestAPI) Routes() http.Handler {
	router := httprouter.New()
	compress := NewCompressionMiddleware(DefaultCompressionConfig())

	router.HandlerFunc(http.MethodPost, "/api/track/fix", api.submitFixHandler)
	router.HandlerFunc(http.MethodPost, "/api/track/online", api.setOnlineHandler)

	router.Handler(http.MethodGet, "/api/track/bus/:id",
		compress(api.requireValidAPIKey(api.busHandler)))
	router.Handler(http.MethodGet, "/api/track/bus/:id/history",
		compress(api.requireValidAPIKey(api.busHistoryHandler)))
	router.Handler(http.MethodGet, "/api/track/buses",
		compress(api.requireValidAPIKey(api.busesHandler)))
	router.Handler(http.MethodGet, "/api/track/nearby",
		compress(api.requireValidAPIKey(api.nearbyHandler)))

	router.Handler(http.MethodGet, "/api/track/stream",
		api.requireValidAPIKey(api.streamHandler))

	var handler http.Handler = router
	handler = api.rateLimiter(handler)
	handler = NewRequestLoggingMiddleware(api.Logger)(handler)
	handler = api.WithSecurityHeaders(handler)
	return handler
}

// requireValidAPIKey gates rider-facing endpoints on the `key` query
// parameter. Driver endpoints authenticate with session keys instead.
func (api *RestAPI) requireValidAPIKey(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if api.RequestHasInvalidAPIKey(r) {
			api.invalidAPIKeyResponse(w, r)
			return
		}
		next(w, r)
	})
}
