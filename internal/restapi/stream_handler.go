package restapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"livetrack.cityline.org/internal/broadcast"
	"livetrack.cityline.org/internal/logging"
)

// streamHandler serves location deltas over server-sent events. Clients pick
// what they hear with the scopes query parameter, a comma-separated list of
// "all", "bus:<id>", and "route:<id>" entries; the default is "all".
//
// Delivery is best-effort at-most-once. A client that falls too far behind
// has events dropped rather than stalling the publisher; reconnecting and
// re-reading current state is the recovery path.
func (api *RestAPI) streamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		api.badRequestResponse(w, r, "streaming unsupported")
		return
	}

	rawScopes := r.URL.Query().Get("scopes")
	if rawScopes == "" {
		rawScopes = string(broadcast.ScopeAll)
	}

	var scopes []broadcast.Scope
	for _, raw := range strings.Split(rawScopes, ",") {
		scope, err := broadcast.ParseScope(strings.TrimSpace(raw))
		if err != nil {
			api.validationErrorResponse(w, r, map[string][]string{
				"scopes": {err.Error()},
			})
			return
		}
		scopes = append(scopes, scope)
	}

	sessionID := uuid.NewString()
	events := api.Broadcaster.Register(sessionID)
	defer api.Broadcaster.DropSession(sessionID)

	for _, scope := range scopes {
		if err := api.Broadcaster.Subscribe(sessionID, scope); err != nil {
			api.serverErrorResponse(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			payload, err := json.Marshal(event)
			if err != nil {
				logging.FromContext(ctx).Error("failed to encode stream event", "error", err)
				continue
			}

			fmt.Fprintf(w, "event: %s\n", event.Type)
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
