package broadcast

import (
	"errors"
	"fmt"
	"strings"

	"livetrack.cityline.org/internal/models"
)

// Scope is a subscription key: "bus:<id>", "route:<id>", or "all".
type Scope string

// ScopeAll matches every event.
const ScopeAll Scope = "all"

var ErrInvalidScope = errors.New("invalid scope")

func BusScope(busID string) Scope {
	return Scope("bus:" + busID)
}

func RouteScope(routeID string) Scope {
	return Scope("route:" + routeID)
}

// ParseScope validates a raw scope string from a client.
func ParseScope(raw string) (Scope, error) {
	if raw == string(ScopeAll) {
		return ScopeAll, nil
	}

	kind, id, found := strings.Cut(raw, ":")
	if !found || id == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}

	switch kind {
	case "bus", "route":
		return Scope(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, raw)
	}
}

// scopesFor lists the scopes an event matches.
func scopesFor(event models.Event) []Scope {
	scopes := []Scope{ScopeAll, BusScope(event.BusID)}
	if event.RouteID != "" {
		scopes = append(scopes, RouteScope(event.RouteID))
	}
	return scopes
}
