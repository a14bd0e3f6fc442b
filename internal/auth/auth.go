// Package auth is the boundary to the auth collaborator: it resolves
// driver credentials to the bus a session may ingest for. Identity
// management itself lives outside this service.
package auth

import (
	"context"
	"sync"

	"livetrack.cityline.org/internal/models"
)

// DriverIdentity is what the collaborator knows about a driver session.
type DriverIdentity struct {
	DriverID string
	BusID    string
	RouteID  string
}

// Resolver maps a driver session key to its identity. Implementations must
// be safe for concurrent use.
type Resolver interface {
	ResolveDriver(ctx context.Context, sessionKey string) (DriverIdentity, error)
}

// StaticResolver resolves from an in-memory table, for tests and
// deployments where driver assignments ship with the service.
type StaticResolver struct {
	mu      sync.RWMutex
	drivers map[string]DriverIdentity
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{drivers: make(map[string]DriverIdentity)}
}

func (r *StaticResolver) AddDriver(sessionKey string, identity DriverIdentity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drivers[sessionKey] = identity
}

func (r *StaticResolver) ResolveDriver(ctx context.Context, sessionKey string) (DriverIdentity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	identity, ok := r.drivers[sessionKey]
	if !ok {
		return DriverIdentity{}, models.ErrUnauthorized
	}
	return identity, nil
}
