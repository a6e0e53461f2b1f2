package broker

import (
	"errors"
	"sync"

	"github.com/markb/pushlite/internal/log"
)

// AliasSource pre-populates personal-channel aliases when a tenant's state
// is first created, typically from durable per-user subscription records.
type AliasSource interface {
	AliasesFor(appID string) (map[string][]string, error)
}

// Registry owns the AppState instances, keyed by both application id and
// application key. Both keys resolve to the same instance. States are
// created on first reference and live until explicitly invalidated.
type Registry struct {
	mu      sync.RWMutex
	store   AppStore
	aliases AliasSource // optional
	byID    map[string]*AppState
	byKey   map[string]*AppState
}

// NewRegistry creates a registry backed by the given application store.
// aliases may be nil.
func NewRegistry(store AppStore, aliases AliasSource) *Registry {
	return &Registry{
		store:   store,
		aliases: aliases,
		byID:    make(map[string]*AppState),
		byKey:   make(map[string]*AppState),
	}
}

// ByID resolves the AppState for an application id.
func (r *Registry) ByID(appID string) (*AppState, error) {
	r.mu.RLock()
	state := r.byID[appID]
	r.mu.RUnlock()
	if state != nil {
		return state, nil
	}
	app, err := r.store.AppByID(appID)
	if err != nil {
		return nil, err
	}
	return r.adopt(app), nil
}

// ByKey resolves the AppState for an application key.
func (r *Registry) ByKey(appKey string) (*AppState, error) {
	r.mu.RLock()
	state := r.byKey[appKey]
	r.mu.RUnlock()
	if state != nil {
		return state, nil
	}
	app, err := r.store.AppByKey(appKey)
	if err != nil {
		return nil, err
	}
	return r.adopt(app), nil
}

// adopt registers a freshly loaded application, losing the race gracefully
// if another goroutine adopted it first.
func (r *Registry) adopt(app App) *AppState {
	state := newAppState(app)
	if r.aliases != nil {
		aliases, err := r.aliases.AliasesFor(app.ID)
		if err != nil {
			log.Warn("broker: alias preload failed", "app_id", app.ID, "error", err.Error())
		}
		for personal, targets := range aliases {
			for _, target := range targets {
				state.aliases.Add(personal, target)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing := r.byID[app.ID]; existing != nil {
		return existing
	}
	r.byID[app.ID] = state
	r.byKey[app.Key] = state
	return state
}

// Invalidate drops a tenant's state. The next reference reloads it.
func (r *Registry) Invalidate(appID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.byID[appID]; ok {
		delete(r.byID, appID)
		delete(r.byKey, state.app.Key)
	}
}

// SecretFor implements SecretStore against the registry.
func (r *Registry) SecretFor(appKey string) ([]byte, error) {
	state, err := r.ByKey(appKey)
	if err != nil {
		return nil, err
	}
	return state.app.Secret, nil
}

// RegistryStats is a point-in-time snapshot of all tenants.
type RegistryStats struct {
	Apps        int        `json:"apps"`
	Connections int        `json:"connections"`
	Channels    int        `json:"channels"`
	Details     []AppStats `json:"details"`
}

// Stats snapshots counts across every loaded tenant.
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	states := make([]*AppState, 0, len(r.byID))
	for _, state := range r.byID {
		states = append(states, state)
	}
	r.mu.RUnlock()

	stats := RegistryStats{Details: make([]AppStats, 0, len(states))}
	stats.Apps = len(states)
	for _, state := range states {
		s := state.Stats()
		stats.Connections += s.Connections
		stats.Channels += s.Channels
		stats.Details = append(stats.Details, s)
	}
	return stats
}

// IsNotFound reports whether err means the application could not be resolved.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAppNotFound)
}
