package connectors

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry maps step types to connectors. It is safe for concurrent use;
// connectors may be registered at runtime.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
}

func NewRegistry() *Registry {
	return &Registry{connectors: make(map[string]Connector)}
}

// NewDefaultRegistry returns a registry holding the built-in connectors.
func NewDefaultRegistry(webhookTimeout time.Duration) *Registry {
	r := NewRegistry()
	r.Register(NewDelay())
	r.Register(NewWebhook(webhookTimeout))
	r.Register(NewSlack(webhookTimeout))
	return r
}

// Register adds or replaces the connector for its type.
func (r *Registry) Register(c Connector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[c.Type()] = c
}

// Get returns the connector registered for typ.
func (r *Registry) Get(typ string) (Connector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[typ]
	return c, ok
}

// Lookup is Get returning ErrUnknownConnector for unregistered types.
func (r *Registry) Lookup(typ string) (Connector, error) {
	c, ok := r.Get(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnector, typ)
	}
	return c, nil
}

// List returns the registered types in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.connectors))
	for t := range r.connectors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Schemas returns the configuration schema of every registered connector.
func (r *Registry) Schemas() map[string]map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]any, len(r.connectors))
	for t, c := range r.connectors {
		out[t] = c.Schema()
	}
	return out
}
