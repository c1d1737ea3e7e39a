package session

import (
	"sync"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/floatdeck/boardlink/internal/onewheel"
	"github.com/floatdeck/boardlink/internal/transport"
)

// Registry maps discovered board characteristics by normalized UUID. It is
// populated once per connection after service discovery and cleared on
// disconnect. Insertion order is preserved so subscription sweeps and
// diagnostics listings are deterministic.
type Registry struct {
	mu    sync.RWMutex
	chars *orderedmap.OrderedMap[string, transport.Characteristic]
}

func NewRegistry() *Registry {
	return &Registry{chars: orderedmap.New[string, transport.Characteristic]()}
}

// Populate stores every characteristic of the primary service, replacing any
// previous contents.
func (r *Registry) Populate(chars []transport.Characteristic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chars = orderedmap.New[string, transport.Characteristic]()
	for _, char := range chars {
		r.chars.Set(transport.NormalizeUUID(char.UUID()), char)
	}
}

// Get looks up one characteristic by UUID (any form).
func (r *Registry) Get(uuid string) (transport.Characteristic, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chars.Get(transport.NormalizeUUID(uuid))
}

// Field looks up the characteristic carrying a telemetry field under the
// given layout.
func (r *Registry) Field(layout onewheel.Layout, field onewheel.Field) (transport.Characteristic, bool) {
	uuid := layout.UUIDFor(field)
	if uuid == "" {
		return nil, false
	}
	return r.Get(uuid)
}

// All returns the characteristics in discovery order.
func (r *Registry) All() []transport.Characteristic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]transport.Characteristic, 0, r.chars.Len())
	for pair := r.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Value)
	}
	return result
}

// UUIDs returns the registered UUIDs in discovery order.
func (r *Registry) UUIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, r.chars.Len())
	for pair := r.chars.Oldest(); pair != nil; pair = pair.Next() {
		result = append(result, pair.Key)
	}
	return result
}

// Len returns the number of registered characteristics.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.chars.Len()
}

// Clear empties the registry.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chars = orderedmap.New[string, transport.Characteristic]()
}
