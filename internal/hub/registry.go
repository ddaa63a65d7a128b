package hub

import (
	"sort"
	"sync"
)

// Subscriber is one live receiver of events. Send must not block.
type Subscriber interface {
	ID() string
	Open() bool
	Send(payload []byte) error
}

// Registry is the set of connected subscribers, keyed by id.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]Subscriber
}

func NewRegistry() *Registry {
	return &Registry{subs: make(map[string]Subscriber)}
}

func (r *Registry) Add(sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs[sub.ID()] = sub
}

// Remove reports whether sub was registered.
func (r *Registry) Remove(sub Subscriber) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[sub.ID()]; !ok {
		return false
	}
	delete(r.subs, sub.ID())
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// List returns the registered subscribers ordered by id.
func (r *Registry) List() []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}
