package broker

import "sync"

// registry is the authoritative topic table. The registry lock guards only
// the map; per-topic state lives behind each topic's own mutex and the
// registry lock is never held across fan-out.
type registry struct {
	mu     sync.RWMutex
	topics map[string]*topic
}

func newRegistry() *registry {
	return &registry{topics: make(map[string]*topic)}
}

func (r *registry) create(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.topics[name]; ok {
		return ErrTopicExists
	}
	r.topics[name] = newTopic(name)
	return nil
}

// get returns the live topic or nil.
func (r *registry) get(name string) *topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.topics[name]
}

// remove marks the topic deleted, drops the record and returns the dead
// topic together with the client ids subscribed at that moment, so the
// broker can notify them and clear their subscription sets.
func (r *registry) remove(name string) (*topic, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.topics[name]
	if t == nil {
		return nil, nil
	}
	t.mu.Lock()
	t.deleted = true
	affected := make([]string, 0, len(t.subscribers))
	for clientID := range t.subscribers {
		affected = append(affected, clientID)
	}
	t.subscribers = make(map[string]struct{})
	t.mu.Unlock()
	delete(r.topics, name)
	return t, affected
}

// list snapshots the live topic pointers.
func (r *registry) list() []*topic {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*topic, 0, len(r.topics))
	for _, t := range r.topics {
		out = append(out, t)
	}
	return out
}

func (r *registry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics)
}
