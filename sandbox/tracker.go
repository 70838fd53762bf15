package sandbox

import (
	"sync"

	"github.com/isdmx/codebot/metrics"
)

// Tracker records the sandbox containers this process owns, so a scheduled
// sweep leaves pooled and in-flight containers alone.
type Tracker struct {
	mu   sync.Mutex
	live map[string]string
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{live: make(map[string]string)}
}

// Add records a container by id and name
func (t *Tracker) Add(id, name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.live[id] = name
	metrics.SandboxesActive.Set(float64(len(t.live)))
}

// Remove forgets a container
func (t *Tracker) Remove(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.live, id)
	metrics.SandboxesActive.Set(float64(len(t.live)))
}

// Owns reports whether the container, matched by id or name, is tracked
func (t *Tracker) Owns(id, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.live[id]; ok {
		return true
	}
	for _, n := range t.live {
		if n == name {
			return true
		}
	}
	return false
}

// Len returns the number of tracked containers
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.live)
}
