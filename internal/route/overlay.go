package route

import "sync"

// Overlay holds the route currently rendered for one tracking session. At
// most one route exists at a time: a successful plan replaces the previous
// route atomically, and a failed plan leaves the previous route in place so
// the map never flickers to an empty state.
type Overlay struct {
	mu      sync.Mutex
	current *Route
}

// NewOverlay creates an empty overlay.
func NewOverlay() *Overlay {
	return &Overlay{}
}

// Replace installs a new route, discarding the previous one. Nil routes are
// ignored; use Clear to remove the route explicitly.
func (o *Overlay) Replace(r *Route) {
	if r == nil {
		return
	}
	o.mu.Lock()
	o.current = r
	o.mu.Unlock()
}

// Current returns the rendered route, or nil when none has been drawn yet.
func (o *Overlay) Current() *Route {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current
}

// Clear removes the rendered route.
func (o *Overlay) Clear() {
	o.mu.Lock()
	o.current = nil
	o.mu.Unlock()
}
