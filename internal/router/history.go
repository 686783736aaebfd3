package router

import "sync"

// History is the navigation-history stack: a back stack, the current
// entry and a forward stack, mirroring a browser's traversal model.
// Pushing a new entry clears the forward stack.
type History struct {
	mu      sync.Mutex
	back    []string
	current string
	forward []string
	primed  bool
}

// NewHistory creates an empty history.
func NewHistory() *History {
	return &History{}
}

// Replace sets the current entry without touching either stack, for
// the initial non-pushing load.
func (h *History) Replace(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = path
	h.primed = true
}

// Push records a new entry, moving the old current onto the back
// stack and discarding any forward entries.
func (h *History) Push(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.primed {
		h.back = append(h.back, h.current)
	}
	h.current = path
	h.primed = true
	h.forward = nil
}

// Back moves one entry backwards. It reports false at the start of
// the stack.
func (h *History) Back() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.back) == 0 {
		return "", false
	}
	h.forward = append(h.forward, h.current)
	h.current = h.back[len(h.back)-1]
	h.back = h.back[:len(h.back)-1]
	return h.current, true
}

// Forward moves one entry forwards. It reports false at the end of
// the stack.
func (h *History) Forward() (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.forward) == 0 {
		return "", false
	}
	h.back = append(h.back, h.current)
	h.current = h.forward[len(h.forward)-1]
	h.forward = h.forward[:len(h.forward)-1]
	return h.current, true
}

// Current returns the current entry.
func (h *History) Current() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current
}

// Depth returns the back-stack depth.
func (h *History) Depth() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.back)
}
