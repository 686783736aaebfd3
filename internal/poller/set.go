package poller

import (
	"context"
	"sync"
)

// Set owns the pollers for the current view, keyed by (feed kind,
// scope id). The router re-arms the set after every navigation;
// re-arming an already live feed is a no-op, so in-flight schedules
// survive navigations within the same view.
type Set struct {
	mu      sync.Mutex
	pollers map[string]*Poller
	visible bool
}

// NewSet creates an empty, foregrounded set.
func NewSet() *Set {
	return &Set{pollers: make(map[string]*Poller), visible: true}
}

func setKey(feedKind, scopeID string) string {
	return feedKind + "\x00" + scopeID
}

// Ensure creates and starts a poller for cfg if none is live for its
// (feed kind, scope id); otherwise it returns the existing instance.
func (s *Set) Ensure(ctx context.Context, cfg Config) (*Poller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := setKey(cfg.FeedKind, cfg.ScopeID)
	if p, ok := s.pollers[key]; ok {
		return p, nil
	}

	p, err := New(cfg)
	if err != nil {
		return nil, err
	}
	s.pollers[key] = p
	if s.visible {
		p.Start(ctx)
	}
	return p, nil
}

// Get returns the live poller for (feedKind, scopeID), if any.
func (s *Set) Get(feedKind, scopeID string) (*Poller, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pollers[setKey(feedKind, scopeID)]
	return p, ok
}

// Retain stops and discards every poller whose key is not in keep,
// where keep maps feed kind to scope id. Used on navigation to tear
// down feeds that the new view does not show.
func (s *Set) Retain(keep map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, p := range s.pollers {
		kept := false
		for kind, scope := range keep {
			if key == setKey(kind, scope) {
				kept = true
				break
			}
		}
		if !kept {
			p.Stop()
			delete(s.pollers, key)
		}
	}
}

// SetVisible propagates a visibility transition to every poller.
func (s *Set) SetVisible(visible bool) {
	s.mu.Lock()
	s.visible = visible
	pollers := make([]*Poller, 0, len(s.pollers))
	for _, p := range s.pollers {
		pollers = append(pollers, p)
	}
	s.mu.Unlock()

	for _, p := range pollers {
		p.SetVisible(visible)
	}
}

// Close stops every poller and empties the set.
func (s *Set) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, p := range s.pollers {
		p.Stop()
		delete(s.pollers, key)
	}
}
