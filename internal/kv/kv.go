// Package kv provides the two client-resident key-value scopes the
// navigation layer persists into: a session scope that lives as long
// as the process and a device scope that survives restarts.
package kv

import "sync"

// Store is the narrow contract shared by both scopes.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// SessionStore is the session-scoped store: a guarded in-memory map,
// cleared when the process ends.
type SessionStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewSessionStore creates an empty session-scoped store.
func NewSessionStore() *SessionStore {
	return &SessionStore{values: make(map[string]string)}
}

// Get retrieves a value by key.
func (s *SessionStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

// Set stores a value under key.
func (s *SessionStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Delete removes a key.
func (s *SessionStore) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Close is a no-op for the session scope.
func (s *SessionStore) Close() error {
	return nil
}
