package traceparent

import "sync"

// Store keeps the latest token attached to each execution unit. It is the
// in-process stand-in for the host engine's per-build actions: the token is
// replaced whenever a new stage or step starts.
type Store[K comparable] struct {
	tokens sync.Map
}

// NewStore creates an empty store.
func NewStore[K comparable]() *Store[K] {
	return &Store[K]{}
}

// Attach replaces the token of key.
func (s *Store[K]) Attach(key K, token string) {
	s.tokens.Store(key, token)
}

// Token returns the token of key.
func (s *Store[K]) Token(key K) (string, bool) {
	v, ok := s.tokens.Load(key)
	if !ok {
		return "", false
	}
	return v.(string), true
}

// Forget drops the token of key.
func (s *Store[K]) Forget(key K) {
	s.tokens.Delete(key)
}

// Environ returns the variables to inject into processes of key.
func (s *Store[K]) Environ(key K) map[string]string {
	token, ok := s.Token(key)
	if !ok {
		return map[string]string{}
	}
	return Environ(token)
}
