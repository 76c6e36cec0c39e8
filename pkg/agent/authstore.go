package agent

import "sync"

// AuthStore is an in-memory mapping of provider name to API key, passed to
// the façade as part of Config. Secrets never leave memory: callers are
// expected to populate it once (from stdin or an environment variable,
// per §4.8/§4.9) and never persist it.
type AuthStore struct {
	mu   sync.RWMutex
	keys map[string]string
}

// NewAuthStore constructs an empty store.
func NewAuthStore() *AuthStore {
	return &AuthStore{keys: make(map[string]string)}
}

// Set records the API key for provider.
func (s *AuthStore) Set(provider, apiKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[provider] = apiKey
}

// Get returns the API key for provider, if any.
func (s *AuthStore) Get(provider string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.keys[provider]
	return key, ok
}
