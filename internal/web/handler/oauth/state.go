package oauth

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// DefaultStateTTL is how long a sign-in may take between redirect and callback.
const DefaultStateTTL = 10 * time.Minute

// StateStore keeps issued OAuth state values until they are used or expire.
type StateStore struct {
	mu     sync.Mutex
	states *cache.Cache
}

// NewStateStore creates a store whose entries live for ttl.
func NewStateStore(ttl time.Duration) *StateStore {
	return &StateStore{states: cache.New(ttl, ttl)}
}

// Issue returns a new random state bound to provider.
func (s *StateStore) Issue(provider string) (string, error) {
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	state := base64.RawURLEncoding.EncodeToString(b)
	s.states.SetDefault(state, provider)

	return state, nil
}

// Consume reports whether state was issued for provider and is still valid.
// A state is accepted at most once.
func (s *StateStore) Consume(state, provider string) bool {
	if state == "" {
		return false
	}

	s.mu.Lock()
	v, ok := s.states.Get(state)
	s.states.Delete(state)
	s.mu.Unlock()

	if !ok {
		return false
	}

	issuedFor, _ := v.(string)

	return issuedFor == provider
}
