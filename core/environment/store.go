package environment

import (
	"context"
	"sync"
)

// Preference is the persisted environment choice. Target and BaseURL are
// always written together.
type Preference struct {
	Target  string
	BaseURL string
}

// IsZero reports whether nothing has been stored yet.
func (p Preference) IsZero() bool {
	return p.Target == "" && p.BaseURL == ""
}

// PreferenceStore persists the environment preference for one client
// session. Save must update both fields atomically.
type PreferenceStore interface {
	Load(ctx context.Context) (Preference, error)
	Save(ctx context.Context, pref Preference) error
}

// MemoryStore keeps the preference in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	pref Preference
}

// NewMemoryStore creates an empty in-memory preference store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (Preference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pref, nil
}

func (s *MemoryStore) Save(_ context.Context, pref Preference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pref = pref
	return nil
}
