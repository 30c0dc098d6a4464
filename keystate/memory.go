package keystate

import (
	"context"
	"sync"
)

// MemoryStore keeps secret state in process memory only. It is the
// default for local development and for the very first member of a pool,
// which has no state to receive and must be seeded out of band.
type MemoryStore struct {
	mu    sync.RWMutex
	state []byte
	set   bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Seed installs state without going through the handshake and without the
// once-only guard Install enforces, for the pool's first member, which
// has no leader to receive state from and must be bootstrapped out of
// band.
func (s *MemoryStore) Seed(state []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = append([]byte{}, state...)
	s.set = true
}

func (s *MemoryStore) Export(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.set {
		return nil, ErrNoState
	}
	return append([]byte{}, s.state...), nil
}

func (s *MemoryStore) Install(ctx context.Context, state []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.set {
		return ErrAlreadyInstalled
	}
	s.state = append([]byte{}, state...)
	s.set = true
	return nil
}
