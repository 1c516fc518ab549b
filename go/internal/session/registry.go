package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrRegistryContention means two sessions were given the same id
	ErrRegistryContention = errors.New("session id already registered")
)

// Registry owns every live session. The lock covers map access only; sessions
// are built before they are inserted and closed after they are removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	deps     Deps
	newID    func() string
}

func NewRegistry(deps Deps) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		deps:     deps,
		newID:    uuid.NewString,
	}
}

// Create builds a session, starts its worker and returns its id
func (r *Registry) Create(cfg Config) (string, error) {
	id := r.newID()
	s, err := newSession(id, cfg, r.deps)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		panic(fmt.Errorf("%w: %s", ErrRegistryContention, id))
	}
	r.sessions[id] = s
	r.mu.Unlock()

	s.start()
	log.Info().
		Str("session_id", id).
		Int("opponents", len(cfg.Opponents)).
		Int("hand_limit", cfg.HandLimit).
		Msg("session created")
	return id, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove deletes and closes a session. Removing an unknown id does nothing.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.Close()
		log.Info().Str("session_id", id).Msg("session removed")
	}
}

// Len is the number of live sessions
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseAll removes every session
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Remove(id)
	}
}
