package game

import (
	"sync"

	"github.com/victornm/cahbot/internal/deck"
	"github.com/victornm/cahbot/internal/domain"
	"github.com/victornm/cahbot/internal/errors"
)

// Registry maps channels to at most one live session each. Expired entries
// are not swept; they are replaced lazily when a new game is requested for
// the channel.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Create starts a new session for the channel. It fails while a live,
// non-expired session exists; an expired one is silently overwritten.
func (r *Registry) Create(channel, host string, catalog *deck.Catalog, rules Rules) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[channel]; ok && !s.Expired() {
		return nil, errors.New(errors.CodeAlreadyExists,
			errors.WithMessagef("channel %s already has a game", channel))
	}

	s := NewSession(channel, host, catalog, rules)
	r.sessions[channel] = s
	return s, nil
}

func (r *Registry) Get(channel string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[channel]
	return s, ok
}

// FindByPlayer locates the session a player is active in. Private commands
// carry no channel, so this is a linear scan across all sessions; a player
// can be in at most one game process-wide.
func (r *Registry) FindByPlayer(nick string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.sessions {
		if s.HasPlayer(nick) {
			return s, true
		}
	}
	return nil, false
}

func (r *Registry) Remove(channel string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, channel)
}

// Len counts live sessions, expired ones included until they are replaced.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

func (r *Registry) Snapshots() []domain.SessionSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snaps := make([]domain.SessionSnapshot, 0, len(r.sessions))
	for _, s := range r.sessions {
		snaps = append(snaps, s.Snapshot())
	}
	return snaps
}
