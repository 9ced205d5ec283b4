package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Registry owns every live session, keyed by join code. A code is unique only
// while its session is alive: generation checks candidates against the live
// set under the lock and retries on collision, and a code may be reissued
// once the session holding it has been removed.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*Session)}
}

// Add stores a new session under a freshly generated join code and returns
// the code. Never hands out a code already bound to a live session.
func (r *Registry) Add(s *Session) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		code := fmt.Sprintf("%06d", 100000+rand.Intn(900000))
		if _, taken := r.sessions[code]; taken {
			log.Debug().Str("join_code", code).Msg("join code collision, retrying")
			continue
		}
		s.joinCode = code
		r.sessions[code] = s
		return code
	}
}

// Get looks up a live session by join code.
func (r *Registry) Get(code string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[code]
	return s, ok
}

// Remove evicts a session. Idempotent.
func (r *Registry) Remove(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, code)
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SweepAbandoned removes sessions whose host has been disconnected for longer
// than maxAge and returns the number removed. Sessions still hosting a
// connected host are never touched.
func (r *Registry) SweepAbandoned(maxAge time.Duration) int {
	r.mu.Lock()
	candidates := make(map[string]*Session, len(r.sessions))
	for code, s := range r.sessions {
		candidates[code] = s
	}
	r.mu.Unlock()

	removed := 0
	for code, s := range candidates {
		if s.AbandonedSince(maxAge) {
			s.Shutdown()
			r.Remove(code)
			removed++
			log.Warn().Str("join_code", code).Msg("removed abandoned session")
		}
	}
	return removed
}
