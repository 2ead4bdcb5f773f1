// Package session keeps one composer per browser, keyed by a cookie.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/metrics"
)

const (
	CookieName         = "broadcast_session"
	DefaultIdleTTL     = 12 * time.Hour
	DefaultMaxSessions = 10000
)

// Factory builds the composer for a new session
type Factory func() *composer.Composer

type entry struct {
	composer *composer.Composer
	lastSeen time.Time
}

// Store is an in-memory session store. Nothing is persisted.
type Store struct {
	newComposer Factory
	ttl         time.Duration
	maxSessions int
	secure      bool
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

// NewStore creates a store. secure marks the cookie Secure (TLS deployments).
func NewStore(factory Factory, ttl time.Duration, secure bool) *Store {
	if ttl <= 0 {
		ttl = DefaultIdleTTL
	}
	return &Store{
		newComposer: factory,
		ttl:         ttl,
		maxSessions: DefaultMaxSessions,
		secure:      secure,
		now:         time.Now,
		sessions:    make(map[string]*entry),
	}
}

// Lookup returns the composer of the request's session without creating one
func (s *Store) Lookup(r *http.Request) (*composer.Composer, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}
	if _, err := uuid.Parse(cookie.Value); err != nil {
		return nil, false
	}
	return s.touch(cookie.Value)
}

// Snapshot returns the session's state, or the state of an empty form when
// the request has no session. No session is created.
func (s *Store) Snapshot(r *http.Request) composer.Snapshot {
	if c, ok := s.Lookup(r); ok {
		return c.Snapshot()
	}
	return s.newComposer().Snapshot()
}

// Composer returns the composer bound to the request's session, starting a
// new session (and setting its cookie) when there is none. At capacity the
// longest idle session is dropped first.
func (s *Store) Composer(w http.ResponseWriter, r *http.Request) *composer.Composer {
	if c, ok := s.Lookup(r); ok {
		return c
	}

	id := uuid.New().String()
	c := s.newComposer()

	s.mu.Lock()
	if len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}
	s.sessions[id] = &entry{composer: c, lastSeen: s.now()}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetSessionsActive(n)

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	})

	return c
}

func (s *Store) touch(id string) (*composer.Composer, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	e.lastSeen = s.now()
	return e.composer, true
}

// evictOldestLocked drops the least recently seen session that is not sending
func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, e := range s.sessions {
		if e.composer.Busy() {
			continue
		}
		if oldestID == "" || e.lastSeen.Before(oldest) {
			oldestID, oldest = id, e.lastSeen
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Sweep drops sessions idle for longer than the TTL. A session with a send
// in flight is kept. Returns the number removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastSeen) > s.ttl && !e.composer.Busy() {
			delete(s.sessions, id)
			removed++
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	metrics.SetSessionsActive(n)
	return removed
}

// Run sweeps periodically until ctx is done
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
