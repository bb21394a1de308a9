package admin

import (
	"sync"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// SessionConfig defines session limits
type SessionConfig struct {
	TTL           time.Duration
	IdleTimeout   time.Duration
	MaxConcurrent int
}

// DefaultSessionConfig returns conservative defaults for clinical workstations
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		TTL:           8 * time.Hour,
		IdleTimeout:   30 * time.Minute,
		MaxConcurrent: 3,
	}
}

// Session is an active login
type Session struct {
	ID             string    `json:"id"`
	UserID         types.ID  `json:"user_id"`
	Role           string    `json:"role"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	IPAddress      string    `json:"ip_address,omitempty"`
	UserAgent      string    `json:"user_agent,omitempty"`
}

// Expired reports whether the session passed its absolute lifetime
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Idle reports whether the session has been inactive past the timeout
func (s *Session) Idle(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivityAt) > timeout
}

// SessionStore tracks active sessions in memory
type SessionStore struct {
	mu       sync.Mutex
	config   SessionConfig
	sessions map[string]*Session
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewSessionStore creates a session store
func NewSessionStore(config SessionConfig) *SessionStore {
	if config.TTL <= 0 {
		config = DefaultSessionConfig()
	}
	return &SessionStore{
		config:   config,
		sessions: make(map[string]*Session),
		stopCh:   make(chan struct{}),
	}
}

// Create registers a new session. When the user is at the concurrent
// session limit the oldest session is evicted.
func (s *SessionStore) Create(userID types.ID, role, ip, userAgent string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Session
	count := 0
	for _, sess := range s.sessions {
		if sess.UserID != userID {
			continue
		}
		count++
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if count >= s.config.MaxConcurrent && oldest != nil {
		delete(s.sessions, oldest.ID)
	}

	now := time.Now()
	session := &Session{
		ID:             types.NewID().String(),
		UserID:         userID,
		Role:           role,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(s.config.TTL),
		IPAddress:      ip,
		UserAgent:      userAgent,
	}
	s.sessions[session.ID] = session

	return session
}

// Get returns an active session, touching its activity timestamp
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}

	now := time.Now()
	if session.Expired(now) || session.Idle(now, s.config.IdleTimeout) {
		delete(s.sessions, id)
		return nil, false
	}

	session.LastActivityAt = now
	return session, true
}

// Validate reports whether the session is still active, touching its
// activity timestamp. Shaped for auth.SessionValidator.
func (s *SessionStore) Validate(id string) bool {
	_, ok := s.Get(id)
	return ok
}

// Revoke removes a session
func (s *SessionStore) Revoke(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// RevokeUser removes all sessions for a user. Used when an account is
// suspended or deactivated.
func (s *SessionStore) RevokeUser(userID types.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	revoked := 0
	for id, sess := range s.sessions {
		if sess.UserID == userID {
			delete(s.sessions, id)
			revoked++
		}
	}
	return revoked
}

// Count returns the number of tracked sessions
func (s *SessionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *SessionStore) evictStale(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, sess := range s.sessions {
		if sess.Expired(now) || sess.Idle(now, s.config.IdleTimeout) {
			delete(s.sessions, id)
		}
	}
}

// StartJanitor evicts stale sessions on an interval until Stop is called
func (s *SessionStore) StartJanitor(interval time.Duration) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.evictStale(time.Now())
			case <-s.stopCh:
				return
			}
		}
	}()
}

// Stop halts the janitor
func (s *SessionStore) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
