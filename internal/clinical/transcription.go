package clinical

import (
	"strings"
	"sync"
	"time"

	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/types"
)

// TranscriptionSession accumulates dictated segments for one visit until
// the clinician finalizes it into a draft note.
type TranscriptionSession struct {
	ID        types.ID  `json:"id"`
	PatientID types.ID  `json:"patient_id"`
	AuthorID  types.ID  `json:"author_id"`
	VisitType VisitType `json:"visit_type"`
	Segments  []string  `json:"segments"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Transcript joins the accumulated segments
func (s *TranscriptionSession) Transcript() string {
	return strings.Join(s.Segments, " ")
}

// clone copies the session so callers never hold a reference into the
// store. Segments is copied, not aliased.
func (s *TranscriptionSession) clone() *TranscriptionSession {
	out := *s
	out.Segments = make([]string, len(s.Segments))
	copy(out.Segments, s.Segments)
	return &out
}

// SessionStore holds in-flight transcription sessions. Access is mutex
// guarded and a janitor goroutine evicts sessions idle past the TTL.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[types.ID]*TranscriptionSession
	ttl      time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewSessionStore creates a session store with the given idle TTL
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[types.ID]*TranscriptionSession),
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
}

// Start begins a new session
func (st *SessionStore) Start(patientID, authorID types.ID, visitType VisitType) *TranscriptionSession {
	now := time.Now()
	session := &TranscriptionSession{
		ID:        types.NewID(),
		PatientID: patientID,
		AuthorID:  authorID,
		VisitType: visitType,
		StartedAt: now,
		UpdatedAt: now,
	}

	st.mu.Lock()
	st.sessions[session.ID] = session
	st.mu.Unlock()

	return session.clone()
}

// Get returns a session by ID
func (st *SessionStore) Get(id types.ID) (*TranscriptionSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[id]
	if !ok {
		return nil, errors.NotFound("transcription session", id.String())
	}

	return session.clone(), nil
}

// Append adds a transcript segment to a session
func (st *SessionStore) Append(id types.ID, segment string) (*TranscriptionSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[id]
	if !ok {
		return nil, errors.NotFound("transcription session", id.String())
	}

	session.Segments = append(session.Segments, segment)
	session.UpdatedAt = time.Now()

	return session.clone(), nil
}

// Remove takes a session out of the store, returning it
func (st *SessionStore) Remove(id types.ID) (*TranscriptionSession, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[id]
	if !ok {
		return nil, errors.NotFound("transcription session", id.String())
	}

	delete(st.sessions, id)

	return session.clone(), nil
}

// Len returns the number of active sessions
func (st *SessionStore) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// evictIdle drops sessions idle longer than the TTL
func (st *SessionStore) evictIdle(now time.Time) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for id, session := range st.sessions {
		if now.Sub(session.UpdatedAt) > st.ttl {
			delete(st.sessions, id)
			evicted++
		}
	}

	return evicted
}

// StartJanitor runs TTL eviction in the background until Stop
func (st *SessionStore) StartJanitor(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	st.wg.Add(1)
	go func() {
		defer st.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-st.stopCh:
				return
			case now := <-ticker.C:
				st.evictIdle(now)
			}
		}
	}()
}

// Stop halts the janitor
func (st *SessionStore) Stop() {
	close(st.stopCh)
	st.wg.Wait()
}
