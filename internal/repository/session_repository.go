package repository

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/idcard-api/internal/models"
	"github.com/noah-isme/idcard-api/internal/selection"
	appErrors "github.com/noah-isme/idcard-api/pkg/errors"
)

// Session is the volatile working state of one operator tab.
type Session struct {
	ID         string
	Selection  selection.State
	Staff      []models.Staff
	Generating bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Session) clone() Session {
	s.Staff = append([]models.Staff(nil), s.Staff...)
	return s
}

type sessionEntry struct {
	mu      sync.Mutex
	session Session
}

// SessionRepository keeps sessions in memory; they vanish on restart and
// after the idle TTL.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionRepository builds an empty store.
func NewSessionRepository(ttl time.Duration) *SessionRepository {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &SessionRepository{
		sessions: make(map[string]*sessionEntry),
		ttl:      ttl,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create starts an empty session.
func (r *SessionRepository) Create() Session {
	now := r.now()
	sess := Session{
		ID:        uuid.NewString(),
		Selection: selection.New(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	r.mu.Lock()
	r.sessions[sess.ID] = &sessionEntry{session: sess}
	r.mu.Unlock()
	return sess.clone()
}

// Get returns a snapshot of the session.
func (r *SessionRepository) Get(id string) (Session, error) {
	entry, err := r.entry(id)
	if err != nil {
		return Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.session.clone(), nil
}

// Update applies fn under the session lock. fn mutates a copy; the copy is
// stored only when fn succeeds.
func (r *SessionRepository) Update(id string, fn func(*Session) error) (Session, error) {
	entry, err := r.entry(id)
	if err != nil {
		return Session{}, err
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.session.clone()
	if err := fn(&next); err != nil {
		return Session{}, err
	}
	next.UpdatedAt = r.now()
	entry.session = next
	return next.clone(), nil
}

// Delete discards a session.
func (r *SessionRepository) Delete(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

// Sweep drops sessions idle longer than the TTL and returns how many went.
func (r *SessionRepository) Sweep() int {
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	removed := 0
	for id, entry := range r.sessions {
		entry.mu.Lock()
		idle := entry.session.UpdatedAt.Before(cutoff) && !entry.session.Generating
		entry.mu.Unlock()
		if idle {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of live sessions.
func (r *SessionRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *SessionRepository) entry(id string) (*sessionEntry, error) {
	r.mu.RLock()
	entry, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
	}
	entry.mu.Lock()
	expired := entry.session.UpdatedAt.Before(r.now().Add(-r.ttl)) && !entry.session.Generating
	if !expired {
		entry.session.UpdatedAt = r.now()
	}
	entry.mu.Unlock()
	if expired {
		r.Delete(id)
		return nil, appErrors.Clone(appErrors.ErrNotFound, "session expired")
	}
	return entry, nil
}
