package store

import (
	"context"
	"sync"
	"time"

	"github.com/transfa/portal-service/internal/domain"
)

// MemorySessionRepository keeps sessions in process memory. Used when no
// DATABASE_URL is configured.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
}

// NewMemorySessionRepository creates an empty in-memory repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]domain.Session)}
}

// CreateSession stores a copy of the session, replacing any session with the same key hash.
func (r *MemorySessionRepository) CreateSession(_ context.Context, session *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[session.KeyHash] = *session
	return nil
}

// FindSessionByKeyHash returns a copy of the stored session.
func (r *MemorySessionRepository) FindSessionByKeyHash(_ context.Context, keyHash string) (*domain.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[keyHash]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &session, nil
}

// DeleteSession removes the session. Deleting an unknown key is not an error.
func (r *MemorySessionRepository) DeleteSession(_ context.Context, keyHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, keyHash)
	return nil
}

// DeleteExpiredSessions removes sessions that are expired at now.
func (r *MemorySessionRepository) DeleteExpiredSessions(_ context.Context, now time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for keyHash, session := range r.sessions {
		if session.Expired(now) {
			removed = append(removed, session.ID)
			delete(r.sessions, keyHash)
		}
	}
	return removed, nil
}
