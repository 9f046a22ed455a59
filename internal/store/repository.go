/**
 * @description
 * This file defines the `SessionRepository` interface, the contract for persisting
 * portal sessions. The session manager only depends on this interface, so the
 * service can run against PostgreSQL in production and an in-memory map in local
 * development and tests.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: For the Session model.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/transfa/portal-service/internal/domain"
)

// ErrSessionNotFound is returned when no session matches the lookup key.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository defines the set of methods for storing portal sessions.
// Sessions are looked up by the hash of the browser key; the raw key is never stored.
type SessionRepository interface {
	CreateSession(ctx context.Context, session *domain.Session) error
	FindSessionByKeyHash(ctx context.Context, keyHash string) (*domain.Session, error)
	DeleteSession(ctx context.Context, keyHash string) error
	// DeleteExpiredSessions removes every session that expired at or before now and
	// returns the IDs it removed.
	DeleteExpiredSessions(ctx context.Context, now time.Time) ([]string, error)
}
