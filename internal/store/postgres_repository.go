/**
 * @description
 * PostgreSQL implementation of the SessionRepository. Sessions live in the
 * `portal_sessions` table keyed by the blake2b hash of the browser session key.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/jackc/pgx/v5/pgxpool: Connection pooling.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/transfa/portal-service/internal/domain"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint violation.
const uniqueViolation = "23505"

// EnsureSchemaSQL creates the session table when it does not exist yet.
const EnsureSchemaSQL = `
    CREATE TABLE IF NOT EXISTS portal_sessions (
        id          UUID PRIMARY KEY,
        key_hash    TEXT NOT NULL UNIQUE,
        username    TEXT NOT NULL,
        token       TEXT NOT NULL,
        expires_at  TIMESTAMPTZ NOT NULL,
        created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
    );
    CREATE INDEX IF NOT EXISTS idx_portal_sessions_expires_at ON portal_sessions (expires_at);
`

// PostgresSessionRepository is the PostgreSQL implementation of the SessionRepository.
type PostgresSessionRepository struct {
	db *pgxpool.Pool
}

// NewPostgresSessionRepository creates a new instance of PostgresSessionRepository.
func NewPostgresSessionRepository(db *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{db: db}
}

// EnsureSchema creates the portal_sessions table and its index.
func (r *PostgresSessionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, EnsureSchemaSQL); err != nil {
		return fmt.Errorf("create portal_sessions table: %w", err)
	}
	return nil
}

// CreateSession inserts a new session record.
func (r *PostgresSessionRepository) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
        INSERT INTO portal_sessions (id, key_hash, username, token, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `
	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.KeyHash,
		session.Username,
		session.Token,
		session.ExpiresAt,
		session.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			log.Printf("level=warn component=session_store msg=\"session key collision\" constraint=%s", pgErr.ConstraintName)
		}
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// FindSessionByKeyHash fetches a session by the hash of its browser key.
func (r *PostgresSessionRepository) FindSessionByKeyHash(ctx context.Context, keyHash string) (*domain.Session, error) {
	query := `
        SELECT id, key_hash, username, token, expires_at, created_at
        FROM portal_sessions
        WHERE key_hash = $1
    `
	var session domain.Session
	err := r.db.QueryRow(ctx, query, keyHash).Scan(
		&session.ID,
		&session.KeyHash,
		&session.Username,
		&session.Token,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &session, nil
}

// DeleteSession removes the session with the given key hash.
func (r *PostgresSessionRepository) DeleteSession(ctx context.Context, keyHash string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM portal_sessions WHERE key_hash = $1`, keyHash); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions removes expired sessions and returns their IDs.
func (r *PostgresSessionRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := r.db.Query(ctx, `DELETE FROM portal_sessions WHERE expires_at <= $1 RETURNING id::text`, now)
	if err != nil {
		return nil, fmt.Errorf("delete expired sessions: %w", err)
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}
	return removed, rows.Err()
}
