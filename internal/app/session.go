/**
 * @description
 * SessionManager owns the portal's login sessions. A session binds a random
 * browser key (carried in the portal_session cookie) to the backend bearer token;
 * only a blake2b hash of the key is persisted. Each live session gets one View,
 * dropped again on logout, expiry, or when the backend rejects the token.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: Reads the bearer token's expiry claim.
 * - golang.org/x/crypto/blake2b: Hashes session keys before storage.
 * - github.com/google/uuid: Session IDs.
 */

package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/internal/store"
	"github.com/transfa/portal-service/pkg/bankclient"
	"golang.org/x/crypto/blake2b"
)

// Authenticator exchanges credentials with the banking backend. *bankclient.Client implements it.
type Authenticator interface {
	Login(ctx context.Context, req bankclient.LoginRequest) (*bankclient.LoginResponse, error)
	Register(ctx context.Context, req bankclient.RegisterRequest) (string, error)
}

// ViewFactory builds the View for a freshly resolved session. onUnauthorized must be
// wired into the View so a rejected token ends the session.
type ViewFactory func(session *domain.Session, onUnauthorized func()) *View

// SessionManagerConfig configures a SessionManager.
type SessionManagerConfig struct {
	TTL       time.Duration
	NewView   ViewFactory
	Publisher EventPublisher
	Logger    *slog.Logger
	Now       func() time.Time
}

// SessionManager logs users in and out and resolves session keys to Views.
type SessionManager struct {
	auth      Authenticator
	repo      store.SessionRepository
	views     *ViewRegistry
	newView   ViewFactory
	publisher EventPublisher
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewSessionManager creates a SessionManager.
func NewSessionManager(auth Authenticator, repo store.SessionRepository, cfg SessionManagerConfig) *SessionManager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &SessionManager{
		auth:      auth,
		repo:      repo,
		views:     NewViewRegistry(),
		newView:   cfg.NewView,
		publisher: cfg.Publisher,
		ttl:       cfg.TTL,
		logger:    logger.With("component", "session_manager"),
		now:       cfg.Now,
	}
}

// Views exposes the registry of live Views.
func (m *SessionManager) Views() *ViewRegistry {
	return m.views
}

// Login authenticates against the backend and opens a session. The returned key is
// the only copy of the raw session key and must be handed to the client.
func (m *SessionManager) Login(ctx context.Context, username, password string) (string, *domain.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", nil, domain.NewValidationError("username", "Please enter your username.")
	}
	if password == "" {
		return "", nil, domain.NewValidationError("password", "Please enter your password.")
	}

	resp, err := m.auth.Login(ctx, bankclient.LoginRequest{Username: username, Password: password})
	if err != nil {
		return "", nil, err
	}

	key, err := newSessionKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate session key: %w", err)
	}

	now := m.now()
	expiresAt := now.Add(m.ttl)
	if exp, ok := TokenExpiry(resp.AccessToken); ok && exp.Before(expiresAt) {
		expiresAt = exp
	}
	session := &domain.Session{
		ID:        uuid.NewString(),
		KeyHash:   HashSessionKey(key),
		Username:  username,
		Token:     resp.AccessToken,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	if err := m.repo.CreateSession(ctx, session); err != nil {
		return "", nil, fmt.Errorf("store session: %w", err)
	}

	m.logger.Info("session opened", "session_id", session.ID, "username", username, "expires_at", expiresAt)
	m.publish(ctx, domain.PortalEvent{EventType: domain.EventSessionLogin, Username: username})
	return key, session, nil
}

// Register creates a new customer and returns the backend's confirmation text.
func (m *SessionManager) Register(ctx context.Context, req bankclient.RegisterRequest) (string, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	switch {
	case req.FullName == "":
		return "", domain.NewValidationError("fullName", "Please enter your full name.")
	case req.Username == "":
		return "", domain.NewValidationError("username", "Please choose a username.")
	case req.Email == "":
		return "", domain.NewValidationError("email", "Please enter your email address.")
	case req.Password == "":
		return "", domain.NewValidationError("password", "Please choose a password.")
	}
	return m.auth.Register(ctx, req)
}

// Resolve loads the session for a raw key and returns its View.
// Unknown and expired keys yield ErrSessionExpired.
func (m *SessionManager) Resolve(ctx context.Context, key string) (*domain.Session, *View, error) {
	if strings.TrimSpace(key) == "" {
		return nil, nil, ErrSessionExpired
	}
	keyHash := HashSessionKey(key)
	session, err := m.repo.FindSessionByKeyHash(ctx, keyHash)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, nil, ErrSessionExpired
		}
		return nil, nil, err
	}
	if session.Expired(m.now()) {
		m.end(ctx, session, "expired")
		return nil, nil, ErrSessionExpired
	}

	view := m.views.Get(session.ID, func() *View {
		return m.newView(session, func() { m.end(context.Background(), session, "unauthorized") })
	})
	return session, view, nil
}

// Logout ends the session for a raw key. Unknown keys are ignored.
func (m *SessionManager) Logout(ctx context.Context, key string) error {
	if strings.TrimSpace(key) == "" {
		return nil
	}
	session, err := m.repo.FindSessionByKeyHash(ctx, HashSessionKey(key))
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	m.end(ctx, session, "logout")
	return nil
}

// SweepExpired deletes expired sessions and drops their Views.
func (m *SessionManager) SweepExpired(ctx context.Context) (int, error) {
	removed, err := m.repo.DeleteExpiredSessions(ctx, m.now())
	if err != nil {
		return 0, err
	}
	for _, id := range removed {
		m.views.Drop(id)
	}
	return len(removed), nil
}

func (m *SessionManager) end(ctx context.Context, session *domain.Session, reason string) {
	if err := m.repo.DeleteSession(ctx, session.KeyHash); err != nil {
		m.logger.Error("failed to delete session", "session_id", session.ID, "error", err)
	}
	m.views.Drop(session.ID)
	m.logger.Info("session closed", "session_id", session.ID, "username", session.Username, "reason", reason)
	m.publish(ctx, domain.PortalEvent{EventType: domain.EventSessionLogout, Username: session.Username, Reason: reason})
}

func (m *SessionManager) publish(ctx context.Context, event domain.PortalEvent) {
	if m.publisher == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.Timestamp = m.now()

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := m.publisher.PublishPortalEvent(publishCtx, event); err != nil {
		m.logger.Warn("portal event publish failed", "event_type", event.EventType, "error", err)
	}
}

// HashSessionKey returns the hex blake2b-256 digest stored in place of the raw key.
func HashSessionKey(key string) string {
	sum := blake2b.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// TokenExpiry reads the exp claim of a bearer token without verifying its signature.
// The backend verifies the token; the portal only needs to know when to stop using it.
func TokenExpiry(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

func newSessionKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ViewRegistry holds one View per live session.
type ViewRegistry struct {
	mu    sync.Mutex
	views map[string]*View
}

// NewViewRegistry creates an empty registry.
func NewViewRegistry() *ViewRegistry {
	return &ViewRegistry{views: make(map[string]*View)}
}

// Get returns the View for sessionID, creating it with create on first use.
func (r *ViewRegistry) Get(sessionID string, create func() *View) *View {
	r.mu.Lock()
	defer r.mu.Unlock()
	if view, ok := r.views[sessionID]; ok {
		return view
	}
	view := create()
	r.views[sessionID] = view
	return view
}

// Drop forgets the View for sessionID.
func (r *ViewRegistry) Drop(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.views, sessionID)
}

// Len reports the number of live Views.
func (r *ViewRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}
