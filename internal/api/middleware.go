/**
 * @description
 * Session middleware for the portal routes. It resolves the portal_session cookie
 * to a session and its View and stores both on the request context.
 *
 * @dependencies
 * - context, net/http: Standard Go libraries.
 */

package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

// SessionCookieName carries the raw session key.
const SessionCookieName = "portal_session"

// SessionContextKey is a custom type for the context key to avoid collisions.
type SessionContextKey string

const sessionKey SessionContextKey = "portalSession"

// SessionService is the session surface the HTTP adapter needs. *app.SessionManager implements it.
type SessionService interface {
	Login(ctx context.Context, username, password string) (string, *domain.Session, error)
	Register(ctx context.Context, req bankclient.RegisterRequest) (string, error)
	Resolve(ctx context.Context, key string) (*domain.Session, *app.View, error)
	Logout(ctx context.Context, key string) error
}

type requestSession struct {
	key     string
	session *domain.Session
	view    *app.View
}

// SessionMiddleware rejects requests without a live session.
func SessionMiddleware(sessions SessionService, cookieSecure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				writeError(w, http.StatusUnauthorized, "Please log in to continue.")
				return
			}

			session, view, err := sessions.Resolve(r.Context(), cookie.Value)
			if err != nil {
				if errors.Is(err, app.ErrSessionExpired) {
					clearSessionCookie(w, cookieSecure)
					writeError(w, http.StatusUnauthorized, app.UserMessage(err))
					return
				}
				log.Printf("level=error component=api msg=\"session lookup failed\" err=%v", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, &requestSession{key: cookie.Value, session: session, view: view})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getRequestSession(ctx context.Context) (*requestSession, bool) {
	rs, ok := ctx.Value(sessionKey).(*requestSession)
	return rs, ok && rs != nil
}

func setSessionCookie(w http.ResponseWriter, key string, expiresAt time.Time, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    key,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
