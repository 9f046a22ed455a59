/**
 * @description
 * HTTP handlers for the portal-service. Handlers are thin: they decode the request,
 * call one View or SessionManager method, and render the typed result or error.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Amount parsing.
 * - internal/app: Session manager, Views, and typed errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

// incorrectPINMessage replaces backend messages that reject the PIN.
const incorrectPINMessage = "Incorrect PIN. Please try again."

// PortalHandlers holds the dependencies of the portal HTTP handlers.
type PortalHandlers struct {
	sessions     SessionService
	verifyGuard  *app.VerifyGuard
	cookieSecure bool
}

// NewPortalHandlers creates the handler set. A nil guard disables verification rate limiting.
func NewPortalHandlers(sessions SessionService, verifyGuard *app.VerifyGuard, cookieSecure bool) *PortalHandlers {
	return &PortalHandlers{sessions: sessions, verifyGuard: verifyGuard, cookieSecure: cookieSecure}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error    string            `json:"error"`
	Transfer *app.TransferView `json:"transfer,omitempty"`
}

// LoginHandler exchanges credentials for a session cookie.
func (h *PortalHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	key, session, err := h.sessions.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		log.Printf("level=warn component=api endpoint=login outcome=failed username=%s err=%v", req.Username, err)
		h.writeAppError(w, r, err, nil)
		return
	}

	setSessionCookie(w, key, session.ExpiresAt, h.cookieSecure)
	log.Printf("level=info component=api endpoint=login outcome=success username=%s session_id=%s", session.Username, session.ID)
	writeJSON(w, http.StatusOK, loginResponse{Username: session.Username, ExpiresAt: session.ExpiresAt})
}

// RegisterHandler creates a new customer on the backend.
func (h *PortalHandlers) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req bankclient.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	message, err := h.sessions.Register(r.Context(), req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=register outcome=failed username=%s err=%v", req.Username, err)
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"message": message})
}

// LogoutHandler ends the session and clears the cookie. It succeeds without a session.
func (h *PortalHandlers) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		if err := h.sessions.Logout(r.Context(), cookie.Value); err != nil {
			log.Printf("level=error component=api endpoint=logout msg=\"logout failed\" err=%v", err)
		}
	}
	clearSessionCookie(w, h.cookieSecure)
	w.WriteHeader(http.StatusNoContent)
}

// writeAppError maps a typed error to a status code and user-facing message.
// Transfer endpoints pass the form state so the client can re-render it.
func (h *PortalHandlers) writeAppError(w http.ResponseWriter, r *http.Request, err error, transfer *app.TransferView) {
	status := http.StatusInternalServerError
	message := "Internal server error"

	var validationErr *domain.ValidationError
	var rateErr *app.RateLimitError
	var remoteErr *bankclient.RemoteError
	var networkErr *bankclient.NetworkError
	rs, hasSession := getRequestSession(r.Context())

	switch {
	case errors.As(err, &rateErr):
		w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		status, message = http.StatusTooManyRequests, app.UserMessage(err)
	case errors.As(err, &validationErr):
		status, message = http.StatusBadRequest, validationErr.Message
	case errors.Is(err, app.ErrVerificationInProgress), errors.Is(err, app.ErrSubmissionInProgress), errors.Is(err, app.ErrStaleResponse):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, app.ErrNoActiveAccount):
		status, message = http.StatusBadRequest, app.UserMessage(err)
	case hasSession && errors.Is(err, bankclient.ErrUnauthorized), errors.Is(err, app.ErrSessionExpired), errors.Is(err, bankclient.ErrMissingToken):
		// A rejected token ends the portal session; login failures have no session and fall through to the remote case.
		if hasSession {
			if logoutErr := h.sessions.Logout(r.Context(), rs.key); logoutErr != nil {
				log.Printf("level=error component=api msg=\"logout after unauthorized failed\" err=%v", logoutErr)
			}
		}
		clearSessionCookie(w, h.cookieSecure)
		status, message = http.StatusUnauthorized, "Your session has expired. Please log in again."
	case errors.As(err, &remoteErr):
		status = remoteErr.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusBadGateway
		}
		message = presentRemoteMessage(remoteErr.Message)
	case errors.As(err, &networkErr):
		status, message = http.StatusServiceUnavailable, app.UserMessage(err)
	default:
		log.Printf("level=error component=api method=%s path=%s err=%v", r.Method, r.URL.Path, err)
	}

	if transfer != nil && transfer.Error != "" && status != http.StatusUnauthorized {
		transfer.Error = presentRemoteMessage(transfer.Error)
	}
	writeJSON(w, status, errorResponse{Error: message, Transfer: transfer})
}

// presentRemoteMessage shows backend text verbatim, except PIN rejections which get a fixed wording.
func presentRemoteMessage(message string) string {
	lower := strings.ToLower(message)
	if strings.Contains(lower, "pin") && (strings.Contains(lower, "invalid") || strings.Contains(lower, "incorrect")) {
		return incorrectPINMessage
	}
	return message
}

// parseAmountField accepts an amount as a JSON number or string.
func parseAmountField(raw json.RawMessage) (decimal.Decimal, error) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, "\"") {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, domain.NewValidationError("amount", "Please enter a valid, positive amount")
		}
	}
	if text == "null" {
		text = ""
	}
	return domain.ParseAmount(text)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		log.Printf("level=warn component=api path=%s outcome=reject reason=invalid_json err=%v", r.URL.Path, err)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
