package app

import (
	"errors"

	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

var (
	// ErrVerificationInProgress is returned when a verify action arrives while one is already in flight.
	ErrVerificationInProgress = errors.New("recipient verification already in progress")
	// ErrSubmissionInProgress is returned when a submit action arrives while one is already in flight.
	ErrSubmissionInProgress = errors.New("transfer submission already in progress")
	// ErrStaleResponse is returned when a backend response arrives after the draft it belonged to was reset.
	ErrStaleResponse = errors.New("response discarded: draft changed while request was in flight")
	// ErrSessionExpired is returned when the session or its bearer token is no longer valid.
	ErrSessionExpired = errors.New("session expired")
	// ErrRateLimited is returned when a session exceeds the verification rate limit.
	ErrRateLimited = errors.New("too many verification attempts")
	// ErrNoActiveAccount is returned when an account-scoped action runs before an account is selected.
	ErrNoActiveAccount = errors.New("no active account selected")
)

// networkErrorMessage is what the user sees when the backend could not be reached.
const networkErrorMessage = "Cannot connect to the server."

// UserMessage renders an error the way it is displayed inline next to a form.
// Backend text is shown verbatim.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Message
	}

	var remoteErr *bankclient.RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Message
	}

	var networkErr *bankclient.NetworkError
	if errors.As(err, &networkErr) {
		return networkErrorMessage
	}

	switch {
	case errors.Is(err, ErrNoActiveAccount):
		return "Please select an account first."
	case errors.Is(err, ErrRateLimited):
		return "Too many verification attempts. Please wait and try again."
	case errors.Is(err, ErrSessionExpired), errors.Is(err, bankclient.ErrMissingToken):
		return "Your session has expired. Please log in again."
	}
	return err.Error()
}

// IsValidation reports whether err is a client-side validation failure.
func IsValidation(err error) bool {
	var validationErr *domain.ValidationError
	return errors.As(err, &validationErr)
}
