/**
 * @description
 * This file defines the domain model for the recipient-verified transfer flow:
 * the draft being edited, the verification state machine, account number
 * normalization, and the client-side validation error type.
 *
 * @notes
 * - Amounts use shopspring/decimal so nothing is ever rounded through float64.
 * - The canonical account number is the only form used in requests and comparisons.
 */

package domain

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// VerificationState is the state of the recipient verification step of a transfer draft.
type VerificationState string

const (
	StateUnverified VerificationState = "UNVERIFIED"
	StateVerifying  VerificationState = "VERIFYING"
	StateVerified   VerificationState = "VERIFIED"
	StateFailed     VerificationState = "FAILED"
)

// TransferAuthMode selects which secret confirms a transfer.
type TransferAuthMode string

const (
	AuthModePIN      TransferAuthMode = "pin"
	AuthModePassword TransferAuthMode = "password"
)

// ParseTransferAuthMode maps a configuration value onto a TransferAuthMode. Unknown values fall back to PIN.
func ParseTransferAuthMode(raw string) TransferAuthMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(AuthModePassword):
		return AuthModePassword
	default:
		return AuthModePIN
	}
}

// TransferDraft is the in-progress, unsubmitted transfer form.
type TransferDraft struct {
	RecipientAccountNumber string          `json:"recipient_account_number"`
	RecipientName          string          `json:"recipient_name,omitempty"`
	Amount                 decimal.Decimal `json:"amount"`
	Secret                 string          `json:"-"`
	Verified               bool            `json:"verified"`
}

// NormalizeAccountNumber strips hyphens and whitespace from a user-entered account number.
func NormalizeAccountNumber(raw string) string {
	return strings.Map(func(r rune) rune {
		if r == '-' || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, raw)
}

// MaskAccountNumber keeps the last four characters of an account number visible.
func MaskAccountNumber(accountNumber string) string {
	canonical := NormalizeAccountNumber(accountNumber)
	if len(canonical) <= 4 {
		return canonical
	}
	return strings.Repeat("*", len(canonical)-4) + canonical[len(canonical)-4:]
}

// ValidationError is a client-side rejection raised before any request reaches the backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError for the given form field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidatePIN enforces the 4 numeric digit PIN rule.
func ValidatePIN(pin string) error {
	if pin == "" {
		return NewValidationError("pin", "PIN is required")
	}
	if len(pin) != 4 {
		return NewValidationError("pin", "PIN must be exactly 4 digits")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return NewValidationError("pin", "PIN must be exactly 4 digits")
		}
	}
	return nil
}

// ValidateSecret checks a transfer confirmation secret against the configured auth mode.
func ValidateSecret(mode TransferAuthMode, secret string) error {
	if mode == AuthModePassword {
		if secret == "" {
			return NewValidationError("password", "Please enter your password to confirm")
		}
		return nil
	}
	return ValidatePIN(secret)
}

// ValidateAmount requires a strictly positive amount.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return NewValidationError("amount", "Please enter a valid, positive amount")
	}
	return nil
}

// ParseAmount parses a user-entered amount and validates that it is positive.
func ParseAmount(raw string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return decimal.Zero, NewValidationError("amount", "Please enter a valid, positive amount")
	}
	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "Please enter a valid, positive amount")
	}
	if err := ValidateAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}
