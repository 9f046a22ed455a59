package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType mirrors the banking backend's transaction categories.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "DEPOSIT"
	TransactionTransfer   TransactionType = "TRANSFER"
	TransactionPayment    TransactionType = "PAYMENT"
	TransactionWithdrawal TransactionType = "WITHDRAWAL"
)

// User is the authenticated customer as returned by GET /account/me.
type User struct {
	Username      string `json:"username"`
	FullName      string `json:"fullName"`
	Email         string `json:"email,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

// Bank is a partner bank a user can hold an account with.
type Bank struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// DebitCard is the card attached to an account.
type DebitCard struct {
	CardHolderName                   string `json:"cardHolderName"`
	CardNumber                       string `json:"cardNumber"`
	ExpiryDate                       string `json:"expiryDate"`
	Active                           bool   `json:"active"`
	OnlineTransactionsEnabled        bool   `json:"onlineTransactionsEnabled"`
	InternationalTransactionsEnabled bool   `json:"internationalTransactionsEnabled"`
}

// Account is one of the user's bank accounts.
type Account struct {
	ID            int64           `json:"id"`
	AccountNumber string          `json:"accountNumber"`
	Balance       decimal.Decimal `json:"balance"`
	Bank          *Bank           `json:"bank,omitempty"`
	DebitCard     *DebitCard      `json:"debitCard,omitempty"`
}

// Transaction is a ledger line on an account. Debits carry a negative amount.
type Transaction struct {
	ID          int64           `json:"id"`
	Type        TransactionType `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Timestamp   string          `json:"timestamp"`
	Description string          `json:"description"`
}

// IsCredit reports whether the transaction added money to the account.
func (t Transaction) IsCredit() bool {
	return !t.Amount.IsNegative()
}

// ActivityLog is an audit entry for security-relevant account actions.
type ActivityLog struct {
	ID           int64  `json:"id"`
	Timestamp    string `json:"timestamp"`
	ActivityType string `json:"activityType"`
	Description  string `json:"description"`
}

// SpendingByCategory aggregates debits per transaction type.
type SpendingByCategory struct {
	Category   string          `json:"category"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

// CardOption names a debit card control that can be toggled.
type CardOption string

const (
	CardOptionMaster        CardOption = "master"
	CardOptionOnline        CardOption = "online"
	CardOptionInternational CardOption = "international"
)

// ParseCardOption validates a card toggle option.
func ParseCardOption(raw string) (CardOption, error) {
	switch CardOption(raw) {
	case CardOptionMaster, CardOptionOnline, CardOptionInternational:
		return CardOption(raw), nil
	default:
		return "", NewValidationError("option", "Invalid card option specified: "+raw)
	}
}

// Session binds a browser session key to the user's backend bearer token.
type Session struct {
	ID        string    `json:"id"`
	KeyHash   string    `json:"-"`
	Username  string    `json:"username"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is no longer usable at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
