package bankclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/transfa/portal-service/internal/domain"
)

// AuthClient issues account calls on behalf of one authenticated user.
type AuthClient struct {
	client *Client
	token  string
}

// TransferRequest is the payload for POST /account/{accountId}/transfer. Exactly one of
// PIN or Password is set, depending on the portal's transfer auth mode.
type TransferRequest struct {
	RecipientAccountNumber string          `json:"recipientAccountNumber"`
	Amount                 decimal.Decimal `json:"amount"`
	PIN                    string          `json:"pin,omitempty"`
	Password               string          `json:"password,omitempty"`
}

// SelfTransferRequest moves money between two accounts owned by the same user.
type SelfTransferRequest struct {
	SourceAccountID      int64           `json:"sourceAccountId"`
	DestinationAccountID int64           `json:"destinationAccountId"`
	Amount               decimal.Decimal `json:"amount"`
	PIN                  string          `json:"pin"`
}

// DepositRequest credits the account.
type DepositRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Source string          `json:"source,omitempty"`
}

// PayBillRequest debits the account towards a named biller.
type PayBillRequest struct {
	BillerName string          `json:"billerName"`
	Amount     decimal.Decimal `json:"amount"`
	PIN        string          `json:"pin"`
}

// ProfileUpdateRequest edits the user's display details.
type ProfileUpdateRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

// PasswordChangeRequest rotates the login password.
type PasswordChangeRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// PinSetupRequest sets or replaces the transaction PIN.
type PinSetupRequest struct {
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

func (a *AuthClient) call(ctx context.Context, method, path string, payload, out interface{}) error {
	if a == nil || a.token == "" {
		return ErrMissingToken
	}
	return a.client.do(ctx, a.token, method, path, payload, out)
}

// VerifyRecipient resolves a canonical account number to the holder's display name.
func (a *AuthClient) VerifyRecipient(ctx context.Context, accountNumber string) (string, error) {
	var name string
	path := "/account/verify-recipient?" + escapeQuery("accountNumber", accountNumber)
	if err := a.call(ctx, http.MethodGet, path, nil, &name); err != nil {
		return "", err
	}
	return name, nil
}

// Transfer submits a verified transfer from the given account.
func (a *AuthClient) Transfer(ctx context.Context, accountID int64, req TransferRequest) error {
	return a.call(ctx, http.MethodPost, fmt.Sprintf("/account/%d/transfer", accountID), req, nil)
}

// SelfTransfer moves money between the user's own accounts.
func (a *AuthClient) SelfTransfer(ctx context.Context, req SelfTransferRequest) error {
	return a.call(ctx, http.MethodPost, "/account/self-transfer", req, nil)
}

// Deposit credits the given account.
func (a *AuthClient) Deposit(ctx context.Context, accountID int64, req DepositRequest) error {
	return a.call(ctx, http.MethodPost, fmt.Sprintf("/account/%d/deposit", accountID), req, nil)
}

// PayBill pays a biller from the given account.
func (a *AuthClient) PayBill(ctx context.Context, accountID int64, req PayBillRequest) error {
	return a.call(ctx, http.MethodPost, fmt.Sprintf("/account/%d/paybill", accountID), req, nil)
}

// Me returns the authenticated user's details.
func (a *AuthClient) Me(ctx context.Context) (*domain.User, error) {
	var user domain.User
	if err := a.call(ctx, http.MethodGet, "/account/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Accounts lists the user's accounts.
func (a *AuthClient) Accounts(ctx context.Context) ([]domain.Account, error) {
	var accounts []domain.Account
	if err := a.call(ctx, http.MethodGet, "/account/my-accounts", nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// Balance returns the current balance of an account.
func (a *AuthClient) Balance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/account/%d/balance", accountID), nil, &balance); err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Transactions returns the recent transactions of an account, newest first.
func (a *AuthClient) Transactions(ctx context.Context, accountID int64) ([]domain.Transaction, error) {
	var txs []domain.Transaction
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/account/%d/transactions", accountID), nil, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// UpdateProfile edits the user's full name and email.
func (a *AuthClient) UpdateProfile(ctx context.Context, req ProfileUpdateRequest) (*domain.User, error) {
	var user domain.User
	if err := a.call(ctx, http.MethodPut, "/account/profile", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword rotates the user's login password.
func (a *AuthClient) ChangePassword(ctx context.Context, req PasswordChangeRequest) error {
	return a.call(ctx, http.MethodPost, "/account/change-password", req, nil)
}

// SetPIN sets the user's transaction PIN.
func (a *AuthClient) SetPIN(ctx context.Context, req PinSetupRequest) error {
	return a.call(ctx, http.MethodPost, "/account/set-pin", req, nil)
}

// Card returns the debit card attached to an account.
func (a *AuthClient) Card(ctx context.Context, accountID int64) (*domain.DebitCard, error) {
	var card domain.DebitCard
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/account/%d/card", accountID), nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// CardCVV fetches the card's CVV. Callers should not retain it longer than needed.
func (a *AuthClient) CardCVV(ctx context.Context, accountID int64) (string, error) {
	var cvv string
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/account/%d/card/cvv", accountID), nil, &cvv); err != nil {
		return "", err
	}
	return cvv, nil
}

// ToggleCard flips one card control and returns the updated card.
func (a *AuthClient) ToggleCard(ctx context.Context, accountID int64, option domain.CardOption) (*domain.DebitCard, error) {
	var card domain.DebitCard
	path := fmt.Sprintf("/account/%d/card/toggle/%s", accountID, option)
	if err := a.call(ctx, http.MethodPost, path, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}

// Activity returns the account's activity log.
func (a *AuthClient) Activity(ctx context.Context, accountID int64) ([]domain.ActivityLog, error) {
	var logs []domain.ActivityLog
	if err := a.call(ctx, http.MethodGet, fmt.Sprintf("/account/%d/activity", accountID), nil, &logs); err != nil {
		return nil, err
	}
	return logs, nil
}

// Banks lists the partner banks.
func (a *AuthClient) Banks(ctx context.Context) ([]domain.Bank, error) {
	var banks []domain.Bank
	if err := a.call(ctx, http.MethodGet, "/banks/all", nil, &banks); err != nil {
		return nil, err
	}
	return banks, nil
}

// LinkBank opens an account with a partner bank.
func (a *AuthClient) LinkBank(ctx context.Context, bankID int64) (*domain.Account, error) {
	var account domain.Account
	if err := a.call(ctx, http.MethodPost, fmt.Sprintf("/banks/add/%d", bankID), nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}
