/**
 * @description
 * View is the per-session dashboard controller. It owns everything the browser
 * script used to keep in globals: the user, the cached account list, the active
 * account, the last fetched balance and transactions, the visibility timers, and
 * the transfer workflow. Every UI event maps to one method that returns a typed
 * result; rendering stays in the adapters.
 *
 * @dependencies
 * - github.com/shopspring/decimal: Money amounts.
 * - pkg/bankclient: The authenticated banking API client.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

// PortalBackend is the banking API surface used by a View. *bankclient.AuthClient implements it.
type PortalBackend interface {
	TransferBackend
	Me(ctx context.Context) (*domain.User, error)
	Accounts(ctx context.Context) ([]domain.Account, error)
	Balance(ctx context.Context, accountID int64) (decimal.Decimal, error)
	Transactions(ctx context.Context, accountID int64) ([]domain.Transaction, error)
	Deposit(ctx context.Context, accountID int64, req bankclient.DepositRequest) error
	PayBill(ctx context.Context, accountID int64, req bankclient.PayBillRequest) error
	SelfTransfer(ctx context.Context, req bankclient.SelfTransferRequest) error
	UpdateProfile(ctx context.Context, req bankclient.ProfileUpdateRequest) (*domain.User, error)
	ChangePassword(ctx context.Context, req bankclient.PasswordChangeRequest) error
	SetPIN(ctx context.Context, req bankclient.PinSetupRequest) error
	Card(ctx context.Context, accountID int64) (*domain.DebitCard, error)
	CardCVV(ctx context.Context, accountID int64) (string, error)
	ToggleCard(ctx context.Context, accountID int64, option domain.CardOption) (*domain.DebitCard, error)
	Activity(ctx context.Context, accountID int64) ([]domain.ActivityLog, error)
	Banks(ctx context.Context) ([]domain.Bank, error)
	LinkBank(ctx context.Context, bankID int64) (*domain.Account, error)
}

// ViewConfig configures a View.
type ViewConfig struct {
	Username          string
	AuthMode          domain.TransferAuthMode
	ReverifyOnFailure bool
	BalanceRevealTTL  time.Duration
	CVVRevealTTL      time.Duration
	Publisher         EventPublisher
	Logger            *slog.Logger
	// OnUnauthorized runs when the backend rejects the session's token.
	OnUnauthorized func()
	AfterFunc      AfterFunc
	Now            func() time.Time
}

// TransactionRow is one rendered line of the transactions table.
type TransactionRow struct {
	ID          int64  `json:"id"`
	Timestamp   string `json:"timestamp"`
	Description string `json:"description"`
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Credit      bool   `json:"credit"`
}

// Dashboard is the render model of the main page.
type Dashboard struct {
	User            *domain.User     `json:"user,omitempty"`
	Accounts        []domain.Account `json:"accounts"`
	ActiveAccountID int64            `json:"active_account_id"`
	AccountNumber   string           `json:"account_number,omitempty"`
	Balance         string           `json:"balance"`
	BalanceVisible  bool             `json:"balance_visible"`
	BalanceHideAt   *time.Time       `json:"balance_hide_at,omitempty"`
	Transactions    []TransactionRow `json:"transactions"`
	Transfer        TransferView     `json:"transfer"`
}

// CardView is the render model of the debit card panel.
type CardView struct {
	Card       *domain.DebitCard `json:"card"`
	CVV        string            `json:"cvv"`
	CVVVisible bool              `json:"cvv_visible"`
	CVVHideAt  *time.Time        `json:"cvv_hide_at,omitempty"`
}

// View is the per-session controller.
type View struct {
	backend  PortalBackend
	cfg      ViewConfig
	logger   *slog.Logger
	transfer *TransferWorkflow
	balance  *Visibility
	cvv      *Visibility

	mu           sync.Mutex
	user         *domain.User
	accounts     []domain.Account
	activeID     int64
	balanceValue decimal.Decimal
	transactions []domain.Transaction
	card         *domain.DebitCard
}

// NewView creates a View bound to one user's authenticated backend client.
func NewView(backend PortalBackend, cfg ViewConfig) *View {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.BalanceRevealTTL <= 0 {
		cfg.BalanceRevealTTL = 10 * time.Second
	}
	if cfg.CVVRevealTTL <= 0 {
		cfg.CVVRevealTTL = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	v := &View{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "portal_view", "username", cfg.Username),
		balance: NewVisibility(cfg.BalanceRevealTTL, cfg.AfterFunc, cfg.Now),
		cvv:     NewVisibility(cfg.CVVRevealTTL, cfg.AfterFunc, cfg.Now),
	}
	v.transfer = NewTransferWorkflow(backend, TransferWorkflowConfig{
		AuthMode:          cfg.AuthMode,
		ReverifyOnFailure: cfg.ReverifyOnFailure,
		Username:          cfg.Username,
		Publisher:         cfg.Publisher,
		Logger:            logger,
		Now:               cfg.Now,
		OnCompleted: func(TransferReceipt) {
			// The HTTP request that submitted the transfer may already be done; refresh on a detached context.
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := v.Refresh(ctx); err != nil {
				v.logger.Warn("refresh after transfer failed", "error", err)
			}
		},
	})
	return v
}

// Transfer returns the view's transfer workflow.
func (v *View) Transfer() *TransferWorkflow {
	return v.transfer
}

// Load fetches the user, their accounts, and the active account's balance and transactions.
func (v *View) Load(ctx context.Context) (*Dashboard, error) {
	user, err := v.backend.Me(ctx)
	if err != nil {
		return nil, v.check(fmt.Errorf("fetch user details: %w", err))
	}
	accounts, err := v.backend.Accounts(ctx)
	if err != nil {
		return nil, v.check(fmt.Errorf("fetch accounts: %w", err))
	}

	v.mu.Lock()
	v.user = user
	v.accounts = accounts
	if !v.ownsLocked(v.activeID) {
		v.activeID = 0
		if len(accounts) > 0 {
			v.activeID = accounts[0].ID
		}
	}
	activeID := v.activeID
	v.mu.Unlock()

	v.transfer.SetAccount(activeID)
	if activeID != 0 {
		if err := v.Refresh(ctx); err != nil {
			return nil, err
		}
	}
	return v.Dashboard(), nil
}

// SelectAccount makes one of the cached accounts active.
func (v *View) SelectAccount(ctx context.Context, accountID int64) (*Dashboard, error) {
	v.mu.Lock()
	if !v.ownsLocked(accountID) {
		v.mu.Unlock()
		return nil, domain.NewValidationError("accountId", "Account not found or user does not own this account.")
	}
	v.activeID = accountID
	v.card = nil
	v.mu.Unlock()

	v.cvv.Hide()
	v.balance.Hide()
	v.transfer.SetAccount(accountID)
	if err := v.Refresh(ctx); err != nil {
		return nil, err
	}
	return v.Dashboard(), nil
}

// Refresh re-fetches balance and transactions of the active account.
func (v *View) Refresh(ctx context.Context) error {
	accountID, err := v.activeAccount()
	if err != nil {
		return err
	}
	balance, err := v.backend.Balance(ctx, accountID)
	if err != nil {
		return v.check(fmt.Errorf("fetch balance: %w", err))
	}
	txs, err := v.backend.Transactions(ctx, accountID)
	if err != nil {
		return v.check(fmt.Errorf("fetch transactions: %w", err))
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if v.activeID != accountID {
		return nil
	}
	v.balanceValue = balance
	v.transactions = txs
	return nil
}

// Dashboard renders the current state without touching the backend.
func (v *View) Dashboard() *Dashboard {
	v.mu.Lock()
	d := &Dashboard{
		User:            v.user,
		Accounts:        append([]domain.Account(nil), v.accounts...),
		ActiveAccountID: v.activeID,
		Transactions:    make([]TransactionRow, 0, len(v.transactions)),
	}
	for _, acc := range v.accounts {
		if acc.ID == v.activeID {
			d.AccountNumber = acc.AccountNumber
		}
	}
	for _, tx := range v.transactions {
		d.Transactions = append(d.Transactions, renderTransaction(tx))
	}
	v.mu.Unlock()

	d.Balance, d.BalanceVisible = v.balance.Display(BalanceMask)
	if hideAt, ok := v.balance.HideAt(); ok {
		d.BalanceHideAt = &hideAt
	}
	d.Transfer = v.transfer.View()
	return d
}

// Deposit credits the active account.
func (v *View) Deposit(ctx context.Context, amount decimal.Decimal, source string) error {
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	accountID, err := v.activeAccount()
	if err != nil {
		return err
	}
	if strings.TrimSpace(source) == "" {
		source = "Online deposit"
	}
	if err := v.backend.Deposit(ctx, accountID, bankclient.DepositRequest{Amount: amount, Source: source}); err != nil {
		return v.check(err)
	}
	v.logger.Info("deposit completed", "account_id", accountID, "amount", amount.String())
	return v.refreshAfterMovement(ctx)
}

// PayBill pays a biller from the active account.
func (v *View) PayBill(ctx context.Context, biller string, amount decimal.Decimal, pin string) error {
	biller = strings.TrimSpace(biller)
	if biller == "" {
		return domain.NewValidationError("billerName", "Please enter a biller name.")
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	if err := domain.ValidatePIN(pin); err != nil {
		return err
	}
	accountID, err := v.activeAccount()
	if err != nil {
		return err
	}
	req := bankclient.PayBillRequest{BillerName: biller, Amount: amount, PIN: pin}
	if err := v.backend.PayBill(ctx, accountID, req); err != nil {
		return v.check(err)
	}
	v.logger.Info("bill paid", "account_id", accountID, "amount", amount.String())
	return v.refreshAfterMovement(ctx)
}

// SelfTransfer moves money from the active account to another account the user owns.
func (v *View) SelfTransfer(ctx context.Context, destinationID int64, amount decimal.Decimal, pin string) error {
	sourceID, err := v.activeAccount()
	if err != nil {
		return err
	}
	v.mu.Lock()
	owned := v.ownsLocked(destinationID)
	v.mu.Unlock()
	if !owned {
		return domain.NewValidationError("destinationAccountId", "Please choose one of your accounts as the destination.")
	}
	if destinationID == sourceID {
		return domain.NewValidationError("destinationAccountId", "Source and destination accounts cannot be the same.")
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	if err := domain.ValidatePIN(pin); err != nil {
		return err
	}
	req := bankclient.SelfTransferRequest{
		SourceAccountID:      sourceID,
		DestinationAccountID: destinationID,
		Amount:               amount,
		PIN:                  pin,
	}
	if err := v.backend.SelfTransfer(ctx, req); err != nil {
		return v.check(err)
	}
	v.logger.Info("self transfer completed", "source_account_id", sourceID, "destination_account_id", destinationID)
	return v.refreshAfterMovement(ctx)
}

// UpdateProfile edits the user's full name and email.
func (v *View) UpdateProfile(ctx context.Context, fullName, email string) (*domain.User, error) {
	fullName = strings.TrimSpace(fullName)
	email = strings.TrimSpace(email)
	if n := len([]rune(fullName)); n < 3 || n > 50 {
		return nil, domain.NewValidationError("fullName", "Full name must be between 3 and 50 characters.")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email || len(email) > 50 {
		return nil, domain.NewValidationError("email", "Please enter a valid email address.")
	}
	user, err := v.backend.UpdateProfile(ctx, bankclient.ProfileUpdateRequest{FullName: fullName, Email: email})
	if err != nil {
		return nil, v.check(err)
	}
	v.mu.Lock()
	v.user = user
	v.mu.Unlock()
	return user, nil
}

// ChangePassword rotates the login password.
func (v *View) ChangePassword(ctx context.Context, current, next string) error {
	if current == "" {
		return domain.NewValidationError("currentPassword", "Current password is required.")
	}
	if n := len(next); n < 6 || n > 40 {
		return domain.NewValidationError("newPassword", "New password must be between 6 and 40 characters.")
	}
	if current == next {
		return domain.NewValidationError("newPassword", "New password must differ from the current password.")
	}
	if err := v.backend.ChangePassword(ctx, bankclient.PasswordChangeRequest{CurrentPassword: current, NewPassword: next}); err != nil {
		return v.check(err)
	}
	return nil
}

// SetPIN sets the transaction PIN after confirming the password.
func (v *View) SetPIN(ctx context.Context, password, pin string) error {
	if password == "" {
		return domain.NewValidationError("password", "Current password is required.")
	}
	if err := domain.ValidatePIN(pin); err != nil {
		return err
	}
	if err := v.backend.SetPIN(ctx, bankclient.PinSetupRequest{Password: password, PIN: pin}); err != nil {
		return v.check(err)
	}
	return nil
}

// Card returns the debit card panel for the active account.
func (v *View) Card(ctx context.Context) (*CardView, error) {
	accountID, err := v.activeAccount()
	if err != nil {
		return nil, err
	}
	card, err := v.backend.Card(ctx, accountID)
	if err != nil {
		return nil, v.check(err)
	}
	v.mu.Lock()
	v.card = card
	v.mu.Unlock()
	return v.cardView(card), nil
}

// ToggleCard flips one card control on the active account.
func (v *View) ToggleCard(ctx context.Context, option domain.CardOption) (*CardView, error) {
	accountID, err := v.activeAccount()
	if err != nil {
		return nil, err
	}
	card, err := v.backend.ToggleCard(ctx, accountID, option)
	if err != nil {
		return nil, v.check(err)
	}
	v.mu.Lock()
	v.card = card
	v.mu.Unlock()
	v.logger.Info("card control toggled", "account_id", accountID, "option", string(option))
	return v.cardView(card), nil
}

// Reveal shows the balance or the CVV until its auto-hide timer fires.
func (v *View) Reveal(ctx context.Context, kind SecretKind) (time.Time, error) {
	switch kind {
	case SecretBalance:
		v.mu.Lock()
		if v.activeID == 0 {
			v.mu.Unlock()
			return time.Time{}, ErrNoActiveAccount
		}
		shown := FormatMoney(v.balanceValue)
		v.mu.Unlock()
		return v.balance.Reveal(shown), nil
	case SecretCVV:
		accountID, err := v.activeAccount()
		if err != nil {
			return time.Time{}, err
		}
		cvv, err := v.backend.CardCVV(ctx, accountID)
		if err != nil {
			return time.Time{}, v.check(err)
		}
		return v.cvv.Reveal(cvv), nil
	default:
		return time.Time{}, domain.NewValidationError("kind", "Unknown value to reveal: "+string(kind))
	}
}

// Revealed returns what is currently shown for kind: the value while revealed, the mask otherwise.
func (v *View) Revealed(kind SecretKind) (string, bool) {
	if kind == SecretCVV {
		return v.cvv.Display(CVVMask)
	}
	return v.balance.Display(BalanceMask)
}

// Hide masks the balance or the CVV immediately.
func (v *View) Hide(kind SecretKind) error {
	switch kind {
	case SecretBalance:
		v.balance.Hide()
	case SecretCVV:
		v.cvv.Hide()
	default:
		return domain.NewValidationError("kind", "Unknown value to hide: "+string(kind))
	}
	return nil
}

// Activity returns the active account's activity log.
func (v *View) Activity(ctx context.Context) ([]domain.ActivityLog, error) {
	accountID, err := v.activeAccount()
	if err != nil {
		return nil, err
	}
	logs, err := v.backend.Activity(ctx, accountID)
	if err != nil {
		return nil, v.check(err)
	}
	return logs, nil
}

// Banks lists the partner banks.
func (v *View) Banks(ctx context.Context) ([]domain.Bank, error) {
	banks, err := v.backend.Banks(ctx)
	if err != nil {
		return nil, v.check(err)
	}
	return banks, nil
}

// LinkBank opens an account with a partner bank and reloads the account list.
func (v *View) LinkBank(ctx context.Context, bankID int64) (*Dashboard, error) {
	if bankID <= 0 {
		return nil, domain.NewValidationError("bankId", "Please choose a bank.")
	}
	account, err := v.backend.LinkBank(ctx, bankID)
	if err != nil {
		return nil, v.check(err)
	}
	v.logger.Info("bank linked", "bank_id", bankID, "account_id", account.ID)
	return v.Load(ctx)
}

// Spending aggregates the fetched transactions' debits by type.
func (v *View) Spending() []domain.SpendingByCategory {
	v.mu.Lock()
	txs := append([]domain.Transaction(nil), v.transactions...)
	v.mu.Unlock()
	return SpendingByCategory(txs)
}

// ExportTransactionsCSV fetches the active account's transactions and writes them as CSV.
func (v *View) ExportTransactionsCSV(ctx context.Context, w io.Writer) error {
	accountID, err := v.activeAccount()
	if err != nil {
		return err
	}
	txs, err := v.backend.Transactions(ctx, accountID)
	if err != nil {
		return v.check(err)
	}
	return WriteTransactionsCSV(w, txs)
}

func (v *View) refreshAfterMovement(ctx context.Context) error {
	if err := v.Refresh(ctx); err != nil {
		// The movement itself succeeded; a stale dashboard is not a failure of the action.
		v.logger.Warn("refresh after money movement failed", "error", err)
		if errors.Is(err, bankclient.ErrUnauthorized) {
			return err
		}
	}
	return nil
}

func (v *View) activeAccount() (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.activeID == 0 {
		return 0, ErrNoActiveAccount
	}
	return v.activeID, nil
}

func (v *View) ownsLocked(accountID int64) bool {
	if accountID == 0 {
		return false
	}
	for _, acc := range v.accounts {
		if acc.ID == accountID {
			return true
		}
	}
	return false
}

func (v *View) cardView(card *domain.DebitCard) *CardView {
	out := &CardView{Card: card}
	out.CVV, out.CVVVisible = v.cvv.Display(CVVMask)
	if hideAt, ok := v.cvv.HideAt(); ok {
		out.CVVHideAt = &hideAt
	}
	return out
}

// check runs the unauthorized hook when the backend rejected the token.
func (v *View) check(err error) error {
	if err != nil && errors.Is(err, bankclient.ErrUnauthorized) && v.cfg.OnUnauthorized != nil {
		v.cfg.OnUnauthorized()
	}
	return err
}

func renderTransaction(tx domain.Transaction) TransactionRow {
	sign := "+"
	if !tx.IsCredit() {
		sign = "-"
	}
	return TransactionRow{
		ID:          tx.ID,
		Timestamp:   tx.Timestamp,
		Description: tx.Description,
		Type:        string(tx.Type),
		Amount:      sign + "$" + groupThousands(tx.Amount.Abs().StringFixed(2)),
		Credit:      tx.IsCredit(),
	}
}

// FormatMoney renders an amount as "$ 1,234.56".
func FormatMoney(amount decimal.Decimal) string {
	s := groupThousands(amount.Abs().StringFixed(2))
	if amount.IsNegative() {
		return "-$ " + s
	}
	return "$ " + s
}

func groupThousands(fixed string) string {
	intPart, frac, _ := strings.Cut(fixed, ".")
	if len(intPart) <= 3 {
		return fixed
	}
	var b strings.Builder
	lead := len(intPart) % 3
	if lead > 0 {
		b.WriteString(intPart[:lead])
	}
	for i := lead; i < len(intPart); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(intPart[i : i+3])
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
