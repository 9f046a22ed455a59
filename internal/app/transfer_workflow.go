/**
 * @description
 * TransferWorkflow gates a money transfer behind an explicit recipient verification
 * step. A verified recipient name is bound to the exact canonical account number that
 * produced it: any edit of the recipient field invalidates the binding, and responses
 * that arrive after such an edit are discarded.
 *
 * @notes
 * - The mutex is held only around state transitions, never across backend calls.
 * - Every reset bumps the epoch; an in-flight request captures the epoch it started
 *   under and its result is applied only if the epoch is unchanged.
 * - State-change and completion hooks run after the mutex is released.
 */

package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

// TransferBackend is the subset of the banking API the transfer workflow needs.
type TransferBackend interface {
	VerifyRecipient(ctx context.Context, accountNumber string) (string, error)
	Transfer(ctx context.Context, accountID int64, req bankclient.TransferRequest) error
}

// EventPublisher emits portal events. Implementations must tolerate being called from request goroutines.
type EventPublisher interface {
	PublishPortalEvent(ctx context.Context, event domain.PortalEvent) error
}

// StateChange records one transition of the verification state machine.
type StateChange struct {
	From domain.VerificationState
	To   domain.VerificationState
}

// TransferReceipt describes a transfer the backend accepted.
type TransferReceipt struct {
	AccountID              int64           `json:"account_id"`
	RecipientAccountNumber string          `json:"recipient_account_number"`
	RecipientName          string          `json:"recipient_name"`
	Amount                 decimal.Decimal `json:"amount"`
	SubmittedAt            time.Time       `json:"submitted_at"`
}

// TransferView is the render model of the transfer form.
type TransferView struct {
	Open                   bool                     `json:"open"`
	State                  domain.VerificationState `json:"state"`
	AuthMode               domain.TransferAuthMode  `json:"auth_mode"`
	RecipientInput         string                   `json:"recipient_input"`
	RecipientAccountNumber string                   `json:"recipient_account_number,omitempty"`
	RecipientName          string                   `json:"recipient_name,omitempty"`
	VerifyEnabled          bool                     `json:"verify_enabled"`
	VerifyBusy             bool                     `json:"verify_busy"`
	VerifyLocked           bool                     `json:"verify_locked"`
	DetailsEnabled         bool                     `json:"details_enabled"`
	SubmitEnabled          bool                     `json:"submit_enabled"`
	SubmitBusy             bool                     `json:"submit_busy"`
	Error                  string                   `json:"error,omitempty"`
}

// TransferWorkflowConfig configures a TransferWorkflow.
type TransferWorkflowConfig struct {
	AuthMode domain.TransferAuthMode
	// ReverifyOnFailure resets verification after a failed submission instead of allowing a retry.
	ReverifyOnFailure bool
	Username          string
	Publisher         EventPublisher
	Logger            *slog.Logger
	OnStateChange     func(StateChange)
	OnCompleted       func(TransferReceipt)
	Now               func() time.Time
}

// TransferWorkflow is the per-view transfer form controller.
type TransferWorkflow struct {
	backend TransferBackend
	cfg     TransferWorkflowConfig
	logger  *slog.Logger

	mu         sync.Mutex
	accountID  int64
	open       bool
	state      domain.VerificationState
	input      string
	pending    string
	draft      domain.TransferDraft
	epoch      uint64
	submitting bool
	lastError  string
}

// NewTransferWorkflow creates a workflow in the UNVERIFIED state.
func NewTransferWorkflow(backend TransferBackend, cfg TransferWorkflowConfig) *TransferWorkflow {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = domain.AuthModePIN
	}
	return &TransferWorkflow{
		backend: backend,
		cfg:     cfg,
		logger:  logger.With("component", "transfer_workflow"),
		state:   domain.StateUnverified,
	}
}

// SetAccount selects the source account for transfers. Changing it discards the draft.
func (w *TransferWorkflow) SetAccount(accountID int64) {
	w.mu.Lock()
	if w.accountID == accountID {
		w.mu.Unlock()
		return
	}
	w.accountID = accountID
	changes := w.resetLocked(false)
	w.mu.Unlock()
	w.notify(changes)
}

// Open starts a fresh draft.
func (w *TransferWorkflow) Open() TransferView {
	w.mu.Lock()
	changes := w.resetLocked(true)
	view := w.viewLocked()
	w.mu.Unlock()
	w.notify(changes)
	return view
}

// Close discards the draft.
func (w *TransferWorkflow) Close() TransferView {
	w.mu.Lock()
	changes := w.resetLocked(false)
	view := w.viewLocked()
	w.mu.Unlock()
	w.notify(changes)
	return view
}

// RecipientChanged handles an edit of the recipient account number field. It always
// returns the form to UNVERIFIED and invalidates any verification still in flight.
func (w *TransferWorkflow) RecipientChanged(raw string) TransferView {
	w.mu.Lock()
	open := w.open
	changes := w.resetLocked(true)
	w.open = open || raw != ""
	w.input = raw
	view := w.viewLocked()
	w.mu.Unlock()
	w.notify(changes)
	return view
}

// VerifyRecipient looks up the holder of the given account number. Calls made while a
// verification is already in flight are ignored and return ErrVerificationInProgress.
func (w *TransferWorkflow) VerifyRecipient(ctx context.Context, raw string) (string, error) {
	canonical := domain.NormalizeAccountNumber(raw)

	w.mu.Lock()
	w.open = true
	if w.state == domain.StateVerifying {
		w.mu.Unlock()
		w.logger.Debug("verify ignored while in flight", "recipient", domain.MaskAccountNumber(canonical))
		return "", ErrVerificationInProgress
	}
	if canonical == "" {
		err := domain.NewValidationError("recipientAccountNumber", "Please enter an account number.")
		w.lastError = err.Message
		w.mu.Unlock()
		return "", err
	}
	if w.state == domain.StateVerified && w.draft.RecipientAccountNumber == canonical {
		name := w.draft.RecipientName
		w.mu.Unlock()
		return name, nil
	}

	var changes []StateChange
	if w.state == domain.StateVerified {
		// The verified binding belongs to a different number; treat this as an edit.
		changes = w.resetLocked(true)
	}
	w.input = raw
	w.pending = canonical
	w.lastError = ""
	epoch := w.epoch
	changes = append(changes, w.transitionLocked(domain.StateVerifying))
	w.mu.Unlock()
	w.notify(changes)

	name, err := w.backend.VerifyRecipient(ctx, canonical)

	w.mu.Lock()
	if w.epoch != epoch || w.state != domain.StateVerifying || w.pending != canonical {
		w.mu.Unlock()
		w.logger.Info("discarding stale verification response", "recipient", domain.MaskAccountNumber(canonical))
		return "", ErrStaleResponse
	}
	w.pending = ""

	if err != nil {
		w.lastError = UserMessage(err)
		changes = []StateChange{
			w.transitionLocked(domain.StateFailed),
			w.transitionLocked(domain.StateUnverified),
		}
		w.mu.Unlock()
		w.notify(changes)
		w.logger.Warn("recipient verification failed", "recipient", domain.MaskAccountNumber(canonical), "error", err)
		w.publish(ctx, domain.PortalEvent{
			EventType: domain.EventRecipientRejected,
			Recipient: domain.MaskAccountNumber(canonical),
			Reason:    UserMessage(err),
		})
		return "", err
	}

	w.draft = domain.TransferDraft{
		RecipientAccountNumber: canonical,
		RecipientName:          name,
		Verified:               true,
	}
	changes = []StateChange{w.transitionLocked(domain.StateVerified)}
	w.mu.Unlock()
	w.notify(changes)

	w.logger.Info("recipient verified", "recipient", domain.MaskAccountNumber(canonical))
	w.publish(ctx, domain.PortalEvent{
		EventType: domain.EventRecipientVerified,
		Recipient: domain.MaskAccountNumber(canonical),
	})
	return name, nil
}

// SubmitTransfer sends the verified draft to the backend. Preconditions are checked
// before any request is made.
func (w *TransferWorkflow) SubmitTransfer(ctx context.Context, amount decimal.Decimal, secret string) (*TransferReceipt, error) {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmissionInProgress
	}
	if err := w.checkSubmitLocked(amount, secret); err != nil {
		w.lastError = UserMessage(err)
		w.mu.Unlock()
		return nil, err
	}

	req := bankclient.TransferRequest{
		RecipientAccountNumber: w.draft.RecipientAccountNumber,
		Amount:                 amount,
	}
	if w.cfg.AuthMode == domain.AuthModePassword {
		req.Password = secret
	} else {
		req.PIN = secret
	}
	receipt := TransferReceipt{
		AccountID:              w.accountID,
		RecipientAccountNumber: w.draft.RecipientAccountNumber,
		RecipientName:          w.draft.RecipientName,
		Amount:                 amount,
	}
	epoch := w.epoch
	w.submitting = true
	w.lastError = ""
	w.mu.Unlock()

	err := w.backend.Transfer(ctx, receipt.AccountID, req)

	w.mu.Lock()
	w.submitting = false
	current := w.epoch == epoch
	if err != nil {
		var changes []StateChange
		if current {
			w.lastError = UserMessage(err)
			if w.cfg.ReverifyOnFailure && !errors.Is(err, bankclient.ErrUnauthorized) {
				lastError := w.lastError
				changes = w.resetLocked(true)
				w.lastError = lastError
			}
		}
		w.mu.Unlock()
		w.notify(changes)
		w.logger.Warn("transfer submission failed", "account_id", receipt.AccountID, "recipient", domain.MaskAccountNumber(receipt.RecipientAccountNumber), "error", err)
		w.publish(ctx, domain.PortalEvent{
			EventType: domain.EventTransferFailed,
			AccountID: receipt.AccountID,
			Amount:    &amount,
			Recipient: domain.MaskAccountNumber(receipt.RecipientAccountNumber),
			Reason:    UserMessage(err),
		})
		return nil, err
	}

	var changes []StateChange
	if current {
		changes = w.resetLocked(false)
	}
	receipt.SubmittedAt = w.cfg.Now()
	w.mu.Unlock()
	w.notify(changes)

	w.logger.Info("transfer submitted", "account_id", receipt.AccountID, "recipient", domain.MaskAccountNumber(receipt.RecipientAccountNumber), "amount", amount.String())
	w.publish(ctx, domain.PortalEvent{
		EventType: domain.EventTransferCompleted,
		AccountID: receipt.AccountID,
		Amount:    &amount,
		Recipient: domain.MaskAccountNumber(receipt.RecipientAccountNumber),
	})
	if w.cfg.OnCompleted != nil {
		w.cfg.OnCompleted(receipt)
	}
	return &receipt, nil
}

// State returns the current verification state.
func (w *TransferWorkflow) State() domain.VerificationState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Draft returns a copy of the current draft.
func (w *TransferWorkflow) Draft() domain.TransferDraft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// View returns the render model of the form.
func (w *TransferWorkflow) View() TransferView {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.viewLocked()
}

func (w *TransferWorkflow) checkSubmitLocked(amount decimal.Decimal, secret string) error {
	if w.state != domain.StateVerified || !w.draft.Verified {
		return domain.NewValidationError("recipientAccountNumber", "Please verify the recipient account before submitting.")
	}
	if w.accountID == 0 {
		return ErrNoActiveAccount
	}
	if err := domain.ValidateAmount(amount); err != nil {
		return err
	}
	return domain.ValidateSecret(w.cfg.AuthMode, secret)
}

// resetLocked discards the draft and returns the form to UNVERIFIED.
func (w *TransferWorkflow) resetLocked(open bool) []StateChange {
	w.epoch++
	w.open = open
	w.input = ""
	w.pending = ""
	w.draft = domain.TransferDraft{}
	w.lastError = ""
	if w.state == domain.StateUnverified {
		return nil
	}
	return []StateChange{w.transitionLocked(domain.StateUnverified)}
}

func (w *TransferWorkflow) transitionLocked(to domain.VerificationState) StateChange {
	change := StateChange{From: w.state, To: to}
	w.state = to
	return change
}

func (w *TransferWorkflow) viewLocked() TransferView {
	verified := w.state == domain.StateVerified
	return TransferView{
		Open:                   w.open,
		State:                  w.state,
		AuthMode:               w.cfg.AuthMode,
		RecipientInput:         w.input,
		RecipientAccountNumber: w.draft.RecipientAccountNumber,
		RecipientName:          w.draft.RecipientName,
		VerifyEnabled:          w.state == domain.StateUnverified,
		VerifyBusy:             w.state == domain.StateVerifying,
		VerifyLocked:           verified,
		DetailsEnabled:         verified,
		SubmitEnabled:          verified && !w.submitting,
		SubmitBusy:             w.submitting,
		Error:                  w.lastError,
	}
}

func (w *TransferWorkflow) notify(changes []StateChange) {
	if w.cfg.OnStateChange == nil {
		return
	}
	for _, change := range changes {
		w.cfg.OnStateChange(change)
	}
}

func (w *TransferWorkflow) publish(ctx context.Context, event domain.PortalEvent) {
	if w.cfg.Publisher == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.Username = w.cfg.Username
	event.Timestamp = w.cfg.Now()

	publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := w.cfg.Publisher.PublishPortalEvent(publishCtx, event); err != nil {
		w.logger.Warn("portal event publish failed", "event_type", event.EventType, "error", err)
	}
}
