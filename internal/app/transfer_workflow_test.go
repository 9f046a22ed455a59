package app

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/transfa/portal-service/internal/domain"
	"github.com/transfa/portal-service/pkg/bankclient"
)

type verifyResult struct {
	name string
	err  error
}

type transferBackendStub struct {
	mu sync.Mutex

	names       map[string]string
	verifyErr   error
	transferErr error

	// gate, when set, blocks VerifyRecipient until a result is sent on it.
	gate    chan verifyResult
	entered chan struct{}

	verifyCalls   []string
	transferCalls []bankclient.TransferRequest
	transferFrom  []int64
}

func (s *transferBackendStub) VerifyRecipient(ctx context.Context, accountNumber string) (string, error) {
	s.mu.Lock()
	s.verifyCalls = append(s.verifyCalls, accountNumber)
	gate := s.gate
	entered := s.entered
	s.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- struct{}{}
		}
		res := <-gate
		return res.name, res.err
	}
	if s.verifyErr != nil {
		return "", s.verifyErr
	}
	name, ok := s.names[accountNumber]
	if !ok {
		return "", &bankclient.RemoteError{StatusCode: http.StatusBadRequest, Message: "Recipient account number not found."}
	}
	return name, nil
}

func (s *transferBackendStub) Transfer(ctx context.Context, accountID int64, req bankclient.TransferRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transferCalls = append(s.transferCalls, req)
	s.transferFrom = append(s.transferFrom, accountID)
	return s.transferErr
}

func (s *transferBackendStub) verifyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.verifyCalls)
}

type publisherStub struct {
	mu     sync.Mutex
	events []domain.PortalEvent
}

func (p *publisherStub) PublishPortalEvent(ctx context.Context, event domain.PortalEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *publisherStub) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestWorkflow(backend TransferBackend, mutate func(*TransferWorkflowConfig)) (*TransferWorkflow, *[]StateChange) {
	var mu sync.Mutex
	changes := &[]StateChange{}
	cfg := TransferWorkflowConfig{
		AuthMode: domain.AuthModePIN,
		Username: "jane",
		OnStateChange: func(c StateChange) {
			mu.Lock()
			defer mu.Unlock()
			*changes = append(*changes, c)
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	wf := NewTransferWorkflow(backend, cfg)
	wf.SetAccount(42)
	return wf, changes
}

func TestVerifyRecipient_NormalizesAndVerifies(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	wf, _ := newTestWorkflow(backend, nil)
	wf.Open()

	name, err := wf.VerifyRecipient(context.Background(), "123-456-7890")

	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, domain.StateVerified, wf.State())
	assert.Equal(t, "1234567890", wf.Draft().RecipientAccountNumber)
	assert.Equal(t, []string{"1234567890"}, backend.verifyCalls)

	view := wf.View()
	assert.True(t, view.DetailsEnabled)
	assert.True(t, view.SubmitEnabled)
	assert.True(t, view.VerifyLocked)
	assert.False(t, view.VerifyEnabled)
}

func TestVerifyRecipient_EmptyInputIsValidationErrorWithoutRequest(t *testing.T) {
	backend := &transferBackendStub{}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), " - -  ")

	assert.True(t, IsValidation(err))
	assert.Zero(t, backend.verifyCount())
	assert.Equal(t, domain.StateUnverified, wf.State())
	assert.Equal(t, "Please enter an account number.", wf.View().Error)
}

func TestVerifyRecipient_FailureGoesThroughFailedBackToUnverified(t *testing.T) {
	backend := &transferBackendStub{verifyErr: &bankclient.RemoteError{StatusCode: http.StatusBadRequest, Message: "No such account"}}
	wf, changes := newTestWorkflow(backend, nil)
	wf.Open()

	_, err := wf.VerifyRecipient(context.Background(), "9999999999")

	require.Error(t, err)
	assert.Equal(t, []StateChange{
		{From: domain.StateUnverified, To: domain.StateVerifying},
		{From: domain.StateVerifying, To: domain.StateFailed},
		{From: domain.StateFailed, To: domain.StateUnverified},
	}, *changes)

	view := wf.View()
	assert.Equal(t, domain.StateUnverified, view.State)
	assert.Equal(t, "No such account", view.Error)
	assert.False(t, view.SubmitEnabled)
	assert.False(t, view.DetailsEnabled)
	assert.True(t, view.VerifyEnabled)
}

func TestVerifyRecipient_NetworkFailureShowsConnectionMessage(t *testing.T) {
	backend := &transferBackendStub{verifyErr: &bankclient.NetworkError{Op: "GET", Err: errors.New("connection refused")}}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")

	require.Error(t, err)
	assert.Equal(t, "Cannot connect to the server.", wf.View().Error)
	assert.Equal(t, domain.StateUnverified, wf.State())
}

func TestVerifyRecipient_ReentrantCallIsIgnored(t *testing.T) {
	backend := &transferBackendStub{
		gate:    make(chan verifyResult),
		entered: make(chan struct{}, 1),
	}
	wf, _ := newTestWorkflow(backend, nil)

	done := make(chan error, 1)
	go func() {
		_, err := wf.VerifyRecipient(context.Background(), "1234567890")
		done <- err
	}()
	<-backend.entered

	view := wf.View()
	assert.True(t, view.VerifyBusy)
	assert.False(t, view.VerifyEnabled)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	assert.ErrorIs(t, err, ErrVerificationInProgress)

	backend.gate <- verifyResult{name: "Jane Doe"}
	require.NoError(t, <-done)
	assert.Equal(t, 1, backend.verifyCount())
	assert.Equal(t, domain.StateVerified, wf.State())
}

func TestVerifyRecipient_LateResponseAfterEditIsDiscarded(t *testing.T) {
	backend := &transferBackendStub{
		gate:    make(chan verifyResult),
		entered: make(chan struct{}, 1),
	}
	wf, _ := newTestWorkflow(backend, nil)

	done := make(chan error, 1)
	go func() {
		_, err := wf.VerifyRecipient(context.Background(), "1234567890")
		done <- err
	}()
	<-backend.entered

	wf.RecipientChanged("12345678")
	backend.gate <- verifyResult{name: "Jane Doe"}

	assert.ErrorIs(t, <-done, ErrStaleResponse)
	assert.Equal(t, domain.StateUnverified, wf.State())
	assert.Empty(t, wf.Draft().RecipientName)
	assert.Equal(t, "12345678", wf.View().RecipientInput)
}

func TestVerifyRecipient_AlreadyVerifiedNumberIsIdempotent(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	name, err := wf.VerifyRecipient(context.Background(), "123 456 7890")

	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, 1, backend.verifyCount())
}

func TestRecipientChanged_ResetsFromAnyState(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)

	view := wf.RecipientChanged("1234567891")

	assert.Equal(t, domain.StateUnverified, view.State)
	assert.Empty(t, view.RecipientName)
	assert.False(t, view.DetailsEnabled)
	assert.False(t, view.SubmitEnabled)
	assert.True(t, view.VerifyEnabled)

	view = wf.RecipientChanged("")
	assert.Equal(t, domain.StateUnverified, view.State)
}

func TestSubmitTransfer_RejectedWhenNotVerified(t *testing.T) {
	backend := &transferBackendStub{}
	wf, _ := newTestWorkflow(backend, nil)
	wf.Open()

	_, err := wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")

	assert.True(t, IsValidation(err))
	assert.Empty(t, backend.transferCalls)
}

func TestSubmitTransfer_EditAfterVerificationBlocksSubmission(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	wf.RecipientChanged("5555555555")

	_, err = wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")

	assert.True(t, IsValidation(err))
	assert.Empty(t, backend.transferCalls)
}

func TestSubmitTransfer_ValidatesAmountAndPIN(t *testing.T) {
	tests := []struct {
		name   string
		amount decimal.Decimal
		secret string
	}{
		{name: "zero amount", amount: decimal.Zero, secret: "1234"},
		{name: "negative amount", amount: decimal.NewFromInt(-5), secret: "1234"},
		{name: "empty pin", amount: decimal.NewFromInt(10), secret: ""},
		{name: "short pin", amount: decimal.NewFromInt(10), secret: "123"},
		{name: "non numeric pin", amount: decimal.NewFromInt(10), secret: "12a4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
			wf, _ := newTestWorkflow(backend, nil)
			_, err := wf.VerifyRecipient(context.Background(), "1234567890")
			require.NoError(t, err)

			_, err = wf.SubmitTransfer(context.Background(), tt.amount, tt.secret)

			assert.True(t, IsValidation(err))
			assert.Empty(t, backend.transferCalls)
			assert.Equal(t, domain.StateVerified, wf.State())
		})
	}
}

func TestSubmitTransfer_HappyPathClearsDraftAndSignalsSuccess(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	publisher := &publisherStub{}
	var completed []TransferReceipt
	wf, _ := newTestWorkflow(backend, func(cfg *TransferWorkflowConfig) {
		cfg.Publisher = publisher
		cfg.OnCompleted = func(r TransferReceipt) { completed = append(completed, r) }
	})
	wf.Open()

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	receipt, err := wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")

	require.NoError(t, err)
	require.Len(t, backend.transferCalls, 1)
	assert.Equal(t, int64(42), backend.transferFrom[0])
	assert.Equal(t, "1234567890", backend.transferCalls[0].RecipientAccountNumber)
	assert.Equal(t, "1234", backend.transferCalls[0].PIN)
	assert.Empty(t, backend.transferCalls[0].Password)
	assert.True(t, backend.transferCalls[0].Amount.Equal(decimal.NewFromInt(100)))

	assert.Equal(t, "Jane Doe", receipt.RecipientName)
	require.Len(t, completed, 1)
	assert.Equal(t, domain.StateUnverified, wf.State())
	assert.Equal(t, domain.TransferDraft{}, wf.Draft())
	assert.False(t, wf.View().Open)
	assert.Equal(t, []string{domain.EventRecipientVerified, domain.EventTransferCompleted}, publisher.types())
}

func TestSubmitTransfer_FailureKeepsVerificationForRetry(t *testing.T) {
	backend := &transferBackendStub{
		names:       map[string]string{"1234567890": "Jane Doe"},
		transferErr: &bankclient.RemoteError{StatusCode: http.StatusBadRequest, Message: "Insufficient funds for transfer."},
	}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	_, err = wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")

	require.Error(t, err)
	view := wf.View()
	assert.Equal(t, domain.StateVerified, view.State)
	assert.Equal(t, "Insufficient funds for transfer.", view.Error)
	assert.True(t, view.SubmitEnabled)

	backend.transferErr = nil
	_, err = wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")
	require.NoError(t, err)
	assert.Len(t, backend.transferCalls, 2)
	assert.Equal(t, 1, backend.verifyCount())
}

func TestSubmitTransfer_ReverifyPolicyResetsAfterFailure(t *testing.T) {
	backend := &transferBackendStub{
		names:       map[string]string{"1234567890": "Jane Doe"},
		transferErr: &bankclient.RemoteError{StatusCode: http.StatusBadRequest, Message: "Insufficient funds for transfer."},
	}
	wf, _ := newTestWorkflow(backend, func(cfg *TransferWorkflowConfig) { cfg.ReverifyOnFailure = true })

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	_, err = wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")

	require.Error(t, err)
	view := wf.View()
	assert.Equal(t, domain.StateUnverified, view.State)
	assert.Equal(t, "Insufficient funds for transfer.", view.Error)
}

func TestSubmitTransfer_AuthFailureIsReportedAsUnauthorized(t *testing.T) {
	backend := &transferBackendStub{
		names:       map[string]string{"1234567890": "Jane Doe"},
		transferErr: &bankclient.RemoteError{StatusCode: http.StatusUnauthorized, Message: "Unauthorized"},
	}
	wf, _ := newTestWorkflow(backend, nil)

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	_, err = wf.SubmitTransfer(context.Background(), decimal.NewFromInt(100), "1234")

	assert.ErrorIs(t, err, bankclient.ErrUnauthorized)
	assert.Equal(t, domain.StateVerified, wf.State())
}

func TestSubmitTransfer_PasswordModeSendsPassword(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	wf, _ := newTestWorkflow(backend, func(cfg *TransferWorkflowConfig) { cfg.AuthMode = domain.AuthModePassword })

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	_, err = wf.SubmitTransfer(context.Background(), decimal.RequireFromString("12.34"), "hunter2!")

	require.NoError(t, err)
	require.Len(t, backend.transferCalls, 1)
	assert.Equal(t, "hunter2!", backend.transferCalls[0].Password)
	assert.Empty(t, backend.transferCalls[0].PIN)
}

func TestSubmitTransfer_RequiresActiveAccount(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe"}}
	wf := NewTransferWorkflow(backend, TransferWorkflowConfig{})

	_, err := wf.VerifyRecipient(context.Background(), "1234567890")
	require.NoError(t, err)
	_, err = wf.SubmitTransfer(context.Background(), decimal.NewFromInt(1), "1234")

	assert.ErrorIs(t, err, ErrNoActiveAccount)
	assert.Empty(t, backend.transferCalls)
}

func TestWorkflowIsReusableAcrossOpens(t *testing.T) {
	backend := &transferBackendStub{names: map[string]string{"1234567890": "Jane Doe", "2222222222": "John Roe"}}
	wf, _ := newTestWorkflow(backend, func(cfg *TransferWorkflowConfig) {
		cfg.Now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	})

	for _, number := range []string{"1234567890", "2222222222"} {
		wf.Open()
		_, err := wf.VerifyRecipient(context.Background(), number)
		require.NoError(t, err)
		receipt, err := wf.SubmitTransfer(context.Background(), decimal.NewFromInt(5), "4321")
		require.NoError(t, err)
		assert.Equal(t, number, receipt.RecipientAccountNumber)
		assert.Equal(t, 2026, receipt.SubmittedAt.Year())
	}
	assert.Len(t, backend.transferCalls, 2)
}
