package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/domain"
)

type selectAccountRequest struct {
	AccountID int64 `json:"accountId"`
}

type depositRequest struct {
	Amount json.RawMessage `json:"amount"`
	Source string          `json:"source"`
}

type payBillRequest struct {
	BillerName string          `json:"billerName"`
	Amount     json.RawMessage `json:"amount"`
	PIN        string          `json:"pin"`
}

type selfTransferRequest struct {
	DestinationAccountID int64           `json:"destinationAccountId"`
	Amount               json.RawMessage `json:"amount"`
	PIN                  string          `json:"pin"`
}

type profileRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
}

type passwordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type pinRequest struct {
	Password string `json:"password"`
	PIN      string `json:"pin"`
}

type revealResponse struct {
	Kind    app.SecretKind `json:"kind"`
	Value   string         `json:"value"`
	Visible bool           `json:"visible"`
	HideAt  time.Time      `json:"hide_at"`
}

func (h *PortalHandlers) view(w http.ResponseWriter, r *http.Request) (*app.View, bool) {
	rs, ok := getRequestSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Please log in to continue.")
		return nil, false
	}
	return rs.view, true
}

// DashboardHandler loads the user, accounts, balance and recent transactions.
func (h *PortalHandlers) DashboardHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	dash, err := view.Load(r.Context())
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// SelectAccountHandler switches the active account.
func (h *PortalHandlers) SelectAccountHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req selectAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	dash, err := view.SelectAccount(r.Context(), req.AccountID)
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// DepositHandler credits the active account.
func (h *PortalHandlers) DepositHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req depositRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmountField(req.Amount)
	if err == nil {
		err = view.Deposit(r.Context(), amount, req.Source)
	}
	if err != nil {
		log.Printf("level=warn component=api endpoint=deposit outcome=failed err=%v", err)
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view.Dashboard())
}

// PayBillHandler pays a biller from the active account.
func (h *PortalHandlers) PayBillHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req payBillRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmountField(req.Amount)
	if err == nil {
		err = view.PayBill(r.Context(), req.BillerName, amount, req.PIN)
	}
	if err != nil {
		log.Printf("level=warn component=api endpoint=paybill outcome=failed err=%v", err)
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view.Dashboard())
}

// SelfTransferHandler moves money between the user's own accounts.
func (h *PortalHandlers) SelfTransferHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req selfTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	amount, err := parseAmountField(req.Amount)
	if err == nil {
		err = view.SelfTransfer(r.Context(), req.DestinationAccountID, amount, req.PIN)
	}
	if err != nil {
		log.Printf("level=warn component=api endpoint=self_transfer outcome=failed err=%v", err)
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, view.Dashboard())
}

// UpdateProfileHandler edits the user's name and email.
func (h *PortalHandlers) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := view.UpdateProfile(r.Context(), req.FullName, req.Email)
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ChangePasswordHandler rotates the login password.
func (h *PortalHandlers) ChangePasswordHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req passwordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := view.ChangePassword(r.Context(), req.CurrentPassword, req.NewPassword); err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed successfully."})
}

// SetPINHandler sets the transaction PIN.
func (h *PortalHandlers) SetPINHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req pinRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := view.SetPIN(r.Context(), req.Password, req.PIN); err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "PIN set successfully."})
}

// CardHandler returns the debit card of the active account.
func (h *PortalHandlers) CardHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	card, err := view.Card(r.Context())
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// ToggleCardHandler flips one card control.
func (h *PortalHandlers) ToggleCardHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	option, err := domain.ParseCardOption(chi.URLParam(r, "option"))
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	card, err := view.ToggleCard(r.Context(), option)
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// RevealHandler shows the balance or CVV until it auto-hides.
func (h *PortalHandlers) RevealHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	kind := app.SecretKind(chi.URLParam(r, "kind"))
	hideAt, err := view.Reveal(r.Context(), kind)
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	value, visible := view.Revealed(kind)
	writeJSON(w, http.StatusOK, revealResponse{Kind: kind, Value: value, Visible: visible, HideAt: hideAt})
}

// HideHandler masks the balance or CVV immediately.
func (h *PortalHandlers) HideHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	if err := view.Hide(app.SecretKind(chi.URLParam(r, "kind"))); err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActivityHandler returns the active account's activity log.
func (h *PortalHandlers) ActivityHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	logs, err := view.Activity(r.Context())
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// BanksHandler lists the partner banks.
func (h *PortalHandlers) BanksHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	banks, err := view.Banks(r.Context())
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, banks)
}

// LinkBankHandler opens an account with a partner bank.
func (h *PortalHandlers) LinkBankHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	bankID, err := strconv.ParseInt(chi.URLParam(r, "bankID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid bank ID")
		return
	}
	dash, err := view.LinkBank(r.Context(), bankID)
	if err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// TransactionsCSVHandler downloads the active account's transactions as CSV.
func (h *PortalHandlers) TransactionsCSVHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	// Buffer so a backend failure can still be reported as JSON.
	var buf bytes.Buffer
	if err := view.ExportTransactionsCSV(r.Context(), &buf); err != nil {
		h.writeAppError(w, r, err, nil)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="transactions.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// SpendingHandler returns debits of the loaded transactions grouped by type.
func (h *PortalHandlers) SpendingHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Spending())
}
