package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/transfa/portal-service/internal/app"
	"github.com/transfa/portal-service/internal/domain"
)

type recipientRequest struct {
	RecipientAccountNumber string `json:"recipientAccountNumber"`
}

type verifyResponse struct {
	RecipientName string           `json:"recipient_name"`
	Transfer      app.TransferView `json:"transfer"`
}

type submitTransferRequest struct {
	Amount   json.RawMessage `json:"amount"`
	PIN      string          `json:"pin"`
	Password string          `json:"password"`
}

type submitTransferResponse struct {
	Message  string               `json:"message"`
	Receipt  *app.TransferReceipt `json:"receipt"`
	Transfer app.TransferView     `json:"transfer"`
}

// TransferStateHandler returns the transfer form state.
func (h *PortalHandlers) TransferStateHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Transfer().View())
}

// OpenTransferHandler starts a fresh transfer draft.
func (h *PortalHandlers) OpenTransferHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Transfer().Open())
}

// CloseTransferHandler discards the transfer draft.
func (h *PortalHandlers) CloseTransferHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view.Transfer().Close())
}

// RecipientChangedHandler records an edit of the recipient field.
func (h *PortalHandlers) RecipientChangedHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req recipientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, view.Transfer().RecipientChanged(req.RecipientAccountNumber))
}

// VerifyRecipientHandler resolves the recipient's name.
func (h *PortalHandlers) VerifyRecipientHandler(w http.ResponseWriter, r *http.Request) {
	rs, ok := getRequestSession(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Please log in to continue.")
		return
	}
	var req recipientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	workflow := rs.view.Transfer()

	if err := h.verifyGuard.Allow(r.Context(), rs.session.ID); err != nil {
		log.Printf("level=warn component=api endpoint=verify_recipient outcome=rate_limited session_id=%s", rs.session.ID)
		state := workflow.View()
		h.writeAppError(w, r, err, &state)
		return
	}

	name, err := workflow.VerifyRecipient(r.Context(), req.RecipientAccountNumber)
	state := workflow.View()
	if err != nil {
		if !errors.Is(err, app.ErrVerificationInProgress) && !errors.Is(err, app.ErrStaleResponse) {
			log.Printf("level=info component=api endpoint=verify_recipient outcome=rejected recipient=%s err=%v", domain.MaskAccountNumber(domain.NormalizeAccountNumber(req.RecipientAccountNumber)), err)
		}
		h.writeAppError(w, r, err, &state)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{RecipientName: name, Transfer: state})
}

// SubmitTransferHandler sends the verified transfer.
func (h *PortalHandlers) SubmitTransferHandler(w http.ResponseWriter, r *http.Request) {
	view, ok := h.view(w, r)
	if !ok {
		return
	}
	var req submitTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	workflow := view.Transfer()

	secret := req.PIN
	if workflow.View().AuthMode == domain.AuthModePassword {
		secret = req.Password
	}

	amount, err := parseAmountField(req.Amount)
	var receipt *app.TransferReceipt
	if err == nil {
		receipt, err = workflow.SubmitTransfer(r.Context(), amount, secret)
	}
	state := workflow.View()
	if err != nil {
		log.Printf("level=warn component=api endpoint=transfer outcome=failed err=%v", err)
		h.writeAppError(w, r, err, &state)
		return
	}

	log.Printf("level=info component=api endpoint=transfer outcome=success account_id=%d recipient=%s amount=%s", receipt.AccountID, domain.MaskAccountNumber(receipt.RecipientAccountNumber), receipt.Amount.String())
	writeJSON(w, http.StatusOK, submitTransferResponse{Message: "Transfer successful!", Receipt: receipt, Transfer: state})
}
