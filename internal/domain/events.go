package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Routing keys for events published to the portal exchange.
const (
	EventTransferCompleted = "transfer.completed"
	EventTransferFailed    = "transfer.failed"
	EventRecipientVerified = "recipient.verified"
	EventRecipientRejected = "recipient.rejected"
	EventSessionLogin      = "session.login"
	EventSessionLogout     = "session.logout"
)

// PortalEvent is the message emitted for user-facing portal actions.
type PortalEvent struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Username  string           `json:"username,omitempty"`
	AccountID int64            `json:"account_id,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Recipient string           `json:"recipient,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
