package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// Publisher emits ledger events to downstream consumers.
type Publisher interface {
	Publish(topic string, event any) error
}

// TransactionCompleted is emitted after a balance mutation commits.
type TransactionCompleted struct {
	TransactionID string          `json:"transaction_id"`
	AccountID     string          `json:"account_id"`
	Kind          string          `json:"kind"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
