package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction kinds
const (
	KindDeposit    = "deposit"
	KindWithdrawal = "withdrawal"
)

// Transaction statuses. A record is created pending and transitions exactly
// once to completed or failed. Reconciling marks a withdrawal whose external
// rail outcome is unknown (timeout); the reservation stays held until the
// reconciler settles it.
const (
	StatusPending     = "pending"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusReconciling = "reconciling"
)

// TransactionRecord is an immutable log entry for one deposit or withdrawal
// attempt. NetAmount == GrossAmount - Fee always.
type TransactionRecord struct {
	ID                string    `json:"id" db:"id"`
	Seq               int64     `json:"-" db:"seq"` // log sequence number, breaks created_at ties
	AccountID         string    `json:"accountId" db:"account_id"`
	Kind              string    `json:"kind" db:"kind"`
	GrossAmount       int64     `json:"grossAmount" db:"gross_amount"` // in cents
	Fee               int64     `json:"fee" db:"fee"`
	NetAmount         int64     `json:"netAmount" db:"net_amount"`
	Status            string    `json:"status" db:"status"`
	Executor          string    `json:"executor,omitempty" db:"executor"`
	Destination       Metadata  `json:"destination,omitempty" db:"destination"`
	MethodLabel       string    `json:"methodLabel,omitempty" db:"method_label"`
	ExternalReference string    `json:"externalReference,omitempty" db:"external_reference"`
	FailureReason     string    `json:"failureReason,omitempty" db:"failure_reason"`
	CreatedAt         time.Time `json:"createdAt" db:"created_at"`
}

// NewTransactionRecord creates a pending record with a collision-resistant id.
// The id doubles as the idempotency reference handed to transfer executors, so
// retried external calls never double-spend.
func NewTransactionRecord(accountID, kind string, gross, fee int64) *TransactionRecord {
	return &TransactionRecord{
		ID:          uuid.New().String(),
		AccountID:   accountID,
		Kind:        kind,
		GrossAmount: gross,
		Fee:         fee,
		NetAmount:   gross - fee,
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}
