package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// AccountBalance is the durable record of an account's spendable funds and
// lifetime aggregates. Invariant after every committed operation:
// Available == TotalDeposited - TotalWithdrawn. Pending holds funds reserved
// for in-flight withdrawals and is never spendable.
type AccountBalance struct {
	AccountID      string    `json:"accountId" db:"account_id"`
	DisplayName    string    `json:"displayName" db:"display_name"`
	Available      int64     `json:"available" db:"available"` // in cents
	Pending        int64     `json:"pending" db:"pending"`
	TotalDeposited int64     `json:"totalDeposited" db:"total_deposited"`
	TotalWithdrawn int64     `json:"totalWithdrawn" db:"total_withdrawn"`
	Version        int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt      time.Time `json:"updatedAt" db:"updated_at"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
