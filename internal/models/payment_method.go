package models

import "time"

// PaymentMethod is a saved card or bank descriptor. The ExternalToken is an
// opaque reference held by a payment provider; the service never stores raw
// card or account numbers. Transaction records keep a denormalized label so a
// method can be deleted without corrupting history.
type PaymentMethod struct {
	ID             string    `json:"id" db:"id"`
	OwnerAccountID string    `json:"ownerAccountId" db:"account_id"`
	DisplayBrand   string    `json:"displayBrand" db:"brand"`
	Last4          string    `json:"last4" db:"last4"`
	ExternalToken  string    `json:"-" db:"external_token"`
	IsDefault      bool      `json:"isDefault" db:"is_default"`
	CreatedAt      time.Time `json:"createdAt" db:"created_at"`
}

// Label is the denormalized display name stored on transaction records.
func (pm *PaymentMethod) Label() string {
	return pm.DisplayBrand + " •••• " + pm.Last4
}
