package models

import "time"

type User struct {
	ID          int       `json:"id" example:"1"`
	Email       string    `json:"email" example:"user@example.com"`
	FirstName   string    `json:"firstName" example:"John"`
	LastName    string    `json:"lastName" example:"Doe"`
	AccountID   string    `json:"accountId" example:"1234567890"`
	PhoneNumber string    `json:"phoneNumber" example:"+14155550123"`
	CreatedAt   time.Time `json:"createdAt"`
}
