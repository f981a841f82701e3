package models

import (
	"time"

	"github.com/google/uuid"
)

// Address is a client pickup address. Street, number and city feed the
// canonical label used to match collections and fees.
type Address struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ClientID     uuid.UUID `db:"client_id" json:"client_id"`
	Street       string    `db:"street" json:"street"`
	Number       string    `db:"number" json:"number"`
	Neighborhood string    `db:"neighborhood" json:"neighborhood,omitempty"`
	City         string    `db:"city" json:"city"`
	State        string    `db:"state" json:"state,omitempty"`
	ZipCode      string    `db:"zip_code" json:"zip_code,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Address) TableName() string {
	return "addresses"
}
