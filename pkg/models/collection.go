package models

import (
	"time"

	"github.com/google/uuid"
)

// CollectionStatus is the lifecycle status of a collection row.
type CollectionStatus string

const (
	// CollectionStatusRequested - the negotiation row; mutable, deletable
	CollectionStatusRequested CollectionStatus = "REQUESTED"
	// CollectionStatusApproved - an agreed collection; immutable from here on
	CollectionStatusApproved CollectionStatus = "APPROVED"
	// CollectionStatusPaid - settled downstream; never touched by this service
	CollectionStatusPaid CollectionStatus = "PAID"
)

// Collection is a scheduled pickup for one client address on one date. The
// address is denormalized into the label so fee matching survives address
// edits.
type Collection struct {
	ID                uuid.UUID        `db:"id" json:"id"`
	ClientID          uuid.UUID        `db:"client_id" json:"client_id"`
	CollectionAddress string           `db:"collection_address" json:"collection_address"`
	CollectionDate    *time.Time       `db:"collection_date" json:"collection_date,omitempty"`
	CollectionFeeRaw  *float64         `db:"collection_fee_per_vehicle" json:"collection_fee_per_vehicle,omitempty"`
	Status            CollectionStatus `db:"status" json:"status"`
	// settlement fields, written by the payments service; read-only here
	PaymentReceived   bool       `db:"payment_received" json:"payment_received"`
	PaymentReceivedAt *time.Time `db:"payment_received_at" json:"payment_received_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Collection) TableName() string {
	return "vehicle_collections"
}

// HasFee reports whether the row carries a positive per-vehicle fee.
func (c *Collection) HasFee() bool {
	return c.CollectionFeeRaw != nil && *c.CollectionFeeRaw > 0
}

// Fee returns the per-vehicle fee, zero when unpriced.
func (c *Collection) Fee() float64 {
	if c.CollectionFeeRaw == nil {
		return 0
	}
	return *c.CollectionFeeRaw
}
