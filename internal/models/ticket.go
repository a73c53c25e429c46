package models

import (
	"time"

	"github.com/uptrace/bun"
)

type TicketStatus string

const (
	TicketPending TicketStatus = "pending"
	TicketActive  TicketStatus = "active"
	// TicketExpired is only written when a pending lease is configured and a
	// newer reservation reclaims the number.
	TicketExpired TicketStatus = "expired"
)

// LiveStatuses are the statuses that hold a number.
func LiveStatuses() []TicketStatus {
	return []TicketStatus{TicketPending, TicketActive}
}

type Ticket struct {
	bun.BaseModel `bun:"table:tickets"`

	ID          string       `bun:"id,pk" json:"id"`
	Code        string       `bun:"code,unique,notnull" json:"code"`
	Numbers     string       `bun:"numbers,notnull" json:"numbers"`
	UserID      string       `bun:"user_id,type:varchar(32),notnull" json:"user_id"`
	Status      TicketStatus `bun:"status,notnull" json:"status"`
	OwnerData   OwnerData    `bun:"owner_data,type:jsonb" json:"owner_data"`
	CreatedAt   time.Time    `bun:"created_at,notnull" json:"created_at"`
	PurchasedAt *time.Time   `bun:"purchased_at,nullzero" json:"purchased_at,omitempty"`
}

func (t *Ticket) IsActive() bool {
	return t.Status == TicketActive
}

// ConfirmResult is the outcome of a successful payment confirmation.
type ConfirmResult string

const (
	ConfirmActivated     ConfirmResult = "activated"
	ConfirmAlreadyActive ConfirmResult = "already_active"
)

type ReserveRequest struct {
	Numbers string    `json:"numbers"`
	Owner   OwnerData `json:"owner"`
}

type AvailabilityResponse struct {
	Numbers string `json:"numbers"`
	Taken   bool   `json:"taken"`
}
