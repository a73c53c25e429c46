package models

import "time"

const (
	EventTicketReserved     = "ticket.reserved"
	EventTicketActivated    = "ticket.activated"
	EventTicketOwnerUpdated = "ticket.owner_updated"
)

// TicketEvent is published to Kafka on every lifecycle mutation.
type TicketEvent struct {
	Type      string       `json:"type"`
	TicketID  string       `json:"ticket_id"`
	Code      string       `json:"code"`
	Numbers   string       `json:"numbers"`
	Status    TicketStatus `json:"status"`
	UserID    string       `json:"user_id"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewTicketEvent(eventType string, t *Ticket, at time.Time) TicketEvent {
	return TicketEvent{
		Type:      eventType,
		TicketID:  t.ID,
		Code:      t.Code,
		Numbers:   t.Numbers,
		Status:    t.Status,
		UserID:    t.UserID,
		Timestamp: at.UTC(),
	}
}
