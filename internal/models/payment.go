package models

type PaymentStatus string

const (
	PaymentApproved PaymentStatus = "approved"
	PaymentPending  PaymentStatus = "pending"
	PaymentRejected PaymentStatus = "rejected"
)

// PaymentMetadata is echoed back by the gateway for every payment created
// for a ticket.
type PaymentMetadata struct {
	TicketID string `json:"ticket_id"`
	UserID   string `json:"user_id"`
}

// PaymentInfo is the provider-verified state of a payment.
type PaymentInfo struct {
	PaymentID string          `json:"payment_id"`
	Status    PaymentStatus   `json:"status"`
	RawStatus string          `json:"raw_status"`
	Metadata  PaymentMetadata `json:"metadata"`
}

// PaymentIntent is what a buyer needs to go pay. PaymentID is the provider's
// id for the created request (a Mercado Pago preference or a Stripe
// Checkout Session).
type PaymentIntent struct {
	Provider    string `json:"provider"`
	PaymentID   string `json:"paymentId"`
	CheckoutURL string `json:"checkoutUrl"`
}

// PaymentNotification is the part of an inbound webhook this system trusts:
// only a pointer to the payment that must be re-queried.
type PaymentNotification struct {
	Type      string `json:"type"`
	PaymentID string `json:"payment_id"`
}

const NotificationTypePayment = "payment"

func (n PaymentNotification) IsPayment() bool {
	return n.Type == NotificationTypePayment && n.PaymentID != ""
}

// ReconcileOutcome describes what a webhook delivery did.
type ReconcileOutcome string

const (
	OutcomeIgnored       ReconcileOutcome = "ignored"
	OutcomeNotApproved   ReconcileOutcome = "not_approved"
	OutcomeActivated     ReconcileOutcome = "activated"
	OutcomeAlreadyActive ReconcileOutcome = "already_active"
	// OutcomeUnresolvable is an approved payment that can never be applied,
	// e.g. its expired ticket's number now belongs to someone else. It is
	// alarmed and acknowledged so the provider stops redelivering.
	OutcomeUnresolvable ReconcileOutcome = "unresolvable"
)
