package reconciler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"ms-raffle/internal/alarm"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/payment"
)

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, ref string) (models.ConfirmResult, *models.Ticket, error)
}

// Result describes what one webhook delivery did.
type Result struct {
	Outcome       models.ReconcileOutcome `json:"outcome"`
	PaymentID     string                  `json:"payment_id,omitempty"`
	PaymentStatus models.PaymentStatus    `json:"payment_status,omitempty"`
	TicketID      string                  `json:"ticket_id,omitempty"`
}

// Reconciler turns at-least-once gateway notifications into ticket
// confirmations. It keeps no state between deliveries, so duplicates are
// harmless.
type Reconciler struct {
	Gateway   payment.Gateway
	Settings  payment.SettingsReader
	Confirmer PaymentConfirmer
	Alarm     alarm.Alarm
	Logger    *logger.Logger
}

func New(gateway payment.Gateway, settings payment.SettingsReader, confirmer PaymentConfirmer, a alarm.Alarm, log *logger.Logger) *Reconciler {
	return &Reconciler{Gateway: gateway, Settings: settings, Confirmer: confirmer, Alarm: a, Logger: log}
}

// HandleNotification parses a raw delivery and reconciles the payment it
// points to. Events that are not about a payment succeed with no effect.
func (r *Reconciler) HandleNotification(ctx context.Context, header http.Header, query url.Values, body []byte) (*Result, error) {
	n, err := r.Gateway.ParseNotification(header, query, body)
	if err != nil {
		if payment.IsConfigurationError(err) {
			r.raise(ctx, "Payment webhook misconfigured", err.Error())
		}
		return nil, err
	}

	if !n.IsPayment() {
		r.Logger.Debug("WEBHOOK", fmt.Sprintf("Ignoring %q notification", n.Type))
		return &Result{Outcome: models.OutcomeIgnored}, nil
	}

	return r.Reconcile(ctx, n.PaymentID)
}

// Reconcile re-queries the provider for paymentID and, when approved,
// confirms the ticket named in the provider-side metadata.
func (r *Reconciler) Reconcile(ctx context.Context, paymentID string) (*Result, error) {
	result := &Result{PaymentID: paymentID}

	settings, err := r.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	info, err := r.Gateway.FetchPaymentStatus(ctx, settings, paymentID)
	if err != nil {
		if payment.IsConfigurationError(err) {
			r.raise(ctx, "Payment gateway misconfigured", err.Error())
		}
		return nil, err
	}
	result.PaymentStatus = info.Status

	if info.Status != models.PaymentApproved {
		r.Logger.LogPayment("WEBHOOK", paymentID, fmt.Sprintf("status %s (%s), no action", info.Status, info.RawStatus))
		result.Outcome = models.OutcomeNotApproved
		return result, nil
	}

	ticketID := info.Metadata.TicketID
	if ticketID == "" {
		r.Logger.Warn("WEBHOOK", fmt.Sprintf("Approved payment %s carries no ticket_id metadata", paymentID))
		result.Outcome = models.OutcomeIgnored
		return result, nil
	}
	result.TicketID = ticketID

	confirm, _, err := r.Confirmer.ConfirmPayment(ctx, ticketID)
	switch {
	case errors.Is(err, models.ErrTicketNotFound):
		r.raise(ctx, "Approved payment for unknown ticket",
			fmt.Sprintf("payment %s approved for ticket %s, which does not exist", paymentID, ticketID))
		return nil, err
	case errors.Is(err, models.ErrNumberTaken):
		r.raise(ctx, "Approved payment for a reassigned number",
			fmt.Sprintf("payment %s approved for expired ticket %s whose number is held by another buyer", paymentID, ticketID))
		r.Logger.Error("WEBHOOK", fmt.Sprintf("Payment %s for ticket %s cannot be applied, acknowledging", paymentID, ticketID))
		result.Outcome = models.OutcomeUnresolvable
		return result, nil
	case err != nil:
		return nil, err
	}

	if confirm == models.ConfirmActivated {
		result.Outcome = models.OutcomeActivated
	} else {
		result.Outcome = models.OutcomeAlreadyActive
	}
	r.Logger.LogPayment("WEBHOOK", paymentID, fmt.Sprintf("ticket %s %s", ticketID, result.Outcome))
	return result, nil
}

func (r *Reconciler) raise(ctx context.Context, title, detail string) {
	if r.Alarm == nil {
		r.Logger.Error("ALARM", fmt.Sprintf("%s: %s", title, detail))
		return
	}
	if err := r.Alarm.Raise(ctx, title, detail); err != nil {
		r.Logger.Error("ALARM", fmt.Sprintf("Failed to raise %q: %v", title, err))
	}
}
