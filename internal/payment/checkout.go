package payment

import (
	"context"
	"fmt"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

type SettingsReader interface {
	Get(ctx context.Context) (models.GlobalSettings, error)
}

type TicketReader interface {
	GetTicket(ctx context.Context, ref string) (*models.Ticket, error)
}

// CheckoutService creates the payment request for a pending ticket. The
// gateway call happens before, and independently of, any status change.
type CheckoutService struct {
	Settings SettingsReader
	Tickets  TicketReader
	Gateway  Gateway
	Logger   *logger.Logger
}

func NewCheckoutService(settings SettingsReader, tickets TicketReader, gateway Gateway, log *logger.Logger) *CheckoutService {
	return &CheckoutService{Settings: settings, Tickets: tickets, Gateway: gateway, Logger: log}
}

func (s *CheckoutService) Checkout(ctx context.Context, ticketRef string) (*models.PaymentIntent, error) {
	settings, err := s.Settings.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	ticket, err := s.Tickets.GetTicket(ctx, ticketRef)
	if err != nil {
		return nil, err
	}
	switch ticket.Status {
	case models.TicketActive:
		return nil, models.ErrTicketAlreadyPaid
	case models.TicketPending:
	default:
		return nil, models.NewValidationError("ticket", fmt.Sprintf("status %s cannot be paid", ticket.Status))
	}

	intent, err := s.Gateway.CreateIntent(ctx, settings, ticket)
	if err != nil {
		if IsConfigurationError(err) {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Gateway %s is not configured: %v", s.Gateway.Name(), err))
		} else {
			s.Logger.Error("PAYMENT", fmt.Sprintf("Failed to create payment for %s: %v", ticket.Code, err))
		}
		return nil, err
	}

	s.Logger.LogPayment("CHECKOUT", intent.PaymentID, fmt.Sprintf("created for ticket %s (%s)", ticket.Code, ticket.Numbers))
	return intent, nil
}
