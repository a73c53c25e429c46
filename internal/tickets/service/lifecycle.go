package tickets

import (
	"context"
	"fmt"
	"strings"

	"ms-raffle/internal/models"
)

// ConfirmPayment moves a ticket from pending to active. It is the only code
// path that writes status = active, and calling it on an active ticket is a
// successful no-op.
func (s *TicketService) ConfirmPayment(ctx context.Context, ref string) (models.ConfirmResult, *models.Ticket, error) {
	ticket, err := s.DB.GetTicketByRef(ctx, ref)
	if err != nil {
		return "", nil, err
	}

	if ticket.IsActive() {
		s.Logger.LogTicket("CONFIRM", ticket.Code, "already active")
		return models.ConfirmAlreadyActive, ticket, nil
	}

	purchasedAt := s.now()
	updated, err := s.DB.ActivateTicket(ctx, ticket.ID, purchasedAt)
	if err != nil {
		return "", nil, fmt.Errorf("activate ticket %s: %w", ticket.Code, err)
	}

	if !updated {
		// Lost the race; whoever won must have activated it.
		current, err := s.DB.GetTicketByID(ctx, ticket.ID)
		if err != nil {
			return "", nil, err
		}
		if current.IsActive() {
			s.Logger.LogTicket("CONFIRM", ticket.Code, "activated concurrently")
			return models.ConfirmAlreadyActive, current, nil
		}
		return "", nil, fmt.Errorf("ticket %s in status %s cannot be activated", current.Code, current.Status)
	}

	ticket.Status = models.TicketActive
	ticket.PurchasedAt = &purchasedAt

	s.Logger.LogTicket("CONFIRM", ticket.Code, fmt.Sprintf("number %s activated", ticket.Numbers))
	s.changed(ctx, models.EventTicketActivated, ticket)
	return models.ConfirmActivated, ticket, nil
}

// UpdateOwner merges a partial owner payload; absent fields are kept.
func (s *TicketService) UpdateOwner(ctx context.Context, ref string, patch models.OwnerPatch) (*models.Ticket, error) {
	if patch.IsEmpty() {
		return nil, models.NewValidationError("owner", "no fields to update")
	}
	if patch.FullName != nil && strings.TrimSpace(*patch.FullName) == "" {
		return nil, models.NewValidationError("fullName", "cannot be blank")
	}
	if patch.Phone != nil && models.DigitsOnly(*patch.Phone) == "" {
		return nil, models.NewValidationError("phone", "cannot be blank")
	}
	var phone, countryCode string
	if patch.Phone != nil {
		phone = models.DigitsOnly(*patch.Phone)
	}
	if patch.CountryCode != nil {
		countryCode = models.DigitsOnly(*patch.CountryCode)
	}
	if err := models.ValidatePhone(countryCode, phone); err != nil {
		return nil, err
	}

	ticket, err := s.DB.GetTicketByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	updated, err := s.DB.UpdateOwnerData(ctx, ticket.ID, patch)
	if err != nil {
		return nil, err
	}

	s.Logger.LogTicket("OWNER", updated.Code, "owner data updated")
	s.changed(ctx, models.EventTicketOwnerUpdated, updated)
	return updated, nil
}

func (s *TicketService) GetTicket(ctx context.Context, ref string) (*models.Ticket, error) {
	return s.DB.GetTicketByRef(ctx, ref)
}

func (s *TicketService) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	return s.DB.ListTickets(ctx)
}

// ListTicketsByUser accepts a phone in any formatting.
func (s *TicketService) ListTicketsByUser(ctx context.Context, phone string) ([]models.Ticket, error) {
	userID := models.DigitsOnly(phone)
	if userID == "" {
		return nil, models.NewValidationError("phone", "is required")
	}
	return s.DB.ListTicketsByUser(ctx, userID)
}
