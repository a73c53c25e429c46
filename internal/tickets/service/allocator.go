package tickets

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ms-raffle/internal/models"
	ticketdb "ms-raffle/internal/tickets/db"
)

// IsTaken reports whether a pending or active ticket holds numbers.
func (s *TicketService) IsTaken(ctx context.Context, numbers string) (bool, error) {
	if !ValidNumbers(numbers) {
		return false, models.NewValidationError("numbers", "must be exactly 4 digits")
	}
	return s.DB.IsNumberTaken(ctx, numbers, s.staleBefore())
}

// RandomAvailable draws random numbers until it finds a free one, probing the
// store at most MaxRandomAttempts times.
func (s *TicketService) RandomAvailable(ctx context.Context) (string, error) {
	staleBefore := s.staleBefore()

	for attempt := 1; attempt <= s.opts.MaxRandomAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		n, err := s.opts.RandomInt(numberSpace)
		if err != nil {
			return "", fmt.Errorf("draw random number: %w", err)
		}
		numbers := FormatNumbers(n)

		taken, err := s.DB.IsNumberTaken(ctx, numbers, staleBefore)
		if err != nil {
			s.Logger.Warn("ALLOCATOR", fmt.Sprintf("Availability check %d for %s failed: %v", attempt, numbers, err))
			continue
		}
		if taken {
			continue
		}

		if s.Holds != nil {
			held, err := s.Holds.Hold(ctx, numbers)
			if err != nil {
				s.Logger.Warn("ALLOCATOR", fmt.Sprintf("Soft hold for %s unavailable: %v", numbers, err))
			} else if !held {
				continue
			}
		}

		s.Logger.Debug("ALLOCATOR", fmt.Sprintf("Picked %s after %d attempt(s)", numbers, attempt))
		return numbers, nil
	}

	s.Logger.Warn("ALLOCATOR", fmt.Sprintf("No free number after %d attempts", s.opts.MaxRandomAttempts))
	return "", models.ErrAllocationExhausted
}

// Reserve is the only way a ticket row is created. The pre-check saves a
// round trip for obvious conflicts; the store's unique index decides races.
func (s *TicketService) Reserve(ctx context.Context, numbers string, owner models.OwnerData) (*models.Ticket, error) {
	numbers = strings.TrimSpace(numbers)
	if !ValidNumbers(numbers) {
		return nil, models.NewValidationError("numbers", "must be exactly 4 digits")
	}

	owner.FullName = strings.TrimSpace(owner.FullName)
	owner.Phone = models.DigitsOnly(owner.Phone)
	owner.CountryCode = models.DigitsOnly(owner.CountryCode)
	owner.Email = strings.TrimSpace(owner.Email)
	owner.DocumentID = strings.TrimSpace(owner.DocumentID)

	if owner.FullName == "" {
		return nil, models.NewValidationError("fullName", "is required")
	}
	if owner.Phone == "" {
		return nil, models.NewValidationError("phone", "is required")
	}
	if err := models.ValidatePhone(owner.CountryCode, owner.Phone); err != nil {
		return nil, err
	}

	staleBefore := s.staleBefore()

	taken, err := s.DB.IsNumberTaken(ctx, numbers, staleBefore)
	if err != nil {
		return nil, fmt.Errorf("check availability of %s: %w", numbers, err)
	}
	if taken {
		return nil, models.ErrNumberTaken
	}

	now := s.now()
	ticket := &models.Ticket{
		ID:        uuid.New().String(),
		Numbers:   numbers,
		UserID:    owner.CountryCode + owner.Phone,
		Status:    models.TicketPending,
		OwnerData: owner,
		CreatedAt: now,
	}

	for attempt := 1; ; attempt++ {
		ticket.Code, err = generateCode(s.opts.CodePrefix, now, s.opts.RandomInt)
		if err != nil {
			return nil, err
		}

		err = s.DB.CreateTicket(ctx, ticket, staleBefore)
		if errors.Is(err, ticketdb.ErrCodeCollision) && attempt < maxCodeAttempts {
			s.Logger.Warn("TICKET", fmt.Sprintf("Code %s collided, regenerating", ticket.Code))
			continue
		}
		break
	}
	if err != nil {
		if errors.Is(err, models.ErrNumberTaken) {
			s.Logger.LogTicket("RESERVE", numbers, "lost race for number")
			return nil, models.ErrNumberTaken
		}
		return nil, fmt.Errorf("create ticket for %s: %w", numbers, err)
	}

	if s.Holds != nil {
		if err := s.Holds.Release(ctx, numbers); err != nil {
			s.Logger.Warn("ALLOCATOR", fmt.Sprintf("Failed to release hold on %s: %v", numbers, err))
		}
	}

	s.Logger.LogTicket("RESERVE", ticket.Code, fmt.Sprintf("number %s reserved for %s", numbers, ticket.UserID))
	s.changed(ctx, models.EventTicketReserved, ticket)
	return ticket, nil
}
