package approval

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

const (
	tokenIssuer = "raffle-manual-approval"
	DefaultTTL  = 2 * time.Minute
)

// ErrInvalidApproval covers expired, forged and mismatched approval tokens.
var ErrInvalidApproval = fmt.Errorf("%w: approval token is invalid or expired", models.ErrValidation)

type Tickets interface {
	GetTicket(ctx context.Context, ref string) (*models.Ticket, error)
	ConfirmPayment(ctx context.Context, ref string) (models.ConfirmResult, *models.Ticket, error)
}

// Request is handed to the operator, who must send Token back to confirm.
// When the ticket is already active there is nothing to confirm: Result is
// already_active and Token is empty.
type Request struct {
	TicketID  string               `json:"ticket_id"`
	Code      string               `json:"code"`
	Numbers   string               `json:"numbers"`
	Prompt    string               `json:"prompt"`
	Token     string               `json:"token,omitempty"`
	ExpiresAt *time.Time           `json:"expires_at,omitempty"`
	Result    models.ConfirmResult `json:"result,omitempty"`
	Ticket    *models.Ticket       `json:"ticket,omitempty"`
}

func (r *Request) AlreadyActive() bool {
	return r.Result == models.ConfirmAlreadyActive
}

type Result struct {
	Result models.ConfirmResult `json:"result"`
	Ticket *models.Ticket       `json:"ticket"`
}

type claims struct {
	Operator string `json:"operator"`
	jwt.RegisteredClaims
}

// Service is the operator path to mark a ticket paid. It goes through the
// same ConfirmPayment entry point as the webhook.
type Service struct {
	Tickets Tickets
	Logger  *logger.Logger
	TTL     time.Duration
	Now     func() time.Time

	secret []byte
}

// NewService signs tokens with secret. An empty secret is replaced by a
// random one, which only works while a single API process issues and
// checks the tokens.
func NewService(tickets Tickets, secret string, ttl time.Duration, log *logger.Logger) (*Service, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate approval secret: %w", err)
		}
		log.Warn("APPROVAL", "APPROVAL_SIGNING_SECRET not set, using an ephemeral key")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{Tickets: tickets, Logger: log, TTL: ttl, Now: time.Now, secret: key}, nil
}

func Prompt(numbers string) string {
	return fmt.Sprintf("Confirm MANUAL payment for ticket #%s?", numbers)
}

// RequestApproval is the first step: it issues a short-lived token bound to
// the ticket and the operator. An active ticket short-circuits to
// already_active, the same outcome a second webhook would get.
func (s *Service) RequestApproval(ctx context.Context, ref, operator string) (*Request, error) {
	if operator == "" {
		return nil, models.NewValidationError("operator", "is required")
	}
	ticket, err := s.Tickets.GetTicket(ctx, ref)
	if err != nil {
		return nil, err
	}
	if ticket.IsActive() {
		s.Logger.LogTicket("MANUAL_APPROVAL", ticket.Code, fmt.Sprintf("%s requested by %s", models.ConfirmAlreadyActive, operator))
		return &Request{
			TicketID: ticket.ID,
			Code:     ticket.Code,
			Numbers:  ticket.Numbers,
			Prompt:   fmt.Sprintf("Ticket #%s is already paid", ticket.Numbers),
			Result:   models.ConfirmAlreadyActive,
			Ticket:   ticket,
		}, nil
	}

	now := s.Now()
	expiresAt := now.Add(s.TTL).UTC()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Operator: operator,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   ticket.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign approval token: %w", err)
	}

	s.Logger.LogSecurity("APPROVAL_REQUESTED", fmt.Sprintf("operator %s asked to approve ticket %s", operator, ticket.Code))
	return &Request{
		TicketID:  ticket.ID,
		Code:      ticket.Code,
		Numbers:   ticket.Numbers,
		Prompt:    Prompt(ticket.Numbers),
		Token:     token,
		ExpiresAt: &expiresAt,
	}, nil
}

// Approve is the second step. The token must match both the ticket and the
// operator that requested it.
func (s *Service) Approve(ctx context.Context, ref, operator, token string) (*Result, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.Now),
	)
	if err != nil {
		s.Logger.LogSecurity("APPROVAL_REJECTED", fmt.Sprintf("operator %s, ticket %s: %v", operator, ref, err))
		return nil, ErrInvalidApproval
	}

	ticket, err := s.Tickets.GetTicket(ctx, ref)
	if err != nil {
		return nil, err
	}
	if c.Subject != ticket.ID || c.Operator != operator {
		s.Logger.LogSecurity("APPROVAL_REJECTED", fmt.Sprintf("token for %s/%s presented by %s for %s", c.Subject, c.Operator, operator, ticket.ID))
		return nil, ErrInvalidApproval
	}

	result, updated, err := s.Tickets.ConfirmPayment(ctx, ticket.ID)
	if err != nil {
		if errors.Is(err, models.ErrNumberTaken) {
			s.Logger.Error("APPROVAL", fmt.Sprintf("Ticket %s cannot be activated, number %s is held by another ticket", ticket.Code, ticket.Numbers))
		}
		return nil, err
	}

	s.Logger.LogTicket("MANUAL_APPROVAL", ticket.Code, fmt.Sprintf("%s by %s", result, operator))
	return &Result{Result: result, Ticket: updated}, nil
}
