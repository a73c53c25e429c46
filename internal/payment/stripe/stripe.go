// Package stripe implements the payment gateway on Stripe Checkout.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/payment"
)

const (
	ProviderName    = "stripe"
	SignatureHeader = "Stripe-Signature"
)

type Config struct {
	PublicBaseURL string
	Currency      string
	WebhookSecret string
}

type Gateway struct {
	cfg      Config
	backends *stripe.Backends
	log      *logger.Logger
}

// NewGateway builds the adapter. backends may be nil to talk to the real
// Stripe API.
func NewGateway(cfg Config, backends *stripe.Backends, log *logger.Logger) *Gateway {
	if cfg.Currency == "" {
		cfg.Currency = "cop"
	}
	cfg.Currency = strings.ToLower(cfg.Currency)
	return &Gateway{cfg: cfg, backends: backends, log: log}
}

func (g *Gateway) Name() string {
	return ProviderName
}

func (g *Gateway) client(settings models.GlobalSettings) (*client.API, error) {
	key := strings.TrimSpace(settings.GatewayAccessToken)
	if key == "" {
		return nil, &payment.ConfigurationError{Provider: ProviderName, Reason: "secret key is not configured"}
	}
	return client.New(key, g.backends), nil
}

func (g *Gateway) CreateIntent(ctx context.Context, settings models.GlobalSettings, ticket *models.Ticket) (*models.PaymentIntent, error) {
	sc, err := g.client(settings)
	if err != nil {
		return nil, err
	}
	if settings.TicketPrice <= 0 {
		return nil, &payment.ConfigurationError{Provider: ProviderName, Reason: "ticket price is not configured"}
	}

	metadata := map[string]string{
		"ticket_id": ticket.ID,
		"user_id":   ticket.UserID,
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(payment.ReturnURL(g.cfg.PublicBaseURL, "success", ticket.ID)),
		CancelURL:         stripe.String(payment.ReturnURL(g.cfg.PublicBaseURL, "failure", ticket.ID)),
		ClientReferenceID: stripe.String(ticket.ID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.cfg.Currency),
				UnitAmount: stripe.Int64(minorUnits(g.cfg.Currency, settings.TicketPrice)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(payment.TicketTitle(ticket.Numbers)),
				},
			},
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
		Metadata: metadata,
	}
	if ticket.OwnerData.Email != "" {
		params.CustomerEmail = stripe.String(ticket.OwnerData.Email)
	}
	params.Context = ctx

	sess, err := sc.CheckoutSessions.New(params)
	if err != nil {
		return nil, g.wrap("create checkout session", err)
	}

	g.log.LogPayment("CHECKOUT_SESSION", sess.ID, fmt.Sprintf("created for ticket %s", ticket.ID))
	return &models.PaymentIntent{Provider: ProviderName, PaymentID: sess.ID, CheckoutURL: sess.URL}, nil
}

// FetchPaymentStatus accepts either a Checkout Session id (cs_...) or a
// PaymentIntent id (pi_...).
func (g *Gateway) FetchPaymentStatus(ctx context.Context, settings models.GlobalSettings, paymentID string) (*models.PaymentInfo, error) {
	sc, err := g.client(settings)
	if err != nil {
		return nil, err
	}

	if strings.HasPrefix(paymentID, "cs_") {
		params := &stripe.CheckoutSessionParams{}
		params.Context = ctx
		sess, err := sc.CheckoutSessions.Get(paymentID, params)
		if err != nil {
			return nil, g.wrap("fetch checkout session", err)
		}
		info := &models.PaymentInfo{
			PaymentID: paymentID,
			Status:    MapSessionStatus(sess.Status, sess.PaymentStatus),
			RawStatus: string(sess.PaymentStatus),
			Metadata:  metadataOf(sess.Metadata),
		}
		if info.Metadata.TicketID == "" {
			info.Metadata.TicketID = sess.ClientReferenceID
		}
		g.log.LogPayment("STATUS", paymentID, string(sess.PaymentStatus))
		return info, nil
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := sc.PaymentIntents.Get(paymentID, params)
	if err != nil {
		return nil, g.wrap("fetch payment intent", err)
	}

	g.log.LogPayment("STATUS", paymentID, string(pi.Status))
	return &models.PaymentInfo{
		PaymentID: paymentID,
		Status:    MapIntentStatus(pi.Status),
		RawStatus: string(pi.Status),
		Metadata:  metadataOf(pi.Metadata),
	}, nil
}

func MapIntentStatus(status stripe.PaymentIntentStatus) models.PaymentStatus {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return models.PaymentApproved
	case stripe.PaymentIntentStatusProcessing,
		stripe.PaymentIntentStatusRequiresAction,
		stripe.PaymentIntentStatusRequiresCapture,
		stripe.PaymentIntentStatusRequiresConfirmation,
		stripe.PaymentIntentStatusRequiresPaymentMethod:
		return models.PaymentPending
	default:
		return models.PaymentRejected
	}
}

func MapSessionStatus(status stripe.CheckoutSessionStatus, paymentStatus stripe.CheckoutSessionPaymentStatus) models.PaymentStatus {
	switch {
	case paymentStatus == stripe.CheckoutSessionPaymentStatusPaid:
		return models.PaymentApproved
	case status == stripe.CheckoutSessionStatusExpired:
		return models.PaymentRejected
	default:
		return models.PaymentPending
	}
}

// ParseNotification verifies the Stripe-Signature header before reading
// anything from the body.
func (g *Gateway) ParseNotification(header http.Header, query url.Values, body []byte) (models.PaymentNotification, error) {
	if g.cfg.WebhookSecret == "" {
		return models.PaymentNotification{}, &payment.ConfigurationError{Provider: ProviderName, Reason: "webhook secret is not configured"}
	}

	event, err := webhook.ConstructEventWithOptions(body, header.Get(SignatureHeader), g.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		g.log.LogSecurity("STRIPE_SIGNATURE", fmt.Sprintf("Rejected webhook: %v", err))
		return models.PaymentNotification{}, fmt.Errorf("%w: %v", payment.ErrInvalidNotification, err)
	}

	n := models.PaymentNotification{Type: string(event.Type)}
	switch {
	case strings.HasPrefix(string(event.Type), "payment_intent."),
		strings.HasPrefix(string(event.Type), "checkout.session."):
		n.Type = models.NotificationTypePayment
		if event.Data != nil {
			if id, ok := event.Data.Object["id"].(string); ok {
				n.PaymentID = id
			}
		}
	}
	return n, nil
}

func (g *Gateway) wrap(operation string, err error) error {
	gwErr := &payment.GatewayError{Provider: ProviderName, Operation: operation, Err: err}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gwErr.StatusCode = stripeErr.HTTPStatusCode
		gwErr.Body = stripeErr.Msg
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			g.log.Error("STRIPE", fmt.Sprintf("%s rejected credentials: %s", operation, stripeErr.Msg))
			return &payment.ConfigurationError{Provider: ProviderName, Reason: "secret key rejected: " + stripeErr.Msg}
		}
	}

	g.log.Error("STRIPE", fmt.Sprintf("%s failed: %v", operation, err))
	return gwErr
}

func metadataOf(m map[string]string) models.PaymentMetadata {
	return models.PaymentMetadata{TicketID: m["ticket_id"], UserID: m["user_id"]}
}

var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// minorUnits converts whole currency units to what Stripe expects.
func minorUnits(currency string, amount int64) int64 {
	if zeroDecimal[currency] {
		return amount
	}
	return amount * 100
}
