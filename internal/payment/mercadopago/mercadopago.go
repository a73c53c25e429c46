// Package mercadopago talks to the Mercado Pago Checkout Pro API through the
// official SDK.
package mercadopago

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mercadopago/sdk-go/pkg/config"
	"github.com/mercadopago/sdk-go/pkg/mperror"
	mppayment "github.com/mercadopago/sdk-go/pkg/payment"
	"github.com/mercadopago/sdk-go/pkg/preference"
	"github.com/mercadopago/sdk-go/pkg/requester"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/payment"
)

const (
	ProviderName   = "mercadopago"
	DefaultBaseURL = "https://api.mercadopago.com"
)

type Config struct {
	// BaseURL redirects SDK traffic, e.g. to a sandbox proxy.
	BaseURL         string
	PublicBaseURL   string
	NotificationURL string
	Currency        string
}

type Gateway struct {
	cfg        Config
	httpClient *http.Client
	log        *logger.Logger
}

func NewGateway(cfg Config, httpClient *http.Client, log *logger.Logger) *Gateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Currency == "" {
		cfg.Currency = "COP"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Gateway{cfg: cfg, httpClient: httpClient, log: log}
}

func (g *Gateway) Name() string {
	return ProviderName
}

// baseURLRequester sends SDK requests to BaseURL instead of the production host.
type baseURLRequester struct {
	client *http.Client
	base   *url.URL
}

func (r *baseURLRequester) Do(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = r.base.Scheme
	req.URL.Host = r.base.Host
	req.Host = r.base.Host
	return r.client.Do(req)
}

// sdkConfig builds a per-call SDK config because the access token lives in
// the settings row and can change at any time.
func (g *Gateway) sdkConfig(settings models.GlobalSettings) (*config.Config, error) {
	token := strings.TrimSpace(settings.GatewayAccessToken)
	if token == "" {
		return nil, &payment.ConfigurationError{Provider: ProviderName, Reason: "access token is not configured"}
	}

	var rq requester.Requester = g.httpClient
	if g.cfg.BaseURL != DefaultBaseURL {
		base, err := url.Parse(g.cfg.BaseURL)
		if err != nil || base.Host == "" {
			return nil, &payment.ConfigurationError{Provider: ProviderName, Reason: fmt.Sprintf("invalid API base URL %q", g.cfg.BaseURL)}
		}
		rq = &baseURLRequester{client: g.httpClient, base: base}
	}

	cfg, err := config.New(token, config.WithHTTPClient(rq))
	if err != nil {
		return nil, &payment.ConfigurationError{Provider: ProviderName, Reason: err.Error()}
	}
	return cfg, nil
}

func (g *Gateway) CreateIntent(ctx context.Context, settings models.GlobalSettings, ticket *models.Ticket) (*models.PaymentIntent, error) {
	cfg, err := g.sdkConfig(settings)
	if err != nil {
		return nil, err
	}
	if settings.TicketPrice <= 0 {
		return nil, &payment.ConfigurationError{Provider: ProviderName, Reason: "ticket price is not configured"}
	}

	owner := ticket.OwnerData
	req := preference.Request{
		Items: []preference.ItemRequest{{
			ID:         ticket.ID,
			Title:      payment.TicketTitle(ticket.Numbers),
			Quantity:   1,
			CurrencyID: g.cfg.Currency,
			UnitPrice:  float64(settings.TicketPrice),
		}},
		Payer: &preference.PayerRequest{
			Name:  owner.FullName,
			Email: owner.Email,
		},
		BackURLs: &preference.BackURLsRequest{
			Success: payment.ReturnURL(g.cfg.PublicBaseURL, "success", ticket.ID),
			Failure: payment.ReturnURL(g.cfg.PublicBaseURL, "failure", ticket.ID),
			Pending: payment.ReturnURL(g.cfg.PublicBaseURL, "pending", ticket.ID),
		},
		AutoReturn:        "approved",
		NotificationURL:   g.cfg.NotificationURL,
		ExternalReference: ticket.ID,
		Metadata: map[string]any{
			"ticket_id": ticket.ID,
			"user_id":   ticket.UserID,
		},
	}
	if owner.Phone != "" {
		req.Payer.Phone = &preference.PhoneRequest{AreaCode: owner.CountryCode, Number: owner.Phone}
	}
	if owner.DocumentID != "" {
		req.Payer.Identification = &preference.IdentificationRequest{Type: "CC", Number: owner.DocumentID}
	}

	pref, err := preference.NewClient(cfg).Create(ctx, req)
	if err != nil {
		return nil, g.gatewayError("create preference", err)
	}

	checkoutURL := pref.InitPoint
	if checkoutURL == "" {
		checkoutURL = pref.SandboxInitPoint
	}

	g.log.LogPayment("PREFERENCE", pref.ID, fmt.Sprintf("created for ticket %s", ticket.ID))
	return &models.PaymentIntent{Provider: ProviderName, PaymentID: pref.ID, CheckoutURL: checkoutURL}, nil
}

func (g *Gateway) FetchPaymentStatus(ctx context.Context, settings models.GlobalSettings, paymentID string) (*models.PaymentInfo, error) {
	cfg, err := g.sdkConfig(settings)
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(strings.TrimSpace(paymentID))
	if err != nil {
		return nil, fmt.Errorf("%w: payment id %q is not numeric", payment.ErrInvalidNotification, paymentID)
	}

	p, err := mppayment.NewClient(cfg).Get(ctx, id)
	if err != nil {
		return nil, g.gatewayError("fetch payment", err)
	}

	info := &models.PaymentInfo{
		PaymentID: paymentID,
		Status:    MapStatus(p.Status),
		RawStatus: p.Status,
		Metadata: models.PaymentMetadata{
			TicketID: stringField(p.Metadata, "ticket_id"),
			UserID:   stringField(p.Metadata, "user_id"),
		},
	}
	if info.Metadata.TicketID == "" {
		info.Metadata.TicketID = p.ExternalReference
	}

	g.log.LogPayment("STATUS", paymentID, fmt.Sprintf("%s (%s)", p.Status, p.StatusDetail))
	return info, nil
}

func (g *Gateway) gatewayError(operation string, err error) error {
	var respErr *mperror.ResponseError
	if errors.As(err, &respErr) {
		g.log.Error("MERCADOPAGO", fmt.Sprintf("%s returned %d: %s", operation, respErr.StatusCode, respErr.Message))
		return &payment.GatewayError{
			Provider:   ProviderName,
			Operation:  operation,
			StatusCode: respErr.StatusCode,
			Body:       respErr.Message,
			Err:        err,
		}
	}
	g.log.Error("MERCADOPAGO", fmt.Sprintf("%s failed: %v", operation, err))
	return &payment.GatewayError{Provider: ProviderName, Operation: operation, Err: err}
}

// MapStatus folds Mercado Pago payment statuses into the three outcomes the
// reconciler acts on.
func MapStatus(status string) models.PaymentStatus {
	switch status {
	case "approved":
		return models.PaymentApproved
	case "pending", "in_process", "authorized", "in_mediation":
		return models.PaymentPending
	default:
		return models.PaymentRejected
	}
}

type notificationBody struct {
	Type   string `json:"type"`
	Topic  string `json:"topic"`
	Action string `json:"action"`
	Data   struct {
		ID json.RawMessage `json:"id"`
	} `json:"data"`
}

// ParseNotification accepts both the JSON webhook body and the legacy IPN
// query string form (?topic=payment&id=123).
func (g *Gateway) ParseNotification(header http.Header, query url.Values, body []byte) (models.PaymentNotification, error) {
	var n models.PaymentNotification

	if len(bytes.TrimSpace(body)) > 0 {
		var b notificationBody
		if err := json.Unmarshal(body, &b); err != nil {
			if query.Get("type") == "" && query.Get("topic") == "" {
				return n, fmt.Errorf("%w: %v", payment.ErrInvalidNotification, err)
			}
		} else {
			n.Type = firstNonEmpty(b.Type, b.Topic)
			n.PaymentID = rawID(b.Data.ID)
		}
	}

	if n.Type == "" {
		n.Type = firstNonEmpty(query.Get("type"), query.Get("topic"))
	}
	if n.PaymentID == "" {
		n.PaymentID = firstNonEmpty(query.Get("data.id"), query.Get("id"))
	}
	return n, nil
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
