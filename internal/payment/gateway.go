package payment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"ms-raffle/internal/models"
)

// Gateway is a payment provider. Credentials come from the settings value
// passed in, never from process-wide state.
type Gateway interface {
	Name() string
	CreateIntent(ctx context.Context, settings models.GlobalSettings, ticket *models.Ticket) (*models.PaymentIntent, error)
	// FetchPaymentStatus asks the provider for the ground truth about a
	// payment. Notification bodies are never trusted for this.
	FetchPaymentStatus(ctx context.Context, settings models.GlobalSettings, paymentID string) (*models.PaymentInfo, error)
	// ParseNotification extracts which payment a webhook delivery refers to.
	// Deliveries that are not about a payment return a notification whose
	// IsPayment is false and no error.
	ParseNotification(header http.Header, query url.Values, body []byte) (models.PaymentNotification, error)
}

// TicketTitle is the line item label shown by the provider.
func TicketTitle(numbers string) string {
	return fmt.Sprintf("Ticket de Rifa - Número %s", numbers)
}

// ReturnURL is where the provider sends the buyer back after checkout.
func ReturnURL(publicBaseURL, status, ticketID string) string {
	q := url.Values{}
	q.Set("status", status)
	q.Set("ticket_id", ticketID)
	return fmt.Sprintf("%s/wallet?%s", publicBaseURL, q.Encode())
}
