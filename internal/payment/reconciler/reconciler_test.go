package reconciler_test

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	"ms-raffle/internal/payment"
	"ms-raffle/internal/payment/reconciler"
)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Name() string { return "mock" }

func (m *MockGateway) CreateIntent(ctx context.Context, settings models.GlobalSettings, ticket *models.Ticket) (*models.PaymentIntent, error) {
	args := m.Called(ctx, settings, ticket)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentIntent), args.Error(1)
}

func (m *MockGateway) FetchPaymentStatus(ctx context.Context, settings models.GlobalSettings, paymentID string) (*models.PaymentInfo, error) {
	args := m.Called(ctx, settings, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentInfo), args.Error(1)
}

func (m *MockGateway) ParseNotification(header http.Header, query url.Values, body []byte) (models.PaymentNotification, error) {
	args := m.Called(header, query, body)
	return args.Get(0).(models.PaymentNotification), args.Error(1)
}

type MockConfirmer struct {
	mock.Mock
}

func (m *MockConfirmer) ConfirmPayment(ctx context.Context, ref string) (models.ConfirmResult, *models.Ticket, error) {
	args := m.Called(ctx, ref)
	if args.Get(1) == nil {
		return models.ConfirmResult(args.String(0)), nil, args.Error(2)
	}
	return models.ConfirmResult(args.String(0)), args.Get(1).(*models.Ticket), args.Error(2)
}

type MockAlarm struct {
	mock.Mock
}

func (m *MockAlarm) Raise(ctx context.Context, title, detail string) error {
	args := m.Called(ctx, title, detail)
	return args.Error(0)
}

type staticSettings struct {
	settings models.GlobalSettings
}

func (s staticSettings) Get(ctx context.Context) (models.GlobalSettings, error) {
	return s.settings, nil
}

func setup() (*reconciler.Reconciler, *MockGateway, *MockConfirmer, *MockAlarm) {
	gw := new(MockGateway)
	confirmer := new(MockConfirmer)
	a := new(MockAlarm)
	settings := models.DefaultSettings(time.Now())
	settings.GatewayAccessToken = "token"
	r := reconciler.New(gw, staticSettings{settings}, confirmer, a, logger.Discard())
	return r, gw, confirmer, a
}

var body = []byte(`{"type":"payment","data":{"id":"987"}}`)

func paymentNotification(id string) models.PaymentNotification {
	return models.PaymentNotification{Type: models.NotificationTypePayment, PaymentID: id}
}

func TestHandleNotification_ApprovedActivates(t *testing.T) {
	r, gw, confirmer, a := setup()

	gw.On("ParseNotification", mock.Anything, mock.Anything, body).Return(paymentNotification("987"), nil)
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "987").Return(&models.PaymentInfo{
		PaymentID: "987",
		Status:    models.PaymentApproved,
		Metadata:  models.PaymentMetadata{TicketID: "t-1", UserID: "573001112233"},
	}, nil)
	confirmer.On("ConfirmPayment", mock.Anything, "t-1").Return(string(models.ConfirmActivated), &models.Ticket{ID: "t-1"}, nil)

	res, err := r.HandleNotification(context.Background(), http.Header{}, url.Values{}, body)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeActivated, res.Outcome)
	assert.Equal(t, "t-1", res.TicketID)

	gw.AssertExpectations(t)
	confirmer.AssertExpectations(t)
	a.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotification_DuplicateDeliveryIsAlreadyActive(t *testing.T) {
	r, gw, confirmer, _ := setup()

	gw.On("ParseNotification", mock.Anything, mock.Anything, body).Return(paymentNotification("987"), nil)
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "987").Return(&models.PaymentInfo{
		Status:   models.PaymentApproved,
		Metadata: models.PaymentMetadata{TicketID: "t-1"},
	}, nil)
	confirmer.On("ConfirmPayment", mock.Anything, "t-1").Return(string(models.ConfirmActivated), &models.Ticket{}, nil).Once()
	confirmer.On("ConfirmPayment", mock.Anything, "t-1").Return(string(models.ConfirmAlreadyActive), &models.Ticket{}, nil)

	first, err := r.HandleNotification(context.Background(), nil, nil, body)
	require.NoError(t, err)
	second, err := r.HandleNotification(context.Background(), nil, nil, body)
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeActivated, first.Outcome)
	assert.Equal(t, models.OutcomeAlreadyActive, second.Outcome)
}

func TestHandleNotification_NonPaymentIgnored(t *testing.T) {
	r, gw, confirmer, _ := setup()

	gw.On("ParseNotification", mock.Anything, mock.Anything, mock.Anything).
		Return(models.PaymentNotification{Type: "merchant_order"}, nil)

	res, err := r.HandleNotification(context.Background(), nil, nil, []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, res.Outcome)

	gw.AssertNotCalled(t, "FetchPaymentStatus", mock.Anything, mock.Anything, mock.Anything)
	confirmer.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestReconcile_PendingAndRejectedTakeNoAction(t *testing.T) {
	for _, status := range []models.PaymentStatus{models.PaymentPending, models.PaymentRejected} {
		r, gw, confirmer, _ := setup()
		gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "555").Return(&models.PaymentInfo{
			Status:   status,
			Metadata: models.PaymentMetadata{TicketID: "t-1"},
		}, nil)

		res, err := r.Reconcile(context.Background(), "555")
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeNotApproved, res.Outcome)
		assert.Equal(t, status, res.PaymentStatus)
		confirmer.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
	}
}

func TestReconcile_MissingMetadataAcknowledged(t *testing.T) {
	r, gw, confirmer, _ := setup()
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "555").Return(&models.PaymentInfo{
		Status: models.PaymentApproved,
	}, nil)

	res, err := r.Reconcile(context.Background(), "555")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeIgnored, res.Outcome)
	confirmer.AssertNotCalled(t, "ConfirmPayment", mock.Anything, mock.Anything)
}

func TestReconcile_UnknownTicketRaisesAlarm(t *testing.T) {
	r, gw, confirmer, a := setup()
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "555").Return(&models.PaymentInfo{
		Status:   models.PaymentApproved,
		Metadata: models.PaymentMetadata{TicketID: "ghost"},
	}, nil)
	confirmer.On("ConfirmPayment", mock.Anything, "ghost").Return("", nil, models.ErrTicketNotFound)
	a.On("Raise", mock.Anything, "Approved payment for unknown ticket", mock.MatchedBy(func(d string) bool {
		return d != ""
	})).Return(nil)

	_, err := r.Reconcile(context.Background(), "555")
	assert.ErrorIs(t, err, models.ErrTicketNotFound)
	a.AssertExpectations(t)
}

func TestReconcile_ReassignedNumberIsAcknowledged(t *testing.T) {
	r, gw, confirmer, a := setup()
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "556").Return(&models.PaymentInfo{
		Status:   models.PaymentApproved,
		Metadata: models.PaymentMetadata{TicketID: "t-expired"},
	}, nil)
	confirmer.On("ConfirmPayment", mock.Anything, "t-expired").Return("", nil, models.ErrNumberTaken)
	a.On("Raise", mock.Anything, "Approved payment for a reassigned number", mock.Anything).Return(nil)

	res, err := r.Reconcile(context.Background(), "556")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeUnresolvable, res.Outcome)
	assert.Equal(t, "t-expired", res.TicketID)
	a.AssertExpectations(t)
}

func TestReconcile_ConfigurationErrorRaisesAlarm(t *testing.T) {
	r, gw, _, a := setup()
	cfgErr := &payment.ConfigurationError{Provider: "mock", Reason: "access token is not configured"}
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "555").Return(nil, cfgErr)
	a.On("Raise", mock.Anything, "Payment gateway misconfigured", mock.Anything).Return(errors.New("telegram down"))

	_, err := r.Reconcile(context.Background(), "555")
	assert.True(t, payment.IsConfigurationError(err))
	a.AssertExpectations(t)
}

func TestReconcile_GatewayErrorPropagates(t *testing.T) {
	r, gw, _, a := setup()
	gw.On("FetchPaymentStatus", mock.Anything, mock.Anything, "555").
		Return(nil, &payment.GatewayError{Provider: "mock", Operation: "fetch payment", StatusCode: 503})

	_, err := r.Reconcile(context.Background(), "555")
	assert.True(t, payment.IsGatewayError(err))
	a.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleNotification_InvalidBody(t *testing.T) {
	r, gw, _, _ := setup()
	gw.On("ParseNotification", mock.Anything, mock.Anything, mock.Anything).
		Return(models.PaymentNotification{}, payment.ErrInvalidNotification)

	_, err := r.HandleNotification(context.Background(), nil, nil, []byte("{"))
	assert.ErrorIs(t, err, payment.ErrInvalidNotification)
}
