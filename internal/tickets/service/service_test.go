package tickets_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ms-raffle/internal/database/dbtest"
	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
	ticketdb "ms-raffle/internal/tickets/db"
	tickets "ms-raffle/internal/tickets/service"
)

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify() {
	m.Called()
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishTicketEvent(ctx context.Context, event models.TicketEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func setupService(t *testing.T, opts tickets.Options) (*tickets.TicketService, *ticketdb.DB) {
	store := ticketdb.New(dbtest.New(t))
	return tickets.NewTicketService(store, logger.Discard(), opts), store
}

func owner(name, phone string) models.OwnerData {
	return models.OwnerData{FullName: name, Phone: phone, CountryCode: "+57"}
}

func TestReserveThenConfirm_Scenario(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	a, err := svc.Reserve(ctx, "4821", owner("Buyer A", "300 111 2233"))
	require.NoError(t, err)
	assert.Equal(t, models.TicketPending, a.Status)
	assert.Equal(t, "573001112233", a.UserID)
	assert.Equal(t, "3001112233", a.OwnerData.Phone)

	_, err = svc.Reserve(ctx, "4821", owner("Buyer B", "3009998877"))
	assert.ErrorIs(t, err, models.ErrNumberTaken)

	result, ticket, err := svc.ConfirmPayment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmActivated, result)
	assert.Equal(t, models.TicketActive, ticket.Status)
	require.NotNil(t, ticket.PurchasedAt)

	result, ticket, err = svc.ConfirmPayment(ctx, a.Code)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmAlreadyActive, result)
	assert.Equal(t, models.TicketActive, ticket.Status)
}

func TestIsTaken_ZeroZeroZeroZero(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	taken, err := svc.IsTaken(ctx, "0000")
	require.NoError(t, err)
	assert.False(t, taken)

	_, err = svc.Reserve(ctx, "0000", owner("Buyer", "3001112233"))
	require.NoError(t, err)

	taken, err = svc.IsTaken(ctx, "0000")
	require.NoError(t, err)
	assert.True(t, taken)
}

func TestReserve_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	cases := []struct {
		name    string
		numbers string
		owner   models.OwnerData
		field   string
	}{
		{"three digits", "482", owner("A", "3001112233"), "numbers"},
		{"five digits", "48211", owner("A", "3001112233"), "numbers"},
		{"letters", "48a1", owner("A", "3001112233"), "numbers"},
		{"missing name", "4821", owner("  ", "3001112233"), "fullName"},
		{"missing phone", "4821", owner("A", "+-"), "phone"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Reserve(ctx, tc.numbers, tc.owner)
			require.ErrorIs(t, err, models.ErrValidation)

			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}

	_, err := svc.IsTaken(ctx, "12")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestReserve_ConcurrentSameNumber(t *testing.T) {
	ctx := context.Background()
	svc, store := setupService(t, tickets.Options{})

	const buyers = 12
	var (
		wg        sync.WaitGroup
		successes atomic.Int32
		taken     atomic.Int32
		start     = make(chan struct{})
	)

	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.Reserve(ctx, "1234", owner("Racer", "3001112233"))
			switch {
			case err == nil:
				successes.Add(1)
			case errors.Is(err, models.ErrNumberTaken):
				taken.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(buyers-1), taken.Load())

	all, err := store.ListTickets(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestConfirmPayment_ConcurrentCallersWriteOnce(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	notifier := new(MockNotifier)
	events := new(MockEventPublisher)
	notifier.On("Notify").Return()
	events.On("PublishTicketEvent", mock.Anything, mock.Anything).Return(nil)
	svc.Notifier = notifier
	svc.Events = events

	ticket, err := svc.Reserve(ctx, "8080", owner("Buyer", "3001112233"))
	require.NoError(t, err)

	const callers = 10
	var (
		wg        sync.WaitGroup
		activated atomic.Int32
		already   atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ref := ticket.ID
			if i%2 == 0 {
				ref = ticket.Code
			}
			result, got, err := svc.ConfirmPayment(ctx, ref)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, models.TicketActive, got.Status)
			if result == models.ConfirmActivated {
				activated.Add(1)
			} else {
				already.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), activated.Load())
	assert.Equal(t, int32(callers-1), already.Load())

	events.AssertNumberOfCalls(t, "PublishTicketEvent", 2)
	events.AssertCalled(t, "PublishTicketEvent", mock.Anything, mock.MatchedBy(func(e models.TicketEvent) bool {
		return e.Type == models.EventTicketActivated && e.TicketID == ticket.ID
	}))
	notifier.AssertNumberOfCalls(t, "Notify", 2)
}

func TestConfirmPayment_NotFound(t *testing.T) {
	svc, _ := setupService(t, tickets.Options{})

	_, _, err := svc.ConfirmPayment(context.Background(), "GA-20250101-NOPE")
	assert.ErrorIs(t, err, models.ErrTicketNotFound)
}

func TestConfirmPayment_PublishFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	events := new(MockEventPublisher)
	events.On("PublishTicketEvent", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	svc.Events = events

	ticket, err := svc.Reserve(ctx, "2468", owner("Buyer", "3001112233"))
	require.NoError(t, err)

	result, _, err := svc.ConfirmPayment(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmActivated, result)
}

func TestUpdateOwner_Merge(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	ticket, err := svc.Reserve(ctx, "1357", models.OwnerData{
		FullName:    "Ana Gómez",
		Phone:       "3001112233",
		CountryCode: "57",
		Email:       "ana@example.com",
	})
	require.NoError(t, err)

	doc := " 1020304050 "
	updated, err := svc.UpdateOwner(ctx, ticket.Code, models.OwnerPatch{DocumentID: &doc})
	require.NoError(t, err)
	assert.Equal(t, "1020304050", updated.OwnerData.DocumentID)
	assert.Equal(t, "ana@example.com", updated.OwnerData.Email)
	assert.Equal(t, "Ana Gómez", updated.OwnerData.FullName)
	assert.Equal(t, ticket.UserID, updated.UserID)
	assert.Equal(t, ticket.Numbers, updated.Numbers)

	_, err = svc.UpdateOwner(ctx, ticket.Code, models.OwnerPatch{})
	assert.ErrorIs(t, err, models.ErrValidation)

	blank := "  "
	_, err = svc.UpdateOwner(ctx, ticket.Code, models.OwnerPatch{FullName: &blank})
	assert.ErrorIs(t, err, models.ErrValidation)

	_, err = svc.UpdateOwner(ctx, "GA-20250101-NOPE", models.OwnerPatch{DocumentID: &doc})
	assert.ErrorIs(t, err, models.ErrTicketNotFound)
}

func TestListTicketsByUser_NormalizesPhone(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	_, err := svc.Reserve(ctx, "1111", owner("Buyer", "3001112233"))
	require.NoError(t, err)

	list, err := svc.ListTicketsByUser(ctx, "+57 300 111 2233")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = svc.ListTicketsByUser(ctx, "n/a")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestReserve_CodeFormat(t *testing.T) {
	fixed := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	svc, _ := setupService(t, tickets.Options{Now: func() time.Time { return fixed }})

	ticket, err := svc.Reserve(context.Background(), "0042", owner("Buyer", "3001112233"))
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^GA-20250309-[0-9A-Z]{4}$`), ticket.Code)
	assert.Equal(t, fixed, ticket.CreatedAt)
}

func TestPendingLease_ReleasesAbandonedNumber(t *testing.T) {
	ctx := context.Background()
	clock := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	svc, store := setupService(t, tickets.Options{
		PendingLease: 30 * time.Minute,
		Now:          func() time.Time { return clock },
	})

	abandoned, err := svc.Reserve(ctx, "6060", owner("Slow", "3001112233"))
	require.NoError(t, err)

	clock = clock.Add(10 * time.Minute)
	taken, err := svc.IsTaken(ctx, "6060")
	require.NoError(t, err)
	assert.True(t, taken)

	clock = clock.Add(25 * time.Minute)
	taken, err = svc.IsTaken(ctx, "6060")
	require.NoError(t, err)
	assert.False(t, taken)

	fresh, err := svc.Reserve(ctx, "6060", owner("Fast", "3009998877"))
	require.NoError(t, err)

	old, err := store.GetTicketByID(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TicketExpired, old.Status)

	_, _, err = svc.ConfirmPayment(ctx, abandoned.ID)
	assert.ErrorIs(t, err, models.ErrNumberTaken)

	result, _, err := svc.ConfirmPayment(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConfirmActivated, result)
}

func TestReserve_RejectsOverlongPhone(t *testing.T) {
	ctx := context.Background()
	svc, store := setupService(t, tickets.Options{})

	_, err := svc.Reserve(ctx, "1111", owner("Buyer", "3001112233445566778899"))
	var vErr *models.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "phone", vErr.Field)

	_, err = svc.Reserve(ctx, "1111", models.OwnerData{FullName: "Buyer", Phone: "3001112233", CountryCode: "+12345"})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "countryCode", vErr.Field)

	all, err := store.ListTickets(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdateOwner_RejectsOverlongPhone(t *testing.T) {
	ctx := context.Background()
	svc, _ := setupService(t, tickets.Options{})

	ticket, err := svc.Reserve(ctx, "2222", owner("Buyer", "3001112233"))
	require.NoError(t, err)

	long := "+57 300 111 2233 4455 6677"
	_, err = svc.UpdateOwner(ctx, ticket.ID, models.OwnerPatch{Phone: &long})
	assert.ErrorIs(t, err, models.ErrValidation)

	stored, err := svc.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "3001112233", stored.OwnerData.Phone)
}

type stalledPublisher struct {
	deadlineSet atomic.Bool
}

func (p *stalledPublisher) PublishTicketEvent(ctx context.Context, event models.TicketEvent) error {
	_, ok := ctx.Deadline()
	p.deadlineSet.Store(ok)
	<-ctx.Done()
	return ctx.Err()
}

func TestReserve_StalledPublisherDoesNotBlock(t *testing.T) {
	svc, _ := setupService(t, tickets.Options{PublishTimeout: 50 * time.Millisecond})
	pub := &stalledPublisher{}
	svc.Events = pub

	start := time.Now()
	ticket, err := svc.Reserve(context.Background(), "3333", owner("Buyer", "3001112233"))
	require.NoError(t, err)
	assert.Equal(t, models.TicketPending, ticket.Status)
	assert.True(t, pub.deadlineSet.Load())
	assert.Less(t, time.Since(start), 2*time.Second)
}
