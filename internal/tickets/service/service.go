package tickets

import (
	"context"
	"time"

	"ms-raffle/internal/logger"
	"ms-raffle/internal/models"
)

// TicketStore is the query surface the allocator and lifecycle need from
// persistence. Uniqueness and the status compare-and-set are enforced there.
type TicketStore interface {
	IsNumberTaken(ctx context.Context, numbers string, staleBefore time.Time) (bool, error)
	CreateTicket(ctx context.Context, ticket *models.Ticket, staleBefore time.Time) error
	GetTicketByRef(ctx context.Context, ref string) (*models.Ticket, error)
	GetTicketByID(ctx context.Context, id string) (*models.Ticket, error)
	ActivateTicket(ctx context.Context, id string, purchasedAt time.Time) (bool, error)
	UpdateOwnerData(ctx context.Context, id string, patch models.OwnerPatch) (*models.Ticket, error)
	ListTickets(ctx context.Context) ([]models.Ticket, error)
	ListTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error)
}

// NumberHolds keeps a randomly picked number aside for a short while so two
// concurrent random searches do not hand out the same one.
type NumberHolds interface {
	Hold(ctx context.Context, numbers string) (bool, error)
	Release(ctx context.Context, numbers string) error
}

type ChangeNotifier interface {
	Notify()
}

type EventPublisher interface {
	PublishTicketEvent(ctx context.Context, event models.TicketEvent) error
}

const (
	DefaultMaxRandomAttempts = 20
	DefaultPublishTimeout    = 2 * time.Second
	maxCodeAttempts          = 3
	numberSpace              = 10000
)

type Options struct {
	CodePrefix string
	// PendingLease of zero means pending tickets hold their number forever.
	PendingLease      time.Duration
	MaxRandomAttempts int
	// PublishTimeout bounds how long a committed write waits on the event
	// publisher.
	PublishTimeout time.Duration
	Now            func() time.Time
	// RandomInt returns a uniform integer in [0, n).
	RandomInt func(n int) (int, error)
}

type TicketService struct {
	DB       TicketStore
	Holds    NumberHolds
	Notifier ChangeNotifier
	Events   EventPublisher
	Logger   *logger.Logger

	opts Options
}

func NewTicketService(db TicketStore, log *logger.Logger, opts Options) *TicketService {
	if opts.CodePrefix == "" {
		opts.CodePrefix = "GA"
	}
	if opts.MaxRandomAttempts <= 0 {
		opts.MaxRandomAttempts = DefaultMaxRandomAttempts
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = DefaultPublishTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RandomInt == nil {
		opts.RandomInt = cryptoRandInt
	}
	return &TicketService{DB: db, Logger: log, opts: opts}
}

func (s *TicketService) now() time.Time {
	return s.opts.Now().UTC()
}

// staleBefore is the creation cutoff under which pending tickets no longer
// hold their number. Zero when no lease is configured.
func (s *TicketService) staleBefore() time.Time {
	if s.opts.PendingLease <= 0 {
		return time.Time{}
	}
	return s.now().Add(-s.opts.PendingLease)
}

func (s *TicketService) changed(ctx context.Context, eventType string, t *models.Ticket) {
	if s.Notifier != nil {
		s.Notifier.Notify()
	}
	if s.Events != nil {
		// The write is already committed: a cancelled request must not drop
		// the event, and a slow broker must not hold the response.
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.PublishTimeout)
		defer cancel()
		if err := s.Events.PublishTicketEvent(pubCtx, models.NewTicketEvent(eventType, t, s.now())); err != nil {
			s.Logger.Warn("KAFKA", "Failed to publish "+eventType+" for "+t.Code+": "+err.Error())
		}
	}
}
