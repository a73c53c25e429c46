package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"

	"ms-raffle/internal/database"
	"ms-raffle/internal/models"
)

// ErrCodeCollision means the generated ticket code already exists; the caller
// should generate a new code and retry.
var ErrCodeCollision = errors.New("ticket code collision")

type DB struct {
	Bun *bun.DB
}

func New(db *bun.DB) *DB {
	return &DB{Bun: db}
}

// IsNumberTaken reports whether a live ticket holds numbers. Pending tickets
// created before staleBefore are ignored; a zero staleBefore disables that.
func (d *DB) IsNumberTaken(ctx context.Context, numbers string, staleBefore time.Time) (bool, error) {
	q := d.Bun.NewSelect().
		Model((*models.Ticket)(nil)).
		Where("numbers = ?", numbers)

	if staleBefore.IsZero() {
		q = q.Where("status IN (?)", bun.In(models.LiveStatuses()))
	} else {
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("status = ?", models.TicketActive).
				WhereOr("status = ? AND created_at >= ?", models.TicketPending, staleBefore.UTC())
		})
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("check number %s: %w", numbers, err)
	}
	return exists, nil
}

// CreateTicket inserts a pending ticket. The live-numbers unique index is what
// rejects a concurrent duplicate. With a non-zero staleBefore, pending
// holders of the same number older than it are expired in the same
// transaction first.
func (d *DB) CreateTicket(ctx context.Context, ticket *models.Ticket, staleBefore time.Time) error {
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if !staleBefore.IsZero() {
			_, err := tx.NewUpdate().
				Model((*models.Ticket)(nil)).
				Set("status = ?", models.TicketExpired).
				Where("numbers = ?", ticket.Numbers).
				Where("status = ?", models.TicketPending).
				Where("created_at < ?", staleBefore.UTC()).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("expire stale reservations: %w", err)
			}
		}

		_, err := tx.NewInsert().Model(ticket).Exec(ctx)
		return err
	})
	if err != nil {
		return classifyUniqueViolation(err)
	}
	return nil
}

// GetTicketByRef looks a ticket up by id when ref is a UUID and by code
// otherwise.
func (d *DB) GetTicketByRef(ctx context.Context, ref string) (*models.Ticket, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, models.ErrTicketNotFound
	}
	if _, err := uuid.Parse(ref); err == nil {
		return d.getTicket(ctx, "id = ?", ref)
	}
	return d.getTicket(ctx, "code = ?", ref)
}

func (d *DB) GetTicketByID(ctx context.Context, id string) (*models.Ticket, error) {
	return d.getTicket(ctx, "id = ?", id)
}

func (d *DB) getTicket(ctx context.Context, where string, arg string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.NewSelect().
		Model(&ticket).
		Where(where, arg).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTicketNotFound
		}
		return nil, err
	}
	return &ticket, nil
}

// ActivateTicket is the conditional status write. It returns false when the
// row is no longer in a state that can be activated, i.e. another caller
// activated it first.
func (d *DB) ActivateTicket(ctx context.Context, id string, purchasedAt time.Time) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Ticket)(nil)).
		Set("status = ?", models.TicketActive).
		Set("purchased_at = ?", purchasedAt.UTC()).
		Where("id = ?", id).
		Where("status IN (?)", bun.In([]models.TicketStatus{models.TicketPending, models.TicketExpired})).
		Exec(ctx)
	if err != nil {
		return false, classifyUniqueViolation(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdateOwnerData merges patch into the stored owner data inside a
// transaction and returns the updated ticket.
func (d *DB) UpdateOwnerData(ctx context.Context, id string, patch models.OwnerPatch) (*models.Ticket, error) {
	var ticket models.Ticket
	err := d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&ticket).Where("id = ?", id).Limit(1)
		if d.Bun.Dialect().Name() == dialect.PG {
			q = q.For("UPDATE")
		}
		if err := q.Scan(ctx); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.ErrTicketNotFound
			}
			return err
		}

		ticket.OwnerData = ticket.OwnerData.Merge(patch)

		_, err := tx.NewUpdate().
			Model(&ticket).
			Column("owner_data").
			WherePK().
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (d *DB) ListTickets(ctx context.Context) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

func (d *DB) ListTicketsByUser(ctx context.Context, userID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := d.Bun.NewSelect().
		Model(&tickets).
		Where("user_id = ?", userID).
		OrderExpr("purchased_at DESC NULLS LAST, created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return tickets, nil
}

const pqUniqueViolation = "23505"

func classifyUniqueViolation(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
		if pqErr.Constraint == database.LiveNumbersIndex {
			return fmt.Errorf("%w: %s", models.ErrNumberTaken, pqErr.Message)
		}
		if strings.Contains(pqErr.Constraint, "code") {
			return ErrCodeCollision
		}
		return err
	}

	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") {
		switch {
		case strings.Contains(msg, "tickets.numbers"):
			return fmt.Errorf("%w: %s", models.ErrNumberTaken, msg)
		case strings.Contains(msg, "tickets.code"):
			return ErrCodeCollision
		}
	}
	return err
}
