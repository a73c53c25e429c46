package database

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-raffle/internal/models"
)

// LiveNumbersIndex enforces that a number is held by at most one pending or
// active ticket.
const LiveNumbersIndex = "ux_tickets_live_numbers"

// EnsureSchema creates the tables and indexes through bun. Postgres
// deployments normally use the SQL migrations instead; this path serves
// SQLite and tests.
func EnsureSchema(ctx context.Context, db *bun.DB) error {
	tables := []interface{}{(*models.Ticket)(nil), (*models.SettingsRow)(nil)}
	for _, m := range tables {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}

	_, err := db.NewCreateIndex().
		Model((*models.Ticket)(nil)).
		Index(LiveNumbersIndex).
		Unique().
		IfNotExists().
		Column("numbers").
		Where("status IN ('pending', 'active')").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create index %s: %w", LiveNumbersIndex, err)
	}

	indexes := map[string]string{
		"ix_tickets_user_id": "user_id",
		"ix_tickets_status":  "status",
	}
	for name, column := range indexes {
		_, err := db.NewCreateIndex().
			Model((*models.Ticket)(nil)).
			Index(name).
			IfNotExists().
			Column(column).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", name, err)
		}
	}
	return nil
}
