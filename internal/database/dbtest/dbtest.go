// Package dbtest opens throwaway in-memory SQLite stores for tests.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ms-raffle/internal/database"
)

// New returns a migrated in-memory database closed at test cleanup. A single
// connection is kept so concurrent goroutines interleave per statement on
// the same database.
func New(t testing.TB) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := database.EnsureSchema(context.Background(), bunDB); err != nil {
		bunDB.Close()
		t.Fatalf("Failed to create schema: %v", err)
	}

	t.Cleanup(func() { bunDB.Close() })
	return bunDB
}
