// Package tests holds integration tests that run against a real PostgreSQL database.
// They are skipped unless DATABASE_URL is set.
package tests

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/schoolresults/server/internal/db"
	"github.com/stretchr/testify/require"
)

// licenseTables lists every table the migrations create, children first.
const licenseTables = "system_admin_sessions, system_admins, device_activations, licenses, schools"

// openTestDB connects to DATABASE_URL, runs the embedded migrations and truncates all tables.
func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	database, err := db.Open(ctx, databaseURL)
	require.NoError(t, err, "database open must succeed; check DATABASE_URL and that test DB exists")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(database.DB), "migrations must run successfully")
	require.NoError(t, truncate(ctx, database))
	return database
}

// truncate empties the license tables for a clean test state
func truncate(ctx context.Context, database *sqlx.DB) error {
	_, err := database.ExecContext(ctx, "TRUNCATE TABLE "+licenseTables+" RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate license tables: %w", err)
	}
	return nil
}
