package db

import (
	"context"
	"database/sql"
	"os"
	"testing"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func TestMigrateIdempotent(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, database); err != nil {
			t.Fatalf("Migrate pass %d: %v", i+1, err)
		}
	}
	// Schema sanity: all core tables exist.
	for _, table := range []string{"videos", "highlight_ranges", "user_votes", "chat_datasets", "chat_messages"} {
		var n int
		err := database.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM information_schema.tables WHERE table_name=$1`, table).Scan(&n)
		if err != nil || n == 0 {
			t.Errorf("expected table %s to exist (err=%v, n=%d)", table, err, n)
		}
	}
}

func TestRangeUniquenessConstraint(t *testing.T) {
	database := testDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, database); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO videos(id, duration_seconds) VALUES (901, 100) ON CONFLICT (id) DO NOTHING`); err != nil {
		t.Fatalf("insert video: %v", err)
	}
	t.Cleanup(func() {
		_, _ = database.ExecContext(context.Background(), `DELETE FROM videos WHERE id=901`)
	})
	if _, err := database.ExecContext(ctx,
		`INSERT INTO highlight_ranges(video_id, start_seconds, end_seconds) VALUES (901, 10, 20)`); err != nil {
		t.Fatalf("insert range: %v", err)
	}
	if _, err := database.ExecContext(ctx,
		`INSERT INTO highlight_ranges(video_id, start_seconds, end_seconds) VALUES (901, 10, 20)`); err == nil {
		t.Errorf("expected unique violation on duplicate (video, start, end)")
	}
	// start >= end rejected by check constraint
	if _, err := database.ExecContext(ctx,
		`INSERT INTO highlight_ranges(video_id, start_seconds, end_seconds) VALUES (901, 30, 30)`); err == nil {
		t.Errorf("expected check violation when start >= end")
	}
}
