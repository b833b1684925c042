package pgutil

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"

	"github.com/chainsafe/rwa-bridge/pkg/config"
)

const (
	testImage    = "postgres:15-alpine"
	testDatabase = "bridge_test"
	testUser     = "bridge"
	connAttempts = 10
)

// SetupTestDB starts a disposable postgres container and connects to it.
// The container is terminated when the test finishes. Tests are skipped in
// -short mode or when no container runtime is reachable.
func SetupTestDB(t *testing.T) *bun.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := postgres.Run(ctx, testImage,
		postgres.WithDatabase(testDatabase),
		postgres.WithUsername(testUser),
		postgres.WithPassword(testUser),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	cfg := &config.DatabaseConfig{
		Enabled:        true,
		Host:           host,
		Port:           port.Int(),
		User:           testUser,
		Password:       testUser,
		Database:       testDatabase,
		SSLMode:        "disable",
		MaxConnections: 5,
	}

	// the port can accept connections shortly after the ready log line
	var db *bun.DB
	for attempt := range connAttempts {
		if db, err = ConnectDB(ctx, cfg); err == nil {
			break
		}
		time.Sleep(time.Duration(100<<attempt) * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect to test database after %d attempts: %v", connAttempts, err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func exists(t *testing.T, db *bun.DB, query string, args ...any) bool {
	t.Helper()
	var found bool
	if err := db.NewSelect().ColumnExpr("EXISTS ("+query+")", args...).Scan(context.Background(), &found); err != nil {
		t.Fatalf("existence query failed: %v", err)
	}
	return found
}

func tableExists(t *testing.T, db *bun.DB, table string) bool {
	t.Helper()
	return exists(t, db,
		"SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?", table)
}

// AssertTableExists fails the test when table is missing
func AssertTableExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if !tableExists(t, db, table) {
		t.Errorf("table %s does not exist", table)
	}
}

// AssertTableNotExists fails the test when table is present
func AssertTableNotExists(t *testing.T, db *bun.DB, table string) {
	t.Helper()
	if tableExists(t, db, table) {
		t.Errorf("table %s should not exist but it does", table)
	}
}

// AssertIndexExists fails the test when the named index is missing
func AssertIndexExists(t *testing.T, db *bun.DB, index string) {
	t.Helper()
	if !exists(t, db, "SELECT 1 FROM pg_indexes WHERE schemaname = 'public' AND indexname = ?", index) {
		t.Errorf("index %s does not exist", index)
	}
}

// AssertRowCount fails the test unless table holds exactly want rows
func AssertRowCount(t *testing.T, db *bun.DB, table string, want int) {
	t.Helper()
	count, err := db.NewSelect().TableExpr("?", bun.Ident(table)).Count(context.Background())
	if err != nil {
		t.Fatalf("failed to count rows in %s: %v", table, err)
	}
	if count != want {
		t.Errorf("table %s: expected %d rows, got %d", table, want, count)
	}
}
