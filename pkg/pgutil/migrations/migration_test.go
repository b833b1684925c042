package migrations

import (
	"context"
	"testing"

	"github.com/uptrace/bun"

	"github.com/chainsafe/rwa-bridge/pkg/config"
	"github.com/chainsafe/rwa-bridge/pkg/pgutil"
)

type testRouteDao struct {
	bun.BaseModel `bun:"table:test_routes"`
	ID            int64  `bun:",pk,autoincrement"`
	Chain         string `bun:",notnull,type:varchar(64)"`
	Counterpart   string `bun:",notnull,type:varchar(255)"`
}

func TestConnectDB_Success(t *testing.T) {
	db := pgutil.SetupTestDB(t)

	if err := db.Ping(); err != nil {
		t.Errorf("Ping() failed: %v", err)
	}
}

func TestConnectDB_InvalidHost(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host:     "invalid-host-that-does-not-exist",
		Port:     5432,
		User:     "test",
		Password: "test",
		Database: "test",
		SSLMode:  "disable",
	}

	db, err := pgutil.ConnectDB(context.Background(), cfg)
	if err == nil {
		db.Close()
		t.Error("ConnectDB() should fail with invalid host")
	}
}

func TestCreateSchemaAndDropTables(t *testing.T) {
	db := pgutil.SetupTestDB(t)
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testRouteDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}
	pgutil.AssertTableExists(t, db, "test_routes")

	// idempotent
	if err := CreateSchema(ctx, db, &testRouteDao{}); err != nil {
		t.Errorf("CreateSchema() second call failed: %v", err)
	}

	_, err := db.NewInsert().Model(&testRouteDao{Chain: "arbitrum", Counterpart: "0xBEEF"}).Exec(ctx)
	if err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	pgutil.AssertRowCount(t, db, "test_routes", 1)

	if err := DropTables(ctx, db, &testRouteDao{}); err != nil {
		t.Fatalf("DropTables() failed: %v", err)
	}
	pgutil.AssertTableNotExists(t, db, "test_routes")

	if err := DropTables(ctx, db, &testRouteDao{}); err != nil {
		t.Errorf("DropTables() second call failed: %v", err)
	}
}

func TestCreateIndex(t *testing.T) {
	db := pgutil.SetupTestDB(t)
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testRouteDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	if err := CreateIndex(ctx, db, "test_routes", "idx_test_chain", "chain"); err != nil {
		t.Fatalf("CreateIndex() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_test_chain")

	if err := CreateIndex(ctx, db, "test_routes", "idx_test_chain", "chain"); err != nil {
		t.Errorf("CreateIndex() second call failed: %v", err)
	}
}

func TestCreateModelIndexes(t *testing.T) {
	db := pgutil.SetupTestDB(t)
	ctx := context.Background()

	if err := CreateSchema(ctx, db, &testRouteDao{}); err != nil {
		t.Fatalf("CreateSchema() failed: %v", err)
	}

	if err := CreateModelIndexes(ctx, db, &testRouteDao{}, "chain", "counterpart"); err != nil {
		t.Fatalf("CreateModelIndexes() failed: %v", err)
	}
	pgutil.AssertIndexExists(t, db, "idx_test_routes_chain")
	pgutil.AssertIndexExists(t, db, "idx_test_routes_counterpart")

	if err := CreateModelIndexes(ctx, nil, nil, "chain"); err == nil {
		t.Error("expected an error for a nil model")
	}
}
