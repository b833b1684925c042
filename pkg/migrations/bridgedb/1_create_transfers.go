package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/rwa-bridge/pkg/db/dao"
	mghelper "github.com/chainsafe/rwa-bridge/pkg/pgutil/migrations"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating transfers table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.TransferDao{}); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.TransferDao{}, "status", "path", "created_at")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transfers table...")
		return mghelper.DropTables(ctx, db, &dao.TransferDao{})
	})
}
