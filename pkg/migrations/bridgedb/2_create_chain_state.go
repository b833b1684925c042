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
		log.Println("creating chain_state table...")
		return mghelper.CreateSchema(ctx, db, &dao.ChainStateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping chain_state table...")
		return mghelper.DropTables(ctx, db, &dao.ChainStateDao{})
	})
}
