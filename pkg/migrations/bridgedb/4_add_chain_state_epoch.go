package bridgedb

import (
	"context"
	"log"

	"github.com/uptrace/bun"

	"github.com/chainsafe/rwa-bridge/pkg/db/dao"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("adding epoch to chain_state...")
		_, err := db.NewAddColumn().
			Model((*dao.ChainStateDao)(nil)).
			ColumnExpr("epoch VARCHAR(64) NOT NULL DEFAULT ''").
			IfNotExists().
			Exec(ctx)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping epoch from chain_state...")
		_, err := db.NewDropColumn().
			Model((*dao.ChainStateDao)(nil)).
			Column("epoch").
			Exec(ctx)
		return err
	})
}
