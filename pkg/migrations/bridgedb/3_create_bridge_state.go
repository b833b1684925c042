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
		log.Println("creating bridge_state, bridge_tokens and bridge_routes tables...")
		if err := mghelper.CreateSchema(ctx, db,
			&dao.BridgeStateDao{}, &dao.BridgeTokenDao{}, &dao.BridgeRouteDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndex(ctx, db, "bridge_tokens", "idx_bridge_tokens_bridge_id", "bridge_id")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping bridge state tables...")
		return mghelper.DropTables(ctx, db,
			&dao.BridgeRouteDao{}, &dao.BridgeTokenDao{}, &dao.BridgeStateDao{})
	})
}
