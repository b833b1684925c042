package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// BridgeStateDao is a data access object that maps directly to the 'bridge_state' table in PostgreSQL.
type BridgeStateDao struct {
	bun.BaseModel `bun:"table:bridge_state,alias:bs"`
	ID            string    `bun:"id,pk,type:varchar(128)"`
	Kind          string    `bun:"kind,notnull,type:varchar(20)"`
	Owner         string    `bun:"owner,notnull,type:varchar(42)"`
	Paused        bool      `bun:"paused,notnull,default:false"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// BridgeTokenDao is a data access object that maps directly to the 'bridge_tokens' table in PostgreSQL.
// Destination bridges only use the supported flag; limit columns are empty for them.
type BridgeTokenDao struct {
	bun.BaseModel   `bun:"table:bridge_tokens,alias:bt"`
	BridgeID        string     `bun:"bridge_id,pk,type:varchar(128)"`
	TokenAddress    string     `bun:"token_address,pk,type:varchar(42)"`
	MaxTransferSize *string    `bun:"max_transfer_size,type:numeric(78,0)"`
	DailyLimit      *string    `bun:"daily_limit,type:numeric(78,0)"`
	DailyUsed       *string    `bun:"daily_used,type:numeric(78,0)"`
	WindowStart     *time.Time `bun:"window_start"`
}

// BridgeRouteDao is a data access object that maps directly to the 'bridge_routes' table in PostgreSQL.
type BridgeRouteDao struct {
	bun.BaseModel `bun:"table:bridge_routes,alias:br"`
	BridgeID      string `bun:"bridge_id,pk,type:varchar(128)"`
	Chain         string `bun:"chain,pk,type:varchar(64)"`
	Counterpart   string `bun:"counterpart,notnull,type:varchar(255)"`
}
