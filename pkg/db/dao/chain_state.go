package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// ChainStateDao is a data access object that maps directly to the 'chain_state' table in PostgreSQL.
// It holds the next outbound offset a relayer path reads from, and the epoch of the stream it was read from.
type ChainStateDao struct {
	bun.BaseModel `bun:"table:chain_state,alias:cs"`
	Path          string    `bun:"path,pk,type:varchar(128)"`
	Epoch         string    `bun:"epoch,notnull,default:'',type:varchar(64)"`
	Offset        int64     `bun:"last_offset,notnull,default:0"`
	UpdatedAt     time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
