package dao

import (
	"time"

	"github.com/uptrace/bun"
)

// TransferDao is a data access object that maps directly to the 'transfers' table in PostgreSQL.
type TransferDao struct {
	bun.BaseModel      `bun:"table:transfers,alias:t"`
	ID                 string     `bun:"id,pk,type:varchar(66)"`
	Path               string     `bun:"path,notnull,type:varchar(128)"`
	Status             string     `bun:"status,notnull,type:varchar(20)"`
	SourceChain        string     `bun:"source_chain,notnull,type:varchar(64)"`
	DestinationChain   string     `bun:"destination_chain,notnull,type:varchar(64)"`
	SourceAddress      string     `bun:"source_address,notnull,type:varchar(255)"`
	DestinationAddress string     `bun:"destination_address,notnull,type:varchar(255)"`
	Nonce              int64      `bun:"nonce,notnull,default:0"`
	SourceOffset       int64      `bun:"source_offset,notnull,default:0"`
	Payload            string     `bun:"payload,notnull,type:text"`
	TokenAddress       string     `bun:"token_address,notnull,type:varchar(42)"`
	Recipient          string     `bun:"recipient,notnull,type:varchar(42)"`
	Amount             string     `bun:"amount,notnull,type:numeric(78,0)"`
	ErrorMessage       *string    `bun:"error_message,type:text"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
	CompletedAt        *time.Time `bun:"completed_at"`
}
