package db

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a lookup finds no matching record.
var ErrNotFound = errors.New("record not found")

// TransferStatus represents the current state of a relayed message
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCompleted TransferStatus = "completed"
	TransferStatusFailed    TransferStatus = "failed"
)

// Transfer is one message observed on a source transport and the outcome of
// delivering it. Payload is hex encoded so a failed delivery can be retried
// from the record alone.
type Transfer struct {
	ID                 string
	Path               string
	Status             TransferStatus
	SourceChain        string
	DestinationChain   string
	SourceAddress      string
	DestinationAddress string
	Nonce              uint64
	SourceOffset       uint64
	Payload            string
	TokenAddress       string
	Recipient          string
	Amount             string
	ErrorMessage       *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	CompletedAt        *time.Time
}

// ChainState tracks the next offset to read on a relayer path. Epoch names
// the source stream the offset belongs to.
type ChainState struct {
	Path      string
	Epoch     string
	Offset    uint64
	UpdatedAt time.Time
}
