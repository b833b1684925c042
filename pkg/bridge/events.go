package bridge

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
)

// EventType names what an Event records.
type EventType string

const (
	EventTokensBridged        EventType = "TokensBridged"
	EventTokensReceived       EventType = "TokensReceived"
	EventTransferRejected     EventType = "TransferRejected"
	EventTokensRescued        EventType = "TokensRescued"
	EventPaused               EventType = "Paused"
	EventUnpaused             EventType = "Unpaused"
	EventTokenAdded           EventType = "TokenAdded"
	EventTokenRemoved         EventType = "TokenRemoved"
	EventMaxTransferUpdated   EventType = "MaxTransferSizeUpdated"
	EventDailyLimitUpdated    EventType = "DailyLimitUpdated"
	EventRouteAdded           EventType = "RouteAdded"
	EventRouteRemoved         EventType = "RouteRemoved"
	EventOwnershipTransferred EventType = "OwnershipTransferred"
)

// Event is an entry of a bridge's log, kept for off-chain reconciliation.
// Chain is the destination chain for dispatches and the source chain for
// receipts.
type Event struct {
	ID          uuid.UUID
	Type        EventType
	Bridge      string
	MessageID   common.Hash
	Token       common.Address
	Sender      common.Address
	Recipient   common.Address
	Chain       string
	Counterpart string
	Amount      *uint256.Int
	Reason      string
	Timestamp   time.Time
}
