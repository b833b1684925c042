// Package admin holds the request and response types of the bridge HTTP API.
// Amounts are decimal strings in base units.
package admin

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
)

// BridgeView describes one bridge instance
type BridgeView struct {
	ID      string      `json:"id"`
	Kind    string      `json:"kind"`
	Chain   string      `json:"chain"`
	Address string      `json:"address"`
	Owner   string      `json:"owner"`
	Paused  bool        `json:"paused"`
	Mode    string      `json:"mode,omitzero"`
	Policy  string      `json:"inbound_policy,omitzero"`
	Tokens  []TokenView `json:"tokens"`
	Routes  []RouteView `json:"routes"`
}

// TokenView is a supported token. Limit fields are empty on destination
// bridges.
type TokenView struct {
	Token           string     `json:"token"`
	MaxTransferSize string     `json:"max_transfer_size,omitzero"`
	DailyLimit      string     `json:"daily_limit,omitzero"`
	DailyUsed       string     `json:"daily_used,omitzero"`
	Remaining       string     `json:"remaining,omitzero"`
	WindowStart     *time.Time `json:"window_start,omitzero"`
}

type RouteView struct {
	Chain       string `json:"chain"`
	Counterpart string `json:"counterpart"`
}

// NewTokenView renders a limit record. remaining may be nil.
func NewTokenView(l registry.TokenLimits, remaining *uint256.Int) TokenView {
	v := TokenView{
		Token:           l.Token.Hex(),
		MaxTransferSize: decOrEmpty(l.MaxTransferSize),
		DailyLimit:      decOrEmpty(l.DailyLimit),
		DailyUsed:       decOrEmpty(l.DailyUsed),
		Remaining:       decOrEmpty(remaining),
	}
	if !l.WindowStart.IsZero() {
		start := l.WindowStart
		v.WindowStart = &start
	}
	return v
}

func NewRouteViews(routes []bridge.Route) []RouteView {
	out := make([]RouteView, len(routes))
	for i, r := range routes {
		out[i] = RouteView{Chain: r.Chain, Counterpart: r.Counterpart}
	}
	return out
}

// EventView is an entry of a bridge's event log
type EventView struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	MessageID   string    `json:"message_id,omitzero"`
	Token       string    `json:"token,omitzero"`
	Sender      string    `json:"sender,omitzero"`
	Recipient   string    `json:"recipient,omitzero"`
	Chain       string    `json:"chain,omitzero"`
	Counterpart string    `json:"counterpart,omitzero"`
	Amount      string    `json:"amount,omitzero"`
	Reason      string    `json:"reason,omitzero"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewEventView(e bridge.Event) EventView {
	v := EventView{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		Chain:       e.Chain,
		Counterpart: e.Counterpart,
		Amount:      decOrEmpty(e.Amount),
		Reason:      e.Reason,
		Timestamp:   e.Timestamp,
	}
	if e.MessageID != ([32]byte{}) {
		v.MessageID = e.MessageID.Hex()
	}
	if e.Token != ([20]byte{}) {
		v.Token = e.Token.Hex()
	}
	if e.Sender != ([20]byte{}) {
		v.Sender = e.Sender.Hex()
	}
	if e.Recipient != ([20]byte{}) {
		v.Recipient = e.Recipient.Hex()
	}
	return v
}

// AddTokenRequest adds a supported token. Destination bridges ignore the
// limits.
type AddTokenRequest struct {
	Token           string `json:"token" validate:"required,eth_addr"`
	MaxTransferSize string `json:"max_transfer_size" validate:"omitempty,number"`
	DailyLimit      string `json:"daily_limit" validate:"omitempty,number"`
}

// AmountRequest carries a new max transfer size or daily limit
type AmountRequest struct {
	Amount string `json:"amount" validate:"required,number"`
}

// RouteRequest registers the counterpart of a chain
type RouteRequest struct {
	Counterpart string `json:"counterpart" validate:"required"`
}

type OwnerRequest struct {
	NewOwner string `json:"new_owner" validate:"required,eth_addr"`
}

// TransferRequest asks a source or OFT bridge to move tokens. Chain is the
// destination chain name, or the decimal LayerZero chain id for OFT bridges.
type TransferRequest struct {
	Token     string `json:"token" validate:"required,eth_addr"`
	Recipient string `json:"recipient" validate:"required,eth_addr"`
	Chain     string `json:"chain" validate:"required"`
	Amount    string `json:"amount" validate:"required,number"`
	Fee       string `json:"fee" validate:"required,number"`
}

// ApproveRequest sets the allowance of Spender over the caller's tokens
type ApproveRequest struct {
	Spender string `json:"spender" validate:"required,eth_addr"`
	Amount  string `json:"amount" validate:"required,number"`
}

// Receipt describes a dispatched transfer
type Receipt struct {
	MessageID   string    `json:"message_id"`
	EventID     string    `json:"event_id"`
	Token       string    `json:"token"`
	Sender      string    `json:"sender"`
	Recipient   string    `json:"recipient"`
	Chain       string    `json:"chain"`
	Counterpart string    `json:"counterpart"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

func NewReceipt(r *bridge.Receipt) *Receipt {
	return &Receipt{
		MessageID:   r.MessageID.Hex(),
		EventID:     r.EventID.String(),
		Token:       r.Token.Hex(),
		Sender:      r.Sender.Hex(),
		Recipient:   r.Recipient.Hex(),
		Chain:       r.Chain,
		Counterpart: r.Counterpart,
		Amount:      r.Amount.Dec(),
		Timestamp:   r.Timestamp,
	}
}

// FeeQuote is the transport fee of a transfer
type FeeQuote struct {
	NativeFee string `json:"native_fee"`
	ZroFee    string `json:"zro_fee"`
}

type RescueResponse struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type BalanceResponse struct {
	Chain   string `json:"chain"`
	Token   string `json:"token"`
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// TransferView is a relayed message and its delivery status
type TransferView struct {
	ID                 string     `json:"id"`
	Path               string     `json:"path"`
	Status             string     `json:"status"`
	SourceChain        string     `json:"source_chain"`
	DestinationChain   string     `json:"destination_chain"`
	SourceAddress      string     `json:"source_address"`
	DestinationAddress string     `json:"destination_address"`
	Nonce              uint64     `json:"nonce"`
	TokenAddress       string     `json:"token,omitzero"`
	Recipient          string     `json:"recipient,omitzero"`
	Amount             string     `json:"amount"`
	ErrorMessage       *string    `json:"error_message,omitzero"`
	CreatedAt          time.Time  `json:"created_at"`
	CompletedAt        *time.Time `json:"completed_at,omitzero"`
}

func NewTransferView(t *db.Transfer) *TransferView {
	return &TransferView{
		ID:                 t.ID,
		Path:               t.Path,
		Status:             string(t.Status),
		SourceChain:        t.SourceChain,
		DestinationChain:   t.DestinationChain,
		SourceAddress:      t.SourceAddress,
		DestinationAddress: t.DestinationAddress,
		Nonce:              t.Nonce,
		TokenAddress:       t.TokenAddress,
		Recipient:          t.Recipient,
		Amount:             t.Amount,
		ErrorMessage:       t.ErrorMessage,
		CreatedAt:          t.CreatedAt,
		CompletedAt:        t.CompletedAt,
	}
}

func decOrEmpty(v *uint256.Int) string {
	if v == nil {
		return ""
	}
	return v.Dec()
}
