package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
)

// MessageSender is the outbound side of a general message passing transport.
// SendMessage returns once the message is queued; delivery happens later.
// CheckMessage validates a send up front so a bad chain or fee is refused
// before the bridge takes custody.
type MessageSender interface {
	CheckMessage(destChain string, fee *uint256.Int) error
	SendMessage(ctx context.Context, sender common.Address, destChain, destAddress string, data []byte, fee *uint256.Int) (common.Hash, error)
}

// BridgeRequest asks a source bridge to move Amount of Token to Recipient on
// DestinationChain. Fee pays the transport.
type BridgeRequest struct {
	Token            common.Address
	Recipient        common.Address
	DestinationChain string
	Amount           *uint256.Int
	Fee              *uint256.Int
}

// Receipt describes a dispatched transfer.
type Receipt struct {
	MessageID   common.Hash
	EventID     uuid.UUID
	Token       common.Address
	Sender      common.Address
	Recipient   common.Address
	Chain       string
	Counterpart string
	Amount      *uint256.Int
	Timestamp   time.Time
}

// SourceBridge is the outbound half of a gateway bridge. It validates a
// transfer against its registry and routes, takes custody of the tokens and
// sends the transfer to the counterpart registered for the destination chain.
type SourceBridge struct {
	*base

	sender   MessageSender
	tokens   TokenResolver
	mode     Mode
	registry *registry.Registry
	routes   *routes.Table[string, string]
}

// NewSourceBridge creates a source bridge. The default custody mode is ModeLock.
func NewSourceBridge(ident Identity, sender MessageSender, tokens TokenResolver, opts ...Option) (*SourceBridge, error) {
	if sender == nil || tokens == nil {
		return nil, fmt.Errorf("source bridge %s: sender and tokens are required", ident.ID)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	switch o.mode {
	case "":
		o.mode = ModeLock
	case ModeLock, ModeBurn:
	default:
		return nil, fmt.Errorf("%w: %s on %s bridge", ErrInvalidMode, o.mode, KindSource)
	}

	b, err := newBase(KindSource, ident, o)
	if err != nil {
		return nil, err
	}
	s := &SourceBridge{
		base:     b,
		sender:   sender,
		tokens:   tokens,
		mode:     o.mode,
		registry: registry.New(o.registryOpts...),
		routes:   routes.New[string, string](),
	}
	for _, t := range o.tokens {
		if err := s.registry.Add(t.Token, t.MaxTransferSize, t.DailyLimit); err != nil {
			return nil, fmt.Errorf("seed token %s: %w", t.Token.Hex(), err)
		}
	}
	return s, nil
}

func (s *SourceBridge) Mode() Mode { return s.mode }

// Bridge moves req.Amount from caller to the bridge and dispatches the
// transfer. Either every step succeeds or nothing changes.
func (s *SourceBridge) Bridge(ctx context.Context, caller Principal, req BridgeRequest) (*Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fields := []zap.Field{
		zap.String("token", req.Token.Hex()),
		zap.String("sender", caller.Hex()),
		zap.String("destination_chain", req.DestinationChain),
	}
	if err := s.control.whenNotPaused(); err != nil {
		return nil, s.reject("bridge", err, fields...)
	}
	if req.Recipient == (common.Address{}) {
		return nil, s.reject("bridge", fmt.Errorf("%w: recipient", ErrZeroAddress), fields...)
	}
	counterpart, ok := s.routes.Lookup(req.DestinationChain)
	if !ok {
		return nil, s.reject("bridge", fmt.Errorf("%w: %s", ErrUnknownChainRoute, req.DestinationChain), fields...)
	}
	now := s.now()
	if err := s.registry.Check(req.Token, req.Amount, now); err != nil {
		return nil, s.reject("bridge", err, fields...)
	}
	tok, ok := s.tokens.Token(req.Token)
	if !ok {
		return nil, s.reject("bridge", fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, req.Token.Hex()), fields...)
	}
	if req.Fee == nil || req.Fee.IsZero() {
		return nil, s.reject("bridge", ErrInsufficientFee, fields...)
	}
	if err := s.sender.CheckMessage(req.DestinationChain, req.Fee); err != nil {
		return nil, s.reject("bridge", transportError(err), fields...)
	}
	data, err := payload.EncodeTransfer(payload.Transfer{Token: req.Token, Recipient: req.Recipient, Amount: req.Amount})
	if err != nil {
		return nil, s.reject("bridge", err, fields...)
	}

	if err := s.registry.CheckAndReserve(req.Token, req.Amount, now); err != nil {
		return nil, s.reject("bridge", err, fields...)
	}
	if err := tok.TransferFrom(s.address, caller, s.address, req.Amount); err != nil {
		s.registry.Release(req.Token, req.Amount)
		return nil, s.reject("bridge", err, fields...)
	}

	id, err := s.sender.SendMessage(ctx, s.address, req.DestinationChain, counterpart, data, req.Fee)
	if err != nil {
		s.refund(tok, caller, req)
		return nil, s.reject("bridge", transportError(err), fields...)
	}
	if s.mode == ModeBurn {
		if err := tok.Burn(s.address, req.Amount); err != nil {
			// the message is already queued; the locked tokens stay in custody
			s.logger.Error("Failed to burn dispatched tokens", append(fields, zap.Error(err))...)
		}
	}

	evt := s.emit(Event{
		Type:        EventTokensBridged,
		MessageID:   id,
		Token:       req.Token,
		Sender:      caller,
		Recipient:   req.Recipient,
		Chain:       req.DestinationChain,
		Counterpart: counterpart,
		Amount:      req.Amount,
	})
	dec := decimals(tok)
	s.observeTransfer("outbound", req.Token, req.Amount, dec)
	if limits, ok := s.registry.Limits(req.Token); ok {
		s.observeDailyUsed(limits, dec)
	}
	s.logger.Info("Tokens bridged", append(fields,
		zap.String("message_id", id.Hex()),
		zap.String("recipient", req.Recipient.Hex()),
		zap.String("amount", req.Amount.Dec()))...)

	return &Receipt{
		MessageID:   id,
		EventID:     evt.ID,
		Token:       req.Token,
		Sender:      caller,
		Recipient:   req.Recipient,
		Chain:       req.DestinationChain,
		Counterpart: counterpart,
		Amount:      req.Amount.Clone(),
		Timestamp:   evt.Timestamp,
	}, nil
}

// refund undoes custody, the spent allowance and the reservation after a
// failed dispatch.
func (s *SourceBridge) refund(tok Token, caller Principal, req BridgeRequest) {
	if err := tok.ReverseTransferFrom(s.address, caller, s.address, req.Amount); err != nil {
		s.logger.Error("Failed to return tokens after dispatch failure",
			zap.String("token", req.Token.Hex()),
			zap.String("sender", caller.Hex()),
			zap.Error(err))
	}
	s.registry.Release(req.Token, req.Amount)
}

// RescueTokens sends the bridge's entire balance of token to the owner.
func (s *SourceBridge) RescueTokens(_ context.Context, caller Principal, token common.Address) (*uint256.Int, error) {
	var swept *uint256.Int
	err := s.admin(caller, "rescue_tokens", func() error {
		tok, ok := s.tokens.Token(token)
		if !ok {
			return fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, token.Hex())
		}
		var err error
		swept, err = s.rescue(tok, token)
		return err
	})
	return swept, err
}

func (s *SourceBridge) IsSupported(token common.Address) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.IsSupported(token)
}

// Limits returns a copy of the token's record.
func (s *SourceBridge) Limits(token common.Address) (registry.TokenLimits, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Limits(token)
}

// Remaining returns how much more of token may leave today.
func (s *SourceBridge) Remaining(token common.Address) (*uint256.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Remaining(token, s.now())
}

// DestinationChain returns the counterpart for chain, or "" when none is registered.
func (s *SourceBridge) DestinationChain(chain string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	counterpart, _ := s.routes.Lookup(chain)
	return counterpart
}

func (s *SourceBridge) AddSupportedToken(caller Principal, token common.Address, maxTransferSize, dailyLimit *uint256.Int) error {
	return s.admin(caller, "add_token", func() error {
		if err := s.registry.Add(token, maxTransferSize, dailyLimit); err != nil {
			return err
		}
		s.emit(Event{Type: EventTokenAdded, Token: token, Sender: caller, Amount: maxTransferSize})
		return nil
	})
}

func (s *SourceBridge) RemoveSupportedToken(caller Principal, token common.Address) error {
	return s.admin(caller, "remove_token", func() error {
		if err := s.registry.Remove(token); err != nil {
			return err
		}
		s.emit(Event{Type: EventTokenRemoved, Token: token, Sender: caller})
		return nil
	})
}

func (s *SourceBridge) UpdateMaxTransferSize(caller Principal, token common.Address, size *uint256.Int) error {
	return s.admin(caller, "update_max_transfer", func() error {
		if err := s.registry.UpdateMaxTransferSize(token, size); err != nil {
			return err
		}
		s.emit(Event{Type: EventMaxTransferUpdated, Token: token, Sender: caller, Amount: size})
		return nil
	})
}

func (s *SourceBridge) UpdateDailyLimit(caller Principal, token common.Address, limit *uint256.Int) error {
	return s.admin(caller, "update_daily_limit", func() error {
		if err := s.registry.UpdateDailyLimit(token, limit); err != nil {
			return err
		}
		s.emit(Event{Type: EventDailyLimitUpdated, Token: token, Sender: caller, Amount: limit})
		return nil
	})
}

// AddDestinationChain registers or replaces the counterpart for chain.
func (s *SourceBridge) AddDestinationChain(caller Principal, chain, counterpart string) error {
	return s.admin(caller, "add_route", func() error {
		if err := s.routes.Add(chain, counterpart); err != nil {
			return err
		}
		s.emit(Event{Type: EventRouteAdded, Chain: chain, Counterpart: counterpart, Sender: caller})
		return nil
	})
}

// RemoveDestinationChain drops the route for chain. A missing route is not an error.
func (s *SourceBridge) RemoveDestinationChain(caller Principal, chain string) error {
	return s.admin(caller, "remove_route", func() error {
		s.routes.Remove(chain)
		s.emit(Event{Type: EventRouteRemoved, Chain: chain, Sender: caller})
		return nil
	})
}
