package bridge

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
)

// DestinationBridge is the inbound half of a gateway bridge. The gateway calls
// Execute with the origin it authenticated; the bridge credits the recipient
// only when that origin is the counterpart registered for the source chain and
// the token is supported here.
type DestinationBridge struct {
	*base

	tokens    TokenResolver
	mode      Mode
	policy    InboundPolicy
	supported *registry.TokenSet
	routes    *routes.Table[string, string]
}

// NewDestinationBridge creates a destination bridge. The default custody mode
// is ModeMint, which needs the bridge address to hold each token's bridge role.
func NewDestinationBridge(ident Identity, tokens TokenResolver, opts ...Option) (*DestinationBridge, error) {
	if tokens == nil {
		return nil, fmt.Errorf("destination bridge %s: tokens are required", ident.ID)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	switch o.mode {
	case "":
		o.mode = ModeMint
	case ModeMint, ModeUnlock:
	default:
		return nil, fmt.Errorf("%w: %s on %s bridge", ErrInvalidMode, o.mode, KindDestination)
	}
	if _, err := ParseInboundPolicy(string(o.policy)); err != nil {
		return nil, err
	}

	b, err := newBase(KindDestination, ident, o)
	if err != nil {
		return nil, err
	}
	d := &DestinationBridge{
		base:      b,
		tokens:    tokens,
		mode:      o.mode,
		policy:    o.policy,
		supported: registry.NewTokenSet(),
		routes:    routes.New[string, string](),
	}
	for _, t := range o.tokens {
		if err := d.supported.Add(t.Token); err != nil {
			return nil, fmt.Errorf("seed token %s: %w", t.Token.Hex(), err)
		}
	}
	return d, nil
}

func (d *DestinationBridge) Mode() Mode { return d.mode }

func (d *DestinationBridge) Policy() InboundPolicy { return d.policy }

// Execute handles a message delivered by the gateway. While paused it always
// returns ErrPaused so the message can be delivered again after unpausing.
// Other failures follow the inbound policy.
func (d *DestinationBridge) Execute(_ context.Context, commandID common.Hash, sourceChain, sourceAddress string, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	fields := []zap.Field{
		zap.String("command_id", commandID.Hex()),
		zap.String("source_chain", sourceChain),
		zap.String("source_address", sourceAddress),
	}
	if err := d.control.whenNotPaused(); err != nil {
		return d.reject("execute", err, fields...)
	}

	msg, err := d.credit(sourceChain, sourceAddress, data)
	if err != nil {
		d.reject("execute", err, fields...)
		if d.policy != PolicyIgnore {
			return err
		}
		d.emit(Event{
			Type:        EventTransferRejected,
			MessageID:   commandID,
			Token:       msg.Token,
			Recipient:   msg.Recipient,
			Chain:       sourceChain,
			Counterpart: sourceAddress,
			Amount:      msg.Amount,
			Reason:      err.Error(),
		})
		d.logger.Warn("Inbound transfer ignored", append(fields, zap.Error(err))...)
		return nil
	}

	d.emit(Event{
		Type:        EventTokensReceived,
		MessageID:   commandID,
		Token:       msg.Token,
		Recipient:   msg.Recipient,
		Chain:       sourceChain,
		Counterpart: sourceAddress,
		Amount:      msg.Amount,
	})
	if tok, ok := d.tokens.Token(msg.Token); ok {
		d.observeTransfer("inbound", msg.Token, msg.Amount, decimals(tok))
	}
	d.logger.Info("Tokens received", append(fields,
		zap.String("token", msg.Token.Hex()),
		zap.String("recipient", msg.Recipient.Hex()),
		zap.String("amount", msg.Amount.Dec()))...)
	return nil
}

// credit validates an inbound message and pays the recipient. The decoded
// message is returned even on error when decoding succeeded.
func (d *DestinationBridge) credit(sourceChain, sourceAddress string, data []byte) (payload.Transfer, error) {
	if !d.routes.Matches(sourceChain, sourceAddress) {
		return payload.Transfer{}, fmt.Errorf("%w: %s on %s", ErrUntrustedSource, sourceAddress, sourceChain)
	}
	msg, err := payload.DecodeTransfer(data)
	if err != nil {
		return payload.Transfer{}, err
	}
	if msg.Amount.IsZero() {
		return msg, ErrZeroAmount
	}
	if msg.Recipient == (common.Address{}) {
		return msg, fmt.Errorf("%w: recipient", ErrZeroAddress)
	}
	if !d.supported.Contains(msg.Token) {
		return msg, fmt.Errorf("%w: %s", ErrUnsupportedToken, msg.Token.Hex())
	}
	tok, ok := d.tokens.Token(msg.Token)
	if !ok {
		return msg, fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, msg.Token.Hex())
	}

	switch d.mode {
	case ModeUnlock:
		err = tok.Transfer(d.address, msg.Recipient, msg.Amount)
	default:
		err = tok.Mint(d.address, msg.Recipient, msg.Amount)
	}
	if err != nil {
		return msg, fmt.Errorf("credit %s: %w", msg.Recipient.Hex(), err)
	}
	return msg, nil
}

// RescueTokens sends the bridge's entire balance of token to the owner.
func (d *DestinationBridge) RescueTokens(_ context.Context, caller Principal, token common.Address) (*uint256.Int, error) {
	var swept *uint256.Int
	err := d.admin(caller, "rescue_tokens", func() error {
		tok, ok := d.tokens.Token(token)
		if !ok {
			return fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, token.Hex())
		}
		var err error
		swept, err = d.rescue(tok, token)
		return err
	})
	return swept, err
}

func (d *DestinationBridge) IsSupported(token common.Address) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.supported.Contains(token)
}

// SourceChain returns the counterpart trusted on chain, or "" when none is registered.
func (d *DestinationBridge) SourceChain(chain string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	counterpart, _ := d.routes.Lookup(chain)
	return counterpart
}

func (d *DestinationBridge) AddSupportedToken(caller Principal, token common.Address) error {
	return d.admin(caller, "add_token", func() error {
		if err := d.supported.Add(token); err != nil {
			return err
		}
		d.emit(Event{Type: EventTokenAdded, Token: token, Sender: caller})
		return nil
	})
}

func (d *DestinationBridge) RemoveSupportedToken(caller Principal, token common.Address) error {
	return d.admin(caller, "remove_token", func() error {
		if err := d.supported.Remove(token); err != nil {
			return err
		}
		d.emit(Event{Type: EventTokenRemoved, Token: token, Sender: caller})
		return nil
	})
}

// AddChainSupport trusts counterpart as the bridge on chain, replacing any previous one.
func (d *DestinationBridge) AddChainSupport(caller Principal, chain, counterpart string) error {
	return d.admin(caller, "add_route", func() error {
		if err := d.routes.Add(chain, counterpart); err != nil {
			return err
		}
		d.emit(Event{Type: EventRouteAdded, Chain: chain, Counterpart: counterpart, Sender: caller})
		return nil
	})
}

// RemoveChainSupport stops trusting chain. A missing route is not an error.
func (d *DestinationBridge) RemoveChainSupport(caller Principal, chain string) error {
	return d.admin(caller, "remove_route", func() error {
		d.routes.Remove(chain)
		d.emit(Event{Type: EventRouteRemoved, Chain: chain, Sender: caller})
		return nil
	})
}
