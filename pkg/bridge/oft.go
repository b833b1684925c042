package bridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
)

// OFTRequest asks an OFT bridge to move Amount of Token to Recipient on the
// chain with LayerZero id DstChainID. Fee is the native transport fee.
type OFTRequest struct {
	Token      common.Address
	Recipient  common.Address
	DstChainID uint16
	Amount     *uint256.Int
	Fee        *uint256.Int
}

// OFTBridge is the symmetric point-to-point binding: the same type is deployed
// on every chain. Sending burns through the token's SendFrom; the remote token
// mints on receipt through its own LzReceive.
type OFTBridge struct {
	*base

	tokens   OFTResolver
	registry *registry.Registry
	routes   *routes.Table[uint16, common.Address]
}

func NewOFTBridge(ident Identity, tokens OFTResolver, opts ...Option) (*OFTBridge, error) {
	if tokens == nil {
		return nil, fmt.Errorf("oft bridge %s: tokens are required", ident.ID)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.mode != "" && o.mode != ModeBurn {
		return nil, fmt.Errorf("%w: %s on %s bridge", ErrInvalidMode, o.mode, KindOFT)
	}

	b, err := newBase(KindOFT, ident, o)
	if err != nil {
		return nil, err
	}
	ob := &OFTBridge{
		base:     b,
		tokens:   tokens,
		registry: registry.New(o.registryOpts...),
		routes:   routes.New[uint16, common.Address](),
	}
	for _, t := range o.tokens {
		if err := ob.registry.Add(t.Token, t.MaxTransferSize, t.DailyLimit); err != nil {
			return nil, fmt.Errorf("seed token %s: %w", t.Token.Hex(), err)
		}
	}
	return ob, nil
}

// Bridge burns req.Amount from caller, spending the allowance caller granted
// the bridge, and sends it to req.Recipient on req.DstChainID.
func (b *OFTBridge) Bridge(ctx context.Context, caller Principal, req OFTRequest) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	chain := strconv.FormatUint(uint64(req.DstChainID), 10)
	fields := []zap.Field{
		zap.String("token", req.Token.Hex()),
		zap.String("sender", caller.Hex()),
		zap.Uint16("dst_chain_id", req.DstChainID),
	}
	if err := b.control.whenNotPaused(); err != nil {
		return nil, b.reject("bridge", err, fields...)
	}
	if req.Recipient == (common.Address{}) {
		return nil, b.reject("bridge", fmt.Errorf("%w: recipient", ErrZeroAddress), fields...)
	}
	remote, ok := b.routes.Lookup(req.DstChainID)
	if !ok {
		return nil, b.reject("bridge", fmt.Errorf("%w: %d", ErrUnknownChainRoute, req.DstChainID), fields...)
	}
	now := b.now()
	if err := b.registry.Check(req.Token, req.Amount, now); err != nil {
		return nil, b.reject("bridge", err, fields...)
	}
	tok, ok := b.tokens.OFT(req.Token)
	if !ok {
		return nil, b.reject("bridge", fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, req.Token.Hex()), fields...)
	}
	if req.Fee == nil || req.Fee.IsZero() {
		return nil, b.reject("bridge", ErrInsufficientFee, fields...)
	}
	quote, _, err := tok.EstimateSendFee(req.DstChainID, req.Recipient, req.Amount, false, nil)
	if err != nil {
		return nil, b.reject("bridge", transportError(err), fields...)
	}
	if req.Fee.Lt(quote) {
		return nil, b.reject("bridge", fmt.Errorf("%w: quote %s", ErrInsufficientFee, quote.Dec()), fields...)
	}

	if err := b.registry.CheckAndReserve(req.Token, req.Amount, now); err != nil {
		return nil, b.reject("bridge", err, fields...)
	}
	id, err := tok.SendFrom(ctx, b.address, caller, req.DstChainID, req.Recipient, req.Amount, req.Fee)
	if err != nil {
		b.registry.Release(req.Token, req.Amount)
		return nil, b.reject("bridge", transportError(err), fields...)
	}

	evt := b.emit(Event{
		Type:        EventTokensBridged,
		MessageID:   id,
		Token:       req.Token,
		Sender:      caller,
		Recipient:   req.Recipient,
		Chain:       chain,
		Counterpart: remote.Hex(),
		Amount:      req.Amount,
	})
	dec := decimals(tok)
	b.observeTransfer("outbound", req.Token, req.Amount, dec)
	if limits, ok := b.registry.Limits(req.Token); ok {
		b.observeDailyUsed(limits, dec)
	}
	b.logger.Info("Tokens bridged", append(fields,
		zap.String("message_id", id.Hex()),
		zap.String("recipient", req.Recipient.Hex()),
		zap.String("amount", req.Amount.Dec()))...)

	return &Receipt{
		MessageID:   id,
		EventID:     evt.ID,
		Token:       req.Token,
		Sender:      caller,
		Recipient:   req.Recipient,
		Chain:       chain,
		Counterpart: remote.Hex(),
		Amount:      req.Amount.Clone(),
		Timestamp:   evt.Timestamp,
	}, nil
}

// EstimateSendFee quotes the transport fee of a transfer. It changes nothing.
func (b *OFTBridge) EstimateSendFee(token common.Address, dstChainID uint16, recipient common.Address, amount *uint256.Int, useZro bool, adapterParams []byte) (*uint256.Int, *uint256.Int, error) {
	tok, ok := b.tokens.OFT(token)
	if !ok {
		return nil, nil, fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, token.Hex())
	}
	native, zro, err := tok.EstimateSendFee(dstChainID, recipient, amount, useZro, adapterParams)
	if err != nil {
		return nil, nil, transportError(err)
	}
	return native, zro, nil
}

// RescueTokens sends the bridge's entire balance of token to the owner.
func (b *OFTBridge) RescueTokens(_ context.Context, caller Principal, token common.Address) (*uint256.Int, error) {
	var swept *uint256.Int
	err := b.admin(caller, "rescue_tokens", func() error {
		tok, ok := b.tokens.OFT(token)
		if !ok {
			return fmt.Errorf("%w: no contract for %s", ErrUnsupportedToken, token.Hex())
		}
		var err error
		swept, err = b.rescue(tok, token)
		return err
	})
	return swept, err
}

func (b *OFTBridge) IsSupported(token common.Address) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.IsSupported(token)
}

func (b *OFTBridge) Limits(token common.Address) (registry.TokenLimits, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Limits(token)
}

func (b *OFTBridge) Remaining(token common.Address) (*uint256.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.registry.Remaining(token, b.now())
}

// TrustedRemote returns the bridge registered for chainID, or the zero address.
func (b *OFTBridge) TrustedRemote(chainID uint16) common.Address {
	b.mu.Lock()
	defer b.mu.Unlock()
	remote, _ := b.routes.Lookup(chainID)
	return remote
}

func (b *OFTBridge) AddSupportedToken(caller Principal, token common.Address, maxTransferSize, dailyLimit *uint256.Int) error {
	return b.admin(caller, "add_token", func() error {
		if err := b.registry.Add(token, maxTransferSize, dailyLimit); err != nil {
			return err
		}
		b.emit(Event{Type: EventTokenAdded, Token: token, Sender: caller, Amount: maxTransferSize})
		return nil
	})
}

func (b *OFTBridge) RemoveSupportedToken(caller Principal, token common.Address) error {
	return b.admin(caller, "remove_token", func() error {
		if err := b.registry.Remove(token); err != nil {
			return err
		}
		b.emit(Event{Type: EventTokenRemoved, Token: token, Sender: caller})
		return nil
	})
}

func (b *OFTBridge) UpdateMaxTransferSize(caller Principal, token common.Address, size *uint256.Int) error {
	return b.admin(caller, "update_max_transfer", func() error {
		if err := b.registry.UpdateMaxTransferSize(token, size); err != nil {
			return err
		}
		b.emit(Event{Type: EventMaxTransferUpdated, Token: token, Sender: caller, Amount: size})
		return nil
	})
}

func (b *OFTBridge) UpdateDailyLimit(caller Principal, token common.Address, limit *uint256.Int) error {
	return b.admin(caller, "update_daily_limit", func() error {
		if err := b.registry.UpdateDailyLimit(token, limit); err != nil {
			return err
		}
		b.emit(Event{Type: EventDailyLimitUpdated, Token: token, Sender: caller, Amount: limit})
		return nil
	})
}

// SetTrustedRemote registers or replaces the bridge on chainID.
func (b *OFTBridge) SetTrustedRemote(caller Principal, chainID uint16, remote common.Address) error {
	return b.admin(caller, "add_route", func() error {
		if remote == (common.Address{}) {
			return fmt.Errorf("%w: remote for chain %d", ErrZeroAddress, chainID)
		}
		if err := b.routes.Add(chainID, remote); err != nil {
			return err
		}
		b.emit(Event{Type: EventRouteAdded, Chain: strconv.FormatUint(uint64(chainID), 10), Counterpart: remote.Hex(), Sender: caller})
		return nil
	})
}

// RemoveTrustedRemote drops the route for chainID. A missing route is not an error.
func (b *OFTBridge) RemoveTrustedRemote(caller Principal, chainID uint16) error {
	return b.admin(caller, "remove_route", func() error {
		b.routes.Remove(chainID)
		b.emit(Event{Type: EventRouteRemoved, Chain: strconv.FormatUint(uint64(chainID), 10), Sender: caller})
		return nil
	})
}
