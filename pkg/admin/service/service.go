package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/internal/metrics"
	"github.com/chainsafe/rwa-bridge/pkg/admin"
	apperrors "github.com/chainsafe/rwa-bridge/pkg/app/errors"
	"github.com/chainsafe/rwa-bridge/pkg/bridge"
	"github.com/chainsafe/rwa-bridge/pkg/db"
	"github.com/chainsafe/rwa-bridge/pkg/network"
	"github.com/chainsafe/rwa-bridge/pkg/relayer"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/token"
)

// Deployment is the set of deployed bridges and tokens the service manages
type Deployment interface {
	BridgeIDs() []string
	Bridge(id string) (bridge.Instance, error)
	ChainOf(id string) string
	Ledger(chain string, addr common.Address) (*token.Ledger, error)
}

// Retrier redelivers a recorded transfer
type Retrier interface {
	Retry(ctx context.Context, id string) (*db.Transfer, error)
}

// TransferParams is a parsed transfer or fee quote request. Chain is the
// destination chain name, or the decimal LayerZero id for OFT bridges.
type TransferParams struct {
	Token     common.Address
	Recipient common.Address
	Chain     string
	Amount    *uint256.Int
	Fee       *uint256.Int
}

// TransferFilter narrows ListTransfers
type TransferFilter struct {
	Path   string
	Status db.TransferStatus
	Limit  int
}

// Service exposes the bridges of a deployment. Mutating calls take the
// authenticated caller and are checked against the bridge owner by the
// bridge itself.
type Service interface {
	ListBridges(ctx context.Context) ([]*admin.BridgeView, error)
	GetBridge(ctx context.Context, id string) (*admin.BridgeView, error)
	GetTokenLimits(ctx context.Context, id string, tok common.Address) (*admin.TokenView, error)
	ListEvents(ctx context.Context, id string) ([]admin.EventView, error)

	Pause(ctx context.Context, caller bridge.Principal, id string) error
	Unpause(ctx context.Context, caller bridge.Principal, id string) error
	TransferOwnership(ctx context.Context, caller bridge.Principal, id string, newOwner common.Address) error
	AddSupportedToken(ctx context.Context, caller bridge.Principal, id string, tok common.Address, maxTransferSize, dailyLimit *uint256.Int) error
	RemoveSupportedToken(ctx context.Context, caller bridge.Principal, id string, tok common.Address) error
	UpdateMaxTransferSize(ctx context.Context, caller bridge.Principal, id string, tok common.Address, size *uint256.Int) error
	UpdateDailyLimit(ctx context.Context, caller bridge.Principal, id string, tok common.Address, limit *uint256.Int) error
	SetRoute(ctx context.Context, caller bridge.Principal, id, chain, counterpart string) error
	RemoveRoute(ctx context.Context, caller bridge.Principal, id, chain string) error
	RescueTokens(ctx context.Context, caller bridge.Principal, id string, tok common.Address) (*admin.RescueResponse, error)

	BridgeTokens(ctx context.Context, caller bridge.Principal, id string, p TransferParams) (*admin.Receipt, error)
	EstimateFee(ctx context.Context, id string, p TransferParams) (*admin.FeeQuote, error)
	Approve(ctx context.Context, caller bridge.Principal, chain string, tok, spender common.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, chain string, tok, account common.Address) (*admin.BalanceResponse, error)

	ListTransfers(ctx context.Context, filter TransferFilter) ([]*admin.TransferView, error)
	GetTransfer(ctx context.Context, id string) (*admin.TransferView, error)
	RetryTransfer(ctx context.Context, id string) (*admin.TransferView, error)
}

// limited is the token limit surface of source and OFT bridges
type limited interface {
	AddSupportedToken(caller bridge.Principal, token common.Address, maxTransferSize, dailyLimit *uint256.Int) error
	RemoveSupportedToken(caller bridge.Principal, token common.Address) error
	UpdateMaxTransferSize(caller bridge.Principal, token common.Address, size *uint256.Int) error
	UpdateDailyLimit(caller bridge.Principal, token common.Address, limit *uint256.Int) error
	Limits(token common.Address) (registry.TokenLimits, bool)
	Remaining(token common.Address) (*uint256.Int, error)
}

type rescuer interface {
	RescueTokens(ctx context.Context, caller bridge.Principal, token common.Address) (*uint256.Int, error)
}

var (
	_ limited = (*bridge.SourceBridge)(nil)
	_ limited = (*bridge.OFTBridge)(nil)
)

type bridgeService struct {
	deployment Deployment
	store      db.Store
	retrier    Retrier
	logger     *zap.Logger
}

// NewService creates the bridge service. retrier may be nil when relaying is
// disabled.
func NewService(deployment Deployment, store db.Store, retrier Retrier, logger *zap.Logger) Service {
	return &bridgeService{
		deployment: deployment,
		store:      store,
		retrier:    retrier,
		logger:     logger,
	}
}

func (s *bridgeService) ListBridges(ctx context.Context) ([]*admin.BridgeView, error) {
	ids := s.deployment.BridgeIDs()
	out := make([]*admin.BridgeView, 0, len(ids))
	for _, id := range ids {
		v, err := s.GetBridge(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *bridgeService) GetBridge(_ context.Context, id string) (*admin.BridgeView, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	snap := inst.Snapshot()
	v := &admin.BridgeView{
		ID:      id,
		Kind:    string(inst.Kind()),
		Chain:   s.deployment.ChainOf(id),
		Address: inst.Address().Hex(),
		Owner:   snap.Owner.Hex(),
		Paused:  snap.Paused,
		Tokens:  []admin.TokenView{},
		Routes:  admin.NewRouteViews(snap.Routes),
	}
	switch b := inst.(type) {
	case *bridge.SourceBridge:
		v.Mode = string(b.Mode())
	case *bridge.DestinationBridge:
		v.Mode = string(b.Mode())
		v.Policy = string(b.Policy())
	}
	if l, ok := inst.(limited); ok {
		for _, rec := range snap.Tokens {
			remaining, _ := l.Remaining(rec.Token)
			v.Tokens = append(v.Tokens, admin.NewTokenView(rec, remaining))
		}
	} else {
		for _, tok := range snap.Supported {
			v.Tokens = append(v.Tokens, admin.TokenView{Token: tok.Hex()})
		}
	}
	return v, nil
}

func (s *bridgeService) GetTokenLimits(_ context.Context, id string, tok common.Address) (*admin.TokenView, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	switch b := inst.(type) {
	case limited:
		rec, ok := b.Limits(tok)
		if !ok {
			return nil, bridge.ToServiceError(fmt.Errorf("%w: %s", bridge.ErrUnsupportedToken, tok.Hex()))
		}
		remaining, err := b.Remaining(tok)
		if err != nil {
			return nil, bridge.ToServiceError(err)
		}
		v := admin.NewTokenView(rec, remaining)
		return &v, nil
	case *bridge.DestinationBridge:
		if !b.IsSupported(tok) {
			return nil, bridge.ToServiceError(fmt.Errorf("%w: %s", bridge.ErrUnsupportedToken, tok.Hex()))
		}
		return &admin.TokenView{Token: tok.Hex()}, nil
	default:
		return nil, apperrors.NotSupportedError(nil, "bridge has no token registry")
	}
}

func (s *bridgeService) ListEvents(_ context.Context, id string) ([]admin.EventView, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	events := inst.Events()
	out := make([]admin.EventView, len(events))
	for i, e := range events {
		out[i] = admin.NewEventView(e)
	}
	return out, nil
}

func (s *bridgeService) Pause(ctx context.Context, caller bridge.Principal, id string) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		return inst.Pause(caller)
	})
}

func (s *bridgeService) Unpause(ctx context.Context, caller bridge.Principal, id string) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		return inst.Unpause(caller)
	})
}

func (s *bridgeService) TransferOwnership(ctx context.Context, caller bridge.Principal, id string, newOwner common.Address) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		return inst.TransferOwnership(caller, newOwner)
	})
}

func (s *bridgeService) AddSupportedToken(
	ctx context.Context,
	caller bridge.Principal,
	id string,
	tok common.Address,
	maxTransferSize, dailyLimit *uint256.Int,
) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		switch b := inst.(type) {
		case limited:
			if maxTransferSize == nil || dailyLimit == nil {
				return apperrors.BadRequestError(nil, "max_transfer_size and daily_limit are required")
			}
			return b.AddSupportedToken(caller, tok, maxTransferSize, dailyLimit)
		case *bridge.DestinationBridge:
			return b.AddSupportedToken(caller, tok)
		default:
			return apperrors.NotSupportedError(nil, "bridge has no token registry")
		}
	})
}

func (s *bridgeService) RemoveSupportedToken(ctx context.Context, caller bridge.Principal, id string, tok common.Address) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		switch b := inst.(type) {
		case limited:
			return b.RemoveSupportedToken(caller, tok)
		case *bridge.DestinationBridge:
			return b.RemoveSupportedToken(caller, tok)
		default:
			return apperrors.NotSupportedError(nil, "bridge has no token registry")
		}
	})
}

func (s *bridgeService) UpdateMaxTransferSize(ctx context.Context, caller bridge.Principal, id string, tok common.Address, size *uint256.Int) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		b, ok := inst.(limited)
		if !ok {
			return apperrors.NotSupportedError(nil, "bridge has no transfer limits")
		}
		return b.UpdateMaxTransferSize(caller, tok, size)
	})
}

func (s *bridgeService) UpdateDailyLimit(ctx context.Context, caller bridge.Principal, id string, tok common.Address, limit *uint256.Int) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		b, ok := inst.(limited)
		if !ok {
			return apperrors.NotSupportedError(nil, "bridge has no transfer limits")
		}
		return b.UpdateDailyLimit(caller, tok, limit)
	})
}

// SetRoute registers counterpart for chain. On OFT bridges chain is the
// decimal LayerZero id and counterpart the remote OFT address.
func (s *bridgeService) SetRoute(ctx context.Context, caller bridge.Principal, id, chain, counterpart string) error {
	counterpart = network.NormalizeCounterpart(counterpart)
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		switch b := inst.(type) {
		case *bridge.SourceBridge:
			return b.AddDestinationChain(caller, chain, counterpart)
		case *bridge.DestinationBridge:
			return b.AddChainSupport(caller, chain, counterpart)
		case *bridge.OFTBridge:
			chainID, err := parseLzChainID(chain)
			if err != nil {
				return err
			}
			if !common.IsHexAddress(counterpart) {
				return apperrors.BadRequestError(nil, "counterpart must be an address")
			}
			return b.SetTrustedRemote(caller, chainID, common.HexToAddress(counterpart))
		default:
			return apperrors.NotSupportedError(nil, "bridge has no routes")
		}
	})
}

func (s *bridgeService) RemoveRoute(ctx context.Context, caller bridge.Principal, id, chain string) error {
	return s.mutate(ctx, id, func(inst bridge.Instance) error {
		switch b := inst.(type) {
		case *bridge.SourceBridge:
			return b.RemoveDestinationChain(caller, chain)
		case *bridge.DestinationBridge:
			return b.RemoveChainSupport(caller, chain)
		case *bridge.OFTBridge:
			chainID, err := parseLzChainID(chain)
			if err != nil {
				return err
			}
			return b.RemoveTrustedRemote(caller, chainID)
		default:
			return apperrors.NotSupportedError(nil, "bridge has no routes")
		}
	})
}

func (s *bridgeService) RescueTokens(ctx context.Context, caller bridge.Principal, id string, tok common.Address) (*admin.RescueResponse, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	r, ok := inst.(rescuer)
	if !ok {
		return nil, apperrors.NotSupportedError(nil, "bridge cannot rescue tokens")
	}
	amount, err := r.RescueTokens(ctx, caller, tok)
	if err != nil {
		return nil, bridge.ToServiceError(err)
	}
	return &admin.RescueResponse{Token: tok.Hex(), Amount: amount.Dec()}, nil
}

// BridgeTokens dispatches a transfer through a source or OFT bridge. The
// daily usage it consumes is checkpointed like an admin change.
func (s *bridgeService) BridgeTokens(ctx context.Context, caller bridge.Principal, id string, p TransferParams) (*admin.Receipt, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}

	var receipt *bridge.Receipt
	switch b := inst.(type) {
	case *bridge.SourceBridge:
		receipt, err = b.Bridge(ctx, caller, bridge.BridgeRequest{
			Token:            p.Token,
			Recipient:        p.Recipient,
			DestinationChain: p.Chain,
			Amount:           p.Amount,
			Fee:              p.Fee,
		})
	case *bridge.OFTBridge:
		chainID, perr := parseLzChainID(p.Chain)
		if perr != nil {
			return nil, perr
		}
		receipt, err = b.Bridge(ctx, caller, bridge.OFTRequest{
			Token:      p.Token,
			Recipient:  p.Recipient,
			DstChainID: chainID,
			Amount:     p.Amount,
			Fee:        p.Fee,
		})
	default:
		return nil, apperrors.NotSupportedError(nil, "bridge does not send transfers")
	}
	if err != nil {
		return nil, bridge.ToServiceError(err)
	}
	s.checkpoint(ctx, inst)
	return admin.NewReceipt(receipt), nil
}

func (s *bridgeService) EstimateFee(_ context.Context, id string, p TransferParams) (*admin.FeeQuote, error) {
	inst, err := s.instance(id)
	if err != nil {
		return nil, err
	}
	b, ok := inst.(*bridge.OFTBridge)
	if !ok {
		return nil, apperrors.NotSupportedError(nil, "fee quotes are only available on OFT bridges")
	}
	chainID, err := parseLzChainID(p.Chain)
	if err != nil {
		return nil, err
	}
	nativeFee, zroFee, err := b.EstimateSendFee(p.Token, chainID, p.Recipient, p.Amount, false, nil)
	if err != nil {
		return nil, bridge.ToServiceError(err)
	}
	return &admin.FeeQuote{NativeFee: nativeFee.Dec(), ZroFee: zroFee.Dec()}, nil
}

func (s *bridgeService) Approve(
	_ context.Context,
	caller bridge.Principal,
	chain string,
	tok, spender common.Address,
	amount *uint256.Int,
) error {
	ledger, err := s.deployment.Ledger(chain, tok)
	if err != nil {
		return toServiceError(err)
	}
	return bridge.ToServiceError(ledger.Approve(caller, spender, amount))
}

func (s *bridgeService) BalanceOf(_ context.Context, chain string, tok, account common.Address) (*admin.BalanceResponse, error) {
	ledger, err := s.deployment.Ledger(chain, tok)
	if err != nil {
		return nil, toServiceError(err)
	}
	return &admin.BalanceResponse{
		Chain:   chain,
		Token:   tok.Hex(),
		Account: account.Hex(),
		Balance: ledger.BalanceOf(account).Dec(),
	}, nil
}

func (s *bridgeService) ListTransfers(ctx context.Context, filter TransferFilter) ([]*admin.TransferView, error) {
	var opts []db.ListOption
	if filter.Path != "" {
		opts = append(opts, db.WithPath(filter.Path))
	}
	if filter.Status != "" {
		opts = append(opts, db.WithStatus(filter.Status))
	}
	if filter.Limit > 0 {
		opts = append(opts, db.WithLimit(filter.Limit))
	}
	transfers, err := s.store.ListTransfers(ctx, opts...)
	if err != nil {
		return nil, apperrors.DependencyError(err, "failed to list transfers")
	}
	out := make([]*admin.TransferView, len(transfers))
	for i, t := range transfers {
		out[i] = admin.NewTransferView(t)
	}
	return out, nil
}

func (s *bridgeService) GetTransfer(ctx context.Context, id string) (*admin.TransferView, error) {
	t, err := s.store.GetTransfer(ctx, id)
	if err != nil {
		return nil, toServiceError(err)
	}
	return admin.NewTransferView(t), nil
}

func (s *bridgeService) RetryTransfer(ctx context.Context, id string) (*admin.TransferView, error) {
	if s.retrier == nil {
		return nil, apperrors.NotSupportedError(nil, "relaying is disabled")
	}
	t, err := s.retrier.Retry(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound), errors.Is(err, relayer.ErrAlreadyCompleted), errors.Is(err, relayer.ErrUnknownPath):
			return nil, toServiceError(err)
		default:
			return nil, apperrors.DependencyError(err, "delivery failed: "+err.Error())
		}
	}
	return admin.NewTransferView(t), nil
}

func (s *bridgeService) instance(id string) (bridge.Instance, error) {
	inst, err := s.deployment.Bridge(id)
	if err != nil {
		return nil, toServiceError(err)
	}
	return inst, nil
}

// mutate runs an admin change and checkpoints the bridge when it succeeds
func (s *bridgeService) mutate(ctx context.Context, id string, fn func(bridge.Instance) error) error {
	inst, err := s.instance(id)
	if err != nil {
		return err
	}
	if err := fn(inst); err != nil {
		return bridge.ToServiceError(err)
	}
	s.checkpoint(ctx, inst)
	return nil
}

// checkpoint persists the bridge state. The in-memory change already took
// effect, so a store failure is logged and counted but not returned.
func (s *bridgeService) checkpoint(ctx context.Context, inst bridge.Instance) {
	if err := s.store.SaveBridgeState(ctx, inst.Snapshot()); err != nil {
		metrics.ErrorsTotal.WithLabelValues("checkpoint", "save_failed").Inc()
		s.logger.Error("Failed to checkpoint bridge state",
			zap.String("bridge", inst.ID()),
			zap.Error(err))
	}
}

func parseLzChainID(chain string) (uint16, error) {
	id, err := strconv.ParseUint(chain, 10, 16)
	if err != nil {
		return 0, apperrors.BadRequestError(err, fmt.Sprintf("invalid LayerZero chain id %q", chain))
	}
	return uint16(id), nil
}

func toServiceError(err error) error {
	switch {
	case errors.Is(err, network.ErrUnknownBridge),
		errors.Is(err, network.ErrUnknownChain),
		errors.Is(err, network.ErrUnknownToken),
		errors.Is(err, db.ErrNotFound):
		return apperrors.ResourceNotFoundError(err, err.Error())
	case errors.Is(err, relayer.ErrAlreadyCompleted):
		return apperrors.ConflictError(err, err.Error())
	case errors.Is(err, relayer.ErrUnknownPath):
		return apperrors.NotSupportedError(err, err.Error())
	default:
		return bridge.ToServiceError(err)
	}
}
