package service

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/chainsafe/rwa-bridge/pkg/admin"
	"github.com/chainsafe/rwa-bridge/pkg/bridge"
)

const serviceName = "BridgeService"

// logService wraps Service with logging of every state changing call. Reads
// pass through undecorated.
type logService struct {
	Service
	logger *zap.Logger
}

// NewLog creates a logging decorator for the bridge Service.
// It logs method entry/exit, duration and errors.
func NewLog(svc Service, logger *zap.Logger) Service {
	return &logService{
		Service: svc,
		logger:  logger,
	}
}

// track logs the start of method and returns a func that logs its outcome
func (ls *logService) track(method string, fields ...zap.Field) func(err error, extra ...zap.Field) {
	start := time.Now()
	base := append([]zap.Field{
		zap.String("service", serviceName),
		zap.String("method", method),
	}, fields...)

	ls.logger.Info(method+" started", base...)

	return func(err error, extra ...zap.Field) {
		out := append(append(base, extra...), zap.Duration("duration", time.Since(start)))
		if err != nil {
			ls.logger.Error(method+" failed", append(out, zap.Error(err))...)
			return
		}
		ls.logger.Info(method+" completed", out...)
	}
}

func callerFields(caller bridge.Principal, id string) []zap.Field {
	return []zap.Field{
		zap.String("caller", caller.Hex()),
		zap.String("bridge", id),
	}
}

func (ls *logService) Pause(ctx context.Context, caller bridge.Principal, id string) (err error) {
	done := ls.track("Pause", callerFields(caller, id)...)
	defer func() { done(err) }()
	return ls.Service.Pause(ctx, caller, id)
}

func (ls *logService) Unpause(ctx context.Context, caller bridge.Principal, id string) (err error) {
	done := ls.track("Unpause", callerFields(caller, id)...)
	defer func() { done(err) }()
	return ls.Service.Unpause(ctx, caller, id)
}

func (ls *logService) TransferOwnership(ctx context.Context, caller bridge.Principal, id string, newOwner common.Address) (err error) {
	done := ls.track("TransferOwnership", append(callerFields(caller, id),
		zap.String("new_owner", newOwner.Hex()))...)
	defer func() { done(err) }()
	return ls.Service.TransferOwnership(ctx, caller, id, newOwner)
}

func (ls *logService) AddSupportedToken(
	ctx context.Context,
	caller bridge.Principal,
	id string,
	tok common.Address,
	maxTransferSize, dailyLimit *uint256.Int,
) (err error) {
	done := ls.track("AddSupportedToken", append(callerFields(caller, id),
		zap.String("token", tok.Hex()),
		zap.String("max_transfer_size", decField(maxTransferSize)),
		zap.String("daily_limit", decField(dailyLimit)))...)
	defer func() { done(err) }()
	return ls.Service.AddSupportedToken(ctx, caller, id, tok, maxTransferSize, dailyLimit)
}

func (ls *logService) RemoveSupportedToken(ctx context.Context, caller bridge.Principal, id string, tok common.Address) (err error) {
	done := ls.track("RemoveSupportedToken", append(callerFields(caller, id), zap.String("token", tok.Hex()))...)
	defer func() { done(err) }()
	return ls.Service.RemoveSupportedToken(ctx, caller, id, tok)
}

func (ls *logService) UpdateMaxTransferSize(ctx context.Context, caller bridge.Principal, id string, tok common.Address, size *uint256.Int) (err error) {
	done := ls.track("UpdateMaxTransferSize", append(callerFields(caller, id),
		zap.String("token", tok.Hex()),
		zap.String("max_transfer_size", decField(size)))...)
	defer func() { done(err) }()
	return ls.Service.UpdateMaxTransferSize(ctx, caller, id, tok, size)
}

func (ls *logService) UpdateDailyLimit(ctx context.Context, caller bridge.Principal, id string, tok common.Address, limit *uint256.Int) (err error) {
	done := ls.track("UpdateDailyLimit", append(callerFields(caller, id),
		zap.String("token", tok.Hex()),
		zap.String("daily_limit", decField(limit)))...)
	defer func() { done(err) }()
	return ls.Service.UpdateDailyLimit(ctx, caller, id, tok, limit)
}

func (ls *logService) SetRoute(ctx context.Context, caller bridge.Principal, id, chain, counterpart string) (err error) {
	done := ls.track("SetRoute", append(callerFields(caller, id),
		zap.String("chain", chain),
		zap.String("counterpart", counterpart))...)
	defer func() { done(err) }()
	return ls.Service.SetRoute(ctx, caller, id, chain, counterpart)
}

func (ls *logService) RemoveRoute(ctx context.Context, caller bridge.Principal, id, chain string) (err error) {
	done := ls.track("RemoveRoute", append(callerFields(caller, id), zap.String("chain", chain))...)
	defer func() { done(err) }()
	return ls.Service.RemoveRoute(ctx, caller, id, chain)
}

func (ls *logService) RescueTokens(ctx context.Context, caller bridge.Principal, id string, tok common.Address) (resp *admin.RescueResponse, err error) {
	done := ls.track("RescueTokens", append(callerFields(caller, id), zap.String("token", tok.Hex()))...)
	defer func() {
		if err != nil {
			done(err)
			return
		}
		done(nil, zap.String("amount", resp.Amount))
	}()
	return ls.Service.RescueTokens(ctx, caller, id, tok)
}

func (ls *logService) BridgeTokens(ctx context.Context, caller bridge.Principal, id string, p TransferParams) (resp *admin.Receipt, err error) {
	done := ls.track("BridgeTokens", append(callerFields(caller, id),
		zap.String("token", p.Token.Hex()),
		zap.String("recipient", p.Recipient.Hex()),
		zap.String("chain", p.Chain),
		zap.String("amount", decField(p.Amount)))...)
	defer func() {
		if err != nil {
			done(err)
			return
		}
		done(nil, zap.String("message_id", resp.MessageID))
	}()
	return ls.Service.BridgeTokens(ctx, caller, id, p)
}

func (ls *logService) Approve(
	ctx context.Context,
	caller bridge.Principal,
	chain string,
	tok, spender common.Address,
	amount *uint256.Int,
) (err error) {
	done := ls.track("Approve",
		zap.String("caller", caller.Hex()),
		zap.String("chain", chain),
		zap.String("token", tok.Hex()),
		zap.String("spender", spender.Hex()),
		zap.String("amount", decField(amount)))
	defer func() { done(err) }()
	return ls.Service.Approve(ctx, caller, chain, tok, spender, amount)
}

func (ls *logService) RetryTransfer(ctx context.Context, id string) (resp *admin.TransferView, err error) {
	done := ls.track("RetryTransfer", zap.String("transfer_id", id))
	defer func() {
		if err != nil {
			done(err)
			return
		}
		done(nil, zap.String("status", resp.Status))
	}()
	return ls.Service.RetryTransfer(ctx, id)
}

func decField(v *uint256.Int) string {
	if v == nil {
		return "<nil>"
	}
	return v.Dec()
}
