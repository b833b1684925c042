package bridge

import (
	"errors"
	"fmt"

	"github.com/chainsafe/rwa-bridge/pkg/payload"
	"github.com/chainsafe/rwa-bridge/pkg/registry"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
	"github.com/chainsafe/rwa-bridge/pkg/token"
	"github.com/chainsafe/rwa-bridge/pkg/transport/gateway"
	"github.com/chainsafe/rwa-bridge/pkg/transport/layerzero"
)

var (
	ErrPaused            = errors.New("bridge is paused")
	ErrUnauthorized      = errors.New("caller is not the owner")
	ErrUnknownChainRoute = errors.New("unknown chain route")
	ErrInsufficientFee   = errors.New("insufficient fee")
	ErrKindMismatch      = errors.New("snapshot belongs to another bridge kind")
	ErrInvalidMode       = errors.New("custody mode not valid for this bridge")
)

// Errors raised by the collaborators a bridge owns, re-exported so callers
// only need this package for errors.Is.
var (
	ErrUnsupportedToken      = registry.ErrUnsupportedToken
	ErrTokenAlreadySupported = registry.ErrTokenAlreadySupported
	ErrZeroAmount            = registry.ErrZeroAmount
	ErrZeroAddress           = registry.ErrZeroAddress
	ErrExceedsMaxTransfer    = registry.ErrExceedsMaxTransfer
	ErrDailyLimitExceeded    = registry.ErrDailyLimitExceeded
	ErrInvalidLimit          = registry.ErrInvalidLimit
	ErrUntrustedSource       = token.ErrUntrustedSource
	ErrInsufficientAllowance = token.ErrInsufficientAllowance
	ErrInsufficientBalance   = token.ErrInsufficientBalance
	ErrMalformedPayload      = payload.ErrMalformed
)

// transportError folds transport errors into the bridge taxonomy while keeping
// the original in the chain.
func transportError(err error) error {
	switch {
	case errors.Is(err, gateway.ErrInsufficientFee), errors.Is(err, layerzero.ErrInsufficientFee):
		return fmt.Errorf("%w: %w", ErrInsufficientFee, err)
	case errors.Is(err, gateway.ErrUnknownChain), errors.Is(err, layerzero.ErrUnknownChain),
		errors.Is(err, token.ErrUnknownRemote):
		return fmt.Errorf("%w: %w", ErrUnknownChainRoute, err)
	default:
		return fmt.Errorf("dispatch: %w", err)
	}
}

// reason is the metric label for a rejected call.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrPaused):
		return "paused"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrUnsupportedToken):
		return "unsupported_token"
	case errors.Is(err, ErrZeroAmount), errors.Is(err, token.ErrZeroAmount):
		return "zero_amount"
	case errors.Is(err, ErrZeroAddress), errors.Is(err, token.ErrZeroAddress), errors.Is(err, routes.ErrEmptyCounterpart):
		return "zero_address"
	case errors.Is(err, ErrExceedsMaxTransfer):
		return "exceeds_max_transfer"
	case errors.Is(err, ErrDailyLimitExceeded):
		return "daily_limit_exceeded"
	case errors.Is(err, ErrUnknownChainRoute):
		return "unknown_chain_route"
	case errors.Is(err, ErrUntrustedSource):
		return "untrusted_source"
	case errors.Is(err, ErrInsufficientAllowance):
		return "insufficient_allowance"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientFee):
		return "insufficient_fee"
	case errors.Is(err, ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "other"
	}
}
