package bridge

import (
	"errors"

	apperrors "github.com/chainsafe/rwa-bridge/pkg/app/errors"
	"github.com/chainsafe/rwa-bridge/pkg/routes"
	"github.com/chainsafe/rwa-bridge/pkg/token"
)

// ToServiceError classifies a bridge error for the HTTP layer. Errors that are
// already service errors pass through; unknown errors become general errors.
func ToServiceError(err error) error {
	if err == nil {
		return nil
	}
	var svcErr *apperrors.ServiceError
	if errors.As(err, &svcErr) {
		return err
	}

	msg := err.Error()
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, token.ErrNotAuthorized):
		return apperrors.UnAuthorizedError(err, msg)
	case errors.Is(err, ErrUntrustedSource):
		return apperrors.ForbiddenError(err, msg)
	case errors.Is(err, ErrPaused):
		return apperrors.LockedError(err, msg)
	case errors.Is(err, ErrTokenAlreadySupported):
		return apperrors.ConflictError(err, msg)
	case errors.Is(err, ErrUnsupportedToken), errors.Is(err, ErrUnknownChainRoute):
		return apperrors.NotSupportedError(err, msg)
	case errors.Is(err, ErrZeroAmount),
		errors.Is(err, token.ErrZeroAmount),
		errors.Is(err, ErrZeroAddress),
		errors.Is(err, token.ErrZeroAddress),
		errors.Is(err, ErrExceedsMaxTransfer),
		errors.Is(err, ErrDailyLimitExceeded),
		errors.Is(err, ErrInvalidLimit),
		errors.Is(err, ErrInsufficientAllowance),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrInsufficientFee),
		errors.Is(err, ErrMalformedPayload),
		errors.Is(err, ErrInvalidMode),
		errors.Is(err, ErrKindMismatch),
		errors.Is(err, routes.ErrEmptyChain),
		errors.Is(err, routes.ErrEmptyCounterpart):
		return apperrors.BadRequestError(err, msg)
	default:
		return apperrors.GeneralError(err)
	}
}
