package auth

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

type contextKey string

// ContextKeyPrincipal is the context key for the authenticated signer
const ContextKeyPrincipal contextKey = "principal"

// WithPrincipal adds the authenticated signer to the context
func WithPrincipal(ctx context.Context, principal common.Address) context.Context {
	return context.WithValue(ctx, ContextKeyPrincipal, principal)
}

// PrincipalFromContext retrieves the authenticated signer from the context
func PrincipalFromContext(ctx context.Context) (common.Address, bool) {
	p, ok := ctx.Value(ContextKeyPrincipal).(common.Address)
	return p, ok
}
