package middleware

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type contextKey string

const ctxOperator contextKey = "operator_claims"

// OperatorFromContext returns the verified operator claims, or nil.
func OperatorFromContext(ctx context.Context) *auth.OperatorClaims {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxOperator).(*auth.OperatorClaims); ok {
		return v
	}
	return nil
}

func OperatorIDFromContext(ctx context.Context) string {
	if claims := OperatorFromContext(ctx); claims != nil {
		return claims.OperatorID.String()
	}
	return ""
}

func RoleFromContext(ctx context.Context) enums.MemberRole {
	if claims := OperatorFromContext(ctx); claims != nil {
		return claims.Role
	}
	return ""
}

// WithOperator injects operator claims into the context.
func WithOperator(ctx context.Context, claims *auth.OperatorClaims) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOperator, claims)
}
