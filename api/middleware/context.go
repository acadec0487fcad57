package middleware

import (
	"context"

	"github.com/angelmondragon/taxcredit-backend/internal/access"
)

type contextKey string

const ctxPrincipal contextKey = "principal"

// PrincipalFromContext returns the authenticated caller, or the zero value.
func PrincipalFromContext(ctx context.Context) access.Principal {
	if ctx == nil {
		return access.Principal{}
	}
	if p, ok := ctx.Value(ctxPrincipal).(access.Principal); ok {
		return p
	}
	return access.Principal{}
}

func UserIDFromContext(ctx context.Context) string {
	p := PrincipalFromContext(ctx)
	if p.IsZero() {
		return ""
	}
	return p.UserID.String()
}

func RoleFromContext(ctx context.Context) string {
	return string(PrincipalFromContext(ctx).Role)
}

// WithPrincipal injects the caller into the context for downstream handlers.
func WithPrincipal(ctx context.Context, p access.Principal) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxPrincipal, p)
}
