// Package reqctx carries the tenant and acting user of a request through
// context.Context.  Every gate operation resolves both before touching state.
package reqctx

import (
	"context"

	"github.com/BrandonDHaskell/gatehouse/internal/gatehouse/gateerr"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	actorKey
)

func WithTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

// With sets both tenant and actor.
func With(ctx context.Context, tenantID, actorID string) context.Context {
	return WithActor(WithTenant(ctx, tenantID), actorID)
}

// TenantID returns the tenant in ctx, or "" when unset.
func TenantID(ctx context.Context) string {
	v, _ := ctx.Value(tenantKey).(string)
	return v
}

// ActorID returns the actor in ctx, or "" when unset.
func ActorID(ctx context.Context) string {
	v, _ := ctx.Value(actorKey).(string)
	return v
}

// Require returns the tenant and actor, failing with an Unauthorized error
// when either is missing.
func Require(ctx context.Context) (tenantID, actorID string, err error) {
	tenantID = TenantID(ctx)
	if tenantID == "" {
		return "", "", gateerr.Unauthorized("tenant context is required")
	}
	actorID = ActorID(ctx)
	if actorID == "" {
		return "", "", gateerr.Unauthorized("actor context is required")
	}
	return tenantID, actorID, nil
}
