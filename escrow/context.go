package escrow

import (
	"context"

	"bounty-escrow-system/models"
)

type callCtxKey struct{}

// CallCtx is what the host knows about the current call: who is calling and
// how much value is attached to it.
type CallCtx struct {
	Caller  string
	Payment models.Amount
}

// WithCallCtx adds the call context into ctx.
func WithCallCtx(ctx context.Context, cc CallCtx) context.Context {
	return context.WithValue(ctx, callCtxKey{}, cc)
}

// GetCallCtx gets the call context.
func GetCallCtx(ctx context.Context) (CallCtx, bool) {
	cc, ok := ctx.Value(callCtxKey{}).(CallCtx)
	return cc, ok
}
