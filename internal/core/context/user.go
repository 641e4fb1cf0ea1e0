// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// UserContext identifies the operator on whose behalf the core is called.
// It is set by the orchestrator and only used to enrich logs.
type UserContext struct {
	UserID   string
	BranchID string
}

type userContextKey struct{}

// WithUser adds UserContext to context.
func WithUser(ctx context.Context, user *UserContext) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// GetUser returns UserContext from context.
func GetUser(ctx context.Context) *UserContext {
	if v, ok := ctx.Value(userContextKey{}).(*UserContext); ok {
		return v
	}
	return nil
}

