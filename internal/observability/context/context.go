package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}
type branchIDKey struct{}
type actorKey struct{}

type actor struct {
	kind string
	id   string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

func WithBranchID(ctx context.Context, branchID string) context.Context {
	branchID = strings.TrimSpace(branchID)
	if branchID == "" {
		return ctx
	}
	return context.WithValue(ctx, branchIDKey{}, branchID)
}

func BranchIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(branchIDKey{}).(string)
	return value
}

// WithActor records who is acting, e.g. ("user", "123") or ("system", "worker").
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	return context.WithValue(ctx, actorKey{}, actor{
		kind: strings.TrimSpace(actorType),
		id:   strings.TrimSpace(actorID),
	})
}

func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(actorKey{}).(actor)
	if !ok {
		return "", ""
	}
	return value.kind, value.id
}
