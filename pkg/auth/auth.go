package auth

import (
	"context"
)

// Authentication is owned by the gateway; it forwards the resolved identity
// through trusted headers.
const (
	XUserIDHeader   = "X-User-Id"
	XUserRoleHeader = "X-User-Role"
)

type Actor struct {
	ID   int
	Role string
}

type ctxKey struct{}

func SetAuthContext(ctx context.Context, id int, role string) context.Context {
	return context.WithValue(ctx, ctxKey{}, Actor{ID: id, Role: role})
}

func FromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(ctxKey{}).(Actor)
	return actor, ok
}
