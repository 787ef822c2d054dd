package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/donations-backend/pkg/enums"
)

type actorKey struct{}

// Actor is the authenticated member behind a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// WithActor is used by Auth and by handler tests that skip token parsing.
func WithActor(ctx context.Context, actor Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext reports false for anonymous requests.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.UserID != uuid.Nil
}

// UserIDFromContext returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return actor.UserID.String()
}
