package authorization

import (
	"context"
	"errors"

	"go.uber.org/fx"
)

// Service answers whether an actor may perform an action on an object.
// Actors are either "system" (workers, seeds) or "api_key:<id>" principals
// resolved by the API-key middleware.
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

var Module = fx.Module("authorization.service",
	fx.Provide(NewEnforcer),
	fx.Provide(NewService),
)
