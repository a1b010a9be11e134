package http

import (
	"context"

	"github.com/atinyakov/practiceserver/internal/service"
)

// Toggles is the flag set behind /util.
type Toggles interface {
	Set(ctx context.Context, body any) (any, error)
	Get(name string) any
}

// NewUtilService builds the /util action table. POST sets flags from the
// body; GET /util/:service returns one flag, or 204 when it is unset.
func NewUtilService(t Toggles) *Service {
	return NewService().
		Post(Wildcard(), func(ctx context.Context, sc *service.Scope) (any, error) {
			return t.Set(ctx, sc.Body)
		}).
		Get(Param("service"), func(ctx context.Context, sc *service.Scope) (any, error) {
			return t.Get(sc.Param("service")), nil
		})
}
