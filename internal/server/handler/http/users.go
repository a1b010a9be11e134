package http

import (
	"context"

	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/service"
)

// AuthService is the identity service used by the users endpoints.
type AuthService interface {
	Register(ctx context.Context, body any) (models.Record, error)
	Login(ctx context.Context, body any) (models.Record, error)
	Logout(ctx context.Context, user models.Record) error
	Me(ctx context.Context, user models.Record) (models.Record, error)
}

// NewUsersService builds the /users action table:
//
//	GET  /users/me
//	POST /users/register
//	POST /users/login
//	GET  /users/logout
func NewUsersService(auth AuthService) *Service {
	return NewService().
		Get(Exact("me"), func(ctx context.Context, sc *service.Scope) (any, error) {
			return record(auth.Me(ctx, sc.User))
		}).
		Post(Exact("register"), func(ctx context.Context, sc *service.Scope) (any, error) {
			return record(auth.Register(ctx, sc.Body))
		}).
		Post(Exact("login"), func(ctx context.Context, sc *service.Scope) (any, error) {
			return record(auth.Login(ctx, sc.Body))
		}).
		Get(Exact("logout"), func(ctx context.Context, sc *service.Scope) (any, error) {
			return nil, auth.Logout(ctx, sc.User)
		})
}

// record keeps a nil record from becoming a non-nil interface value.
func record(rec models.Record, err error) (any, error) {
	if err != nil || rec == nil {
		return nil, err
	}
	return rec, nil
}
