package http

import (
	"context"

	"github.com/atinyakov/practiceserver/internal/service"
)

// CollectionsService is the CRUD service behind /data.
type CollectionsService interface {
	Read(ctx context.Context, sc *service.Scope) (any, error)
	Create(ctx context.Context, sc *service.Scope) (any, error)
	Replace(ctx context.Context, sc *service.Scope) (any, error)
	Merge(ctx context.Context, sc *service.Scope) (any, error)
	Delete(ctx context.Context, sc *service.Scope) (any, error)
}

// NewDataService builds the /data/:collection action table.
func NewDataService(c CollectionsService) *Service {
	collection := Param(service.CollectionParam)
	return NewService().
		Get(collection, c.Read).
		Post(collection, c.Create).
		Put(collection, c.Replace).
		Patch(collection, c.Merge).
		Delete(collection, c.Delete)
}
