package http

import (
	"context"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/service"
)

// DocumentStore is the schemaless tree behind /jsonstore.
type DocumentStore interface {
	Get(path []string) (any, bool)
	Post(path []string, value map[string]any) (map[string]any, bool)
	Put(path []string, value any) (any, bool)
	Patch(path []string, value map[string]any) (any, bool)
	Delete(path []string) (any, bool)
}

func documentPath(sc *service.Scope) []string {
	path := make([]string, 0, len(sc.Tokens)+1)
	if c := sc.Param(service.CollectionParam); c != "" {
		path = append(path, c)
	}
	return append(path, sc.Tokens...)
}

func found(v any, ok bool) (any, error) {
	if !ok {
		return nil, apierror.NotFound()
	}
	return v, nil
}

func bodyObject(sc *service.Scope) (map[string]any, error) {
	rec, ok := sc.BodyRecord()
	if !ok {
		return nil, apierror.Request("Expected a JSON object")
	}
	return map[string]any(rec), nil
}

// NewJSONStoreService builds the /jsonstore/:collection action table. The
// document tree has no access rules.
func NewJSONStoreService(doc DocumentStore) *Service {
	collection := Param(service.CollectionParam)
	return NewService().
		Get(collection, func(ctx context.Context, sc *service.Scope) (any, error) {
			return found(doc.Get(documentPath(sc)))
		}).
		Post(collection, func(ctx context.Context, sc *service.Scope) (any, error) {
			body, err := bodyObject(sc)
			if err != nil {
				return nil, err
			}
			created, ok := doc.Post(documentPath(sc), body)
			if !ok {
				return nil, apierror.Request("Path does not lead to an object")
			}
			return created, nil
		}).
		Put(collection, func(ctx context.Context, sc *service.Scope) (any, error) {
			return found(doc.Put(documentPath(sc), models.DeepCopy(sc.Body)))
		}).
		Patch(collection, func(ctx context.Context, sc *service.Scope) (any, error) {
			body, err := bodyObject(sc)
			if err != nil {
				return nil, err
			}
			return found(doc.Patch(documentPath(sc), body))
		}).
		Delete(collection, func(ctx context.Context, sc *service.Scope) (any, error) {
			return found(doc.Delete(documentPath(sc)))
		})
}
