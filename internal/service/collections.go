package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/query"
	"github.com/atinyakov/practiceserver/internal/rules"
	"github.com/atinyakov/practiceserver/internal/storage"
)

// CollectionParam is the parameter naming the target collection.
const CollectionParam = "collection"

// RecordStore is the public collection store.
type RecordStore interface {
	Collections() []string
	List(name string) ([]models.Record, error)
	Get(name, id string) (models.Record, error)
	Add(name string, data models.Record) (models.Record, error)
	Set(name, id string, data models.Record) (models.Record, error)
	Merge(name, id string, data models.Record) (models.Record, error)
	Delete(name, id string) (models.Record, error)
}

// AccessChecker authorizes requests against the rule set.
type AccessChecker interface {
	Check(p rules.Principal, action rules.Action, collection string, data, newData models.Record) error
	CheckList(p rules.Principal, action rules.Action, collection string, records []models.Record) error
}

// Collections implements CRUD over the public store with query options and
// access checks.
type Collections struct {
	// store is the public collection store.
	store RecordStore
	// sources resolve load joins, users from the protected store.
	sources query.Sources
	// access authorizes every request and redacts properties.
	access AccessChecker
	// log records created records.
	log *zap.Logger
}

// NewCollectionsService constructs the CRUD service. protected resolves load
// joins against the users collection.
func NewCollectionsService(store RecordStore, protected query.Getter, access AccessChecker, log *zap.Logger) *Collections {
	if log == nil {
		log = zap.NewNop()
	}
	return &Collections{
		store:   store,
		sources: query.Sources{Public: store, Protected: protected},
		access:  access,
		log:     log,
	}
}

// translate maps storage lookup failures to NotFound and leaves service
// errors untouched.
func translate(err error) error {
	if _, ok := apierror.As(err); ok {
		return err
	}
	if storage.IsNotFound(err) {
		return apierror.NotFound().Wrap(err)
	}
	var ce *query.ClauseError
	if errors.As(err, &ce) {
		return apierror.Request(ce.Error()).Wrap(err)
	}
	return apierror.Request(err.Error()).Wrap(err)
}

// Read lists collections, reads one record or queries a collection.
func (c *Collections) Read(ctx context.Context, sc *Scope) (any, error) {
	if len(sc.Tokens) > 1 {
		return nil, apierror.Request()
	}
	collection := sc.Param(CollectionParam)
	if collection == "" {
		return c.store.Collections(), nil
	}

	opts, err := query.ParseOptions(sc.Query)
	if err != nil {
		return nil, translate(err)
	}

	if len(sc.Tokens) == 1 {
		rec, err := c.store.Get(collection, sc.Tokens[0])
		if err != nil {
			return nil, translate(err)
		}
		rec, err = opts.ApplyRecord(rec, c.sources)
		if err != nil {
			return nil, translate(err)
		}
		if err := c.access.Check(sc.Principal(), rules.ActionRead, collection, rec, nil); err != nil {
			return nil, err
		}
		return rec, nil
	}

	records, err := c.store.List(collection)
	if err != nil {
		return nil, translate(err)
	}
	result, err := opts.ApplyList(records, c.sources)
	if err != nil {
		return nil, translate(err)
	}
	list, ok := result.([]models.Record)
	if !ok {
		// count
		return result, nil
	}
	if err := c.access.CheckList(sc.Principal(), rules.ActionRead, collection, list); err != nil {
		return nil, err
	}
	return list, nil
}

// Create stores the body as a new record owned by the caller.
func (c *Collections) Create(ctx context.Context, sc *Scope) (any, error) {
	if len(sc.Tokens) > 1 {
		return nil, apierror.Request()
	}
	if len(sc.Tokens) > 0 {
		return nil, apierror.Request("Use PUT to update records")
	}
	collection := sc.Param(CollectionParam)
	if collection == "" {
		return nil, apierror.Request("Missing collection name")
	}
	body, ok := sc.BodyRecord()
	if !ok {
		return nil, apierror.Request("Expected a JSON object")
	}

	delete(body, models.FieldOwnerID)
	if id := sc.User.ID(); id != "" {
		body[models.FieldOwnerID] = id
	}
	if err := c.access.Check(sc.Principal(), rules.ActionCreate, collection, nil, body); err != nil {
		return nil, err
	}

	created, err := c.store.Add(collection, body)
	if err != nil {
		return nil, apierror.Request().Wrap(err)
	}
	c.log.Debug("record created", zap.String("collection", collection), zap.String("id", created.ID()))
	return created, nil
}

// Replace overwrites a record.
func (c *Collections) Replace(ctx context.Context, sc *Scope) (any, error) {
	return c.update(sc, c.store.Set)
}

// Merge shallow-merges the body into a record.
func (c *Collections) Merge(ctx context.Context, sc *Scope) (any, error) {
	return c.update(sc, c.store.Merge)
}

type writeFunc func(name, id string, data models.Record) (models.Record, error)

func (c *Collections) update(sc *Scope, write writeFunc) (any, error) {
	collection, id, err := c.target(sc)
	if err != nil {
		return nil, err
	}
	body, ok := sc.BodyRecord()
	if !ok {
		return nil, apierror.Request("Expected a JSON object")
	}
	existing, err := c.store.Get(collection, id)
	if err != nil {
		return nil, apierror.NotFound().Wrap(err)
	}
	if err := c.access.Check(sc.Principal(), rules.ActionUpdate, collection, existing, body); err != nil {
		return nil, err
	}
	updated, err := write(collection, id, body)
	if err != nil {
		return nil, apierror.Request().Wrap(err)
	}
	return updated, nil
}

// Delete removes a record and returns the deletion marker.
func (c *Collections) Delete(ctx context.Context, sc *Scope) (any, error) {
	collection, id, err := c.target(sc)
	if err != nil {
		return nil, err
	}
	existing, err := c.store.Get(collection, id)
	if err != nil {
		return nil, apierror.NotFound().Wrap(err)
	}
	if err := c.access.Check(sc.Principal(), rules.ActionDelete, collection, existing, nil); err != nil {
		return nil, err
	}
	marker, err := c.store.Delete(collection, id)
	if err != nil {
		return nil, apierror.Request().Wrap(err)
	}
	return marker, nil
}

func (c *Collections) target(sc *Scope) (string, string, error) {
	if len(sc.Tokens) > 1 {
		return "", "", apierror.Request()
	}
	if len(sc.Tokens) != 1 {
		return "", "", apierror.Request("Missing entry ID")
	}
	return sc.Param(CollectionParam), sc.Tokens[0], nil
}
