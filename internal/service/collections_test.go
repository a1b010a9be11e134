package service

import (
	"context"
	"net/http"
	"net/url"
	"testing"

	"go.uber.org/zap"

	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/atinyakov/practiceserver/internal/rules"
	"github.com/atinyakov/practiceserver/internal/storage"
)

var (
	alice = models.Record{"_id": "alice"}
	bob   = models.Record{"_id": "bob"}
)

func newCollections(t *testing.T) (*Collections, *storage.Store) {
	t.Helper()
	public := storage.New()
	public.Seed(models.Dataset{Collections: []models.CollectionSeed{{
		Name: "books",
		Records: []models.SeedRecord{
			{ID: "b1", Data: models.Record{"_ownerId": "alice", "title": "IT", "price": 14.99}},
			{ID: "b2", Data: models.Record{"_ownerId": "bob", "title": "Carrie", "price": 9.99}},
			{ID: "b3", Data: models.Record{"_ownerId": "bob", "title": "Misery", "price": 10.99}},
		},
	}}})
	protected := newProtected()
	ev := rules.NewEvaluator(rules.Defaults(), public)
	return NewCollectionsService(public, protected, ev, zap.NewNop()), public
}

func scope(method string, user models.Record, collection string, tokens []string, body any, query string) *Scope {
	q, _ := url.ParseQuery(query)
	params := map[string]string{}
	if collection != "" {
		params[CollectionParam] = collection
	}
	return &Scope{Method: method, Params: params, Tokens: tokens, Query: q, Body: body, User: user}
}

func TestCollections_Read(t *testing.T) {
	ctx := context.Background()
	c, _ := newCollections(t)

	got, err := c.Read(ctx, scope(http.MethodGet, nil, "", nil, nil, ""))
	if err != nil {
		t.Fatalf("Read collections: %v", err)
	}
	if names := got.([]string); len(names) != 1 || names[0] != "books" {
		t.Errorf("collections = %v; want [books]", names)
	}

	got, err = c.Read(ctx, scope(http.MethodGet, nil, "books", nil, nil, "where=price%3E10&sortBy=price%20desc"))
	if err != nil {
		t.Fatalf("Read where: %v", err)
	}
	list := got.([]models.Record)
	if len(list) != 2 || list[0].ID() != "b1" || list[1].ID() != "b3" {
		t.Errorf("where result = %v", list)
	}

	got, err = c.Read(ctx, scope(http.MethodGet, nil, "books", nil, nil, "count=1"))
	if err != nil || got != 3 {
		t.Errorf("count = %v, %v; want 3", got, err)
	}

	got, err = c.Read(ctx, scope(http.MethodGet, nil, "books", []string{"b2"}, nil, "load=owner=_ownerId:users"))
	if err == nil {
		t.Errorf("load of a missing owner should fail, got %v", got)
	}
	wantStatus(t, err, http.StatusNotFound)

	got, err = c.Read(ctx, scope(http.MethodGet, nil, "books", []string{"b2"}, nil, "select=title"))
	if err != nil {
		t.Fatalf("Read one: %v", err)
	}
	if rec := got.(models.Record); len(rec) != 1 || rec["title"] != "Carrie" {
		t.Errorf("select result = %v", rec)
	}
}

func TestCollections_ReadErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newCollections(t)

	tests := []struct {
		name   string
		sc     *Scope
		status int
	}{
		{"too many tokens", scope(http.MethodGet, nil, "books", []string{"a", "b"}, nil, ""), http.StatusBadRequest},
		{"missing collection", scope(http.MethodGet, nil, "movies", nil, nil, ""), http.StatusNotFound},
		{"missing record", scope(http.MethodGet, nil, "books", []string{"zzz"}, nil, ""), http.StatusNotFound},
		{"bad where", scope(http.MethodGet, nil, "books", nil, nil, "where=a%3D1%20and%20b%3D2%20or%20c%3D3"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Read(ctx, tt.sc)
			wantStatus(t, err, tt.status)
		})
	}
}

func TestCollections_Create(t *testing.T) {
	ctx := context.Background()
	c, store := newCollections(t)

	got, err := c.Create(ctx, scope(http.MethodPost, alice, "books", nil, map[string]any{"title": "New", "_ownerId": "bob"}, ""))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	rec := got.(models.Record)
	if rec.OwnerID() != "alice" {
		t.Errorf("owner = %q; want alice", rec.OwnerID())
	}
	if _, err := store.Get("books", rec.ID()); err != nil {
		t.Errorf("created record not stored: %v", err)
	}

	tests := []struct {
		name   string
		sc     *Scope
		status int
	}{
		{"with id", scope(http.MethodPost, alice, "books", []string{"b1"}, map[string]any{}, ""), http.StatusBadRequest},
		{"anonymous", scope(http.MethodPost, nil, "books", nil, map[string]any{}, ""), http.StatusUnauthorized},
		{"raw body", scope(http.MethodPost, alice, "books", nil, "plain", ""), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Create(ctx, tt.sc)
			wantStatus(t, err, tt.status)
		})
	}
}

func TestCollections_UpdateOwnership(t *testing.T) {
	ctx := context.Background()
	c, _ := newCollections(t)

	_, err := c.Replace(ctx, scope(http.MethodPut, bob, "books", []string{"b1"}, map[string]any{"title": "Mine"}, ""))
	wantStatus(t, err, http.StatusForbidden)

	got, err := c.Replace(ctx, scope(http.MethodPut, alice, "books", []string{"b1"}, map[string]any{"title": "Still IT"}, ""))
	if err != nil {
		t.Fatalf("Replace by owner: %v", err)
	}
	rec := got.(models.Record)
	if rec["title"] != "Still IT" || rec["price"] != nil || rec.OwnerID() != "alice" {
		t.Errorf("replace result = %v", rec)
	}

	got, err = c.Merge(ctx, scope(http.MethodPatch, bob, "books", []string{"b2"}, map[string]any{"price": 5.0}, ""))
	if err != nil {
		t.Fatalf("Merge by owner: %v", err)
	}
	if rec := got.(models.Record); rec["title"] != "Carrie" || rec["price"] != 5.0 {
		t.Errorf("merge result = %v", rec)
	}

	_, err = c.Merge(ctx, scope(http.MethodPatch, bob, "books", nil, map[string]any{}, ""))
	wantStatus(t, err, http.StatusBadRequest)
	_, err = c.Merge(ctx, scope(http.MethodPatch, bob, "books", []string{"zzz"}, map[string]any{}, ""))
	wantStatus(t, err, http.StatusNotFound)

	admin := scope(http.MethodPut, bob, "books", []string{"b1"}, map[string]any{"title": "Admin"}, "")
	admin.Admin = true
	if _, err := c.Replace(ctx, admin); err != nil {
		t.Errorf("admin override should bypass the owner rule: %v", err)
	}
}

func TestCollections_Delete(t *testing.T) {
	ctx := context.Background()
	c, store := newCollections(t)

	_, err := c.Delete(ctx, scope(http.MethodDelete, alice, "books", []string{"b2"}, nil, ""))
	wantStatus(t, err, http.StatusForbidden)

	got, err := c.Delete(ctx, scope(http.MethodDelete, bob, "books", []string{"b2"}, nil, ""))
	if err != nil {
		t.Fatalf("Delete by owner: %v", err)
	}
	if _, ok := got.(models.Record)[models.FieldDeletedOn]; !ok {
		t.Errorf("delete result = %v; want _deletedOn marker", got)
	}
	if _, err := store.Get("books", "b2"); !storage.IsNotFound(err) {
		t.Errorf("record still stored: %v", err)
	}

	_, err = c.Delete(ctx, scope(http.MethodDelete, bob, "books", nil, nil, ""))
	wantStatus(t, err, http.StatusBadRequest)
}
