package rules

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/practiceserver/internal/apierror"
	"github.com/atinyakov/practiceserver/internal/models"
)

type lookupFunc func(collection, id string) (models.Record, error)

func (f lookupFunc) Get(collection, id string) (models.Record, error) { return f(collection, id) }

var errNotFound = errors.New("not found")

func teamsLookup() Lookup {
	return lookupFunc(func(collection, id string) (models.Record, error) {
		if collection == "teams" && id == "t1" {
			return models.Record{"_id": "t1", "_ownerId": "captain"}, nil
		}
		return nil, errNotFound
	})
}

func statusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return apierror.StatusOf(err)
}

var (
	owner    = models.Record{"_id": "owner"}
	stranger = models.Record{"_id": "stranger"}
	captain  = models.Record{"_id": "captain"}
)

func TestActionForMethod(t *testing.T) {
	tests := map[string]Action{
		http.MethodGet:    ActionRead,
		http.MethodPost:   ActionCreate,
		http.MethodPut:    ActionUpdate,
		http.MethodPatch:  ActionUpdate,
		http.MethodDelete: ActionDelete,
	}
	for method, want := range tests {
		got, ok := ActionForMethod(method)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}
	_, ok := ActionForMethod(http.MethodOptions)
	assert.False(t, ok)
}

func TestEvaluator_DefaultGates(t *testing.T) {
	ev := NewEvaluator(Defaults(), nil)
	book := models.Record{"_id": "b1", "_ownerId": "owner", "title": "IT"}

	tests := []struct {
		name    string
		p       Principal
		action  Action
		data    models.Record
		newData models.Record
		want    int
	}{
		{"anonymous read", Principal{}, ActionRead, book, nil, http.StatusOK},
		{"anonymous create", Principal{}, ActionCreate, nil, models.Record{"title": "x"}, http.StatusUnauthorized},
		{"user create", Principal{User: stranger}, ActionCreate, nil, models.Record{"title": "x"}, http.StatusOK},
		{"owner update", Principal{User: owner}, ActionUpdate, book, models.Record{}, http.StatusOK},
		{"stranger update", Principal{User: stranger}, ActionUpdate, book, models.Record{}, http.StatusForbidden},
		{"stranger delete", Principal{User: stranger}, ActionDelete, book, nil, http.StatusForbidden},
		{"anonymous delete", Principal{}, ActionDelete, book, nil, http.StatusUnauthorized},
		{"admin delete", Principal{User: stranger, Admin: true}, ActionDelete, book, nil, http.StatusOK},
		{"anonymous admin delete", Principal{Admin: true}, ActionDelete, book, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ev.Check(tt.p, tt.action, "books", tt.data.Clone(), tt.newData)
			assert.Equal(t, tt.want, statusOf(err))
		})
	}
}

func TestEvaluator_UsersCollection(t *testing.T) {
	ev := NewEvaluator(Defaults(), nil)
	profile := models.Record{"_id": "owner", "_ownerId": "owner"}

	assert.NoError(t, ev.Check(Principal{User: owner}, ActionRead, "users", profile.Clone(), nil))
	assert.Equal(t, http.StatusForbidden, statusOf(ev.Check(Principal{User: stranger}, ActionRead, "users", profile.Clone(), nil)))
	assert.Equal(t, http.StatusForbidden, statusOf(ev.Check(Principal{User: owner}, ActionUpdate, "users", profile.Clone(), models.Record{})))
	assert.NoError(t, ev.Check(Principal{User: owner, Admin: true}, ActionUpdate, "users", profile.Clone(), models.Record{}))
}

func TestEvaluator_MembersExpressions(t *testing.T) {
	ev := NewEvaluator(Defaults(), teamsLookup())
	member := models.Record{"_id": "m1", "_ownerId": "owner", "teamId": "t1", "status": "pending"}

	err := ev.Check(Principal{User: captain}, ActionUpdate, "members", member.Clone(), models.Record{"status": "member"})
	assert.NoError(t, err)
	err = ev.Check(Principal{User: owner}, ActionUpdate, "members", member.Clone(), models.Record{"status": "member"})
	assert.Equal(t, http.StatusForbidden, statusOf(err))

	assert.NoError(t, ev.Check(Principal{User: owner}, ActionDelete, "members", member.Clone(), nil))
	assert.NoError(t, ev.Check(Principal{User: captain}, ActionDelete, "members", member.Clone(), nil))
	assert.Equal(t, http.StatusForbidden, statusOf(ev.Check(Principal{User: stranger}, ActionDelete, "members", member.Clone(), nil)))
}

func TestEvaluator_PropertyRules(t *testing.T) {
	ev := NewEvaluator(Defaults(), teamsLookup())
	member := models.Record{"_id": "m1", "_ownerId": "owner", "teamId": "t1", "status": "pending"}

	moved := models.Record{"teamId": "t2", "status": "member"}
	require.NoError(t, ev.Check(Principal{User: captain}, ActionUpdate, "members", member.Clone(), moved))
	assert.NotContains(t, moved, "teamId")
	assert.Equal(t, "member", moved["status"])

	kept := models.Record{"teamId": "t1"}
	require.NoError(t, ev.Check(Principal{User: captain}, ActionUpdate, "members", member.Clone(), kept))
	assert.Equal(t, "t1", kept["teamId"])

	join := models.Record{"teamId": "t1", "status": "member"}
	require.NoError(t, ev.Check(Principal{User: stranger}, ActionCreate, "members", nil, join))
	assert.NotContains(t, join, "status")

	join = models.Record{"teamId": "t1", "status": "pending"}
	require.NoError(t, ev.Check(Principal{User: stranger}, ActionCreate, "members", nil, join))
	assert.Equal(t, "pending", join["status"])
}

func TestEvaluator_AdminStillRedacts(t *testing.T) {
	set, err := Parse([]byte(`
secrets:
  .read: false
  "*":
    pin:
      .read: false
`))
	require.NoError(t, err)
	ev := NewEvaluator(set, nil)

	rec := models.Record{"_id": "s1", "pin": "1234", "label": "bank"}
	assert.Equal(t, http.StatusForbidden, statusOf(ev.Check(Principal{User: owner}, ActionRead, "secrets", rec.Clone(), nil)))

	require.NoError(t, ev.Check(Principal{Admin: true}, ActionRead, "secrets", rec, nil))
	assert.NotContains(t, rec, "pin")
	assert.Equal(t, "bank", rec["label"])

	list := []models.Record{rec.Clone(), {"_id": "s2", "pin": "0000"}}
	require.NoError(t, ev.CheckList(Principal{Admin: true}, ActionRead, "secrets", list))
	for _, r := range list {
		assert.NotContains(t, r, "pin")
	}
}

func TestSet_RecordRulesOverride(t *testing.T) {
	set, err := Parse([]byte(`{
  "books": {
    ".read": ["User"],
    "*": {"price": {".read": false}},
    "b1": {
      ".read": [],
      ".update": ["User"],
      "title": {".read": false}
    },
    "b2": {".read": true}
  }
}`))
	require.NoError(t, err)
	full := Defaults()
	full.Merge(set)

	res := full.Resolve(ActionRead, "books", "b1")
	assert.Equal(t, Roles(RoleUser), res.Gate)
	require.Len(t, res.Properties, 1)
	assert.Equal(t, "title", res.Properties[0].Property)

	res = full.Resolve(ActionRead, "books", "b2")
	assert.Equal(t, Allow(true), res.Gate)
	require.Len(t, res.Properties, 1)
	assert.Equal(t, "price", res.Properties[0].Property)

	res = full.Resolve(ActionUpdate, "books", "b1")
	assert.Equal(t, Roles(RoleUser), res.Gate)

	res = full.Resolve(ActionDelete, "books", "b1")
	assert.Equal(t, Roles(RoleOwner), res.Gate)

	res = full.Resolve(ActionRead, "unknown", "")
	assert.Equal(t, Allow(true), res.Gate)
	assert.Empty(t, res.Properties)
}

func TestParse_ReportsAllErrors(t *testing.T) {
	_, err := Parse([]byte(`
books:
  .read: "process.exit()"
  .update: [Admin]
  "*":
    price:
      .read: 12
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "books.read")
	assert.Contains(t, msg, "unknown role")
	assert.Contains(t, msg, "price")
}

func TestParse_WildcardAcceptsOnlyActions(t *testing.T) {
	_, err := Parse([]byte(`
"*":
  .read: true
  "*":
    secret:
      .read: false
  rec-1:
    .delete: false
`))
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "*.* (line")
	assert.Contains(t, msg, "*.rec-1 (line")
	assert.Contains(t, msg, `only action rules are allowed under "*"`)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("\"*\":\n  \"*\":\n    title:\n      .read: false\n"), 0o600))
	_, err = LoadFile(path)
	assert.ErrorContains(t, err, "only action rules are allowed")
}

func TestLoadFile(t *testing.T) {
	set, err := LoadFile("")
	require.NoError(t, err)
	assert.Contains(t, set.Collections, "members")

	path := filepath.Join(t.TempDir(), "rules.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"*": {".create": ["Guest"]}, "members": {}}`), 0o600))

	set, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Roles(RoleGuest), set.Resolve(ActionCreate, "books", "").Gate)
	assert.Equal(t, Roles(RoleOwner), set.Resolve(ActionUpdate, "books", "").Gate)
	assert.Equal(t, Roles(RoleOwner), set.Resolve(ActionUpdate, "members", "").Gate)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
