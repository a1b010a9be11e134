package seed

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atinyakov/practiceserver/internal/models"
)

func TestDefaults(t *testing.T) {
	public, protected := Defaults()

	require.Len(t, public.Collections, 1)
	books := public.Collections[0]
	assert.Equal(t, "books", books.Name)
	require.Len(t, books.Records, 6)
	assert.Equal(t, "The Shining", books.Records[0].Data["title"])
	assert.Equal(t, "The Stand", books.Records[5].Data["title"])

	require.Len(t, protected.Collections, 2)
	users := protected.Collections[0]
	require.Len(t, users.Records, 3)
	assert.Equal(t, "35c62d76-8152-4626-8712-eeb96381bea8", users.Records[0].ID)
	assert.Equal(t, "admin@abv.bg", users.Records[2].Data["email"])
	assert.Equal(t, "sessions", protected.Collections[1].Name)
	assert.Empty(t, protected.Collections[1].Records)
}

func TestParse_KeepsOrder(t *testing.T) {
	ds, err := Parse(strings.NewReader(`{"z": {"3": {"n": 1}, "1": {"n": 2}}, "a": {"2": {}}}`))
	require.NoError(t, err)

	require.Len(t, ds.Collections, 2)
	assert.Equal(t, "z", ds.Collections[0].Name)
	assert.Equal(t, "3", ds.Collections[0].Records[0].ID)
	assert.Equal(t, "1", ds.Collections[0].Records[1].ID)
	assert.Equal(t, "a", ds.Collections[1].Name)
	assert.Equal(t, models.Record{}, ds.Collections[1].Records[0].Data)
}

func TestParse_Errors(t *testing.T) {
	for _, doc := range []string{``, `[]`, `{"a": []}`, `{"a": {"1": }}`, `{"a": {}`} {
		_, err := Parse(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}

type fakeRepo struct {
	public, protected models.Dataset
	err               error
	asked             []string
}

func (f *fakeRepo) LoadSeed(_ context.Context, collections []string) (models.Dataset, models.Dataset, error) {
	f.asked = collections
	return f.public, f.protected, f.err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_MergeOrder(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "extra.json", `{"books": {"file-book": {"title": "From file"}}, "teams": {"t1": {}}}`)
	repo := &fakeRepo{
		public: models.Dataset{Collections: []models.CollectionSeed{{
			Name:    "books",
			Records: []models.SeedRecord{{ID: "db-book", Data: models.Record{"title": "From db"}}},
		}}},
	}

	public, protected, err := Load(context.Background(), Sources{
		Embedded:    true,
		Repository:  repo,
		Collections: []string{"books"},
		PublicFiles: []string{file},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"books"}, repo.asked)

	books := public.Collections[0].Records
	require.Len(t, books, 8)
	assert.Equal(t, "db-book", books[6].ID)
	assert.Equal(t, "file-book", books[7].ID)
	assert.Equal(t, "teams", public.Collections[1].Name)
	assert.Equal(t, 3, protected.Len())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{"books": [`)

	_, _, err := Load(context.Background(), Sources{
		PublicFiles:    []string{bad},
		ProtectedFiles: []string{filepath.Join(dir, "missing.json")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
	assert.Contains(t, err.Error(), "missing.json")

	_, _, err = Load(context.Background(), Sources{Repository: &fakeRepo{err: errors.New("down")}})
	assert.ErrorContains(t, err, "down")
}

func TestLoadDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "settings.json", `{"theme": "dark"}`)
	writeFile(t, dir, "notes.txt", `ignored`)

	tree, err := LoadDocuments(dir)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"settings": map[string]any{"theme": "dark"}}, tree)

	writeFile(t, dir, "broken.json", `{`)
	tree, err = LoadDocuments(dir)
	assert.Error(t, err)
	assert.Contains(t, tree, "settings")

	tree, err = LoadDocuments(filepath.Join(dir, "nope"))
	require.NoError(t, err)
	assert.Empty(t, tree)
}
