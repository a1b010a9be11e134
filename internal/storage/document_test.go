package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_Lifecycle(t *testing.T) {
	d := NewDocument(map[string]any{
		"settings": map[string]any{"theme": "dark"},
	})
	d.newID = func() string { return "id-1" }

	v, ok := d.Get([]string{"settings", "theme"})
	require.True(t, ok)
	assert.Equal(t, "dark", v)

	created, ok := d.Post([]string{"notes", "2024"}, map[string]any{"text": "hello"})
	require.True(t, ok)
	assert.Equal(t, "id-1", created["_id"])

	v, ok = d.Get([]string{"notes", "2024", "id-1", "text"})
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	_, ok = d.Put([]string{"notes", "2024", "id-1"}, map[string]any{"text": "replaced"})
	require.True(t, ok)

	patched, ok := d.Patch([]string{"notes", "2024", "id-1"}, map[string]any{"pinned": true})
	require.True(t, ok)
	assert.Equal(t, map[string]any{"text": "replaced", "pinned": true}, patched)

	removed, ok := d.Delete([]string{"notes", "2024", "id-1"})
	require.True(t, ok)
	assert.NotNil(t, removed)

	_, ok = d.Get([]string{"notes", "2024", "id-1"})
	assert.False(t, ok)
}

func TestDocument_MissingPaths(t *testing.T) {
	d := NewDocument(nil)

	_, ok := d.Get([]string{"nothing"})
	assert.False(t, ok)
	_, ok = d.Put([]string{"nothing"}, "x")
	assert.False(t, ok)
	_, ok = d.Patch([]string{"nothing"}, map[string]any{})
	assert.False(t, ok)
	_, ok = d.Delete([]string{"nothing"})
	assert.False(t, ok)
	_, ok = d.Delete(nil)
	assert.False(t, ok)
}
