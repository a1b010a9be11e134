package storage

import (
	"sync"

	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/google/uuid"
)

// Document is a schemaless nested JSON tree addressed by path tokens. It
// backs the /jsonstore service and has no notion of owners or rules.
type Document struct {
	mu    sync.Mutex
	root  map[string]any
	newID func() string
}

// NewDocument creates a tree from initial top-level entries.
func NewDocument(initial map[string]any) *Document {
	root := make(map[string]any, len(initial))
	for k, v := range initial {
		root[k] = models.DeepCopy(v)
	}
	return &Document{root: root, newID: uuid.NewString}
}

func walk(node any, tokens []string) (any, bool) {
	for _, token := range tokens {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = m[token]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// Get returns a copy of the value at path.
func (d *Document) Get(path []string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	v, ok := walk(d.root, path)
	if !ok {
		return nil, false
	}
	return models.DeepCopy(v), true
}

// Post stores value under a new id below path, creating intermediate nodes.
func (d *Document) Post(path []string, value map[string]any) (map[string]any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node := d.root
	for _, token := range path {
		next, ok := node[token]
		if !ok {
			next = map[string]any{}
			node[token] = next
		}
		m, ok := next.(map[string]any)
		if !ok {
			return nil, false
		}
		node = m
	}

	id := d.newID()
	entry := make(map[string]any, len(value)+1)
	for k, v := range value {
		entry[k] = models.DeepCopy(v)
	}
	entry[models.FieldID] = id
	node[id] = entry
	return models.DeepCopy(entry).(map[string]any), true
}

// Put replaces the existing value at path.
func (d *Document) Put(path []string, value any) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(path) == 0 {
		return nil, false
	}
	parent, ok := walk(d.root, path[:len(path)-1])
	if !ok {
		return nil, false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return nil, false
	}
	last := path[len(path)-1]
	if _, exists := m[last]; !exists {
		return nil, false
	}
	m[last] = models.DeepCopy(value)
	return models.DeepCopy(m[last]), true
}

// Patch shallow-merges value into the object at path.
func (d *Document) Patch(path []string, value map[string]any) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	node, ok := walk(d.root, path)
	if !ok {
		return nil, false
	}
	m, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	for k, v := range value {
		m[k] = models.DeepCopy(v)
	}
	return models.DeepCopy(m), true
}

// Delete removes the value at path and returns it.
func (d *Document) Delete(path []string) (any, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(path) == 0 {
		return nil, false
	}
	parent, ok := walk(d.root, path[:len(path)-1])
	if !ok {
		return nil, false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return nil, false
	}
	last := path[len(path)-1]
	v, exists := m[last]
	if !exists {
		return nil, false
	}
	delete(m, last)
	return v, true
}
