// Package storage implements the process-local, in-memory collection store.
//
// A Store owns its collections for the lifetime of the process. Every read
// hands out a deep copy and every write stores a deep copy, so callers can
// never alias the engine's internal state.
package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/atinyakov/practiceserver/internal/models"
	"github.com/google/uuid"
)

var (
	// ErrCollectionNotFound is returned when a collection does not exist.
	ErrCollectionNotFound = errors.New("collection does not exist")
	// ErrRecordNotFound is returned when an id does not exist in a collection.
	ErrRecordNotFound = errors.New("entry does not exist")
)

type collection struct {
	records map[string]models.Record
	// order keeps insertion order so listings are stable.
	order []string
}

func newCollection() *collection {
	return &collection{records: make(map[string]models.Record)}
}

func (c *collection) put(id string, rec models.Record) {
	if _, ok := c.records[id]; !ok {
		c.order = append(c.order, id)
	}
	c.records[id] = rec
}

func (c *collection) remove(id string) {
	delete(c.records, id)
	for i, v := range c.order {
		if v == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// Store is a thread-safe keyed collection store.
type Store struct {
	mu          sync.RWMutex
	collections map[string]*collection
	names       []string
	now         func() time.Time
	newID       func() string
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the time source used for system timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator replaces the record id generator.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) { s.newID = fn }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		collections: make(map[string]*collection),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed loads predefined records, creating collections as needed. Seed
// records keep their ids; a leading _id inside the data is ignored.
func (s *Store) Seed(ds models.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cs := range ds.Collections {
		col := s.collectionLocked(cs.Name, true)
		for _, rec := range cs.Records {
			col.put(rec.ID, rec.Data.Without(models.FieldID))
		}
	}
}

// collectionLocked must be called with s.mu held.
func (s *Store) collectionLocked(name string, create bool) *collection {
	col, ok := s.collections[name]
	if !ok && create {
		col = newCollection()
		s.collections[name] = col
		s.names = append(s.names, name)
	}
	return col
}

func (s *Store) lookupLocked(name, id string) (*collection, models.Record, error) {
	col := s.collectionLocked(name, false)
	if col == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	rec, ok := col.records[id]
	if !ok {
		return col, nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}
	return col, rec, nil
}

// stamp returns the current time in milliseconds, strictly after every
// previous stamp passed in.
func (s *Store) stamp(previous ...any) int64 {
	ts := s.now().UnixMilli()
	for _, p := range previous {
		if n, ok := models.ToNumber(p); ok && p != nil && float64(ts) <= n {
			ts = int64(n) + 1
		}
	}
	return ts
}

func withID(rec models.Record, id string) models.Record {
	out := rec.Clone()
	out[models.FieldID] = id
	return out
}

// Collections returns the names of all known collections in creation order.
func (s *Store) Collections() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// List returns every record of a collection, each augmented with its _id.
func (s *Store) List(name string) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collectionLocked(name, false)
	if col == nil {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	out := make([]models.Record, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, withID(col.records[id], id))
	}
	return out, nil
}

// Get returns a single record.
func (s *Store) Get(name, id string) (models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, rec, err := s.lookupLocked(name, id)
	if err != nil {
		return nil, err
	}
	return withID(rec, id), nil
}

// Add stores data under a freshly generated id. Client supplied system
// fields are dropped except _ownerId, which the caller is expected to set.
func (s *Store) Add(name string, data models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col := s.collectionLocked(name, true)
	rec := data.Without(models.FieldID, models.FieldCreatedOn, models.FieldUpdatedOn)
	if owner, ok := rec[models.FieldOwnerID]; ok && owner == nil {
		delete(rec, models.FieldOwnerID)
	}

	id := s.newID()
	for {
		if _, taken := col.records[id]; !taken {
			break
		}
		id = s.newID()
	}

	rec[models.FieldCreatedOn] = s.stamp()
	col.put(id, rec)
	return withID(rec, id), nil
}

// Set replaces a record. System fields are carried over from the existing
// record whatever data contains.
func (s *Store) Set(name, id string, data models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, existing, err := s.lookupLocked(name, id)
	if err != nil {
		return nil, err
	}

	rec := data.Without(models.SystemFields...)
	for _, f := range models.SystemFields {
		if f == models.FieldID {
			continue
		}
		if v, ok := existing[f]; ok {
			rec[f] = models.DeepCopy(v)
		}
	}
	rec[models.FieldUpdatedOn] = s.stamp(existing[models.FieldCreatedOn], existing[models.FieldUpdatedOn])
	col.put(id, rec)
	return withID(rec, id), nil
}

// Merge shallow-merges data into an existing record. System fields in data
// are ignored.
func (s *Store) Merge(name, id string, data models.Record) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, existing, err := s.lookupLocked(name, id)
	if err != nil {
		return nil, err
	}

	rec := existing.Clone()
	for k, v := range data {
		if models.IsSystemField(k) {
			continue
		}
		rec[k] = models.DeepCopy(v)
	}
	rec[models.FieldUpdatedOn] = s.stamp(existing[models.FieldCreatedOn], existing[models.FieldUpdatedOn])
	col.put(id, rec)
	return withID(rec, id), nil
}

// Delete removes a record and returns the deletion marker.
func (s *Store) Delete(name, id string) (models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	col, _, err := s.lookupLocked(name, id)
	if err != nil {
		return nil, err
	}
	col.remove(id)
	return models.Record{models.FieldDeletedOn: s.stamp()}, nil
}

// Query returns the records whose fields equal every entry of predicate.
// Strings compare case-insensitively. A missing collection yields no records.
func (s *Store) Query(name string, predicate models.Record) ([]models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collectionLocked(name, false)
	if col == nil {
		return []models.Record{}, nil
	}

	out := []models.Record{}
	for _, id := range col.order {
		rec := col.records[id]
		if matches(rec, predicate) {
			out = append(out, withID(rec, id))
		}
	}
	return out, nil
}

func matches(rec, predicate models.Record) bool {
	for field, want := range predicate {
		got, ok := rec[field]
		if !ok {
			return false
		}
		ws, wok := want.(string)
		gs, gok := got.(string)
		if wok && gok {
			if !strings.EqualFold(ws, gs) {
				return false
			}
			continue
		}
		if !models.LooseEqual(got, want) {
			return false
		}
	}
	return true
}

// IsNotFound reports whether err is a missing collection or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCollectionNotFound) || errors.Is(err, ErrRecordNotFound)
}
