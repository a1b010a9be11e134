// Package models defines the record shape shared by the storage, query,
// rules and service layers, together with the value semantics used when
// records are compared.
package models

// Record is a single stored entity: a JSON object decoded into a map.
type Record map[string]any

// System properties maintained by the storage layer.
const (
	// FieldID is the record identifier, unique within a collection.
	FieldID = "_id"
	// FieldOwnerID is the identifier of the user who created the record.
	FieldOwnerID = "_ownerId"
	// FieldCreatedOn is the creation time in Unix milliseconds.
	FieldCreatedOn = "_createdOn"
	// FieldUpdatedOn is the last replace/merge time in Unix milliseconds.
	FieldUpdatedOn = "_updatedOn"
	// FieldDeletedOn is returned by delete operations.
	FieldDeletedOn = "_deletedOn"
)

// Well-known fields of the protected collections.
const (
	FieldHashedPassword = "hashedPassword"
	FieldPassword       = "password"
	FieldAccessToken    = "accessToken"
	FieldUserID         = "userId"
)

// Protected collection names.
const (
	UsersCollection    = "users"
	SessionsCollection = "sessions"
)

// SystemFields lists the properties clients can never set directly.
var SystemFields = []string{FieldID, FieldCreatedOn, FieldUpdatedOn, FieldOwnerID}

// IsSystemField reports whether name is one of SystemFields.
func IsSystemField(name string) bool {
	for _, f := range SystemFields {
		if f == name {
			return true
		}
	}
	return false
}

// ID returns the record's _id or an empty string.
func (r Record) ID() string {
	s, _ := r[FieldID].(string)
	return s
}

// OwnerID returns the record's _ownerId or an empty string.
func (r Record) OwnerID() string {
	s, _ := r[FieldOwnerID].(string)
	return s
}

// Clone returns a deep copy of r. A nil record clones to nil.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = DeepCopy(v)
	}
	return out
}

// Without returns a deep copy of r with the given fields removed. The
// result is never nil.
func (r Record) Without(fields ...string) Record {
	out := r.Clone()
	if out == nil {
		out = Record{}
	}
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// DeepCopy copies JSON-shaped values: nested maps and slices are duplicated,
// scalars are returned as is.
func DeepCopy(v any) any {
	switch val := v.(type) {
	case Record:
		return val.Clone()
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = DeepCopy(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = DeepCopy(item)
		}
		return out
	case []Record:
		out := make([]Record, len(val))
		for i, item := range val {
			out[i] = item.Clone()
		}
		return out
	default:
		return v
	}
}

// AsRecord converts a decoded JSON value into a Record when it is an object.
func AsRecord(v any) (Record, bool) {
	switch val := v.(type) {
	case Record:
		return val, true
	case map[string]any:
		return Record(val), true
	default:
		return nil, false
	}
}

// Dataset is an ordered set of collections used to seed a store.
type Dataset struct {
	Collections []CollectionSeed
}

// CollectionSeed holds the records of one collection in insertion order.
type CollectionSeed struct {
	Name    string
	Records []SeedRecord
}

// SeedRecord is a record with a predefined identifier.
type SeedRecord struct {
	ID   string
	Data Record
}

// Len returns the total number of records in the dataset.
func (d Dataset) Len() int {
	n := 0
	for _, c := range d.Collections {
		n += len(c.Records)
	}
	return n
}

// Merge appends other's collections to d. Records of a collection that
// already exists are appended to it.
func (d *Dataset) Merge(other Dataset) {
	for _, c := range other.Collections {
		merged := false
		for i := range d.Collections {
			if d.Collections[i].Name == c.Name {
				d.Collections[i].Records = append(d.Collections[i].Records, c.Records...)
				merged = true
				break
			}
		}
		if !merged {
			d.Collections = append(d.Collections, c)
		}
	}
}
