// Package query implements the read pipeline of the data service: where
// filtering, sorting, paging, distinct, count, projection and load joins.
package query

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// DefaultPageSize is used when pageSize is present but not a positive number.
const DefaultPageSize = 10

// SortKey is one field of a sortBy list.
type SortKey struct {
	Field string
	Desc  bool
}

// Relation is one entry of a load list: prop=idField:collection.
type Relation struct {
	Property   string
	IDField    string
	Collection string
}

// Options holds the parsed query-string operators.
type Options struct {
	Where       Predicate
	SortBy      []SortKey
	Offset      int
	PageSize    int
	HasPageSize bool
	Distinct    []string
	Count       bool
	Select      []string
	Load        []Relation
}

// ParseOptions reads the recognised operators from a query string. Parse
// failures are returned as *ClauseError.
func ParseOptions(values url.Values) (Options, error) {
	var opts Options

	if where := values.Get("where"); where != "" {
		p, err := ParseWhere(where)
		if err != nil {
			return Options{}, err
		}
		opts.Where = p
	}

	if sortBy := values.Get("sortBy"); sortBy != "" {
		for _, part := range splitList(sortBy) {
			fields := strings.Fields(part)
			if len(fields) == 0 {
				continue
			}
			key := SortKey{Field: fields[0]}
			if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
				key.Desc = true
			}
			opts.SortBy = append(opts.SortBy, key)
		}
	}

	if offset := values.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(offset)); err == nil && n > 0 {
			opts.Offset = n
		}
	}

	if pageSize := values.Get("pageSize"); pageSize != "" {
		opts.HasPageSize = true
		opts.PageSize = DefaultPageSize
		if n, err := strconv.Atoi(strings.TrimSpace(pageSize)); err == nil && n > 0 {
			opts.PageSize = n
		}
	}

	opts.Distinct = splitList(values.Get("distinct"))
	opts.Count = values.Get("count") != ""
	opts.Select = splitList(values.Get("select"))

	for _, part := range splitList(values.Get("load")) {
		rel, err := parseRelation(part)
		if err != nil {
			return Options{}, &ClauseError{Param: "load", Clause: part, Err: err}
		}
		opts.Load = append(opts.Load, rel)
	}

	return opts, nil
}

func parseRelation(part string) (Relation, error) {
	prop, target, ok := strings.Cut(part, "=")
	if !ok || prop == "" {
		return Relation{}, errors.New("expected prop=idField:collection")
	}
	idField, collection, ok := strings.Cut(target, ":")
	if !ok || idField == "" || collection == "" {
		return Relation{}, errors.New("expected prop=idField:collection")
	}
	return Relation{Property: prop, IDField: idField, Collection: collection}, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
