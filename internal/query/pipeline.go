package query

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/atinyakov/practiceserver/internal/models"
)

// Getter fetches a single record, as storage.Store does.
type Getter interface {
	Get(collection, id string) (models.Record, error)
}

// Sources resolves load targets. The users collection is read from the
// protected store.
type Sources struct {
	Public    Getter
	Protected Getter
}

func (s Sources) forCollection(name string) Getter {
	if name == models.UsersCollection && s.Protected != nil {
		return s.Protected
	}
	return s.Public
}

// ApplyList runs the pipeline over a list: where, sortBy, offset, pageSize,
// distinct, count, select, load. The result is either []models.Record or,
// when count is requested, an int.
func (o Options) ApplyList(records []models.Record, src Sources) (any, error) {
	out := records
	if o.Where != nil {
		filtered := make([]models.Record, 0, len(out))
		for _, r := range out {
			if o.Where(r) {
				filtered = append(filtered, r)
			}
		}
		out = filtered
	}

	if len(o.SortBy) > 0 {
		Sort(out, o.SortBy)
	}

	if o.Offset > 0 {
		if o.Offset >= len(out) {
			out = out[:0]
		} else {
			out = out[o.Offset:]
		}
	}
	if o.HasPageSize && o.PageSize < len(out) {
		out = out[:o.PageSize]
	}

	if len(o.Distinct) > 0 {
		out = distinct(out, o.Distinct)
	}

	if o.Count {
		return len(out), nil
	}

	if len(o.Select) > 0 {
		for i, r := range out {
			out[i] = project(r, o.Select)
		}
	}

	for _, rel := range o.Load {
		for _, r := range out {
			if err := load(r, rel, src); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// ApplyRecord runs the parts of the pipeline that apply to a single record:
// select and load.
func (o Options) ApplyRecord(rec models.Record, src Sources) (models.Record, error) {
	if len(o.Select) > 0 {
		rec = project(rec, o.Select)
	}
	for _, rel := range o.Load {
		if err := load(rec, rel, src); err != nil {
			return nil, err
		}
	}
	return rec, nil
}

// Sort orders records in place. Keys are applied last to first with a stable
// sort, so the first key has the highest priority. Records missing a field
// sort after those that have it.
func Sort(records []models.Record, keys []SortKey) {
	col := collate.New(language.Und)
	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		sort.SliceStable(records, func(a, b int) bool {
			va, oka := records[a][key.Field]
			vb, okb := records[b][key.Field]
			if !oka || va == nil || !okb || vb == nil {
				return (oka && va != nil) && !(okb && vb != nil)
			}
			c := compareValues(col, va, vb)
			if key.Desc {
				return c > 0
			}
			return c < 0
		})
	}
}

func compareValues(col *collate.Collator, a, b any) int {
	as, aStr := a.(string)
	bs, bStr := b.(string)
	if !aStr && !bStr {
		if c, ok := models.Compare(a, b); ok {
			return c
		}
	}
	if !aStr {
		as = fmt.Sprint(a)
	}
	if !bStr {
		bs = fmt.Sprint(b)
	}
	return col.CompareString(as, bs)
}

func distinct(records []models.Record, fields []string) []models.Record {
	seen := make(map[string]bool, len(records))
	out := make([]models.Record, 0, len(records))
	for _, r := range records {
		parts := make([]string, len(fields))
		for i, f := range fields {
			if v, ok := r[f]; ok && v != nil {
				parts[i] = fmt.Sprint(v)
			}
		}
		key := strings.Join(parts, "::")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func project(r models.Record, fields []string) models.Record {
	out := make(models.Record, len(fields))
	for _, f := range fields {
		if v, ok := r[f]; ok {
			out[f] = v
		}
	}
	return out
}

func load(r models.Record, rel Relation, src Sources) error {
	getter := src.forCollection(rel.Collection)
	if getter == nil {
		return fmt.Errorf("load %s: no source for %q", rel.Property, rel.Collection)
	}
	id, _ := r[rel.IDField].(string)
	related, err := getter.Get(rel.Collection, id)
	if err != nil {
		return fmt.Errorf("load %s: %w", rel.Property, err)
	}
	r[rel.Property] = related.Without(models.FieldHashedPassword)
	return nil
}
