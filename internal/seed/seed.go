// Package seed loads the initial content of the stores: the embedded
// defaults, seed records kept in Postgres and JSON seed files.
package seed

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/multierr"

	"github.com/atinyakov/practiceserver/internal/models"
)

//go:embed defaults/*.json
var defaults embed.FS

// Defaults returns the built-in public and protected datasets.
func Defaults() (public, protected models.Dataset) {
	public = mustEmbedded("defaults/public.json")
	protected = mustEmbedded("defaults/protected.json")
	return public, protected
}

func mustEmbedded(name string) models.Dataset {
	data, err := defaults.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("seed: %s: %v", name, err))
	}
	ds, err := Parse(bytes.NewReader(data))
	if err != nil {
		panic(fmt.Sprintf("seed: %s: %v", name, err))
	}
	return ds
}

// Parse reads a seed document of the form {collection: {id: record}}. The
// order of collections and records in the document is kept.
func Parse(r io.Reader) (models.Dataset, error) {
	dec := json.NewDecoder(r)
	var ds models.Dataset

	if err := expectDelim(dec, '{'); err != nil {
		return ds, err
	}
	for dec.More() {
		name, err := stringToken(dec)
		if err != nil {
			return ds, err
		}
		cs := models.CollectionSeed{Name: name}
		if err := expectDelim(dec, '{'); err != nil {
			return ds, fmt.Errorf("collection %s: %w", name, err)
		}
		for dec.More() {
			id, err := stringToken(dec)
			if err != nil {
				return ds, fmt.Errorf("collection %s: %w", name, err)
			}
			var rec models.Record
			if err := dec.Decode(&rec); err != nil {
				return ds, fmt.Errorf("collection %s, record %s: %w", name, id, err)
			}
			if rec == nil {
				rec = models.Record{}
			}
			cs.Records = append(cs.Records, models.SeedRecord{ID: id, Data: rec})
		}
		if err := expectDelim(dec, '}'); err != nil {
			return ds, fmt.Errorf("collection %s: %w", name, err)
		}
		ds.Collections = append(ds.Collections, cs)
	}
	return ds, expectDelim(dec, '}')
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

func stringToken(dec *json.Decoder) (string, error) {
	tok, err := dec.Token()
	if err != nil {
		return "", err
	}
	s, ok := tok.(string)
	if !ok {
		return "", fmt.Errorf("expected a key, got %v", tok)
	}
	return s, nil
}

// LoadFile parses a seed file.
func LoadFile(path string) (models.Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.Dataset{}, err
	}
	defer f.Close()

	ds, err := Parse(f)
	if err != nil {
		return models.Dataset{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return ds, nil
}

// Repository reads seed records from a database.
type Repository interface {
	LoadSeed(ctx context.Context, collections []string) (public, protected models.Dataset, err error)
}

// Sources lists where seed data comes from. They are merged in the order
// embedded defaults, repository, files.
type Sources struct {
	Embedded       bool
	Repository     Repository
	Collections    []string
	PublicFiles    []string
	ProtectedFiles []string
}

// Load merges all sources. Every failing file is reported.
func Load(ctx context.Context, src Sources) (public, protected models.Dataset, err error) {
	if src.Embedded {
		public, protected = Defaults()
	}
	if src.Repository != nil {
		p, pr, err := src.Repository.LoadSeed(ctx, src.Collections)
		if err != nil {
			return models.Dataset{}, models.Dataset{}, fmt.Errorf("load seed from database: %w", err)
		}
		public.Merge(p)
		protected.Merge(pr)
	}

	var errs error
	for _, path := range src.PublicFiles {
		ds, err := LoadFile(path)
		errs = multierr.Append(errs, err)
		public.Merge(ds)
	}
	for _, path := range src.ProtectedFiles {
		ds, err := LoadFile(path)
		errs = multierr.Append(errs, err)
		protected.Merge(ds)
	}
	if errs != nil {
		return models.Dataset{}, models.Dataset{}, errs
	}
	return public, protected, nil
}

// LoadDocuments reads every *.json file of dir into a document tree keyed
// by file name without extension. A missing dir yields an empty tree.
func LoadDocuments(dir string) (map[string]any, error) {
	tree := map[string]any{}
	if dir == "" {
		return tree, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return tree, nil
	}
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var errs error
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("parse %s: %w", name, err))
			continue
		}
		tree[strings.TrimSuffix(name, ".json")] = v
	}
	return tree, errs
}
