// Package repository provides the PostgreSQL persistence of seed records.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"

	"github.com/atinyakov/practiceserver/internal/models"
)

// PostgresSeedRepository reads and writes seed records in the seed_records table.
type PostgresSeedRepository struct {
	// DB is the database handle for executing queries and transactions.
	DB *sql.DB
}

// NewPostgresSeedRepository creates a repository on top of db.
func NewPostgresSeedRepository(db *sql.DB) *PostgresSeedRepository {
	return &PostgresSeedRepository{DB: db}
}

const loadQuery = `
		SELECT collection, record_id, protected, data FROM seed_records
		WHERE $1::text[] IS NULL OR collection = ANY($1)
		ORDER BY position
	`

// LoadSeed returns the stored records split into public and protected
// datasets, in insertion order. An empty collections list loads everything.
func (r *PostgresSeedRepository) LoadSeed(ctx context.Context, collections []string) (public, protected models.Dataset, err error) {
	rows, err := r.DB.QueryContext(ctx, loadQuery, pq.Array(nilIfEmpty(collections)))
	if err != nil {
		return public, protected, fmt.Errorf("LoadSeed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			collection, id string
			isProtected    bool
			raw            []byte
		)
		if err := rows.Scan(&collection, &id, &isProtected, &raw); err != nil {
			return public, protected, fmt.Errorf("scan: %w", err)
		}
		var data models.Record
		if err := json.Unmarshal(raw, &data); err != nil {
			return public, protected, fmt.Errorf("decode %s/%s: %w", collection, id, err)
		}
		if data == nil {
			data = models.Record{}
		}
		target := &public
		if isProtected {
			target = &protected
		}
		appendRecord(target, collection, models.SeedRecord{ID: id, Data: data})
	}
	if err := rows.Err(); err != nil {
		return public, protected, fmt.Errorf("rows: %w", err)
	}
	return public, protected, nil
}

// SaveSeed upserts both datasets in a single transaction.
func (r *PostgresSeedRepository) SaveSeed(ctx context.Context, public, protected models.Dataset) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, set := range []struct {
		ds          models.Dataset
		isProtected bool
	}{{public, false}, {protected, true}} {
		for _, col := range set.ds.Collections {
			for _, rec := range col.Records {
				raw, err := json.Marshal(rec.Data)
				if err != nil {
					return fmt.Errorf("encode %s/%s: %w", col.Name, rec.ID, err)
				}
				_, err = tx.ExecContext(ctx, `
			INSERT INTO seed_records (collection, record_id, protected, data)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (collection, record_id, protected) DO UPDATE SET
				data = EXCLUDED.data
		`, col.Name, rec.ID, set.isProtected, raw)
				if err != nil {
					return fmt.Errorf("upsert: %w", err)
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}

func appendRecord(ds *models.Dataset, collection string, rec models.SeedRecord) {
	for i := range ds.Collections {
		if ds.Collections[i].Name == collection {
			ds.Collections[i].Records = append(ds.Collections[i].Records, rec)
			return
		}
	}
	ds.Collections = append(ds.Collections, models.CollectionSeed{
		Name:    collection,
		Records: []models.SeedRecord{rec},
	})
}
