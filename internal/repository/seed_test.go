package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/atinyakov/practiceserver/internal/models"
)

func setupSeedMock(t *testing.T) (*PostgresSeedRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open sqlmock database: %v", err)
	}
	repo := NewPostgresSeedRepository(db)
	cleanup := func() { db.Close() }
	return repo, mock, cleanup
}

var selectSeed = regexp.QuoteMeta(`SELECT collection, record_id, protected, data FROM seed_records`)

func TestLoadSeed_Success(t *testing.T) {
	repo, mock, cleanup := setupSeedMock(t)
	defer cleanup()

	rows := sqlmock.NewRows([]string{"collection", "record_id", "protected", "data"}).
		AddRow("books", "b1", false, []byte(`{"title":"One"}`)).
		AddRow("users", "u1", true, []byte(`{"email":"a@b.c"}`)).
		AddRow("teams", "t1", false, []byte(`null`)).
		AddRow("books", "b2", false, []byte(`{"title":"Two"}`))
	mock.ExpectQuery(selectSeed).
		WithArgs(pq.Array([]string(nil))).
		WillReturnRows(rows)

	public, protected, err := repo.LoadSeed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(public.Collections) != 2 || public.Collections[0].Name != "books" || public.Collections[1].Name != "teams" {
		t.Fatalf("unexpected public collections: %+v", public.Collections)
	}
	books := public.Collections[0].Records
	if len(books) != 2 || books[0].ID != "b1" || books[1].Data["title"] != "Two" {
		t.Errorf("unexpected books: %+v", books)
	}
	if public.Collections[1].Records[0].Data == nil {
		t.Errorf("expected empty record for null data")
	}
	if protected.Len() != 1 || protected.Collections[0].Records[0].Data["email"] != "a@b.c" {
		t.Errorf("unexpected protected dataset: %+v", protected)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLoadSeed_Filter(t *testing.T) {
	repo, mock, cleanup := setupSeedMock(t)
	defer cleanup()

	mock.ExpectQuery(selectSeed).
		WithArgs(pq.Array([]string{"books"})).
		WillReturnRows(sqlmock.NewRows([]string{"collection", "record_id", "protected", "data"}))

	public, protected, err := repo.LoadSeed(context.Background(), []string{"books"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if public.Len() != 0 || protected.Len() != 0 {
		t.Errorf("expected empty datasets")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestLoadSeed_Errors(t *testing.T) {
	tests := []struct {
		name   string
		expect func(mock sqlmock.Sqlmock)
		want   string
	}{
		{
			name: "query",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(selectSeed).WillReturnError(errors.New("query fail"))
			},
			want: "LoadSeed",
		},
		{
			name: "decode",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(selectSeed).WillReturnRows(
					sqlmock.NewRows([]string{"collection", "record_id", "protected", "data"}).
						AddRow("books", "b1", false, []byte(`{`)))
			},
			want: "decode books/b1",
		},
		{
			name: "rows",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(selectSeed).WillReturnRows(
					sqlmock.NewRows([]string{"collection", "record_id", "protected", "data"}).
						AddRow("books", "b1", false, []byte(`{}`)).
						RowError(0, errors.New("broken row")))
			},
			want: "rows",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupSeedMock(t)
			defer cleanup()

			tt.expect(mock)
			_, _, err := repo.LoadSeed(context.Background(), nil)
			if err == nil || !regexp.MustCompile(tt.want).MatchString(err.Error()) {
				t.Errorf("expected %q error, got %v", tt.want, err)
			}
		})
	}
}

func TestSaveSeed_Success(t *testing.T) {
	repo, mock, cleanup := setupSeedMock(t)
	defer cleanup()

	public := models.Dataset{Collections: []models.CollectionSeed{{
		Name:    "books",
		Records: []models.SeedRecord{{ID: "b1", Data: models.Record{"title": "One"}}},
	}}}
	protected := models.Dataset{Collections: []models.CollectionSeed{{
		Name:    "users",
		Records: []models.SeedRecord{{ID: "u1", Data: models.Record{"email": "a@b.c"}}},
	}}}

	insert := regexp.QuoteMeta(`INSERT INTO seed_records (collection, record_id, protected, data)`)
	mock.ExpectBegin()
	mock.ExpectExec(insert).
		WithArgs("books", "b1", false, []byte(`{"title":"One"}`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(insert).
		WithArgs("users", "u1", true, []byte(`{"email":"a@b.c"}`)).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	if err := repo.SaveSeed(context.Background(), public, protected); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveSeed_RollsBackOnError(t *testing.T) {
	repo, mock, cleanup := setupSeedMock(t)
	defer cleanup()

	public := models.Dataset{Collections: []models.CollectionSeed{{
		Name:    "books",
		Records: []models.SeedRecord{{ID: "b1", Data: models.Record{}}},
	}}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO seed_records`)).
		WillReturnError(errors.New("exec fail"))
	mock.ExpectRollback()

	err := repo.SaveSeed(context.Background(), public, models.Dataset{})
	if err == nil || !regexp.MustCompile(`upsert`).MatchString(err.Error()) {
		t.Errorf("expected upsert error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestSaveSeed_BeginError(t *testing.T) {
	repo, mock, cleanup := setupSeedMock(t)
	defer cleanup()

	mock.ExpectBegin().WillReturnError(errors.New("no tx"))
	err := repo.SaveSeed(context.Background(), models.Dataset{}, models.Dataset{})
	if err == nil || !regexp.MustCompile(`begin tx`).MatchString(err.Error()) {
		t.Errorf("expected begin tx error, got %v", err)
	}
}
