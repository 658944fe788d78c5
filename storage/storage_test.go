package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/aluiziolira/bookshelf-etl/models"
	"github.com/google/go-cmp/cmp"
)

func sqliteStore(t *testing.T) config.StoreConfig {
	t.Helper()
	return config.StoreConfig{
		Driver:   config.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "books.db"),
		Table:    "amazon_books",
	}
}

func openRaw(t *testing.T, store config.StoreConfig) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", store.Database)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

type row struct {
	Title, Author, Price, Link sql.NullString
}

func readRows(t *testing.T, store config.StoreConfig) []row {
	t.Helper()
	db := openRaw(t, store)
	rows, err := db.Query(`SELECT title, author, price, link FROM amazon_books ORDER BY id`)
	if err != nil {
		t.Fatalf("query rows: %v", err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.Title, &r.Author, &r.Price, &r.Link); err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("rows: %v", err)
	}
	return out
}

func toRow(b models.Book) row {
	conv := func(s *string) sql.NullString {
		if s == nil {
			return sql.NullString{}
		}
		return sql.NullString{String: *s, Valid: true}
	}
	return row{Title: conv(b.Title), Author: conv(b.Author), Price: conv(b.Price), Link: conv(b.Link)}
}

func TestEnsureSchemaIdempotent(t *testing.T) {
	ctx := context.Background()
	store := sqliteStore(t)

	if err := EnsureSchema(ctx, store); err != nil {
		t.Fatalf("first ensure: %v", err)
	}

	db := openRaw(t, store)
	if _, err := db.Exec(`INSERT INTO amazon_books (title) VALUES ('kept')`); err != nil {
		t.Fatalf("seed row: %v", err)
	}

	if err := EnsureSchema(ctx, store); err != nil {
		t.Fatalf("second ensure: %v", err)
	}

	var tables int
	if err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'amazon_books'`).Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 1 {
		t.Fatalf("tables = %d, want 1", tables)
	}

	rows, err := db.Query(`SELECT name FROM pragma_table_info('amazon_books') ORDER BY cid`)
	if err != nil {
		t.Fatalf("table info: %v", err)
	}
	defer rows.Close()
	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan column: %v", err)
		}
		columns = append(columns, name)
	}
	if diff := cmp.Diff([]string{"id", "title", "author", "price", "link"}, columns); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM amazon_books`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 1 {
		t.Fatalf("rows = %d, want 1 after second ensure", count)
	}
}

func TestEnsureSchemaConnectionError(t *testing.T) {
	store := config.StoreConfig{
		Driver:   config.DriverSQLite,
		Database: filepath.Join(t.TempDir(), "missing", "dir", "books.db"),
		Table:    "amazon_books",
	}

	err := EnsureSchema(context.Background(), store)
	var target ErrStoreConnection
	if !errors.As(err, &target) {
		t.Fatalf("expected ErrStoreConnection, got %T: %v", err, err)
	}
}

func TestLoadInsertsInOrder(t *testing.T) {
	ctx := context.Background()
	store := sqliteStore(t)
	if err := EnsureSchema(ctx, store); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	batch := models.Batch{
		{Title: models.Str("Dune"), Author: models.Str("Frank Herbert"), Price: models.Str("$9.99"), Link: models.Str("https://catalog.test/dp/1")},
		{Title: models.Str("Emma"), Author: models.Str("Jane Austen"), Link: models.Str("https://catalog.test/dp/2")},
		{},
	}

	n, err := Load(ctx, store, batch)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}

	want := make([]row, 0, len(batch))
	for _, b := range batch {
		want = append(want, toRow(b))
	}
	if diff := cmp.Diff(want, readRows(t, store)); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissingPriceIsNull(t *testing.T) {
	ctx := context.Background()
	store := sqliteStore(t)
	if err := EnsureSchema(ctx, store); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	if _, err := Load(ctx, store, models.Batch{{Title: models.Str("Emma")}}); err != nil {
		t.Fatalf("load: %v", err)
	}

	db := openRaw(t, store)
	var nullPrices int
	if err := db.QueryRow(`SELECT COUNT(*) FROM amazon_books WHERE price IS NULL`).Scan(&nullPrices); err != nil {
		t.Fatalf("count nulls: %v", err)
	}
	if nullPrices != 1 {
		t.Fatalf("null prices = %d, want 1", nullPrices)
	}
}

func TestLoadAppendsOnRerun(t *testing.T) {
	ctx := context.Background()
	store := sqliteStore(t)
	if err := EnsureSchema(ctx, store); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	batch := models.Batch{{Title: models.Str("Dune")}, {Title: models.Str("Emma")}}
	for i := 0; i < 2; i++ {
		if _, err := Load(ctx, store, batch); err != nil {
			t.Fatalf("load %d: %v", i, err)
		}
	}
	if got := len(readRows(t, store)); got != 4 {
		t.Fatalf("rows = %d, want 4", got)
	}
}

func TestLoadFailureMidBatchRollsBack(t *testing.T) {
	ctx := context.Background()
	store := sqliteStore(t)
	if err := EnsureSchema(ctx, store); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	db := openRaw(t, store)
	trigger := `CREATE TRIGGER reject_third BEFORE INSERT ON amazon_books
		WHEN NEW.title = 'third'
		BEGIN SELECT RAISE(ABORT, 'rejected third record'); END`
	if _, err := db.Exec(trigger); err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	batch := models.Batch{
		{Title: models.Str("first")},
		{Title: models.Str("second")},
		{Title: models.Str("third")},
	}
	n, err := Load(ctx, store, batch)
	if err == nil {
		t.Fatalf("expected load error")
	}
	var target ErrStoreExecution
	if !errors.As(err, &target) {
		t.Fatalf("expected ErrStoreExecution, got %T: %v", err, err)
	}
	if !strings.Contains(err.Error(), "insert record 2") {
		t.Fatalf("error should name the failing record: %v", err)
	}
	if n != 0 {
		t.Fatalf("inserted = %d, want 0", n)
	}
	if got := len(readRows(t, store)); got != 0 {
		t.Fatalf("rows = %d, want 0 after rollback", got)
	}
}

func TestLoadEmptyBatchIsNoop(t *testing.T) {
	store := sqliteStore(t)
	n, err := Load(context.Background(), store, models.Batch{})
	if err != nil || n != 0 {
		t.Fatalf("Load(empty) = %d, %v; want 0, nil", n, err)
	}
}

func TestLoadWithoutTable(t *testing.T) {
	store := sqliteStore(t)
	_, err := Load(context.Background(), store, models.Batch{{Title: models.Str("x")}})
	var target ErrStoreExecution
	if !errors.As(err, &target) {
		t.Fatalf("expected ErrStoreExecution, got %T: %v", err, err)
	}
}

func TestDialectSQL(t *testing.T) {
	if got, want := Postgres.InsertSQL("amazon_books"), `INSERT INTO "amazon_books" (title, author, price, link) VALUES ($1, $2, $3, $4)`; got != want {
		t.Fatalf("postgres insert = %q, want %q", got, want)
	}
	if got, want := SQLite.InsertSQL("amazon_books"), `INSERT INTO "amazon_books" (title, author, price, link) VALUES (?, ?, ?, ?)`; got != want {
		t.Fatalf("sqlite insert = %q, want %q", got, want)
	}
	if ddl := Postgres.CreateTableSQL("amazon_books"); !strings.Contains(ddl, "CREATE TABLE IF NOT EXISTS \"amazon_books\"") || !strings.Contains(ddl, "SERIAL PRIMARY KEY") {
		t.Fatalf("postgres ddl = %q", ddl)
	}
	if _, err := DialectFor("mysql"); err == nil {
		t.Fatalf("expected unsupported driver error")
	}
}
