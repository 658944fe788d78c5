// Package storage creates the book table and loads record batches into it.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/aluiziolira/bookshelf-etl/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Open connects to the configured store and verifies the connection.
// Callers close the returned handle when their stage ends.
func Open(ctx context.Context, cfg config.StoreConfig) (*sql.DB, Dialect, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, Dialect{}, ErrStoreConnection{Err: err}
	}

	db, err := sql.Open(dialect.DriverName, cfg.DSN())
	if err != nil {
		return nil, Dialect{}, ErrStoreConnection{Err: err}
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, Dialect{}, ErrStoreConnection{Err: err}
	}
	return db, dialect, nil
}

// EnsureSchema creates the book table if it does not exist. Running it
// against an initialised store changes nothing.
func EnsureSchema(ctx context.Context, cfg config.StoreConfig) error {
	db, dialect, err := Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, dialect.CreateTableSQL(cfg.Table)); err != nil {
		return classifyError("create table", err)
	}

	slog.Info("schema ready", slog.String("table", cfg.Table), slog.String("dialect", dialect.Name))
	return nil
}

// Load inserts batch in order inside one transaction and returns the number
// of rows written. Any failure rolls the whole batch back.
func Load(ctx context.Context, cfg config.StoreConfig, batch models.Batch) (int, error) {
	if len(batch) == 0 {
		slog.Info("empty batch, nothing to load", slog.String("table", cfg.Table))
		return 0, nil
	}

	db, dialect, err := Open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifyError("begin", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			slog.Error("rollback failed", slog.Any("error", err))
		}
	}()

	stmt, err := tx.PrepareContext(ctx, dialect.InsertSQL(cfg.Table))
	if err != nil {
		return 0, classifyError("prepare insert", err)
	}
	defer stmt.Close()

	for i, book := range batch {
		if _, err := stmt.ExecContext(ctx, bindArgs(book)...); err != nil {
			return 0, classifyError(fmt.Sprintf("insert record %d", i), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classifyError("commit", err)
	}
	committed = true

	slog.Info("batch loaded", slog.String("table", cfg.Table), slog.Int("rows", len(batch)))
	return len(batch), nil
}

// bindArgs orders the record fields as Columns, binding missing fields as NULL.
func bindArgs(book models.Book) []any {
	return []any{
		nullable(book.Title),
		nullable(book.Author),
		nullable(book.Price),
		nullable(book.Link),
	}
}

func nullable(field *string) any {
	if field == nil {
		return nil
	}
	return *field
}
