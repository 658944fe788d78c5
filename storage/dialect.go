package storage

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/bookshelf-etl/config"
	"github.com/jackc/pgx/v5"
)

// Columns lists the inserted columns in bind order.
var Columns = []string{"title", "author", "price", "link"}

// Dialect holds the SQL differences between supported stores.
type Dialect struct {
	Name       string
	DriverName string
	primaryKey string
	bindVar    func(n int) string
}

var (
	// Postgres is served by the pgx stdlib driver.
	Postgres = Dialect{
		Name:       "postgres",
		DriverName: "pgx",
		primaryKey: "SERIAL PRIMARY KEY",
		bindVar:    func(n int) string { return fmt.Sprintf("$%d", n) },
	}
	// SQLite is served by modernc.org/sqlite.
	SQLite = Dialect{
		Name:       "sqlite",
		DriverName: "sqlite",
		primaryKey: "INTEGER PRIMARY KEY AUTOINCREMENT",
		bindVar:    func(int) string { return "?" },
	}
)

// DialectFor returns the dialect for a configured driver.
func DialectFor(driverName string) (Dialect, error) {
	switch driverName {
	case config.DriverPostgres:
		return Postgres, nil
	case config.DriverSQLite:
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported store driver %q", driverName)
	}
}

// CreateTableSQL returns the idempotent DDL for the book table.
func (d Dialect) CreateTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id %s,
	title TEXT,
	author TEXT,
	price TEXT,
	link TEXT
)`, quote(table), d.primaryKey)
}

// InsertSQL returns the parameterized single-row insert.
func (d Dialect) InsertSQL(table string) string {
	vars := make([]string, len(Columns))
	for i := range Columns {
		vars[i] = d.bindVar(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(table), strings.Join(Columns, ", "), strings.Join(vars, ", "))
}

func quote(table string) string {
	return pgx.Identifier{table}.Sanitize()
}
