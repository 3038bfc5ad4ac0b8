// Package sqlite is the embedded AuctionStore backend: one SQLite file per
// deployment, schema managed by goose.
package sqlite

import (
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Repository implements repository.AuctionStore over a sqlx connection.
type Repository struct {
	dbConn *sqlx.DB
}

// NewAuctionRepo wraps an open, migrated connection.
func NewAuctionRepo(db *sqlx.DB) *Repository {
	return &Repository{
		dbConn: db,
	}
}

// Open connects to the database file at path, migrates it and returns the store.
func Open(path string) (*Repository, error) {
	db, err := New(path)
	if err != nil {
		return nil, err
	}
	return NewAuctionRepo(db), nil
}

// Close terminates the database connection.
func (repo *Repository) Close() error {
	if err := repo.dbConn.Close(); err != nil {
		return fmt.Errorf("closing repo : %w", err)
	}
	return nil
}

// New establishes a connection to a SQLite database file and applies all
// pending migrations. WAL mode and foreign keys are enabled; a single open
// connection serializes writers.
func New(name string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", fmt.Sprintf("%s?_journal=WAL&_timeout=5000&_fk=true", name))
	if err != nil {
		return nil, fmt.Errorf("connecting to db : %w", err)
	}

	db.SetMaxOpenConns(1)

	if _, err = db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect(string(goose.DialectSQLite3)); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting dialect for migrations : %w", err)
	}

	if err := goose.Up(db.DB, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying migration : %w", err)
	}
	return db, nil
}
