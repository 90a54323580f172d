package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// DB holds the primary game's bet contributions.
var DB *sql.DB

// OpenPostgres connects without touching the schema.
func OpenPostgres(dsn string) error {
	var err error
	DB, err = sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	DB.SetMaxOpenConns(20)
	DB.SetConnMaxIdleTime(5 * time.Minute)
	if err := DB.Ping(); err != nil {
		return fmt.Errorf("postgres ping: %w", err)
	}
	return nil
}

// InitPostgres connects and brings the schema up to date.
func InitPostgres(dsn string) error {
	if err := OpenPostgres(dsn); err != nil {
		return err
	}
	return Migrate(DB)
}
