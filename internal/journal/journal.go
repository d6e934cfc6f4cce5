// Package journal keeps a bounded log of recent events in an in-memory
// SQLite database. Nothing is written to disk; the log lives as long as the
// process.
package journal

import (
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// DefaultMaxRows is the number of events kept when Config.MaxRows is unset.
const DefaultMaxRows = 500

// Config holds journal options.
type Config struct {
	// MaxRows bounds the log; the oldest rows are trimmed on insert.
	MaxRows int
	Logger  logrus.FieldLogger
}

// Journal represents an in-memory SQLite event log.
type Journal struct {
	db      *sql.DB
	maxRows int
	log     logrus.FieldLogger
}

// New opens the in-memory database and runs migrations.
func New(config Config) (*Journal, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is a separate database, so pin the pool
	// to a single connection that is never recycled.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	maxRows := config.MaxRows
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	j := &Journal{
		db:      db,
		maxRows: maxRows,
		log:     log.WithField("component", "journal"),
	}

	if err := j.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return j, nil
}

// Close closes the database connection and discards the log.
func (j *Journal) Close() error {
	return j.db.Close()
}

// MaxRows returns the retention bound.
func (j *Journal) MaxRows() int {
	return j.maxRows
}
